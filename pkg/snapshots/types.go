package snapshots

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenhq/warden/pkg/principals"
)

// SubjectType identifies what kind of record a snapshot captures.
type SubjectType string

const (
	SubjectPrincipal SubjectType = "principal"
	SubjectDevice    SubjectType = "device"
)

// ActionType identifies the action a snapshot makes reversible.
type ActionType string

const (
	ActionSuspend ActionType = "suspend"
	ActionLock    ActionType = "lock"
)

// StateSnapshot is one row of the restore ledger: what a subject looked
// like immediately before a suspend/lock action. At most one snapshot per
// (subject_type, subject_id) is active at a time; the active one is the
// authoritative restore point.
type StateSnapshot struct {
	ID            int64           `json:"id"`
	SubjectType   SubjectType     `json:"subject_type"`
	SubjectID     int64           `json:"subject_id"`
	ActionType    ActionType      `json:"action_type"`
	CapturedState json.RawMessage `json:"captured_state"`
	IsActive      bool            `json:"is_active"`
	CapturedAt    time.Time       `json:"captured_at"`
	ConsumedAt    *time.Time      `json:"consumed_at,omitempty"`
}

// PrincipalState is the declared snapshot payload for a principal
// subject: its status and suspension metadata immediately before the
// suspend.
type PrincipalState struct {
	PriorStatus        principals.Status `json:"prior_status"`
	PriorSuspendedAt   *time.Time        `json:"prior_suspended_at,omitempty"`
	PriorSuspendedBy   *int64            `json:"prior_suspended_by,omitempty"`
	PriorSuspendReason *string           `json:"prior_suspend_reason,omitempty"`
}

// DeviceState is the declared snapshot payload for a device subject.
type DeviceState struct {
	PowerOn    bool    `json:"power_on"`
	Locked     bool    `json:"locked"`
	TargetTemp float64 `json:"target_temp"`
}

// EncodePrincipalState validates and serializes a principal payload.
func EncodePrincipalState(state PrincipalState) (json.RawMessage, error) {
	if state.PriorStatus != principals.StatusActive && state.PriorStatus != principals.StatusSuspended {
		return nil, fmt.Errorf("invalid prior status %q", state.PriorStatus)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal principal state: %w", err)
	}
	return data, nil
}

// DecodePrincipalState parses and validates a principal payload.
func DecodePrincipalState(raw json.RawMessage) (PrincipalState, error) {
	var state PrincipalState
	if err := json.Unmarshal(raw, &state); err != nil {
		return PrincipalState{}, fmt.Errorf("failed to unmarshal principal state: %w", err)
	}
	if state.PriorStatus != principals.StatusActive && state.PriorStatus != principals.StatusSuspended {
		return PrincipalState{}, fmt.Errorf("invalid prior status %q in snapshot", state.PriorStatus)
	}
	return state, nil
}

// EncodeDeviceState serializes a device payload.
func EncodeDeviceState(state DeviceState) (json.RawMessage, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal device state: %w", err)
	}
	return data, nil
}

// DecodeDeviceState parses a device payload.
func DecodeDeviceState(raw json.RawMessage) (DeviceState, error) {
	var state DeviceState
	if err := json.Unmarshal(raw, &state); err != nil {
		return DeviceState{}, fmt.Errorf("failed to unmarshal device state: %w", err)
	}
	return state, nil
}

// validPayload checks that a payload parses as the declared shape for its
// subject type. Ad hoc blobs are rejected at capture time; a snapshot
// that cannot be restored is worse than no snapshot, because it hides
// the gap until resume.
func validPayload(subjectType SubjectType, raw json.RawMessage) error {
	switch subjectType {
	case SubjectPrincipal:
		_, err := DecodePrincipalState(raw)
		return err
	case SubjectDevice:
		_, err := DecodeDeviceState(raw)
		return err
	default:
		return fmt.Errorf("unknown subject type %q", subjectType)
	}
}
