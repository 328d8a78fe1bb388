package audit

import (
	"time"

	"github.com/wardenhq/warden/pkg/principals"
)

// Action identifies what kind of administrative transition an entry
// records.
type Action string

const (
	ActionSuspend Action = "suspend"
	ActionResume  Action = "resume"
)

// Entry is one immutable suspension audit record: who suspended/resumed
// whom, when, and why. Entries are append-only and never mutated.
type Entry struct {
	ID          int64                  `json:"id"`
	Action      Action                 `json:"action"`
	PrincipalID int64                  `json:"principal_id"`
	ActorID     int64                  `json:"actor_id"`
	Reason      string                 `json:"reason"`
	PriorStatus principals.Status      `json:"prior_status"`
	NewStatus   principals.Status      `json:"new_status"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
