package suspension

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wardenhq/warden/pkg/async"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/devices"
	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/principals"
	"github.com/wardenhq/warden/pkg/push"
	"github.com/wardenhq/warden/pkg/snapshots"
)

// Revoker invalidates credentials in bulk by owning principal. Satisfied
// by sessions.Store. Must be idempotent; the engine retries it.
type Revoker interface {
	RevokeAll(ctx context.Context, principalIDs []int64) (int, error)
}

// DescendantResolver computes the transitive subordinate set of a
// principal. Satisfied by principals.Hierarchy.
type DescendantResolver interface {
	Descendants(ctx context.Context, principalID int64) ([]int64, error)
}

// Record is the result of a successful Suspend or Resume.
type Record struct {
	PrincipalID int64             `json:"principal_id"`
	Status      principals.Status `json:"status"`
	ChangedAt   time.Time         `json:"changed_at"`
	SnapshotID  int64             `json:"snapshot_id,omitempty"`
}

// Deps collects the engine's collaborators. Audit, Notifier, Publisher,
// and Metrics may be nil; the corresponding side effect is skipped.
type Deps struct {
	Snapshots *snapshots.Store
	Devices   *devices.Store
	Resolver  DescendantResolver
	Revoker   Revoker
	Audit     audit.Logger
	Notifier  notify.Notifier
	Publisher push.Publisher
	Retry     async.RetryConfig
	Metrics   *observability.Metrics
}

// Engine orchestrates suspend and resume.
type Engine struct {
	db        *sql.DB
	snapshots *snapshots.Store
	devices   *devices.Store
	resolver  DescendantResolver
	revoker   Revoker
	auditLog  audit.Logger
	notifier  notify.Notifier
	publisher push.Publisher
	retry     *async.RetryPolicy
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

// NewEngine creates a suspension engine.
func NewEngine(db *sql.DB, deps Deps) *Engine {
	if deps.Notifier == nil {
		deps.Notifier = notify.NopNotifier{}
	}
	if deps.Publisher == nil {
		deps.Publisher = push.NopPublisher{}
	}
	return &Engine{
		db:        db,
		snapshots: deps.Snapshots,
		devices:   deps.Devices,
		resolver:  deps.Resolver,
		revoker:   deps.Revoker,
		auditLog:  deps.Audit,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		retry:     async.NewRetryPolicy(deps.Retry),
		metrics:   deps.Metrics,
		tracer:    otel.Tracer("warden/suspension"),
	}
}

// lockedPrincipal is the row image loaded under FOR UPDATE.
type lockedPrincipal struct {
	id            int64
	email         string
	displayName   string
	status        principals.Status
	suspendedAt   sql.NullTime
	suspendedBy   sql.NullInt64
	suspendReason sql.NullString
}

// Suspend disables a principal. The principal row, its snapshot, and its
// directly owned devices are mutated in one transaction; credential
// revocation and the other side effects run after commit.
func (e *Engine) Suspend(ctx context.Context, principalID, actorID int64, reason string) (*Record, error) {
	ctx, span := e.tracer.Start(ctx, "suspension.Suspend",
		trace.WithAttributes(
			attribute.Int64("principal.id", principalID),
			attribute.Int64("actor.id", actorID),
		))
	defer span.End()

	if reason == "" {
		reason = "no reason given"
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		e.countSuspend("storage_error")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := e.lockPrincipal(ctx, tx, principalID)
	if err != nil {
		e.countSuspend(outcomeFor(err))
		return nil, err
	}
	if p.status == principals.StatusSuspended {
		e.countSuspend("already_suspended")
		return nil, ErrAlreadyInTargetState
	}

	payload, err := snapshots.EncodePrincipalState(snapshots.PrincipalState{
		PriorStatus:        p.status,
		PriorSuspendedAt:   nullTimePtr(p.suspendedAt),
		PriorSuspendedBy:   nullInt64Ptr(p.suspendedBy),
		PriorSuspendReason: nullStringPtr(p.suspendReason),
	})
	if err != nil {
		e.countSuspend("storage_error")
		return nil, err
	}

	snap, err := e.snapshots.Capture(ctx, tx, snapshots.SubjectPrincipal, principalID, snapshots.ActionSuspend, payload)
	if err != nil {
		e.countSuspend("storage_error")
		return nil, err
	}

	if err := e.lockOwnedDevices(ctx, tx, principalID); err != nil {
		e.countSuspend("storage_error")
		return nil, err
	}

	var suspendedAt time.Time
	err = tx.QueryRowContext(ctx, `
		UPDATE principals
		SET status = $1, suspended_at = NOW(), suspended_by = $2, suspend_reason = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING suspended_at
	`, principals.StatusSuspended, actorID, reason, principalID).Scan(&suspendedAt)
	if err != nil {
		e.countSuspend("storage_error")
		return nil, fmt.Errorf("failed to suspend principal %d: %w", principalID, err)
	}

	if err := tx.Commit(); err != nil {
		e.countSuspend("storage_error")
		return nil, fmt.Errorf("failed to commit suspension: %w", err)
	}

	e.countSuspend("success")
	if e.metrics != nil {
		e.metrics.SnapshotsCapturedTotal.WithLabelValues(string(snapshots.SubjectPrincipal)).Inc()
	}
	logrus.WithFields(logrus.Fields{
		"principal_id": principalID,
		"actor_id":     actorID,
		"reason":       reason,
	}).Info("principal suspended")

	e.afterCommit(p, actorID, reason, audit.ActionSuspend, p.status, principals.StatusSuspended)

	return &Record{
		PrincipalID: principalID,
		Status:      principals.StatusSuspended,
		ChangedAt:   suspendedAt,
		SnapshotID:  snap.ID,
	}, nil
}

// Resume restores a principal to the state captured by the most recent
// active snapshot. A missing snapshot falls back to a conservative
// default (active, suspension fields cleared) — a lost snapshot must
// never make a principal permanently unrestorable.
func (e *Engine) Resume(ctx context.Context, principalID, actorID int64) (*Record, error) {
	ctx, span := e.tracer.Start(ctx, "suspension.Resume",
		trace.WithAttributes(
			attribute.Int64("principal.id", principalID),
			attribute.Int64("actor.id", actorID),
		))
	defer span.End()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		e.countResume("storage_error")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := e.lockPrincipal(ctx, tx, principalID)
	if err != nil {
		e.countResume(outcomeFor(err))
		return nil, err
	}
	if p.status == principals.StatusActive {
		e.countResume("already_active")
		return nil, ErrAlreadyInTargetState
	}

	prior := snapshots.PrincipalState{PriorStatus: principals.StatusActive}
	var snapshotID int64

	snap, err := e.snapshots.ActiveFor(ctx, tx, snapshots.SubjectPrincipal, principalID)
	if err != nil {
		e.countResume("storage_error")
		return nil, err
	}
	if snap == nil {
		logrus.WithField("principal_id", principalID).
			Warn("no active snapshot for suspended principal, restoring conservative default")
	} else {
		prior, err = snapshots.DecodePrincipalState(snap.CapturedState)
		if err != nil {
			// A corrupt payload gets the same conservative treatment as a
			// missing one.
			logrus.WithField("principal_id", principalID).WithError(err).
				Warn("unreadable snapshot payload, restoring conservative default")
			prior = snapshots.PrincipalState{PriorStatus: principals.StatusActive}
		}
		snapshotID = snap.ID
	}

	// Restore field-by-field so edits made to unrelated fields while
	// suspended are preserved.
	var resumedAt time.Time
	err = tx.QueryRowContext(ctx, `
		UPDATE principals
		SET status = $1, suspended_at = $2, suspended_by = $3, suspend_reason = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`, prior.PriorStatus, prior.PriorSuspendedAt, prior.PriorSuspendedBy, prior.PriorSuspendReason, principalID).Scan(&resumedAt)
	if err != nil {
		e.countResume("storage_error")
		return nil, fmt.Errorf("failed to resume principal %d: %w", principalID, err)
	}

	if snap != nil {
		if err := e.snapshots.Consume(ctx, tx, snap.ID); err != nil {
			e.countResume("storage_error")
			return nil, err
		}
	}

	if err := e.restoreOwnedDevices(ctx, tx, principalID); err != nil {
		e.countResume("storage_error")
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		e.countResume("storage_error")
		return nil, fmt.Errorf("failed to commit resume: %w", err)
	}

	e.countResume("success")
	if e.metrics != nil && snap != nil {
		e.metrics.SnapshotsConsumedTotal.WithLabelValues(string(snapshots.SubjectPrincipal)).Inc()
	}
	logrus.WithFields(logrus.Fields{
		"principal_id": principalID,
		"actor_id":     actorID,
	}).Info("principal resumed")

	e.afterCommit(p, actorID, "", audit.ActionResume, principals.StatusSuspended, prior.PriorStatus)

	return &Record{
		PrincipalID: principalID,
		Status:      prior.PriorStatus,
		ChangedAt:   resumedAt,
		SnapshotID:  snapshotID,
	}, nil
}

// lockPrincipal loads the principal row under FOR UPDATE so no two
// suspend/resume operations on the same principal can interleave.
func (e *Engine) lockPrincipal(ctx context.Context, tx *sql.Tx, principalID int64) (*lockedPrincipal, error) {
	p := &lockedPrincipal{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, email, display_name, status, suspended_at, suspended_by, suspend_reason
		FROM principals
		WHERE id = $1
		FOR UPDATE
	`, principalID).Scan(
		&p.id, &p.email, &p.displayName, &p.status,
		&p.suspendedAt, &p.suspendedBy, &p.suspendReason,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock principal %d: %w", principalID, err)
	}
	return p, nil
}

// lockOwnedDevices snapshots and locks every device directly owned by
// the principal. Descendants' devices are untouched; their effective
// suspension is derived from the ancestor walk just like their owners'.
func (e *Engine) lockOwnedDevices(ctx context.Context, tx *sql.Tx, principalID int64) error {
	owned, err := e.devices.ListByOwnerForUpdate(ctx, tx, principalID)
	if err != nil {
		return err
	}

	for _, d := range owned {
		payload, err := snapshots.EncodeDeviceState(snapshots.DeviceState{
			PowerOn:    d.PowerOn,
			Locked:     d.Locked,
			TargetTemp: d.TargetTemp,
		})
		if err != nil {
			return err
		}
		if _, err := e.snapshots.Capture(ctx, tx, snapshots.SubjectDevice, d.ID, snapshots.ActionLock, payload); err != nil {
			return err
		}
		if err := e.devices.ApplyState(ctx, tx, d.ID, false, true, d.TargetTemp); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.SnapshotsCapturedTotal.WithLabelValues(string(snapshots.SubjectDevice)).Inc()
		}
	}
	return nil
}

// restoreOwnedDevices puts each directly owned device back into its
// snapshotted state. A locked device with no active snapshot stays
// locked: a device is never unlocked on guesswork.
func (e *Engine) restoreOwnedDevices(ctx context.Context, tx *sql.Tx, principalID int64) error {
	owned, err := e.devices.ListByOwnerForUpdate(ctx, tx, principalID)
	if err != nil {
		return err
	}

	for _, d := range owned {
		snap, err := e.snapshots.ActiveFor(ctx, tx, snapshots.SubjectDevice, d.ID)
		if err != nil {
			return err
		}
		if snap == nil {
			if d.Locked {
				logrus.WithFields(logrus.Fields{
					"device_id":    d.ID,
					"principal_id": principalID,
				}).Warn("locked device has no snapshot, leaving locked")
			}
			continue
		}

		state, err := snapshots.DecodeDeviceState(snap.CapturedState)
		if err != nil {
			return fmt.Errorf("unreadable device snapshot %d: %w", snap.ID, err)
		}
		if err := e.devices.ApplyState(ctx, tx, d.ID, state.PowerOn, state.Locked, state.TargetTemp); err != nil {
			return err
		}
		if err := e.snapshots.Consume(ctx, tx, snap.ID); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.SnapshotsConsumedTotal.WithLabelValues(string(snapshots.SubjectDevice)).Inc()
		}
	}
	return nil
}

func (e *Engine) countSuspend(outcome string) {
	if e.metrics != nil {
		e.metrics.SuspensionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) countResume(outcome string) {
	if e.metrics != nil {
		e.metrics.ResumesTotal.WithLabelValues(outcome).Inc()
	}
}

func outcomeFor(err error) string {
	if err == ErrNotFound {
		return "not_found"
	}
	return "storage_error"
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
