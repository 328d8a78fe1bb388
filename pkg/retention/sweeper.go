package retention

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/snapshots"
)

// archiveBatchSize bounds how many snapshots one sweep exports per
// archive object.
const archiveBatchSize = 1000

// Sweeper deletes snapshot and audit records that have aged out of
// their retention windows. It only ever deletes consumed snapshots: an
// active snapshot is the authoritative restore point for an ongoing
// suspension, and an old one just means the principal has been
// suspended for a long time.
type Sweeper struct {
	db        *sql.DB
	snapshots *snapshots.Store
	auditLog  *audit.DBLogger
	archiver  Archiver
	cfg       config.RetentionConfig
	metrics   *observability.Metrics
}

// NewSweeper creates a retention sweeper. archiver and metrics may be
// nil.
func NewSweeper(db *sql.DB, snapStore *snapshots.Store, auditLog *audit.DBLogger, archiver Archiver, cfg config.RetentionConfig, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		db:        db,
		snapshots: snapStore,
		auditLog:  auditLog,
		archiver:  archiver,
		cfg:       cfg,
		metrics:   metrics,
	}
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	start := time.Now()

	snapsDeleted, err := s.sweepSnapshots(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SweepFailuresTotal.Inc()
		}
		return fmt.Errorf("snapshot sweep failed: %w", err)
	}

	var auditDeleted int64
	if s.auditLog != nil {
		auditDeleted, err = s.auditLog.DeleteBefore(ctx, time.Now().Add(-s.cfg.AuditWindow))
		if err != nil {
			if s.metrics != nil {
				s.metrics.SweepFailuresTotal.Inc()
			}
			return fmt.Errorf("audit sweep failed: %w", err)
		}
	}

	if s.metrics != nil {
		s.metrics.SweepDeletedTotal.WithLabelValues("state_snapshots").Add(float64(snapsDeleted))
		s.metrics.SweepDeletedTotal.WithLabelValues("suspension_audit").Add(float64(auditDeleted))
	}
	logrus.WithFields(logrus.Fields{
		"snapshots_deleted": snapsDeleted,
		"audit_deleted":     auditDeleted,
		"duration":          time.Since(start),
	}).Info("retention sweep complete")
	return nil
}

func (s *Sweeper) sweepSnapshots(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.cfg.SnapshotWindow)

	if s.archiver != nil {
		var total int64
		for {
			batch, err := s.snapshots.ListConsumedBefore(ctx, s.db, cutoff, archiveBatchSize)
			if err != nil {
				return total, err
			}
			if len(batch) == 0 {
				return total, nil
			}
			if err := s.archiver.ArchiveSnapshots(ctx, batch); err != nil {
				// Deletion is skipped for this sweep; the rows stay until
				// they can be archived.
				return total, fmt.Errorf("archive failed, deletion skipped: %w", err)
			}
			deleted, err := s.deleteByID(ctx, batch)
			if err != nil {
				return total, err
			}
			total += deleted
			if deleted < int64(len(batch)) {
				return total, nil
			}
		}
	}

	return s.snapshots.DeleteConsumedBefore(ctx, s.db, cutoff)
}

// deleteByID removes exactly the archived rows, so rows consumed after
// the listing are never deleted unarchived.
func (s *Sweeper) deleteByID(ctx context.Context, batch []*snapshots.StateSnapshot) (int64, error) {
	var total int64
	for _, snap := range batch {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM state_snapshots WHERE id = $1 AND NOT is_active`, snap.ID)
		if err != nil {
			return total, fmt.Errorf("failed to delete snapshot %d: %w", snap.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to count snapshot deletion: %w", err)
		}
		total += n
	}
	return total, nil
}
