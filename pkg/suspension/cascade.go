package suspension

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wardenhq/warden/pkg/async"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/principals"
)

// afterCommit dispatches the post-commit side effects. None of these can
// fail the committed operation: the credential cascade retries in the
// background, and audit/notification/push failures are logged only.
func (e *Engine) afterCommit(p *lockedPrincipal, actorID int64, reason string, action audit.Action, priorStatus, newStatus principals.Status) {
	if action == audit.ActionSuspend {
		e.revokeCascade(p.id)
	}

	e.emitAudit(p.id, actorID, reason, action, priorStatus, newStatus)

	principal := &principals.Principal{
		ID:          p.id,
		Email:       p.email,
		DisplayName: p.displayName,
	}
	async.Go(context.Background(), 30*time.Second, "suspension notification", func(ctx context.Context) error {
		if action == audit.ActionSuspend {
			return e.notifier.SuspensionNotice(ctx, principal, reason)
		}
		return e.notifier.ResumptionNotice(ctx, principal)
	})

	async.Go(context.Background(), 10*time.Second, "suspension push event", func(ctx context.Context) error {
		return e.publisher.StatusChanged(ctx, p.id, newStatus, actorID)
	})
}

// revokeCascade invalidates the credentials of the suspended principal
// and every descendant, retrying with capped exponential backoff. The
// descendant set is recomputed on each attempt so principals added
// mid-retry are still covered. Exhausting all retries is a degraded
// condition, not a failure: session validation consults live status, so
// any credential the cascade missed dies at its next check.
func (e *Engine) revokeCascade(principalID int64) {
	async.Go(context.Background(), 10*time.Minute, "credential revocation cascade", func(ctx context.Context) error {
		err := e.retry.Retry(ctx, "credential revocation", func(ctx context.Context) error {
			if e.metrics != nil {
				e.metrics.RevocationAttemptsTotal.Inc()
			}

			ids := []int64{principalID}
			descendants, err := e.resolver.Descendants(ctx, principalID)
			if err != nil {
				return err
			}
			ids = append(ids, descendants...)

			revoked, err := e.revoker.RevokeAll(ctx, ids)
			if err != nil {
				return err
			}

			if e.metrics != nil {
				e.metrics.CredentialsRevokedTotal.Add(float64(revoked))
			}
			logrus.WithFields(logrus.Fields{
				"principal_id": principalID,
				"descendants":  len(descendants),
				"revoked":      revoked,
			}).Info("revocation cascade complete")
			return nil
		})
		if err != nil {
			if e.metrics != nil {
				e.metrics.RevocationsDegradedTotal.Inc()
			}
			logrus.WithField("principal_id", principalID).WithError(err).
				Error("revocation cascade degraded after exhausting retries")
		}
		return nil
	})
}

// emitAudit appends the audit entry synchronously; failure is logged
// but never rolls back the suspension.
func (e *Engine) emitAudit(principalID, actorID int64, reason string, action audit.Action, priorStatus, newStatus principals.Status) {
	if e.auditLog == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry := &audit.Entry{
		Action:      action,
		PrincipalID: principalID,
		ActorID:     actorID,
		Reason:      reason,
		PriorStatus: priorStatus,
		NewStatus:   newStatus,
	}
	if err := e.auditLog.Log(ctx, entry); err != nil {
		logrus.WithFields(logrus.Fields{
			"principal_id": principalID,
			"action":       action,
		}).WithError(err).Warn("failed to emit audit entry")
	}
}
