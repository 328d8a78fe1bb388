package notify

import (
	"context"

	"github.com/wardenhq/warden/pkg/principals"
)

// Notifier delivers best-effort notices to affected principals. Failures
// are logged by callers and never affect the outcome of the operation
// that triggered them.
type Notifier interface {
	SuspensionNotice(ctx context.Context, p *principals.Principal, reason string) error
	ResumptionNotice(ctx context.Context, p *principals.Principal) error
}

// NopNotifier discards all notices.
type NopNotifier struct{}

// SuspensionNotice implements Notifier.
func (NopNotifier) SuspensionNotice(context.Context, *principals.Principal, string) error {
	return nil
}

// ResumptionNotice implements Notifier.
func (NopNotifier) ResumptionNotice(context.Context, *principals.Principal) error {
	return nil
}
