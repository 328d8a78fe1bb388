// Package snapshots is the restore ledger for the suspension subsystem.
//
// Each row records what a subject (a principal or a device) looked like
// immediately before a suspend or lock action. The `is_active` flag is
// the sole source of truth for which snapshot is authoritative; capture
// ordering by timestamp is kept only for audit display. A partial unique
// index guarantees at most one active snapshot per subject.
//
// Snapshot payloads are typed per subject and validated on capture, so a
// resume can never discover that there is nothing to restore.
package snapshots
