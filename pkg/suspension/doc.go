// Package suspension implements the suspend/resume core.
//
// Suspend atomically flips a principal to suspended, snapshots its prior
// state (and the state of its directly owned devices) inside a single
// transaction, and — only after commit — revokes every credential held
// by the principal and its descendants. Resume restores the exact state
// captured at suspension time, exactly once, from the most recent active
// snapshot.
//
// Descendant principals are never individually mutated. Their
// suspended-ness is derived at read time by walking the ancestor chain
// (principals.Hierarchy.IsEffectivelySuspended), so Suspend/Resume stay
// bounded single-subject writes and a crash can never leave a subtree
// half-flipped.
//
// Everything after commit (revocation cascade, audit entry, notification
// email, push event) is best-effort: the cascade retries with capped
// exponential backoff, and its failure is surfaced as a degraded-state
// log and metric, never as a failure of the committed operation —
// session validation consults live status, so stale credentials fail
// their next check regardless.
package suspension
