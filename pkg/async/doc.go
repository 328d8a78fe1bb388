// Package async provides safe concurrent execution primitives for
// background tasks: panic-safe goroutines with timeouts, and capped
// exponential backoff retries.
//
// The suspension engine uses these for everything that runs after the
// suspending transaction commits (credential revocation, notification,
// push events) so that a misbehaving side effect can neither crash the
// process nor block the caller.
package async
