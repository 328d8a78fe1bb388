// Package sessions is the credential store and session/credential
// manager.
//
// Credentials are opaque bearer tokens stored by SHA-256 hash in Redis —
// a shared store, not per-process memory, so revocation works across
// service instances. Each principal has an index set of its token hashes
// to make bulk revocation by principal O(sessions), not O(keyspace).
//
// Validate consults the live effective-suspension state on every call.
// Explicit purging by the revocation cascade is therefore an
// optimization, not a security boundary: a token that outlives a delayed
// cascade still dies at its next validation.
package sessions
