// Package principals models the administrative hierarchy: super-
// administrators own administrators, administrators own managers, and any
// principal may directly own devices.
//
// The Hierarchy type is the cascade resolver. Suspension of a principal
// is never written into descendant rows; descendants are considered
// suspended because IsEffectivelySuspended walks their ancestor chain at
// read time. This keeps Suspend/Resume a single-row mutation and removes
// the possibility of a crash leaving half a subtree flipped.
package principals
