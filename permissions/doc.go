// Package permissions tracks whether the secondary share store may be used.
//
// Tracker is a three-state machine (unknown, granted, denied) fed by the host
// permission system. Unknown is optimistic: the orchestrator attempts the
// secondary store until it is proven unusable. Deny latches the state after
// a quota failure so the user is not asked again; only a host notification
// changes it back.
//
// ManualQuerier is a settable permission system for hosts without one of
// their own.
package permissions
