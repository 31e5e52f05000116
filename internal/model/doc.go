// Package model defines the records exchanged between field devices, zone hubs
// and the core authority, together with the closed enumerations, column types
// and error taxonomy shared by every other package.
//
// # Identity
//
// Records are identified by UUIDv7 strings assigned by whichever tier creates
// them first. Upserts are keyed by that ID, which makes re-applying a record a
// no-op and lets two tiers converge without coordination.
//
// # Time
//
// All timestamps are stored and transmitted as fixed-width UTC strings
// (see Time). Fixed width keeps lexicographic order equal to chronological
// order, which the pull cursor comparison (updated_at > since) relies on.
//
// # Wire format
//
// PushPayload, PushResponse, PullRequest and PullResponse are the JSON bodies
// of POST /sync/push and POST /sync/pull on both the hub and the core.
package model
