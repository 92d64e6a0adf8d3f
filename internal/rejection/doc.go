// Package rejection implements the per-recipient rejection memory consulted
// by the quality guard before a draft is queued.
//
// A Store fronts an ordered chain of Backends: a remote atomic key-value
// store (Redis or DynamoDB) first, then a local JSON-per-recipient
// directory. Connectivity failures fall through to the next backend; any
// other failure is logged and treated as "no history" on reads and as a
// dropped event on writes. Store methods never return storage errors to
// the caller.
//
// Records are keyed by fingerprint.RecipientKey so raw addresses never
// appear in keys. Expiry is computed at read time from LastRejectedAt and
// the configured TTL; physical deletion is left to backend TTLs and the
// sweeper.
package rejection
