// Package state defines the persistence contract behind fragment-backed
// records: a Store loads and saves one snapshot per record reference.
//
// The root fragments package stays persistence-agnostic. Store.Save renders a
// record snapshot, hands it to a Store and promotes or rejects the in-flight
// attributes depending on the outcome.
//
// Deterministic keys:
//
//	Ref.Identifier() renders `model/id`, which MemoryStore and SQLiteStore
//	both use as their primary key.
//
// Concurrency:
//
//	Meta.ETag enables optimistic concurrency. A Save carrying an ETag that
//	does not match the stored one fails with ErrETagMismatch; a successful
//	Save always returns a fresh ETag.
package state
