/*
Package hstore provides a content-addressable store for evolving,
schema-validated JSON state.  Values are decomposed into a Merkle DAG
of canonically-encoded blocks, so structurally equal values share
storage no matter when or in what shape they were committed.  Blocks
can be stored in anything, like a map, a filesystem, an LSM database,
or a blob store, and storage tiers can be composed into write-through
cache hierarchies.

Content addressing

Every JSON value is projected onto a DAG of nodes: one node per scalar,
array, or object.  A node's identity is the hash of its canonical
encoding, so equal subtrees collapse to a single block regardless of
where they appear in a value, or in which commit.  Object keys are
sorted by Unicode code point before encoding, which makes the hash of
an object independent of insertion order.  Array order is significant
and preserved.

Versioning

A Store keeps an append-only chain of versions.  Each commit validates
the new value against a caller-supplied schema, persists the value DAG,
and writes a version block linking to the previous head.  Version
blocks are content-addressed like everything else; only the head
record, stored under a single reserved key, is ever overwritten.  After
a crash, storage is always at some previously committed head, possibly
with a few orphaned blocks that nothing references.

Immutability

Values returned from Commit, Head, and Get are deeply immutable: Value
is a read-only view, and byte buffers are defensively copied at every
adapter boundary.  Repeated reads of the same hash return the same
Value, which keeps identity-based dedup cheap for callers that commit
small changes to large states.
*/
package hstore
