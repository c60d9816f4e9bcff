/*
Package revision allocates revision numbers for produced variables.

Every value a local provider produces gets the next revision of its variable.
Revisions start at 1, increase strictly and are never handed out twice, even
across a crash, so subscribers can ask for exact revisions and windows of
revisions.

# Storage

BoltAuthority keeps the counters in <dataDir>/revisions.db:

	revisions   variable id (uint32 big endian) -> latest revision (uint32 big endian)
	meta        "signature" -> schema fingerprint

IncRevision commits one bbolt transaction per allocation before returning.
Reads are served from a write-through cache.

# Schema binding

Counters only make sense for the variable set they were allocated under. Open
compares the stored signature with the running schema fingerprint:

	stored empty         adopt the running fingerprint
	stored == running    ok
	stored != running    ErrFingerprintMismatch (strict) or overwrite with a warning

Memory is a volatile Authority for tests and nodes that do not need durable
revisions.
*/
package revision
