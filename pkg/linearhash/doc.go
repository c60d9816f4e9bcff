// Package linearhash provides Table, a hash table for small integer keys that
// uses the key itself as the hash and a prime number of ordered buckets.
//
// Bucket counts come from Primes. Resize is destructive: it replaces the
// bucket array and drops every entry, so tables are sized at construction and
// only resized while empty.
package linearhash
