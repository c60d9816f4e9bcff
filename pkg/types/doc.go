/*
Package types defines the identifiers and records shared by every MCCI package.

A node serves variables defined by its schema. Each production of a variable
allocates the next revision, and clients subscribe to future revisions with a
request whose shape is implied by the fields it sets:

	Host      Variable  Revision  Shape
	HostAny   0         0         promiscuous: everything from everywhere
	HostAny   v         0         discovery: variable v on every host
	h         0         0         every variable of host h
	h         v         0         latest revisions of v on h (forwardable)
	h         v         r         revisions r.. of v on h (forwardable)

Host 0 in a request means the serving node itself. The compound keys HostVar,
VarRev and HostVarRev are the key sets filed in the subscription banks.

All timestamps are Time values in milliseconds since the Unix epoch.
*/
package types
