/*
Package schema loads the variable set a node serves.

A schema file lists variables by id and name:

	variables:
	  - id: 1
	    name: temperature
	  - id: 7
	    name: pressure

Variables are numbered densely in ascending id order; the router uses the
ordinal to index its working set. Fingerprint is a BLAKE3 digest of the
canonical listing, stored next to the revision counters so a node refuses to
reuse counters that belong to a different variable set.
*/
package schema
