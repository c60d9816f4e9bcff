/*
Package server implements the router at the center of a node.

Clients subscribe with a Request naming a host, a variable and a revision,
each of which may be left open. The router files the request in one of six
banks according to its shape:

	host   variable  revision   bank         quota
	ANY    0         -          all          free
	ANY    v         0          var          free
	h      0         0          host         remote
	h      v         0          hostvar      remote (plus a revision window)
	self   v         r          varrev       local
	other  v         r          hostvarrev   remote

Host 0 means this node. A revision together with host 0 and variable 0, or
with host ANY, is rejected.

Revision requests cover a window of Quantity revisions starting at the
requested revision, or at the variable's current revision when none is given,
and extending in the direction of Quantity's sign. The window is cut to the
client's remaining quota.

When a value is produced here, or arrives from a peer, the router delivers it
once to the union of subscribers from every matching bank, then retires the
subscriptions for exactly that revision. Everything else lives until its
timeout; EnforceTimeouts sweeps expired subscriptions.

The router does not lock. dispatch.Dispatcher serializes calls into it.
*/
package server
