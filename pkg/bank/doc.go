/*
Package bank keeps outstanding subscriptions for the router.

A Bank files each subscription twice: in a fibheap of expiry times, so the
nearest timeout is found in O(1) and removed in amortized O(log n), and in a
linearhash index from key set to the clients subscribed under it, so a
produced value finds its subscribers without a scan. Both sides hold the same
fibheap.Handle.

The key set type S decides the index shape. Single-level banks hash one key
extracted by a Keyer; revision banks hash an outer key and then the revision
through a PairKeyer. Keyers are type parameters, so the extraction compiles
to a direct call:

	b := bank.NewVariableRevisionBank(maxClients, 100, 20)
	_ = b.Add(types.VarRev{Variable: 4, Revision: 9}, client, expiry)
	for c := range b.Subscribers(types.VarRev{Variable: 4, Revision: 9}) {
		...
	}

Every bank counts the live subscriptions of each client. The router derives
quotas from these counts.
*/
package bank
