/*
Package hub connects the router to attached clients.

Every client that wants packets pushed to it attaches and receives a Session
with a buffered channel. The router's deliveries, production acknowledgements
and forwarded requests become Envelopes on those channels:

	router ──SendData────────► session(client).C
	       ──SendProductionAck► session(provider).C
	       ──ForwardRequest───► session(peer).C   for every peer

Sessions carry a random id. Attaching again replaces the old session and
closes its channel; a late Detach carrying the old id is ignored, so a
reconnecting client is not torn down by its own previous stream.

Sends never block the router. A full buffer drops the envelope and the send
reports ErrBufferFull; the router logs it and moves on. There is no retry.
*/
package hub
