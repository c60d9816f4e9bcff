/*
Package api exposes a node's router over gRPC as the mcci.Distributor service.

Messages are plain Go structs carried with a CBOR codec registered under the
content subtype "cbor"; there is no generated code. The service descriptor is
written by hand in service.go.

# Methods

	Request  RequestCall  -> types.Response    file a subscription
	Produce  ProduceCall  -> types.Acceptance  publish a local value
	Data     DataCall     -> DataReply         inject a value from a peer
	Stats    StatsCall    -> StatsReply        router and client snapshot
	Attach   AttachCall   -> stream hub.Envelope

Attach registers the caller with the hub and streams everything the router
delivers to it: data, production acknowledgements and, for peers, forwarded
requests. The first envelope is always KindAttached. A second Attach for the
same client replaces the first, which ends with codes.Aborted.

# Errors

Router errors map onto status codes:

	unknown variable          codes.NotFound
	client id out of range    codes.InvalidArgument
	revision space exhausted  codes.ResourceExhausted
	anything else             codes.FailedPrecondition

A rejected request is not an error; it comes back as a Response with
Accepted false.

# HTTP

HealthServer serves the Prometheus registry and health endpoints from
pkg/metrics, plus /stats with the JSON router snapshot.
*/
package api
