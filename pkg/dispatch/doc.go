/*
Package dispatch is the serialization boundary in front of the router.

server.Server is single-threaded. The Dispatcher owns one and holds a mutex
for the length of every call, so gRPC handlers, peer links and the sweeper
can share it. It also records request, production and sweep metrics.

Start runs the sweeper: on every tick of the injected clock the dispatcher
calls EnforceTimeouts with the tick time, dropping subscriptions whose expiry
has passed. Expiry is polled, never scheduled per subscription.

	d := dispatch.New(srv, clock.Real(), time.Second)
	d.Start()
	defer d.Stop()
*/
package dispatch
