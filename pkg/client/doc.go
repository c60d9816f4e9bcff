/*
Package client is the Go client for a node's mcci.Distributor service.

	c, err := client.NewClient("127.0.0.1:7420")
	if err != nil {
		return err
	}
	defer c.Close()

	stream, err := c.Attach(ctx, 7, false)
	if err != nil {
		return err
	}
	resp, err := c.Request(ctx, 7, types.Request{
		Timeout:  client.Expiry(clock.Real(), time.Minute),
		Host:     types.HostAny,
		Variable: 2,
	})
	for {
		env, err := stream.Recv()
		...
	}

Attach before Request: data for a client with no open stream is dropped.
*/
package client
