package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/mcci/pkg/api"
	"github.com/cuemby/mcci/pkg/clock"
	"github.com/cuemby/mcci/pkg/hub"
	"github.com/cuemby/mcci/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Stream receives the envelopes delivered to an attached client.
type Stream = grpc.ServerStreamingClient[hub.Envelope]

// Client wraps the mcci.Distributor gRPC client for easy CLI usage
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to the node at addr. Extra dial options are applied
// after the defaults (plaintext transport, CBOR codec).
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(api.Codec{})),
	}
	conn, err := grpc.NewClient(addr, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Request files a subscription on behalf of client.
func (c *Client) Request(ctx context.Context, client types.ClientID, r types.Request) (types.Response, error) {
	var resp types.Response
	err := c.conn.Invoke(ctx, api.MethodRequest, &api.RequestCall{Client: client, Request: r}, &resp)
	return resp, err
}

// Produce publishes a value of a variable this node owns.
func (c *Client) Produce(ctx context.Context, provider types.ClientID, p types.Production) (types.Acceptance, error) {
	var ack types.Acceptance
	err := c.conn.Invoke(ctx, api.MethodProduce, &api.ProduceCall{Provider: provider, Production: p}, &ack)
	return ack, err
}

// Data hands the node a value produced elsewhere and returns how many
// clients it reached.
func (c *Client) Data(ctx context.Context, provider types.ClientID, d types.Data) (int, error) {
	var reply api.DataReply
	err := c.conn.Invoke(ctx, api.MethodData, &api.DataCall{Provider: provider, Data: d}, &reply)
	return reply.Delivered, err
}

// Stats returns the router snapshot, with the quota of client when non-nil.
func (c *Client) Stats(ctx context.Context, client *types.ClientID) (api.StatsReply, error) {
	var reply api.StatsReply
	err := c.conn.Invoke(ctx, api.MethodStats, &api.StatsCall{Client: client}, &reply)
	return reply, err
}

// Attach opens the delivery stream for client and waits until the node has
// registered it, so requests issued afterwards cannot miss deliveries. The
// stream ends when ctx is cancelled.
func (c *Client) Attach(ctx context.Context, client types.ClientID, peer bool) (Stream, error) {
	cs, err := c.conn.NewStream(ctx, &api.ServiceDesc.Streams[0], api.MethodAttach)
	if err != nil {
		return nil, err
	}
	stream := &grpc.GenericClientStream[api.AttachCall, hub.Envelope]{ClientStream: cs}
	if err := stream.SendMsg(&api.AttachCall{Client: client, Peer: peer}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	first, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	if first.Kind != hub.KindAttached {
		return nil, fmt.Errorf("attach: expected %q envelope, got %q", hub.KindAttached, first.Kind)
	}
	return stream, nil
}

// Expiry converts a time-to-live into the absolute timeout a Request
// carries, reading now from clk.
func Expiry(clk clock.Clock, ttl time.Duration) types.Time {
	if ttl < 0 {
		ttl = 0
	}
	return clock.Stamp(clk) + types.Time(ttl.Milliseconds())
}
