package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/mcci/pkg/api"
	"github.com/cuemby/mcci/pkg/clock"
	"github.com/cuemby/mcci/pkg/dispatch"
	"github.com/cuemby/mcci/pkg/hub"
	"github.com/cuemby/mcci/pkg/revision"
	"github.com/cuemby/mcci/pkg/schema"
	"github.com/cuemby/mcci/pkg/server"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const node types.NodeAddress = 3

func newNode(t *testing.T, opts ...api.Option) *Client {
	t.Helper()
	reg, err := schema.New([]schema.Variable{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
	require.NoError(t, err)

	h := hub.New(16)
	srv, err := server.New(server.Settings{
		NodeAddress:       node,
		MaxLocalRequests:  10,
		MaxRemoteRequests: 10,
		MaxClients:        8,
		Banks:             server.DefaultBankSizes(),
	}, revision.NewMemory(), reg, h)
	require.NoError(t, err)

	d := dispatch.New(srv, clock.FakeAt(1_000), time.Second)
	apiSrv := api.NewServer(d, h, opts...)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = apiSrv.Serve(lis) }()
	t.Cleanup(apiSrv.Stop)

	c, err := NewClient("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRequestProduceDeliver(t *testing.T) {
	c := newNode(t)
	ctx := testContext(t)

	sub, err := c.Attach(ctx, 1, false)
	require.NoError(t, err)
	prov, err := c.Attach(ctx, 4, false)
	require.NoError(t, err)

	resp, err := c.Request(ctx, 1, types.Request{Timeout: 5_000, Host: types.HostAny, Variable: 2})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, uint32(10), resp.RequestsRemainingLocal)

	ack, err := c.Produce(ctx, 4, types.Production{Variable: 2, ResponseID: 9, Payload: []byte("v1")})
	require.NoError(t, err)
	assert.Equal(t, types.Revision(1), ack.Revision)

	env, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, hub.KindData, env.Kind)
	require.NotNil(t, env.Data)
	assert.Equal(t, types.Data{Host: node, Variable: 2, Revision: 1, Payload: []byte("v1")}, *env.Data)

	env, err = prov.Recv()
	require.NoError(t, err)
	assert.Equal(t, hub.KindAck, env.Kind)
	require.NotNil(t, env.Ack)
	assert.Equal(t, types.Acceptance{ResponseID: 9, Revision: 1}, *env.Ack)

	n, err := c.Data(ctx, 5, types.Data{Host: 9, Variable: 2, Revision: 7, Payload: []byte("far")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	env, err = sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, types.NodeAddress(9), env.Data.Host)
}

func TestRejectedRequestIsNotAnError(t *testing.T) {
	c := newNode(t)
	ctx := testContext(t)

	resp, err := c.Request(ctx, 1, types.Request{Timeout: 5_000, Revision: 4})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, uint32(10), resp.RequestsRemainingRemote)
}

func TestErrorCodes(t *testing.T) {
	c := newNode(t)
	ctx := testContext(t)

	_, err := c.Request(ctx, 1, types.Request{Timeout: 5_000, Variable: 7, Quantity: 1})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Request(ctx, 50, types.Request{Timeout: 5_000, Host: types.HostAny})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Produce(ctx, 1, types.Production{Variable: 7})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Attach(ctx, 50, false)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Data(ctx, 5, types.Data{Host: node, Variable: 1, Revision: 1, Payload: []byte("fake")})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad := types.ClientID(50)
	_, err = c.Stats(ctx, &bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStats(t *testing.T) {
	c := newNode(t)
	ctx := testContext(t)

	_, err := c.Request(ctx, 2, types.Request{Timeout: 5_000, Host: types.HostAny, Variable: 1})
	require.NoError(t, err)
	_, err = c.Request(ctx, 2, types.Request{Timeout: 5_000, Variable: 1, Quantity: 3})
	require.NoError(t, err)

	reply, err := c.Stats(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, node, reply.Server.NodeAddress)
	assert.Nil(t, reply.Client)
	assert.Len(t, reply.Server.Banks, 6)

	id := types.ClientID(2)
	reply, err = c.Stats(ctx, &id)
	require.NoError(t, err)
	require.NotNil(t, reply.Client)
	assert.Equal(t, uint32(1), reply.Client.Outstanding["var"])
	assert.Equal(t, uint32(3), reply.Client.Outstanding["varrev"])
	assert.Equal(t, uint32(7), reply.Client.RemainingLocal)
}

func TestPeerReceivesForwardedRequest(t *testing.T) {
	c := newNode(t)
	ctx := testContext(t)

	peer, err := c.Attach(ctx, 6, true)
	require.NoError(t, err)

	r := types.Request{Timeout: 5_000, Host: 9, Variable: 2}
	resp, err := c.Request(ctx, 1, r)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)

	env, err := peer.Recv()
	require.NoError(t, err)
	assert.Equal(t, hub.KindForward, env.Kind)
	assert.Equal(t, types.ClientID(1), env.Client)
	require.NotNil(t, env.Request)
	assert.Equal(t, r, *env.Request)
}

func TestReattachEndsPreviousStream(t *testing.T) {
	c := newNode(t)
	ctx := testContext(t)

	first, err := c.Attach(ctx, 1, false)
	require.NoError(t, err)
	_, err = c.Attach(ctx, 1, false)
	require.NoError(t, err)

	_, err = first.Recv()
	assert.Equal(t, codes.Aborted, status.Code(err))
}

func TestReadOnlyNode(t *testing.T) {
	c := newNode(t, api.WithReadOnly())
	ctx := testContext(t)

	_, err := c.Produce(ctx, 1, types.Production{Variable: 1})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	_, err = c.Data(ctx, 1, types.Data{Host: 9, Variable: 1, Revision: 1})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	resp, err := c.Request(ctx, 1, types.Request{Timeout: 5_000, Host: types.HostAny})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
}

func TestExpiry(t *testing.T) {
	clk := clock.FakeAt(10_000)
	assert.Equal(t, types.Time(12_500), Expiry(clk, 2500*time.Millisecond))
	assert.Equal(t, types.Time(10_000), Expiry(clk, -time.Second))
}
