package api

import (
	"context"

	"github.com/cuemby/mcci/pkg/hub"
	"github.com/cuemby/mcci/pkg/server"
	"github.com/cuemby/mcci/pkg/types"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mcci.Distributor"

// Full method names, as seen by interceptors.
const (
	MethodRequest = "/" + ServiceName + "/Request"
	MethodProduce = "/" + ServiceName + "/Produce"
	MethodData    = "/" + ServiceName + "/Data"
	MethodStats   = "/" + ServiceName + "/Stats"
	MethodAttach  = "/" + ServiceName + "/Attach"
)

// RequestCall asks the router to file a subscription for Client.
type RequestCall struct {
	Client  types.ClientID `cbor:"client"`
	Request types.Request  `cbor:"request"`
}

// ProduceCall offers a new value from local provider Provider.
type ProduceCall struct {
	Provider   types.ClientID   `cbor:"provider"`
	Production types.Production `cbor:"production"`
}

// DataCall hands the router a value produced on another node. Provider is
// the peer that relayed it.
type DataCall struct {
	Provider types.ClientID `cbor:"provider"`
	Data     types.Data     `cbor:"data"`
}

// DataReply reports how many clients the value was delivered to.
type DataReply struct {
	Delivered int `cbor:"delivered"`
}

// AttachCall opens the delivery stream for Client. Peers receive forwarded
// requests in addition to data and acknowledgements.
type AttachCall struct {
	Client types.ClientID `cbor:"client"`
	Peer   bool           `cbor:"peer"`
}

// StatsCall asks for a router snapshot. When Client is set the reply also
// carries that client's quota.
type StatsCall struct {
	Client *types.ClientID `cbor:"client,omitempty"`
}

// StatsReply is the answer to a StatsCall.
type StatsReply struct {
	Server server.Stats        `cbor:"server" json:"server"`
	Client *server.ClientStats `cbor:"client,omitempty" json:"client,omitempty"`
}

// DistributorServer is the server side of mcci.Distributor.
type DistributorServer interface {
	Request(context.Context, *RequestCall) (*types.Response, error)
	Produce(context.Context, *ProduceCall) (*types.Acceptance, error)
	Data(context.Context, *DataCall) (*DataReply, error)
	Stats(context.Context, *StatsCall) (*StatsReply, error)
	Attach(*AttachCall, grpc.ServerStreamingServer[hub.Envelope]) error
}

// ServiceDesc describes mcci.Distributor for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DistributorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Request", MethodRequest, DistributorServer.Request),
		unary("Produce", MethodProduce, DistributorServer.Produce),
		unary("Data", MethodData, DistributorServer.Data),
		unary("Stats", MethodStats, DistributorServer.Stats),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       attachHandler,
			ServerStreams: true,
		},
	},
	Metadata: "mcci",
}

func unary[Req, Resp any](name, fullMethod string, call func(DistributorServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DistributorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DistributorServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func attachHandler(srv any, stream grpc.ServerStream) error {
	in := new(AttachCall)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DistributorServer).Attach(in, &grpc.GenericServerStream[AttachCall, hub.Envelope]{ServerStream: stream})
}
