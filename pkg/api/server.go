package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/mcci/pkg/bank"
	"github.com/cuemby/mcci/pkg/dispatch"
	"github.com/cuemby/mcci/pkg/hub"
	"github.com/cuemby/mcci/pkg/log"
	"github.com/cuemby/mcci/pkg/revision"
	"github.com/cuemby/mcci/pkg/schema"
	"github.com/cuemby/mcci/pkg/server"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server implements the mcci.Distributor gRPC service on top of a dispatcher
// and the hub its router delivers through.
type Server struct {
	dispatcher *dispatch.Dispatcher
	hub        *hub.Hub
	grpc       *grpc.Server
	logger     zerolog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

type options struct {
	readOnly bool
}

// Option configures a Server.
type Option func(*options)

// WithReadOnly refuses Produce and Data calls.
func WithReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// NewServer creates a new API server
func NewServer(d *dispatch.Dispatcher, h *hub.Hub, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.WithComponent("api")
	s := &Server{
		dispatcher: d,
		hub:        h,
		logger:     logger,
		done:       make(chan struct{}),
	}
	interceptors := []grpc.UnaryServerInterceptor{UnaryInterceptor(logger)}
	if o.readOnly {
		interceptors = append(interceptors, ReadOnlyInterceptor())
	}
	s.grpc = grpc.NewServer(
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.ChainStreamInterceptor(StreamInterceptor(logger)),
	)
	s.grpc.RegisterService(&ServiceDesc, s)
	return s
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC API listening")
	return s.grpc.Serve(lis)
}

// Stop ends open attach streams and gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.grpc.GracefulStop()
}

// Request implements DistributorServer.
func (s *Server) Request(_ context.Context, in *RequestCall) (*types.Response, error) {
	resp, err := s.dispatcher.Request(in.Client, in.Request)
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

// Produce implements DistributorServer.
func (s *Server) Produce(_ context.Context, in *ProduceCall) (*types.Acceptance, error) {
	ack, err := s.dispatcher.Produce(in.Provider, in.Production)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ack, nil
}

// Data implements DistributorServer.
func (s *Server) Data(_ context.Context, in *DataCall) (*DataReply, error) {
	n, err := s.dispatcher.Data(in.Provider, in.Data)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DataReply{Delivered: n}, nil
}

// Stats implements DistributorServer.
func (s *Server) Stats(_ context.Context, in *StatsCall) (*StatsReply, error) {
	reply := &StatsReply{Server: s.dispatcher.Stats()}
	if in.Client != nil {
		cs, err := s.dispatcher.ClientStats(*in.Client)
		if err != nil {
			return nil, toStatus(err)
		}
		reply.Client = &cs
	}
	return reply, nil
}

// Attach implements DistributorServer. The first envelope sent is always
// KindAttached; after it, everything the hub queues for the client follows
// until the caller goes away or the session is replaced.
func (s *Server) Attach(in *AttachCall, stream grpc.ServerStreamingServer[hub.Envelope]) error {
	if _, err := s.dispatcher.ClientStats(in.Client); err != nil {
		return toStatus(err)
	}

	sess := s.hub.Attach(in.Client, in.Peer)
	defer s.hub.Detach(in.Client, sess.ID)

	if err := stream.Send(&hub.Envelope{Kind: hub.KindAttached, Client: in.Client}); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return status.Error(codes.Unavailable, "server stopping")
		case env, ok := <-sess.C:
			if !ok {
				return status.Error(codes.Aborted, "session replaced")
			}
			if err := stream.Send(env); err != nil {
				lg := log.WithClientID(s.logger, in.Client)
				lg.Debug().Err(err).Msg("Attach stream send failed")
				return err
			}
		}
	}
}

// toStatus maps router errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, server.ErrUnknownVariable), errors.Is(err, schema.ErrUnknownVariable):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, bank.ErrClientOutOfRange), errors.Is(err, server.ErrLocalOrigin):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, revision.ErrExhausted):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
}
