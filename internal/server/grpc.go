package server

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// forceStopAfter bounds GracefulStop before open streams are cut.
const forceStopAfter = 10 * time.Second

// UnaryInterceptor tracks in-flight gRPC calls and rejects new ones once
// shutdown has begun.
func UnaryInterceptor(sm *ShutdownManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		done, ok := sm.BeginCall()
		if !ok {
			return nil, status.Errorf(codes.Unavailable, "server is shutting down, %s rejected", info.FullMethod)
		}
		defer done()
		return handler(ctx, req)
	}
}

// GracefulGRPCServer serves a grpc.Server that the shutdown manager stops.
type GracefulGRPCServer struct {
	server *grpc.Server
}

// NewGracefulGRPCServer registers server with sm so that shutdown stops it
// after in-flight calls drain.
func NewGracefulGRPCServer(server *grpc.Server, sm *ShutdownManager) *GracefulGRPCServer {
	sm.RegisterCloser(CloserFunc(func() error {
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(forceStopAfter):
			server.Stop()
		}
		return nil
	}))
	return &GracefulGRPCServer{server: server}
}

// Serve blocks until the server fails or is stopped by shutdown, in which
// case it returns nil.
func (gs *GracefulGRPCServer) Serve(lis net.Listener) error {
	if err := gs.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
