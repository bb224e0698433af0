package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"time"

	"github.com/matheus3301/sbc/internal/api"
	"github.com/matheus3301/sbc/internal/metrics"
	"github.com/matheus3301/sbc/internal/profile"
	"github.com/matheus3301/sbc/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server serves ChatService on the profile's Unix domain socket.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer binds the socket and registers the chat service. A leftover
// socket file from a crashed daemon is replaced; the profile lock already
// guarantees no live daemon owns it.
func NewServer(p Params, logger *zap.Logger, chatSvc *api.ChatService) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}

	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	s := &Server{
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}
	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.unaryInterceptor),
		grpc.ChainStreamInterceptor(s.streamInterceptor),
	)
	rpc.RegisterChatServiceServer(s.grpcServer, chatSvc)
	return s, nil
}

// unaryInterceptor logs and counts each call and turns a handler panic into
// codes.Internal instead of taking the daemon down.
func (s *Server) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rpc panic", zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
			err = status.Error(codes.Internal, "internal error")
		}
		s.observe(info.FullMethod, err, time.Since(start))
	}()
	return handler(ctx, req)
}

func (s *Server) streamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	start := time.Now()
	s.logger.Debug("stream opened", zap.String("method", info.FullMethod))
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rpc panic", zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
			err = status.Error(codes.Internal, "internal error")
		}
		s.observe(info.FullMethod, err, time.Since(start))
	}()
	return handler(srv, ss)
}

func (s *Server) observe(fullMethod string, err error, elapsed time.Duration) {
	method := path.Base(fullMethod)
	code := status.Code(err)
	metrics.RPCTotal.WithLabelValues(method, code.String()).Inc()

	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("elapsed", elapsed),
	}
	switch code {
	case codes.OK, codes.Canceled:
		s.logger.Debug("rpc", fields...)
	case codes.Internal, codes.Unknown:
		s.logger.Error("rpc", append(fields, zap.Error(err))...)
	default:
		s.logger.Info("rpc", append(fields, zap.Error(err))...)
	}
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. Open
// watch streams are cut when ctx is done.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
	_ = os.Remove(s.socketPath)
}
