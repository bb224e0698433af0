// Package rpc defines the sbc.v1.ChatService gRPC contract between the
// daemon and its clients. Requests and responses are google.protobuf.Struct
// values; convert.go maps them to and from the transcript types.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "sbc.v1.ChatService"

// Method names.
const (
	MethodStatus     = "Status"
	MethodOpen       = "Open"
	MethodClose      = "Close"
	MethodSnapshot   = "Snapshot"
	MethodSend       = "Send"
	MethodSendFile   = "SendFile"
	MethodRetry      = "Retry"
	MethodDismiss    = "Dismiss"
	MethodSearch     = "Search"
	MethodListOutbox = "ListOutbox"
	MethodWatch      = "Watch"
)

// ChatServiceServer is the server API for ChatService.
type ChatServiceServer interface {
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Open(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendFile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Dismiss(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOutbox(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, ChatService_WatchServer) error
}

// ChatService_WatchServer is the server side of the Watch stream.
type ChatService_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (x *watchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

type unaryCall func(ChatServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ChatServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).Watch(in, &watchServer{stream})
}

// ServiceDesc is the grpc.ServiceDesc for ChatService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodStatus, ChatServiceServer.Status),
		unary(MethodOpen, ChatServiceServer.Open),
		unary(MethodClose, ChatServiceServer.Close),
		unary(MethodSnapshot, ChatServiceServer.Snapshot),
		unary(MethodSend, ChatServiceServer.Send),
		unary(MethodSendFile, ChatServiceServer.SendFile),
		unary(MethodRetry, ChatServiceServer.Retry),
		unary(MethodDismiss, ChatServiceServer.Dismiss),
		unary(MethodSearch, ChatServiceServer.Search),
		unary(MethodListOutbox, ChatServiceServer.ListOutbox),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatch,
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "sbc/v1/chat.proto",
}

// RegisterChatServiceServer registers srv on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FullMethod returns the gRPC path of a method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}
