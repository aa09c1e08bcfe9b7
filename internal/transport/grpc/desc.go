package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service is described by hand: every request and response is a
// google.protobuf.Struct whose fields mirror the HTTP JSON bodies.
const (
	ServiceName = "chat.v1.ChatService"

	MethodSendMessage       = "/" + ServiceName + "/SendMessage"
	MethodListMessages      = "/" + ServiceName + "/ListMessages"
	MethodPostSystemMessage = "/" + ServiceName + "/PostSystemMessage"
	MethodStreamMessages    = "/" + ServiceName + "/StreamMessages"
)

type ChatServiceServer interface {
	SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PostSystemMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	StreamMessages(in *structpb.Struct, stream grpc.ServerStream) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: unaryHandler(MethodSendMessage, ChatServiceServer.SendMessage)},
		{MethodName: "ListMessages", Handler: unaryHandler(MethodListMessages, ChatServiceServer.ListMessages)},
		{MethodName: "PostSystemMessage", Handler: unaryHandler(MethodPostSystemMessage, ChatServiceServer.PostSystemMessage)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamMessages",
			Handler:       streamMessagesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chat/v1/chat.proto",
}

func unaryHandler(
	fullMethod string,
	call func(ChatServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ChatServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ChatServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamMessagesHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).StreamMessages(in, stream)
}

// Client calls ChatService over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SendMessage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodSendMessage, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMessages(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodListMessages, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PostSystemMessage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodPostSystemMessage, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamMessages returns a receive-only stream of message structs.
func (c *Client) StreamMessages(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodStreamMessages, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
