package networking

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "networking.v1.Networking"

// NetworkingServer is the server API of the networking service.
// Requests and responses are google.protobuf.Struct documents.
type NetworkingServer interface {
	FetchMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecomputeMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)

	SendFriendRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcceptFriendRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectFriendRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveFriend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFriends(context.Context, *structpb.Struct) (*structpb.Struct, error)

	FetchConversations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchConversations(*structpb.Struct, ConversationStream) error

	CreatePost(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LikePost(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UnlikePost(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ConversationStream is the server side of WatchConversations.
type ConversationStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type conversationStream struct {
	grpc.ServerStream
}

func (s *conversationStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

type unaryCall func(NetworkingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(NetworkingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(NetworkingServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchConversationsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NetworkingServer).WatchConversations(in, &conversationStream{stream})
}

// ServiceDesc describes the networking service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NetworkingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("FetchMatches", NetworkingServer.FetchMatches),
		unary("RecomputeMatches", NetworkingServer.RecomputeMatches),
		unary("SendFriendRequest", NetworkingServer.SendFriendRequest),
		unary("AcceptFriendRequest", NetworkingServer.AcceptFriendRequest),
		unary("RejectFriendRequest", NetworkingServer.RejectFriendRequest),
		unary("RemoveFriend", NetworkingServer.RemoveFriend),
		unary("ListFriends", NetworkingServer.ListFriends),
		unary("FetchConversations", NetworkingServer.FetchConversations),
		unary("SendMessage", NetworkingServer.SendMessage),
		unary("MarkRead", NetworkingServer.MarkRead),
		unary("CreatePost", NetworkingServer.CreatePost),
		unary("LikePost", NetworkingServer.LikePost),
		unary("UnlikePost", NetworkingServer.UnlikePost),
		unary("AddComment", NetworkingServer.AddComment),
		unary("DeleteComment", NetworkingServer.DeleteComment),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchConversations",
			Handler:       watchConversationsHandler,
			ServerStreams: true,
		},
	},
}

// RegisterNetworkingServer registers srv on s.
func RegisterNetworkingServer(s grpc.ServiceRegistrar, srv NetworkingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the networking service over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes the unary method named method.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchConversations opens the conversation stream for the user named in in.
func (c *Client) WatchConversations(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/WatchConversations", opts...)
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
