package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "clipdrag.v1.Drag"

// DragServer is the server API of the control service.
type DragServer interface {
	StartDrag(context.Context, *StartDragRequest) (*StartDragResponse, error)
	EndDrag(context.Context, *EndDragRequest) (*EndDragResponse, error)
	Drag(context.Context, *DragRequest) (*EndDragResponse, error)
	Clear(context.Context, *ClearRequest) (*StateResponse, error)
	State(context.Context, *StateRequest) (*StateResponse, error)
	Watch(*WatchRequest, WatchStream) error
}

// WatchStream is the server side of a Watch call.
type WatchStream interface {
	Send(*WatchResponse) error
	Context() context.Context
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// unary builds the MethodDesc for one request/response method.
func unary[Req, Resp any](name string, call func(DragServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DragServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DragServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type watchStream struct{ grpc.ServerStream }

func (s *watchStream) Send(m *WatchResponse) error { return s.ServerStream.SendMsg(m) }

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DragServer).Watch(in, &watchStream{stream})
}

// ServiceDesc describes the control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DragServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartDrag", DragServer.StartDrag),
		unary("EndDrag", DragServer.EndDrag),
		unary("Drag", DragServer.Drag),
		unary("Clear", DragServer.Clear),
		unary("State", DragServer.State),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Watch",
		Handler:       watchHandler,
		ServerStreams: true,
	}},
	Metadata: "clipdrag/v1/drag",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv DragServer) {
	s.RegisterService(&ServiceDesc, srv)
}
