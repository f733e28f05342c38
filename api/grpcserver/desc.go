package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

func unary(method string, call func(BookService, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	full := "/" + serviceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(BookService), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BookService)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetBook", BookService.GetBook),
		unary("ListBooks", BookService.ListBooks),
		unary("ListTickers", BookService.ListTickers),
		unary("ListStatuses", BookService.ListStatuses),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tvitch/book_service",
}

// Client calls tvitch.BookService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBook(ctx context.Context, ticker, job string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetBook", map[string]interface{}{"ticker": ticker, "job": job}, opts...)
}

func (c *Client) ListBooks(ctx context.Context, ticker string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListBooks", map[string]interface{}{"ticker": ticker}, opts...)
}

func (c *Client) ListTickers(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListTickers", nil, opts...)
}

func (c *Client) ListStatuses(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListStatuses", nil, opts...)
}
