// Package rpc declares the clubpay gRPC services. Messages are google.protobuf.Struct
// values, so the default proto codec carries them without generated types.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified service and method names.
const (
	PaymentsServiceName = "clubpay.v1.Payments"
	AuthServiceName     = "clubpay.v1.Auth"

	CreatePaymentMethod = "/clubpay.v1.Payments/CreatePayment"
	RegisterMethod      = "/clubpay.v1.Auth/Register"
	LoginMethod         = "/clubpay.v1.Auth/Login"
)

// PaymentsServer is the server API of clubpay.v1.Payments.
type PaymentsServer interface {
	CreatePayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AuthServer is the server API of clubpay.v1.Auth.
type AuthServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPaymentsServer registers srv on s.
func RegisterPaymentsServer(s grpc.ServiceRegistrar, srv PaymentsServer) {
	s.RegisterService(&PaymentsServiceDesc, srv)
}

// RegisterAuthServer registers srv on s.
func RegisterAuthServer(s grpc.ServiceRegistrar, srv AuthServer) {
	s.RegisterService(&AuthServiceDesc, srv)
}

func unary(method string, call func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// PaymentsServiceDesc describes clubpay.v1.Payments.
var PaymentsServiceDesc = grpc.ServiceDesc{
	ServiceName: PaymentsServiceName,
	HandlerType: (*PaymentsServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "CreatePayment",
		Handler: unary(CreatePaymentMethod, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(PaymentsServer).CreatePayment(ctx, in)
		}),
	}},
	Metadata: "clubpay/v1/payments.proto",
}

// AuthServiceDesc describes clubpay.v1.Auth.
var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler: unary(RegisterMethod, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(AuthServer).Register(ctx, in)
			}),
		},
		{
			MethodName: "Login",
			Handler: unary(LoginMethod, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(AuthServer).Login(ctx, in)
			}),
		},
	},
	Metadata: "clubpay/v1/auth.proto",
}

// Client calls both clubpay services over one connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePayment calls clubpay.v1.Payments/CreatePayment.
func (c *Client) CreatePayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, CreatePaymentMethod, in, opts...)
}

// Register calls clubpay.v1.Auth/Register.
func (c *Client) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RegisterMethod, in, opts...)
}

// Login calls clubpay.v1.Auth/Login.
func (c *Client) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, LoginMethod, in, opts...)
}
