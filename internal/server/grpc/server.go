// Package grpcserver exposes the clubpay gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"

	"github.com/and161185/clubpay/internal/convert"
	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/rpc"
	"github.com/and161185/clubpay/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtectedMethods lists the RPCs that require a bearer token.
var ProtectedMethods = []string{rpc.CreatePaymentMethod}

// Server wires services into gRPC handlers.
type Server struct {
	auth     service.AuthService
	payments service.PaymentService
}

var (
	_ rpc.AuthServer     = (*Server)(nil)
	_ rpc.PaymentsServer = (*Server)(nil)
)

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, payments service.PaymentService) *Server {
	return &Server{auth: auth, payments: payments}
}

// Attach registers both services on gs.
func (s *Server) Attach(gs grpc.ServiceRegistrar) {
	rpc.RegisterAuthServer(gs, s)
	rpc.RegisterPaymentsServer(gs, s)
}

// --- Auth ---

// Register creates a new user account.
func (s *Server) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	reg, err := convert.FromRegistration(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := s.auth.Register(ctx, reg)
	if err != nil {
		return nil, toStatus(err, "register")
	}
	return convert.ToUserID(id), nil
}

// Login authenticates a user and returns a session.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	login, password, err := convert.FromCredentials(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.auth.Login(ctx, login, password, remoteAddr(ctx))
	if err != nil {
		return nil, toStatus(err, "login")
	}
	return convert.ToSession(sess), nil
}

// --- Payments ---

// CreatePayment stores a signed payment request made by the token's owner.
func (s *Server) CreatePayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	in, err := convert.FromCreatePaymentRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.UserID != userID.String() {
		return nil, status.Error(codes.PermissionDenied, "user mismatch")
	}
	resp, err := s.payments.Create(ctx, in)
	if err != nil {
		return nil, toStatus(err, "create payment")
	}
	return convert.ToCreatePaymentResponse(resp), nil
}

func toStatus(err error, op string) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, "invalid state")
	default:
		return status.Errorf(codes.Internal, "%s failed", op)
	}
}
