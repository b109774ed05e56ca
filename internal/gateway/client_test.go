package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/and161185/clubpay/internal/convert"
	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/rpc"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type stubServer struct {
	mu      sync.Mutex
	err     error
	reply   *structpb.Struct
	authHdr []string
}

func (s *stubServer) respond(ctx context.Context) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, _ := metadata.FromIncomingContext(ctx)
	s.authHdr = md.Get("authorization")
	return s.reply, s.err
}

func (s *stubServer) CreatePayment(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.respond(ctx)
}
func (s *stubServer) Register(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.respond(ctx)
}
func (s *stubServer) Login(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.respond(ctx)
}

func (s *stubServer) set(reply *structpb.Struct, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply, s.err = reply, err
}

func (s *stubServer) header() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authHdr
}

func startStub(t *testing.T, register bool, tokens TokenSource) (*Client, *stubServer) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	stub := &stubServer{}
	if register {
		rpc.RegisterPaymentsServer(gs, stub)
		rpc.RegisterAuthServer(gs, stub)
	}
	go func() { _ = gs.Serve(lis) }()

	cc, err := Dial("passthrough:///bufnet", insecure.NewCredentials(), tokens,
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return New(cc), stub
}

func sampleReq() model.CreatePaymentRequest {
	h := 2
	return model.CreatePaymentRequest{UserID: "u1", CustomHours: &h, Amount: 30000, DurationMinutes: 120, Timestamp: 1, Signature: "s"}
}

func TestClient_CreatePayment_SuccessCarriesBearer(t *testing.T) {
	t.Parallel()

	c, stub := startStub(t, true, StaticToken("tok-123"))
	want := model.CreatePaymentResponse{PaymentID: uuid.Must(uuid.NewV4()), ConfirmationURL: "https://pay"}
	stub.set(convert.ToCreatePaymentResponse(want), nil)

	got, err := c.CreatePayment(context.Background(), sampleReq())
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, []string{"Bearer tok-123"}, stub.header())
}

func TestClient_CreatePayment_Classification(t *testing.T) {
	t.Parallel()

	c, stub := startStub(t, true, nil)
	cases := []struct {
		code codes.Code
		want error
	}{
		{codes.Unavailable, errs.ErrUnavailable},
		{codes.Unimplemented, errs.ErrUnavailable},
		{codes.DeadlineExceeded, errs.ErrRejected},
		{codes.Canceled, errs.ErrRejected},
		{codes.InvalidArgument, errs.ErrRejected},
		{codes.Unauthenticated, errs.ErrRejected},
		{codes.Internal, errs.ErrRejected},
		{codes.PermissionDenied, errs.ErrRejected},
	}
	for _, tc := range cases {
		stub.set(nil, status.Error(tc.code, "x"))
		_, err := c.CreatePayment(context.Background(), sampleReq())
		require.ErrorIs(t, err, tc.want, "code %s", tc.code)
	}

	stub.set(&structpb.Struct{Fields: map[string]*structpb.Value{"paymentId": structpb.NewStringValue("bogus")}}, nil)
	_, err := c.CreatePayment(context.Background(), sampleReq())
	require.ErrorIs(t, err, errs.ErrRejected)
	require.Empty(t, stub.header(), "no token source means no authorization header")
}

func TestClient_CreatePayment_MissingServiceFallsBack(t *testing.T) {
	t.Parallel()

	c, _ := startStub(t, false, nil)
	_, err := c.CreatePayment(context.Background(), sampleReq())
	require.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestClient_CreatePayment_DeadlineDoesNotFallBack(t *testing.T) {
	t.Parallel()

	c, _ := startStub(t, true, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	_, err := c.CreatePayment(ctx, sampleReq())
	require.ErrorIs(t, err, errs.ErrRejected, "the server may already hold the payment")
	require.NotErrorIs(t, err, errs.ErrUnavailable)
	require.ErrorContains(t, err, "outcome unknown")
}

func TestClient_AuthCalls(t *testing.T) {
	t.Parallel()

	c, stub := startStub(t, true, nil)
	id := uuid.Must(uuid.NewV4())
	stub.set(convert.ToUserID(id), nil)
	got, err := c.Register(context.Background(), model.Registration{Login: "neo", Password: "Matrix1"})
	require.NoError(t, err)
	require.Equal(t, id, got)

	sess := model.Session{Token: "t", ID: id.String(), Login: "neo"}
	stub.set(convert.ToSession(sess), nil)
	gotSess, err := c.Login(context.Background(), "neo", "Matrix1")
	require.NoError(t, err)
	require.Equal(t, sess, gotSess)

	mapping := map[codes.Code]error{
		codes.Unauthenticated:   errs.ErrUnauthorized,
		codes.ResourceExhausted: errs.ErrRateLimited,
		codes.AlreadyExists:     errs.ErrAlreadyExists,
		codes.InvalidArgument:   errs.ErrValidation,
		codes.Unavailable:       errs.ErrUnavailable,
	}
	for code, want := range mapping {
		stub.set(nil, status.Error(code, "x"))
		_, err := c.Login(context.Background(), "neo", "bad")
		require.ErrorIs(t, err, want, "code %s", code)
	}

	stub.set(nil, status.Error(codes.Internal, "boom"))
	_, err = c.Register(context.Background(), model.Registration{Login: "neo", Password: "Matrix1"})
	require.Error(t, err)
	require.False(t, errors.Is(err, errs.ErrValidation))
}

func TestBearerCreds(t *testing.T) {
	t.Parallel()

	md, err := bearerCreds{token: StaticToken("")}.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	require.Empty(t, md)

	md, err = bearerCreds{token: StaticToken("abc")}.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer abc", md["authorization"])

	require.True(t, bearerCreds{secure: true}.RequireTransportSecurity())
}

func TestLoadTLS(t *testing.T) {
	t.Parallel()

	c, err := LoadTLS("", false, true)
	require.NoError(t, err)
	require.Equal(t, "insecure", c.Info().SecurityProtocol)

	c, err = LoadTLS("", true, false)
	require.NoError(t, err)
	require.Equal(t, "tls", c.Info().SecurityProtocol)

	_, err = LoadTLS("/nonexistent/ca.pem", false, false)
	require.Error(t, err)
}
