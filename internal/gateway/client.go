package gateway

import (
	"context"
	"fmt"

	"github.com/and161185/clubpay/internal/convert"
	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/payment"
	"github.com/and161185/clubpay/internal/rpc"
	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client calls the clubpay services and classifies their failures.
type Client struct {
	rpc *rpc.Client
}

var _ payment.Gateway = (*Client)(nil)

// New wraps a connection made with Dial.
func New(cc grpc.ClientConnInterface) *Client {
	return &Client{rpc: rpc.NewClient(cc)}
}

// CreatePayment asks the server to create a payment. Failures that prove the request
// never reached the service wrap errs.ErrUnavailable. Everything else wraps
// errs.ErrRejected, including deadlines and cancellations, whose outcome is unknown.
func (c *Client) CreatePayment(ctx context.Context, req model.CreatePaymentRequest) (model.CreatePaymentResponse, error) {
	out, err := c.rpc.CreatePayment(ctx, convert.ToCreatePaymentRequest(req))
	if err != nil {
		return model.CreatePaymentResponse{}, classify(err)
	}
	resp, err := convert.FromCreatePaymentResponse(out)
	if err != nil {
		return model.CreatePaymentResponse{}, fmt.Errorf("%w: %v", errs.ErrRejected, err)
	}
	return resp, nil
}

// Register creates an account and returns its ID.
func (c *Client) Register(ctx context.Context, r model.Registration) (uuid.UUID, error) {
	out, err := c.rpc.Register(ctx, convert.ToRegistration(r))
	if err != nil {
		return uuid.Nil, fromStatus(err)
	}
	return convert.FromUserID(out)
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, login, password string) (model.Session, error) {
	out, err := c.rpc.Login(ctx, convert.ToCredentials(login, password))
	if err != nil {
		return model.Session{}, fromStatus(err)
	}
	return convert.FromSession(out)
}

// unreached reports codes after which the server cannot have run the handler, so
// a local fallback payment cannot duplicate a remote one.
func unreached(code codes.Code) bool {
	return code == codes.Unavailable || code == codes.Unimplemented
}

func classify(err error) error {
	st := status.Convert(err)
	switch {
	case unreached(st.Code()):
		return fmt.Errorf("%w: %s", errs.ErrUnavailable, st.Message())
	case st.Code() == codes.DeadlineExceeded || st.Code() == codes.Canceled:
		return fmt.Errorf("%w: outcome unknown: %s: %s", errs.ErrRejected, st.Code(), st.Message())
	}
	return fmt.Errorf("%w: %s: %s", errs.ErrRejected, st.Code(), st.Message())
}

// fromStatus maps a server status back onto the domain sentinels.
func fromStatus(err error) error {
	st := status.Convert(err)
	var base error
	switch st.Code() {
	case codes.InvalidArgument:
		base = errs.ErrValidation
	case codes.Unauthenticated, codes.PermissionDenied:
		base = errs.ErrUnauthorized
	case codes.ResourceExhausted:
		base = errs.ErrRateLimited
	case codes.AlreadyExists:
		base = errs.ErrAlreadyExists
	case codes.NotFound:
		base = errs.ErrNotFound
	case codes.FailedPrecondition:
		base = errs.ErrInvalidState
	default:
		if unreached(st.Code()) || st.Code() == codes.DeadlineExceeded || st.Code() == codes.Canceled {
			base = errs.ErrUnavailable
		} else {
			return fmt.Errorf("%s: %s", st.Code(), st.Message())
		}
	}
	return fmt.Errorf("%w: %s", base, st.Message())
}
