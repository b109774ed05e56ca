// Package convert maps domain models to and from RPC messages.
package convert

import (
	"errors"
	"fmt"
	"math"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/clubpay/internal/model"
)

// ErrBadMessage reports a message with missing or mistyped fields.
var ErrBadMessage = errors.New("bad message")

func badField(name, want string) error {
	return fmt.Errorf("%w: field %q must be %s", ErrBadMessage, name, want)
}

// ToCreatePaymentRequest encodes a payment-creation request.
func ToCreatePaymentRequest(r model.CreatePaymentRequest) *structpb.Struct {
	f := map[string]*structpb.Value{
		"userId":          structpb.NewStringValue(r.UserID),
		"tariffId":        structpb.NewNullValue(),
		"customHours":     structpb.NewNullValue(),
		"amount":          structpb.NewNumberValue(float64(r.Amount)),
		"durationMinutes": structpb.NewNumberValue(float64(r.DurationMinutes)),
		"timestamp":       structpb.NewNumberValue(float64(r.Timestamp)),
		"signature":       structpb.NewStringValue(r.Signature),
	}
	if r.TariffID != nil {
		f["tariffId"] = structpb.NewStringValue(*r.TariffID)
	}
	if r.CustomHours != nil {
		f["customHours"] = structpb.NewNumberValue(float64(*r.CustomHours))
	}
	return &structpb.Struct{Fields: f}
}

// FromCreatePaymentRequest decodes a payment-creation request.
func FromCreatePaymentRequest(s *structpb.Struct) (model.CreatePaymentRequest, error) {
	var (
		r   model.CreatePaymentRequest
		err error
	)
	f := s.GetFields()
	if r.UserID, err = str(f, "userId"); err != nil {
		return r, err
	}
	if r.TariffID, err = optStr(f, "tariffId"); err != nil {
		return r, err
	}
	if r.CustomHours, err = optInt(f, "customHours"); err != nil {
		return r, err
	}
	if r.Amount, err = integer(f, "amount"); err != nil {
		return r, err
	}
	dur, err := integer(f, "durationMinutes")
	if err != nil {
		return r, err
	}
	if dur > math.MaxInt32 || dur < math.MinInt32 {
		return r, badField("durationMinutes", "a 32-bit integer")
	}
	r.DurationMinutes = int(dur)
	if r.Timestamp, err = integer(f, "timestamp"); err != nil {
		return r, err
	}
	if r.Signature, err = str(f, "signature"); err != nil {
		return r, err
	}
	return r, nil
}

// ToCreatePaymentResponse encodes a payment-creation response.
func ToCreatePaymentResponse(r model.CreatePaymentResponse) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"paymentId":       structpb.NewStringValue(r.PaymentID.String()),
		"confirmationUrl": structpb.NewStringValue(r.ConfirmationURL),
	}}
}

// FromCreatePaymentResponse decodes a payment-creation response.
func FromCreatePaymentResponse(s *structpb.Struct) (model.CreatePaymentResponse, error) {
	f := s.GetFields()
	id, err := str(f, "paymentId")
	if err != nil {
		return model.CreatePaymentResponse{}, err
	}
	pid, err := uuid.FromString(id)
	if err != nil {
		return model.CreatePaymentResponse{}, badField("paymentId", "a UUID")
	}
	url, err := str(f, "confirmationUrl")
	if err != nil {
		return model.CreatePaymentResponse{}, err
	}
	return model.CreatePaymentResponse{PaymentID: pid, ConfirmationURL: url}, nil
}

// ToRegistration encodes a sign-up form.
func ToRegistration(r model.Registration) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"login":    structpb.NewStringValue(r.Login),
		"password": structpb.NewStringValue(r.Password),
		"name":     structpb.NewStringValue(r.Name),
		"phone":    structpb.NewStringValue(r.Phone),
	}}
}

// FromRegistration decodes a sign-up form. Name and phone are optional.
func FromRegistration(s *structpb.Struct) (model.Registration, error) {
	var (
		r   model.Registration
		err error
	)
	f := s.GetFields()
	if r.Login, err = str(f, "login"); err != nil {
		return r, err
	}
	if r.Password, err = str(f, "password"); err != nil {
		return r, err
	}
	if v, err := optStr(f, "name"); err != nil {
		return r, err
	} else if v != nil {
		r.Name = *v
	}
	if v, err := optStr(f, "phone"); err != nil {
		return r, err
	} else if v != nil {
		r.Phone = *v
	}
	return r, nil
}

// ToCredentials encodes a login request.
func ToCredentials(login, password string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"login":    structpb.NewStringValue(login),
		"password": structpb.NewStringValue(password),
	}}
}

// FromCredentials decodes a login request.
func FromCredentials(s *structpb.Struct) (login, password string, err error) {
	f := s.GetFields()
	if login, err = str(f, "login"); err != nil {
		return "", "", err
	}
	if password, err = str(f, "password"); err != nil {
		return "", "", err
	}
	return login, password, nil
}

// ToSession encodes a session.
func ToSession(s model.Session) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"token": structpb.NewStringValue(s.Token),
		"id":    structpb.NewStringValue(s.ID),
		"name":  structpb.NewStringValue(s.Name),
		"login": structpb.NewStringValue(s.Login),
		"phone": structpb.NewStringValue(s.Phone),
	}}
}

// FromSession decodes a session.
func FromSession(s *structpb.Struct) (model.Session, error) {
	var (
		out model.Session
		err error
	)
	f := s.GetFields()
	for _, fld := range []struct {
		name string
		dst  *string
	}{
		{"token", &out.Token}, {"id", &out.ID}, {"login", &out.Login},
	} {
		if *fld.dst, err = str(f, fld.name); err != nil {
			return model.Session{}, err
		}
	}
	out.Name = f["name"].GetStringValue()
	out.Phone = f["phone"].GetStringValue()
	return out, nil
}

// ToUserID encodes a registration result.
func ToUserID(id uuid.UUID) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"userId": structpb.NewStringValue(id.String())}}
}

// FromUserID decodes a registration result.
func FromUserID(s *structpb.Struct) (uuid.UUID, error) {
	v, err := str(s.GetFields(), "userId")
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromString(v)
	if err != nil {
		return uuid.Nil, badField("userId", "a UUID")
	}
	return id, nil
}

func str(f map[string]*structpb.Value, name string) (string, error) {
	v, ok := f[name].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", badField(name, "a string")
	}
	return v.StringValue, nil
}

func optStr(f map[string]*structpb.Value, name string) (*string, error) {
	switch k := f[name].GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StringValue:
		s := k.StringValue
		return &s, nil
	default:
		return nil, badField(name, "a string or null")
	}
}

func integer(f map[string]*structpb.Value, name string) (int64, error) {
	v, ok := f[name].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, badField(name, "a number")
	}
	n := v.NumberValue
	// float64 holds integers exactly up to 2^53
	if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
		return 0, badField(name, "an integer")
	}
	return int64(n), nil
}

func optInt(f map[string]*structpb.Value, name string) (*int, error) {
	switch f[name].GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil, nil
	}
	n, err := integer(f, name)
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, badField(name, "a 32-bit integer")
	}
	i := int(n)
	return &i, nil
}
