// Package gateway is the client side of the clubpay RPC API.
package gateway

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// TokenSource returns the current bearer token, or "" when logged out.
type TokenSource func() string

// StaticToken always returns tok.
func StaticToken(tok string) TokenSource { return func() string { return tok } }

type bearerCreds struct {
	token  TokenSource
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	if b.token == nil {
		return nil, nil
	}
	tok := b.token()
	if tok == "" {
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + tok}, nil
}

func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

// LoadTLS builds transport credentials. plaintext disables TLS entirely (local dev);
// skipVerify keeps TLS but trusts any certificate.
func LoadTLS(caPath string, skipVerify, plaintext bool) (credentials.TransportCredentials, error) {
	switch {
	case plaintext:
		return insecure.NewCredentials(), nil
	case skipVerify:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev only
	case caPath == "":
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// Dial opens a lazy client connection to addr that attaches tokens to every call.
func Dial(addr string, creds credentials.TransportCredentials, tokens TokenSource, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	secure := creds.Info().SecurityProtocol != "insecure"
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(bearerCreds{token: tokens, secure: secure}),
	}, extra...)
	return grpc.NewClient(addr, opts...)
}
