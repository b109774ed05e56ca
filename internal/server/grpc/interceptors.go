package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/and161185/clubpay/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// TokenVerifier checks bearer tokens. Verify returns nil for a forged or malformed token.
type TokenVerifier interface {
	Verify(tok string) *token.Claims
}

// Interceptors returns the server's unary chain: panic recovery outermost, then
// bearer auth on ProtectedMethods, then logging, which sees the authenticated user.
func Interceptors(log *zap.Logger, tokens TokenVerifier) []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		RecoverUnary(log),
		AuthUnary(tokens, ProtectedMethods...),
		LoggingUnary(log),
	}
}

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remoteAddr(ctx)),
		}
		if id, ok := UserIDFromCtx(ctx); ok {
			fields = append(fields, zap.Stringer("user_id", id))
		}
		// metadata only, never payloads
		log.Info("grpc", fields...)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// AuthUnary requires a valid, unexpired bearer token on the listed methods and puts
// the token's user ID into the handler context. Other methods pass through untouched.
func AuthUnary(tokens TokenVerifier, methods ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !slices.Contains(methods, info.FullMethod) {
			return next(ctx, req)
		}
		id, err := authenticate(ctx, tokens)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return next(WithUserID(ctx, id), req)
	}
}

func authenticate(ctx context.Context, tokens TokenVerifier) (uuid.UUID, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	c := tokens.Verify(tok)
	switch {
	case c == nil:
		return uuid.Nil, errors.New("invalid token")
	case c.Expired:
		return uuid.Nil, errors.New("token expired")
	}
	id, err := uuid.FromString(c.UserID)
	if err != nil {
		return uuid.Nil, errors.New("bad subject")
	}
	return id, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

func remoteAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
