// Command clubpay-server serves account and payment-creation RPCs.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/clubpay/internal/config"
	pkgcrypto "github.com/and161185/clubpay/internal/crypto"
	"github.com/and161185/clubpay/internal/limiter"
	"github.com/and161185/clubpay/internal/migrate"
	"github.com/and161185/clubpay/internal/payment"
	"github.com/and161185/clubpay/internal/repository/postgres"
	grpcserver "github.com/and161185/clubpay/internal/server/grpc"
	httpserver "github.com/and161185/clubpay/internal/server/http"
	"github.com/and161185/clubpay/internal/service"
	"github.com/and161185/clubpay/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and starts the gRPC server.
func main() {
	_ = config.LoadDotEnv(".env")
	cfg, err := config.ParseServer(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)
	if p := cfg.Placeholders(); len(p) > 0 {
		logger.Warn("placeholder secrets in use", zap.Strings("vars", p))
	}

	var opts []grpc.ServerOption
	if !cfg.Plaintext {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if pending, err := migrate.Pending(ctx, cfg.DSN); err == nil && len(pending) > 0 {
		logger.Info("applying migrations", zap.Int64s("versions", pending))
	}
	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer db.Close()

	pii, err := pkgcrypto.NewPIICipher(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("pii cipher", zap.Error(err))
	}
	tokens := token.New([]byte(cfg.TokenSecret))
	lim := limiter.NewPG(db.Pool, limiter.DefaultPolicy)

	// Services
	store := postgres.NewStore(db)
	authSvc := service.NewAuthService(postgres.NewUserRepo(db), tokens, pii, lim, cfg.TokenTTL, logger.Named("auth"))
	paySvc := service.NewPaymentService(store, payment.NewSigner([]byte(cfg.PaymentSecret)), service.PaymentOptions{
		MaxSkew:      cfg.MaxSkew,
		CompleteWait: cfg.CompleteWait,
	}, logger.Named("payments"))

	// gRPC server with interceptors
	s := grpc.NewServer(append(opts,
		grpc.ChainUnaryInterceptor(grpcserver.Interceptors(logger, tokens)...),
	)...)
	grpcserver.New(authSvc, paySvc).Attach(s)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", !cfg.Plaintext))
		errCh <- s.Serve(lis)
	}()

	var hsrv *http.Server
	if cfg.HTTPAddr != "" {
		hsrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpserver.Build(store, db, tokens, logger.Named("http")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("status api listening", zap.String("addr", cfg.HTTPAddr))
			var err error
			if cfg.Plaintext {
				err = hsrv.ListenAndServe()
			} else {
				err = hsrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			}
			if !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		hs.Shutdown()
		if hsrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = hsrv.Shutdown(sctx)
			cancel()
		}
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		paySvc.Close()
		authSvc.Drain()
		os.Exit(1)
	}

	paySvc.Close()
	authSvc.Drain()
	logger.Info("shutdown complete")
}
