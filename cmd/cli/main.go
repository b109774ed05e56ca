// Command clubpay is a terminal client for buying club time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/clubpay/internal/config"
	"github.com/and161185/clubpay/internal/gateway"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/payment"
	"github.com/and161185/clubpay/internal/repository/postgres"
	"github.com/and161185/clubpay/internal/session"
	"github.com/and161185/clubpay/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// remote is the server API the CLI talks to.
type remote interface {
	payment.Gateway
	Register(ctx context.Context, r model.Registration) (uuid.UUID, error)
	Login(ctx context.Context, login, password string) (model.Session, error)
}

// app holds everything a command needs. Tests swap the fields for fakes.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	sessions *session.Manager
	gw       remote
	signer   *payment.Signer
	store    func(ctx context.Context) (payment.Store, error)

	orchOpts payment.Options
}

func usage() {
	fmt.Fprintf(os.Stderr, `clubpay CLI
Usage:
  clubpay [-addr HOST:PORT] [-cacert file | -insecure | -plaintext] [-dsn DSN] <cmd> [args]

Commands:
  version
  register   -u <login> [-p <password>] [-name <name>] [-phone <phone>]
  login      -u <login> [-p <password>]           (saves session)
  logout
  whoami
  tariffs
  buy        -tariff <n|uuid> | -hours <1..24> [-wait 10m]
`)
}

// main parses global flags, wires dependencies and dispatches the subcommand.
func main() {
	_ = config.LoadDotEnv(".env")
	cfg, rest, err := config.ParseClient(os.Args[1:], os.Getenv, usage)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil || len(rest) < 1 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		fail(err)
	}
	err = run(ctx, a, cfg, rest)
	cleanup()
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func newApp(ctx context.Context, cfg config.ClientConfig) (*app, func(), error) {
	log := zap.NewNop()
	if cfg.Verbose {
		log, _ = zap.NewDevelopment()
	}
	if p := cfg.Placeholders(); len(p) > 0 {
		log.Warn("placeholder secrets in use", zap.Strings("vars", p))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SessionPath), 0o700); err != nil {
		return nil, nil, err
	}
	st, err := session.OpenSQLite(ctx, cfg.SessionPath, []byte(cfg.EncryptionKey))
	if err != nil {
		return nil, nil, err
	}
	sessions := session.NewManager(st, token.New([]byte(cfg.TokenSecret)))
	if _, err := sessions.Hydrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	creds, err := gateway.LoadTLS(cfg.CACert, cfg.SkipVerify, cfg.Plaintext)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	cc, err := gateway.Dial(cfg.Addr, creds, sessions.Token)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	var db *postgres.DB
	a := &app{
		in:       os.Stdin,
		out:      os.Stdout,
		errOut:   os.Stderr,
		sessions: sessions,
		gw:       gateway.New(cc),
		signer:   payment.NewSigner([]byte(cfg.PaymentSecret)),
		orchOpts: payment.Options{Logger: log, Notifier: newTermNotifier(os.Stderr)},
	}
	a.store = func(ctx context.Context) (payment.Store, error) {
		if db == nil {
			var err error
			if db, err = postgres.New(ctx, cfg.DSN); err != nil {
				return nil, err
			}
		}
		return postgres.NewStore(db), nil
	}
	cleanup := func() {
		if db != nil {
			db.Close()
		}
		_ = cc.Close()
		_ = st.Close()
		_ = log.Sync()
	}
	return a, cleanup, nil
}
