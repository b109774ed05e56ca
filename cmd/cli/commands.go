package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clubpay/internal/config"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/payment"
)

var errNotLoggedIn = errors.New("not logged in (run: clubpay login -u <login>)")

// run executes one subcommand. Every command except buy is bounded by cfg.Timeout.
func run(ctx context.Context, a *app, cfg config.ClientConfig, args []string) error {
	cmd, rest := args[0], args[1:]
	if cmd != "buy" && cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	switch cmd {
	case "version":
		fmt.Fprintf(a.out, "clubpay %s (%s)\n", version, buildDate)
		return nil
	case "register":
		return a.register(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		if err := a.sessions.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "logged out")
		return nil
	case "whoami":
		return a.whoami()
	case "tariffs":
		return a.tariffs(ctx)
	case "buy":
		return a.buy(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	login := fs.String("u", "", "login")
	pw := fs.String("p", "", "password (prompted when empty)")
	name := fs.String("name", "", "display name")
	phone := fs.String("phone", "", "phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *login == "" {
		return errors.New("need -u")
	}
	if *pw == "" {
		p, err := a.askNewPassword()
		if err != nil {
			return err
		}
		*pw = p
	}

	id, err := a.gw.Register(ctx, model.Registration{Login: *login, Password: *pw, Name: *name, Phone: *phone})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	login := fs.String("u", "", "login")
	pw := fs.String("p", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *login == "" {
		return errors.New("need -u")
	}
	if *pw == "" {
		p, err := readPassword(a.in, a.errOut, "Password: ")
		if err != nil {
			return err
		}
		*pw = p
	}

	sess, err := a.gw.Login(ctx, *login, *pw)
	if err != nil {
		return err
	}
	if err := a.sessions.Login(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintf(a.out, "logged in as %s\n", sess.Login)
	return nil
}

func (a *app) askNewPassword() (string, error) {
	p1, err := readPassword(a.in, a.errOut, "Password: ")
	if err != nil {
		return "", err
	}
	p2, err := readPassword(a.in, a.errOut, "Repeat password: ")
	if err != nil {
		return "", err
	}
	if p1 != p2 {
		return "", errors.New("passwords do not match")
	}
	return p1, nil
}

func (a *app) whoami() error {
	s := a.sessions.Current()
	if s == nil {
		return errNotLoggedIn
	}
	fmt.Fprintf(a.out, "login: %s\nid:    %s\n", s.Login, s.ID)
	if s.Name != "" {
		fmt.Fprintf(a.out, "name:  %s\n", s.Name)
	}
	if s.Phone != "" {
		fmt.Fprintf(a.out, "phone: %s\n", s.Phone)
	}
	return nil
}

func (a *app) tariffs(ctx context.Context) error {
	st, err := a.store(ctx)
	if err != nil {
		return err
	}
	raw, err := st.ActiveTariffs(ctx)
	if err != nil {
		return err
	}
	ts := payment.ParseTariffs(raw)
	printTariffs(a.out, ts, payment.HourlyRate(ts))
	return nil
}

func (a *app) buy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("buy", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	tariffRef := fs.String("tariff", "", "tariff number from `clubpay tariffs` or its id")
	hours := fs.Int("hours", 0, "custom number of hours")
	wait := fs.Duration("wait", 10*time.Minute, "how long to wait for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*tariffRef == "") == (*hours == 0) {
		return errors.New("need exactly one of -tariff or -hours")
	}
	sess := a.sessions.Current()
	if sess == nil {
		return errNotLoggedIn
	}
	st, err := a.store(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *wait)
	defer cancel()

	o := payment.NewOrchestrator(sess.ID, st, a.gw, a.signer, a.orchOpts)
	defer o.Close()

	ts, err := o.LoadTariffs(ctx)
	if err != nil {
		return fmt.Errorf("load tariffs: %w", err)
	}
	if *hours != 0 {
		err = o.SelectCustomHours(*hours)
	} else {
		var t model.Tariff
		if t, err = resolveTariff(ts, *tariffRef); err == nil {
			err = o.SelectTariff(t.ID)
		}
	}
	if err != nil {
		return err
	}

	sel := o.Snapshot().Selection
	fmt.Fprintf(a.out, "Buying %s for %s\n", formatDuration(sel.DurationMinutes), formatPrice(sel.Amount))
	if err := o.Confirm(); err != nil {
		return err
	}

	snap, err := o.Wait(ctx, payment.StatePending, payment.StateSelecting)
	if err != nil {
		return err
	}
	if snap.State == payment.StateSelecting {
		return flowError("payment could not be created", snap.Err)
	}
	fmt.Fprintf(a.out, "Confirm the payment: %s\n", snap.ConfirmationURL)
	if snap.Fallback {
		fmt.Fprintln(a.out, "(payment service offline, demo payment will confirm itself)")
	}
	fmt.Fprintln(a.out, "Waiting for confirmation... (Ctrl-C to cancel)")

	snap, err = o.Wait(ctx, payment.StateSuccess, payment.StateSelecting)
	if err != nil {
		_ = o.Cancel()
		return fmt.Errorf("payment not confirmed: %w", err)
	}
	if snap.State == payment.StateSelecting {
		return flowError("payment not completed", snap.Err)
	}
	printCode(a.out, *snap.Code)
	return nil
}

// resolveTariff accepts a 1-based position in the package listing or a tariff id.
func resolveTariff(ts []model.Tariff, ref string) (model.Tariff, error) {
	pkgs := packages(ts)
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(pkgs) {
			return model.Tariff{}, fmt.Errorf("no tariff number %d", n)
		}
		return pkgs[n-1], nil
	}
	id, err := uuid.FromString(strings.TrimSpace(ref))
	if err != nil {
		return model.Tariff{}, fmt.Errorf("bad tariff reference %q", ref)
	}
	for _, t := range ts {
		if t.ID == id {
			return t, nil
		}
	}
	return model.Tariff{}, fmt.Errorf("tariff %s not found", id)
}

func flowError(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
