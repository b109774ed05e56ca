// Package httpserver exposes a read-only HTTP API: health, the tariff catalogue and
// payment status for the payment's owner.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/payment"
	"github.com/and161185/clubpay/internal/repository"
	"github.com/and161185/clubpay/internal/token"
)

// Store is what the HTTP API reads.
type Store interface {
	repository.TariffRepository
	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	ActivationCodeByPayment(ctx context.Context, paymentID uuid.UUID) (model.ActivationCode, error)
}

// Pinger reports store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Verifier checks bearer tokens.
type Verifier interface {
	Verify(tok string) *token.Claims
}

type ctxKey int

const userIDKey ctxKey = iota

type api struct {
	store Store
	ping  Pinger
	log   *zap.Logger
}

// Build assembles the router. ping may be nil.
func Build(store Store, ping Pinger, tokens Verifier, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	a := &api{store: store, ping: ping, log: log}

	r := chi.NewRouter()
	r.Use(a.logRequests)

	r.Get("/healthz", a.health)
	r.Get("/api/v1/tariffs", a.tariffs)

	r.Group(func(auth chi.Router) {
		auth.Use(authN(tokens))
		auth.Get("/api/v1/payments/{id}", a.paymentStatus)
	})
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ping.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tariffDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Type            string `json:"type"`
	Price           int64  `json:"price"`
	DurationMinutes int    `json:"durationMinutes"`
	HourlyRate      int64  `json:"hourlyRate,omitempty"`
}

func (a *api) tariffs(w http.ResponseWriter, r *http.Request) {
	raw, err := a.store.ActiveTariffs(r.Context())
	if err != nil {
		a.log.Error("list tariffs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	ts := payment.ParseTariffs(raw)
	out := struct {
		Tariffs    []tariffDTO `json:"tariffs"`
		HourlyRate int64       `json:"hourlyRate"`
	}{Tariffs: make([]tariffDTO, 0, len(ts)), HourlyRate: payment.HourlyRate(ts)}
	for _, t := range ts {
		out.Tariffs = append(out.Tariffs, tariffDTO{
			ID: t.ID.String(), Name: t.Name, Description: t.Description, Type: string(t.Type),
			Price: t.Price, DurationMinutes: t.DurationMinutes, HourlyRate: t.HourlyRate,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type codeDTO struct {
	Code            string    `json:"code"`
	DurationMinutes int       `json:"durationMinutes"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

func (a *api) paymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad payment id")
		return
	}
	p, err := a.store.GetPayment(r.Context(), id)
	// someone else's payment looks exactly like a missing one
	if errors.Is(err, errs.ErrNotFound) || (err == nil && p.UserID != userID(r.Context())) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		a.log.Error("get payment", zap.Stringer("payment_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	out := struct {
		ID     string   `json:"id"`
		Status string   `json:"status"`
		Amount int64    `json:"amount"`
		Code   *codeDTO `json:"activationCode,omitempty"`
	}{ID: p.ID.String(), Status: string(p.Status), Amount: p.Amount}
	if p.Status == model.PaymentSucceeded {
		c, err := a.store.ActivationCodeByPayment(r.Context(), id)
		switch {
		case err == nil:
			out.Code = &codeDTO{Code: c.Code, DurationMinutes: c.DurationMinutes, ExpiresAt: c.ExpiresAt}
		case !errors.Is(err, errs.ErrNotFound):
			a.log.Error("get activation code", zap.Stringer("payment_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func authN(tokens Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			c := tokens.Verify(strings.TrimSpace(h[7:]))
			if c == nil || c.Expired {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, c.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("code", rec.code),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", r.RemoteAddr),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
