// Package httpapi serves read-only operational endpoints over the ledger.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/flor3z/payout-bot/internal/logging"
	"github.com/flor3z/payout-bot/internal/storage"
)

// maxTransactionsLimit caps the limit query parameter
const maxTransactionsLimit = 500

// Reader is the part of the ledger the API reads from
type Reader interface {
	Count(ctx context.Context, guildID string) (map[string]int64, error)
	Stats(ctx context.Context, guildID string) (storage.Stats, error)
	Transactions(ctx context.Context, guildID string, limit int) ([]*storage.Transaction, error)
}

// Options configures the router
type Options struct {
	// Token, when set, is required as a bearer token on /guilds routes.
	Token string
	// TransactionsLimit is the default page size for /transactions.
	TransactionsLimit int
	Logger            *slog.Logger
}

type api struct {
	ledger Reader
	opts   Options
	logger *slog.Logger
}

// NewRouter builds the HTTP handler
func NewRouter(ledger Reader, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TransactionsLimit <= 0 {
		opts.TransactionsLimit = 50
	}
	a := &api{ledger: ledger, opts: opts, logger: logging.Named(opts.Logger, "httpapi")}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/guilds/{guildID}", func(r chi.Router) {
		r.Use(a.bearerAuth)
		r.Get("/stock", a.handleStock)
		r.Get("/stats", a.handleStats)
		r.Get("/transactions", a.handleTransactions)
	})

	return r
}

func (a *api) handleStock(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	counts, err := a.ledger.Count(r.Context(), guildID)
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id": guildID,
		"stock":    counts,
	})
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	stats, err := a.ledger.Stats(r.Context(), guildID)
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id":        guildID,
		"total_stock":     stats.TotalStock,
		"total_generated": stats.TotalGenerated,
	})
}

type transactionJSON struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	ServiceType  string    `json:"service_type"`
	AccountEmail string    `json:"account_email"`
	GeneratedAt  time.Time `json:"generated_at"`
}

func (a *api) handleTransactions(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	limit := a.opts.TransactionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTransactionsLimit)
	}

	txs, err := a.ledger.Transactions(r.Context(), guildID, limit)
	if err != nil {
		a.storeError(w, r, err)
		return
	}

	out := make([]transactionJSON, len(txs))
	for i, tx := range txs {
		out[i] = transactionJSON{
			ID:           tx.ID,
			UserID:       tx.UserID,
			ServiceType:  tx.ServiceType,
			AccountEmail: tx.AccountEmail,
			GeneratedAt:  tx.GeneratedAt.UTC(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id":     guildID,
		"transactions": out,
	})
}

func (a *api) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.logger.Error("Ledger request failed", "path", r.URL.Path, logging.Err(err))
	writeError(w, http.StatusServiceUnavailable, "storage unavailable")
}

// bearerAuth requires "Authorization: Bearer <token>" when a token is configured
func (a *api) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.opts.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.opts.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
