package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/payout-bot/internal/storage"
	"github.com/flor3z/payout-bot/internal/storage/sqlite"
)

func newTestLedger(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	creds := make([]storage.Credential, 3)
	for i := range creds {
		creds[i] = storage.Credential{Email: fmt.Sprintf("a%d@example.com", i), Secret: "pw"}
	}
	_, err = s.BulkAdd(ctx, "g1", "nfa", creds)
	require.NoError(t, err)
	_, err = s.BulkAdd(ctx, "g1", "fa", creds[:1])
	require.NoError(t, err)

	acct, err := s.TakeRandom(ctx, "g1", "nfa")
	require.NoError(t, err)
	require.NoError(t, s.RecordTransaction(ctx, "g1", "u1", "nfa", acct.Email))
	return s
}

func do(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func quietOptions() Options {
	return Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestHealthz(t *testing.T) {
	h := NewRouter(newTestLedger(t), quietOptions())

	rec := do(t, h, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestStockAndStats(t *testing.T) {
	h := NewRouter(newTestLedger(t), quietOptions())

	rec := do(t, h, "/guilds/g1/stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "g1", body["guild_id"])
	assert.Equal(t, map[string]any{"nfa": float64(2), "fa": float64(1)}, body["stock"])

	rec = do(t, h, "/guilds/g1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(3), body["total_stock"])
	assert.Equal(t, float64(1), body["total_generated"])

	rec = do(t, h, "/guilds/other/stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["stock"])
}

func TestTransactions(t *testing.T) {
	h := NewRouter(newTestLedger(t), quietOptions())

	rec := do(t, h, "/guilds/g1/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decode(t, rec)["transactions"].([]any)
	require.Len(t, txs, 1)
	tx := txs[0].(map[string]any)
	assert.Equal(t, "u1", tx["user_id"])
	assert.Equal(t, "nfa", tx["service_type"])
	assert.NotContains(t, tx, "secret")

	rec = do(t, h, "/guilds/g1/transactions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "/guilds/g1/transactions?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBearerToken(t *testing.T) {
	opts := quietOptions()
	opts.Token = "s3cret"
	h := NewRouter(newTestLedger(t), opts)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, "/guilds/g1/stock", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "/guilds/g1/stock", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, "/guilds/g1/stock", "s3cret").Code)

	// Health checks stay open.
	assert.Equal(t, http.StatusOK, do(t, h, "/healthz", "").Code)
}

func TestStoreFailure(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.Close())
	h := NewRouter(ledger, quietOptions())

	for _, path := range []string{"/guilds/g1/stock", "/guilds/g1/stats", "/guilds/g1/transactions"} {
		rec := do(t, h, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "storage unavailable", decode(t, rec)["error"])
	}
}
