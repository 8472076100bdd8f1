package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/payout-bot/internal/storage"
)

func TestParse(t *testing.T) {
	input := "a@x.com:p1\r\n\r\n  b@x.com : p:2:3  \nnocolon\n:nosecretowner\nc@x.com:\n   \nd@x.com:p4"

	b, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []storage.Credential{
		{Email: "a@x.com", Secret: "p1"},
		{Email: "b@x.com", Secret: "p:2:3"},
		{Email: "d@x.com", Secret: "p4"},
	}, b.Credentials)
	assert.Equal(t, 6, b.Lines)
	assert.Equal(t, 3, b.Invalid)
}

func TestParse_Empty(t *testing.T) {
	b, err := Parse(strings.NewReader("\n\n  \n"))
	require.NoError(t, err)
	assert.Empty(t, b.Credentials)
	assert.Zero(t, b.Lines)
}

func TestParseLimited(t *testing.T) {
	input := "a@x.com:secret1111\nb@x.com:LONGSECRET-ABCDEFG\n"

	_, err := ParseLimited(strings.NewReader(input), 30)
	require.ErrorIs(t, err, ErrTooLarge)

	b, err := ParseLimited(strings.NewReader(input), int64(len(input)))
	require.NoError(t, err)
	require.Len(t, b.Credentials, 2)
	assert.Equal(t, "LONGSECRET-ABCDEFG", b.Credentials[1].Secret)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.txt":
			fmt.Fprint(w, "a@x.com:p1\nb@x.com:p2\n")
		case "/big.txt":
			fmt.Fprint(w, strings.Repeat("x", 200))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(5*time.Second, 100, 100)
	ctx := context.Background()

	b, err := f.Fetch(ctx, srv.URL+"/ok.txt", "stock.TXT")
	require.NoError(t, err)
	assert.Len(t, b.Credentials, 2)

	_, err = f.Fetch(ctx, srv.URL+"/ok.txt", "stock.csv")
	assert.ErrorIs(t, err, ErrNotText)

	_, err = f.Fetch(ctx, srv.URL+"/big.txt", "big.txt")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = f.Fetch(ctx, srv.URL+"/missing.txt", "missing.txt")
	assert.ErrorContains(t, err, "status 404")
}

func TestFetch_ContextCancelledWhileThrottled(t *testing.T) {
	f := NewFetcher(time.Second, 100, 0.001)
	f.limiter.Allow() // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "http://127.0.0.1:1/never.txt", "never.txt")
	assert.ErrorContains(t, err, "rate limit")
}
