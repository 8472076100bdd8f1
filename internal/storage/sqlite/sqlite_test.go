package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/payout-bot/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func creds(n int, prefix string) []storage.Credential {
	out := make([]storage.Credential, n)
	for i := range out {
		out[i] = storage.Credential{Email: fmt.Sprintf("%s%d@x.com", prefix, i), Secret: fmt.Sprintf("p%d", i)}
	}
	return out
}

func TestConfigure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GuildConfig(ctx, "g1")
	require.ErrorIs(t, err, storage.ErrNotConfigured)

	require.NoError(t, s.Configure(ctx, "g1", "role-1", ""))
	first, err := s.GuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "role-1", first.PayoutRoleID)
	assert.Empty(t, first.LogChannelID)

	// same role twice is observably identical
	require.NoError(t, s.Configure(ctx, "g1", "role-1", ""))
	second, err := s.GuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, first.GuildID, second.GuildID)
	assert.Equal(t, first.PayoutRoleID, second.PayoutRoleID)
	assert.Equal(t, first.LogChannelID, second.LogChannelID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	require.NoError(t, s.Configure(ctx, "g1", "role-2", "chan-1"))
	cfg, err := s.GuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "role-2", cfg.PayoutRoleID)
	assert.Equal(t, "chan-1", cfg.LogChannelID)

	// reconfiguring without a channel keeps the stored one
	require.NoError(t, s.Configure(ctx, "g1", "role-3", ""))
	cfg, err = s.GuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "role-3", cfg.PayoutRoleID)
	assert.Equal(t, "chan-1", cfg.LogChannelID)

	assert.ErrorIs(t, s.Configure(ctx, "", "role", ""), storage.ErrInvalidArgument)
	assert.ErrorIs(t, s.Configure(ctx, "g1", "", ""), storage.ErrInvalidArgument)
}

func TestSetLogChannel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.SetLogChannel(ctx, "g1", "chan-1")
	require.ErrorIs(t, err, storage.ErrNotConfigured)

	require.NoError(t, s.Configure(ctx, "g1", "role-1", ""))
	require.NoError(t, s.SetLogChannel(ctx, "g1", "chan-9"))

	cfg, err := s.GuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "chan-9", cfg.LogChannelID)
	assert.Equal(t, "role-1", cfg.PayoutRoleID)
}

func TestBulkAdd_SkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	batch := []storage.Credential{
		{Email: "a@x.com", Secret: "p1"},
		{Email: "a@x.com", Secret: "p1"},
		{Email: "b@x.com", Secret: "p2"},
	}

	res, err := s.BulkAdd(ctx, "g1", "nfa", batch)
	require.NoError(t, err)
	assert.Equal(t, storage.AddResult{Succeeded: 2, Skipped: 1}, res)

	res, err = s.BulkAdd(ctx, "g1", "nfa", batch)
	require.NoError(t, err)
	assert.Equal(t, storage.AddResult{Succeeded: 0, Skipped: 3}, res)

	// same email under another tier or guild is a different record
	res, err = s.BulkAdd(ctx, "g1", "fa", batch[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	res, err = s.BulkAdd(ctx, "g2", "nfa", batch[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	counts, err := s.Count(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"nfa": 2, "fa": 1}, counts)
}

func TestBulkAdd_DistinctPairsDedupe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res, err := s.BulkAdd(ctx, "g1", "nfa", []storage.Credential{
		{Email: "a@x.com", Secret: "p1"},
		{Email: "b@x.com", Secret: "p2"},
	})
	require.NoError(t, err)
	assert.Equal(t, storage.AddResult{Succeeded: 2}, res)

	before, err := s.Count(ctx, "g1")
	require.NoError(t, err)

	batch := []storage.Credential{
		{Email: "a@x.com", Secret: "other"},
		{Email: "c@x.com", Secret: "p3"},
		{Email: "d@x.com", Secret: "p4"},
	}
	res, err = s.BulkAdd(ctx, "g1", "nfa", batch)
	require.NoError(t, err)
	assert.Equal(t, len(batch), res.Succeeded+res.Skipped)

	after, err := s.Count(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, before["nfa"]+int64(res.Succeeded), after["nfa"])
	assert.Equal(t, 1, res.Skipped)
}

func TestBulkAdd_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.db.Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON accounts
		WHEN NEW.email = 'boom@x.com'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	_, err = s.BulkAdd(ctx, "g1", "nfa", []storage.Credential{
		{Email: "a@x.com", Secret: "p1"},
		{Email: "boom@x.com", Secret: "p2"},
		{Email: "c@x.com", Secret: "p3"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	counts, err := s.Count(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestBulkAdd_InvalidInput(t *testing.T) {
	s := newTestStore(t)
	_, err := s.BulkAdd(context.Background(), "g1", "nfa", []storage.Credential{{Email: "", Secret: "p"}})
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestTakeRandom_EmptyLedger(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	acct, err := s.TakeRandom(ctx, "g1", "fa")
	assert.Nil(t, acct)
	require.ErrorIs(t, err, storage.ErrOutOfStock)
	assert.NotErrorIs(t, err, storage.ErrUnavailable)

	counts, err := s.Count(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, counts)
	_, ok := counts["fa"]
	assert.False(t, ok)
}

func TestTakeRandom_RemovesRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fixed := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	_, err := s.BulkAdd(ctx, "g1", "nfa", []storage.Credential{{Email: "a@x.com", Secret: "p:1"}})
	require.NoError(t, err)

	// another guild's stock is invisible
	acct, err := s.TakeRandom(ctx, "g2", "nfa")
	require.ErrorIs(t, err, storage.ErrOutOfStock)
	assert.Nil(t, acct)

	acct, err = s.TakeRandom(ctx, "g1", "nfa")
	require.NoError(t, err)
	assert.Equal(t, "g1", acct.GuildID)
	assert.Equal(t, "nfa", acct.ServiceType)
	assert.Equal(t, "a@x.com", acct.Email)
	assert.Equal(t, "p:1", acct.Secret)
	assert.Equal(t, fixed, acct.CreatedAt)
	assert.NotZero(t, acct.ID)

	_, err = s.TakeRandom(ctx, "g1", "nfa")
	assert.ErrorIs(t, err, storage.ErrOutOfStock)

	// a dispensed email can be stocked again as a new record
	res, err := s.BulkAdd(ctx, "g1", "nfa", []storage.Credential{{Email: "a@x.com", Secret: "p:1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
}

func TestTakeRandom_Concurrent(t *testing.T) {
	for _, tc := range []struct {
		name    string
		records int
		callers int
	}{
		{"exact", 5, 5},
		{"oversubscribed", 5, 6},
		{"heavily oversubscribed", 10, 40},
		{"undersubscribed", 20, 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)

			_, err := s.BulkAdd(ctx, "g2", "xboxgp", creds(tc.records, "x"))
			require.NoError(t, err)

			var (
				wg         sync.WaitGroup
				mu         sync.Mutex
				got        = map[int64]string{}
				outOfStock int
				failures   []error
			)
			start := make(chan struct{})
			for i := 0; i < tc.callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					acct, err := s.TakeRandom(ctx, "g2", "xboxgp")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						if prev, dup := got[acct.ID]; dup {
							failures = append(failures, fmt.Errorf("account %d (%s) returned twice", acct.ID, prev))
						}
						got[acct.ID] = acct.Email
					case errors.Is(err, storage.ErrOutOfStock):
						outOfStock++
					default:
						failures = append(failures, err)
					}
				}()
			}
			close(start)
			wg.Wait()

			require.Empty(t, failures)
			want := min(tc.records, tc.callers)
			assert.Len(t, got, want)
			assert.Equal(t, tc.callers-want, outOfStock)

			emails := map[string]bool{}
			for _, e := range got {
				emails[e] = true
			}
			assert.Len(t, emails, want)

			counts, err := s.Count(ctx, "g2")
			require.NoError(t, err)
			assert.Equal(t, int64(tc.records-want), counts["xboxgp"])
		})
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.BulkAdd(ctx, "g1", "nfa", creds(4, "n"))
	require.NoError(t, err)
	_, err = s.BulkAdd(ctx, "g1", "fa", creds(2, "f"))
	require.NoError(t, err)
	_, err = s.BulkAdd(ctx, "g2", "nfa", creds(3, "o"))
	require.NoError(t, err)

	n, err := s.ClearAll(ctx, "g1", "nfa")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	counts, err := s.Count(ctx, "g1")
	require.NoError(t, err)
	_, ok := counts["nfa"]
	assert.False(t, ok)
	assert.Equal(t, int64(2), counts["fa"])

	n, err = s.ClearAll(ctx, "g1", "nfa")
	require.NoError(t, err)
	assert.Zero(t, n)

	other, err := s.Count(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), other["nfa"])
}

func TestStatsAndTransactions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res, err := s.BulkAdd(ctx, "g1", "nfa", creds(7, "n"))
	require.NoError(t, err)
	m := res.Succeeded

	k := 3
	for i := 0; i < k; i++ {
		acct, err := s.TakeRandom(ctx, "g1", "nfa")
		require.NoError(t, err)
		require.NoError(t, s.RecordTransaction(ctx, "g1", fmt.Sprintf("user-%d", i), "nfa", acct.Email))
	}
	require.NoError(t, s.RecordTransaction(ctx, "g2", "user-x", "fa", "z@x.com"))

	stats, err := s.Stats(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, storage.Stats{TotalStock: int64(m - k), TotalGenerated: int64(k)}, stats)

	txs, err := s.Transactions(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, txs, k)
	assert.Equal(t, "user-2", txs[0].UserID)
	assert.Equal(t, "user-0", txs[k-1].UserID)
	for _, tx := range txs {
		assert.Equal(t, "g1", tx.GuildID)
		assert.Equal(t, "nfa", tx.ServiceType)
		assert.False(t, tx.GeneratedAt.IsZero())
	}

	limited, err := s.Transactions(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.TakeRandom(ctx, "g1", "nfa")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.NotErrorIs(t, err, storage.ErrOutOfStock)

	_, err = s.Count(ctx, "g1")
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = s.Stats(ctx, "g1")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
