// Package postgres implements storage.Ledger backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/flor3z/payout-bot/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const accountColumns = `id, guild_id, service_type, email, secret, created_at`

// Store implements storage.Ledger backed by a PostgreSQL database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Ledger = (*Store)(nil)

// New opens a connection to the database at databaseURL, configures the
// pool and applies pending migrations.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Configure upserts guild settings, keeping the log channel when none is given
func (s *Store) Configure(ctx context.Context, guildID, payoutRoleID, logChannelID string) error {
	if err := storage.RequireIDs("guild_id", guildID, "payout_role_id", payoutRoleID); err != nil {
		return err
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, payout_role_id, log_channel_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (guild_id) DO UPDATE SET
			payout_role_id = EXCLUDED.payout_role_id,
			log_channel_id = COALESCE(EXCLUDED.log_channel_id, guild_settings.log_channel_id),
			updated_at = EXCLUDED.updated_at`,
		guildID, payoutRoleID, nullString(logChannelID), now,
	)
	return storage.Unavailable("configure guild", err)
}

// GuildConfig retrieves guild settings
func (s *Store) GuildConfig(ctx context.Context, guildID string) (*storage.GuildConfig, error) {
	var (
		cfg        storage.GuildConfig
		logChannel sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT guild_id, payout_role_id, log_channel_id, created_at, updated_at
		FROM guild_settings WHERE guild_id = $1`,
		guildID,
	).Scan(&cfg.GuildID, &cfg.PayoutRoleID, &logChannel, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotConfigured
	}
	if err != nil {
		return nil, storage.Unavailable("get guild config", err)
	}
	cfg.LogChannelID = logChannel.String
	return &cfg, nil
}

// SetLogChannel updates the audit log channel of an existing configuration
func (s *Store) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	if err := storage.RequireIDs("guild_id", guildID, "channel_id", channelID); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE guild_settings SET log_channel_id = $1, updated_at = $2 WHERE guild_id = $3`,
		channelID, s.now(), guildID,
	)
	if err != nil {
		return storage.Unavailable("set log channel", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Unavailable("set log channel", err)
	}
	if n == 0 {
		return storage.ErrNotConfigured
	}
	return nil
}

// BulkAdd inserts credentials in a single transaction, skipping duplicates
func (s *Store) BulkAdd(ctx context.Context, guildID, serviceType string, creds []storage.Credential) (storage.AddResult, error) {
	if err := storage.ValidateBatch(guildID, serviceType, creds); err != nil {
		return storage.AddResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.AddResult{}, storage.Unavailable("begin bulk add", err)
	}

	now := s.now()
	succeeded := 0
	for _, c := range creds {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (guild_id, service_type, email, secret, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (guild_id, service_type, email) DO NOTHING`,
			guildID, serviceType, c.Email, c.Secret, now,
		)
		if err == nil {
			var n int64
			n, err = result.RowsAffected()
			succeeded += int(n)
		}
		if err != nil {
			_ = tx.Rollback()
			return storage.AddResult{}, storage.Unavailable("bulk add", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.AddResult{}, storage.Unavailable("commit bulk add", err)
	}
	return storage.AddResult{Succeeded: succeeded, Skipped: len(creds) - succeeded}, nil
}

// TakeRandom deletes and returns one random account. SKIP LOCKED makes a
// concurrent taker pick another row instead of waiting on one that is about
// to disappear.
func (s *Store) TakeRandom(ctx context.Context, guildID, serviceType string) (*storage.Account, error) {
	var a storage.Account
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM accounts
		WHERE id = (
			SELECT id FROM accounts
			WHERE guild_id = $1 AND service_type = $2
			ORDER BY random()
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+accountColumns,
		guildID, serviceType,
	).Scan(&a.ID, &a.GuildID, &a.ServiceType, &a.Email, &a.Secret, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrOutOfStock
	}
	if err != nil {
		return nil, storage.Unavailable("take account", err)
	}
	return &a, nil
}

// Count returns remaining stock grouped by service type
func (s *Store) Count(ctx context.Context, guildID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service_type, COUNT(*) FROM accounts WHERE guild_id = $1 GROUP BY service_type`,
		guildID,
	)
	if err != nil {
		return nil, storage.Unavailable("count stock", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			serviceType string
			n           int64
		)
		if err := rows.Scan(&serviceType, &n); err != nil {
			return nil, storage.Unavailable("count stock", err)
		}
		counts[serviceType] = n
	}
	return counts, storage.Unavailable("count stock", rows.Err())
}

// ClearAll deletes all accounts of a service type
func (s *Store) ClearAll(ctx context.Context, guildID, serviceType string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE guild_id = $1 AND service_type = $2`,
		guildID, serviceType,
	)
	if err != nil {
		return 0, storage.Unavailable("clear stock", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storage.Unavailable("clear stock", err)
	}
	return n, nil
}

// RecordTransaction appends a dispense audit row
func (s *Store) RecordTransaction(ctx context.Context, guildID, userID, serviceType, accountEmail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (guild_id, user_id, service_type, account_email, generated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		guildID, userID, serviceType, accountEmail, s.now(),
	)
	return storage.Unavailable("record transaction", err)
}

// Transactions lists the audit trail of a guild, newest first
func (s *Store) Transactions(ctx context.Context, guildID string, limit int) ([]*storage.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, service_type, account_email, generated_at
		FROM transactions WHERE guild_id = $1 ORDER BY id DESC LIMIT $2`,
		guildID, limit,
	)
	if err != nil {
		return nil, storage.Unavailable("list transactions", err)
	}
	defer rows.Close()

	var txs []*storage.Transaction
	for rows.Next() {
		t := &storage.Transaction{}
		if err := rows.Scan(&t.ID, &t.GuildID, &t.UserID, &t.ServiceType, &t.AccountEmail, &t.GeneratedAt); err != nil {
			return nil, storage.Unavailable("list transactions", err)
		}
		txs = append(txs, t)
	}
	return txs, storage.Unavailable("list transactions", rows.Err())
}

// Stats returns total stock and total dispensed for a guild
func (s *Store) Stats(ctx context.Context, guildID string) (storage.Stats, error) {
	var stats storage.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM accounts WHERE guild_id = $1`, guildID).Scan(&stats.TotalStock)
	})
	g.Go(func() error {
		return s.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM transactions WHERE guild_id = $1`, guildID).Scan(&stats.TotalGenerated)
	})
	if err := g.Wait(); err != nil {
		return storage.Stats{}, storage.Unavailable("stats", err)
	}
	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
