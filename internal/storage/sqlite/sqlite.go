// Package sqlite implements storage.Ledger on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/flor3z/payout-bot/internal/storage"
)

const busyTimeoutMillis = 5000

// Store handles all ledger operations against SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Ledger = (*Store)(nil)

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (creating if needed) the database at dbPath and applies the schema.
// ":memory:" opens a private in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", dbPath, busyTimeoutMillis)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection serializes every statement
	// and keeps an in-memory database alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(32) PRIMARY KEY,
			payout_role_id VARCHAR(32) NOT NULL,
			log_channel_id VARCHAR(32),
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id VARCHAR(32) NOT NULL,
			service_type VARCHAR(50) NOT NULL,
			email VARCHAR(255) NOT NULL,
			secret VARCHAR(255) NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(guild_id, service_type, email)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id VARCHAR(32) NOT NULL,
			user_id VARCHAR(32) NOT NULL,
			service_type VARCHAR(50) NOT NULL,
			account_email VARCHAR(255) NOT NULL,
			generated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_guild_service ON accounts(guild_id, service_type)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_guild ON transactions(guild_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Guild settings operations

// Configure creates or updates guild settings
func (s *Store) Configure(ctx context.Context, guildID, payoutRoleID, logChannelID string) error {
	if err := storage.RequireIDs("guild_id", guildID, "payout_role_id", payoutRoleID); err != nil {
		return err
	}
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, payout_role_id, log_channel_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			payout_role_id = excluded.payout_role_id,
			log_channel_id = COALESCE(excluded.log_channel_id, guild_settings.log_channel_id),
			updated_at = excluded.updated_at`,
		guildID, payoutRoleID, nullString(logChannelID), now, now,
	)
	return storage.Unavailable("configure guild", err)
}

// GuildConfig retrieves guild settings
func (s *Store) GuildConfig(ctx context.Context, guildID string) (*storage.GuildConfig, error) {
	var (
		cfg                  storage.GuildConfig
		logChannel           sql.NullString
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT guild_id, payout_role_id, log_channel_id, created_at, updated_at FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&cfg.GuildID, &cfg.PayoutRoleID, &logChannel, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotConfigured
	}
	if err != nil {
		return nil, storage.Unavailable("get guild config", err)
	}
	cfg.LogChannelID = logChannel.String
	cfg.CreatedAt = time.UnixMilli(createdAt).UTC()
	cfg.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &cfg, nil
}

// SetLogChannel updates the audit log channel of an existing configuration
func (s *Store) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	if err := storage.RequireIDs("guild_id", guildID, "channel_id", channelID); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE guild_settings SET log_channel_id = ?, updated_at = ? WHERE guild_id = ?`,
		channelID, s.now().UnixMilli(), guildID,
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

// Account operations

// BulkAdd inserts credentials in a single transaction, skipping duplicates
func (s *Store) BulkAdd(ctx context.Context, guildID, serviceType string, creds []storage.Credential) (storage.AddResult, error) {
	if err := storage.ValidateBatch(guildID, serviceType, creds); err != nil {
		return storage.AddResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.AddResult{}, storage.Unavailable("begin bulk add", err)
	}

	succeeded, err := insertAccounts(ctx, tx, guildID, serviceType, creds, s.now().UnixMilli())
	if err != nil {
		_ = tx.Rollback()
		return storage.AddResult{}, storage.Unavailable("bulk add", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.AddResult{}, storage.Unavailable("commit bulk add", err)
	}

	return storage.AddResult{Succeeded: succeeded, Skipped: len(creds) - succeeded}, nil
}

func insertAccounts(ctx context.Context, db executor, guildID, serviceType string, creds []storage.Credential, createdAt int64) (int, error) {
	succeeded := 0
	for _, c := range creds {
		result, err := db.ExecContext(ctx,
			`INSERT INTO accounts (guild_id, service_type, email, secret, created_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(guild_id, service_type, email) DO NOTHING`,
			guildID, serviceType, c.Email, c.Secret, createdAt,
		)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		succeeded += int(n)
	}
	return succeeded, nil
}

// TakeRandom removes one random account in a single statement
func (s *Store) TakeRandom(ctx context.Context, guildID, serviceType string) (*storage.Account, error) {
	var (
		a         storage.Account
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM accounts
		 WHERE id = (
			SELECT id FROM accounts
			WHERE guild_id = ? AND service_type = ?
			ORDER BY RANDOM() LIMIT 1
		 )
		 RETURNING id, guild_id, service_type, email, secret, created_at`,
		guildID, serviceType,
	).Scan(&a.ID, &a.GuildID, &a.ServiceType, &a.Email, &a.Secret, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrOutOfStock
	}
	if err != nil {
		return nil, storage.Unavailable("take account", err)
	}
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &a, nil
}

// Count returns remaining stock grouped by service type
func (s *Store) Count(ctx context.Context, guildID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service_type, COUNT(*) FROM accounts WHERE guild_id = ? GROUP BY service_type`,
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
		`DELETE FROM accounts WHERE guild_id = ? AND service_type = ?`,
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

// Transaction operations

// RecordTransaction appends a dispense audit row
func (s *Store) RecordTransaction(ctx context.Context, guildID, userID, serviceType, accountEmail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (guild_id, user_id, service_type, account_email, generated_at) VALUES (?, ?, ?, ?, ?)`,
		guildID, userID, serviceType, accountEmail, s.now().UnixMilli(),
	)
	return storage.Unavailable("record transaction", err)
}

// Transactions lists the audit trail of a guild, newest first
func (s *Store) Transactions(ctx context.Context, guildID string, limit int) ([]*storage.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guild_id, user_id, service_type, account_email, generated_at
		 FROM transactions WHERE guild_id = ? ORDER BY id DESC LIMIT ?`,
		guildID, limit,
	)
	if err != nil {
		return nil, storage.Unavailable("list transactions", err)
	}
	defer rows.Close()

	var txs []*storage.Transaction
	for rows.Next() {
		t := &storage.Transaction{}
		var generatedAt int64
		if err := rows.Scan(&t.ID, &t.GuildID, &t.UserID, &t.ServiceType, &t.AccountEmail, &generatedAt); err != nil {
			return nil, storage.Unavailable("list transactions", err)
		}
		t.GeneratedAt = time.UnixMilli(generatedAt).UTC()
		txs = append(txs, t)
	}

	return txs, storage.Unavailable("list transactions", rows.Err())
}

// Stats returns total stock and total dispensed for a guild
func (s *Store) Stats(ctx context.Context, guildID string) (storage.Stats, error) {
	var stats storage.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM accounts WHERE guild_id = ?`, guildID).Scan(&stats.TotalStock)
	})
	g.Go(func() error {
		return s.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM transactions WHERE guild_id = ?`, guildID).Scan(&stats.TotalGenerated)
	})
	if err := g.Wait(); err != nil {
		return storage.Stats{}, storage.Unavailable("stats", err)
	}
	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
