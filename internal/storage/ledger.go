// Package storage defines the stock ledger: per-guild payout configuration,
// the account inventory and the append-only dispense history.
package storage

import (
	"context"
	"strings"
)

// Ledger is the sole authority over account inventory and guild configuration.
//
// Implementations must make TakeRandom a single atomic statement against the
// backing store so that no two callers ever receive the same account, and must
// never fall back to a different store when the configured one fails.
type Ledger interface {
	// Configure upserts the guild configuration. An empty logChannelID keeps
	// the currently stored log channel.
	Configure(ctx context.Context, guildID, payoutRoleID, logChannelID string) error

	// GuildConfig returns ErrNotConfigured when the guild was never configured.
	GuildConfig(ctx context.Context, guildID string) (*GuildConfig, error)

	// SetLogChannel updates only the log channel. It returns ErrNotConfigured
	// when the guild has no configuration row.
	SetLogChannel(ctx context.Context, guildID, channelID string) error

	// BulkAdd inserts all credentials in one transaction. Credentials already
	// present for (guild, service, email), including repeats inside the same
	// batch, are counted as skipped.
	BulkAdd(ctx context.Context, guildID, serviceType string, creds []Credential) (AddResult, error)

	// TakeRandom removes and returns one uniformly random account, or
	// ErrOutOfStock.
	TakeRandom(ctx context.Context, guildID, serviceType string) (*Account, error)

	// Count returns remaining stock per service type. Service types without
	// stock are absent from the map.
	Count(ctx context.Context, guildID string) (map[string]int64, error)

	// ClearAll deletes every account of a service type and returns how many
	// were removed.
	ClearAll(ctx context.Context, guildID, serviceType string) (int64, error)

	// RecordTransaction appends one dispense audit row.
	RecordTransaction(ctx context.Context, guildID, userID, serviceType, accountEmail string) error

	// Transactions returns at most limit audit rows, newest first.
	Transactions(ctx context.Context, guildID string, limit int) ([]*Transaction, error)

	Stats(ctx context.Context, guildID string) (Stats, error)

	Close() error
}

// ValidateBatch rejects empty identifiers and credentials before any
// statement is issued.
func ValidateBatch(guildID, serviceType string, creds []Credential) error {
	if err := RequireIDs("guild_id", guildID, "service_type", serviceType); err != nil {
		return err
	}
	for i, c := range creds {
		if strings.TrimSpace(c.Email) == "" || c.Secret == "" {
			return Invalid("credential %d has an empty email or secret", i)
		}
	}
	return nil
}

// RequireIDs takes name/value pairs and fails on the first empty value.
func RequireIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return Invalid("%s is required", pairs[i])
		}
	}
	return nil
}
