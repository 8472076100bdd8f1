package storage

import "time"

// GuildConfig stores per-server payout configuration
type GuildConfig struct {
	GuildID      string
	PayoutRoleID string
	LogChannelID string // empty when no log channel is set
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account is a single stocked credential pair
type Account struct {
	ID          int64
	GuildID     string
	ServiceType string
	Email       string
	Secret      string
	CreatedAt   time.Time
}

// Credential is one email/secret pair submitted for import
type Credential struct {
	Email  string
	Secret string
}

// Transaction is an audit record of a dispensed account
type Transaction struct {
	ID           int64
	GuildID      string
	UserID       string // Discord user ID of the recipient
	ServiceType  string
	AccountEmail string
	GeneratedAt  time.Time
}

// AddResult reports the outcome of a bulk import.
// Succeeded + Skipped always equals the number of submitted credentials.
type AddResult struct {
	Succeeded int
	Skipped   int
}

// Stats is the aggregate view used by /stats
type Stats struct {
	TotalStock     int64
	TotalGenerated int64
}
