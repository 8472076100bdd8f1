// Package events fans out ledger audit events. Payloads never carry secrets.
package events

import (
	"context"
	"time"
)

// Event topic constants
const (
	TopicGuildConfigured  = "payout.guild.configured"
	TopicStockAdded       = "payout.stock.added"
	TopicAccountDispensed = "payout.account.dispensed"
	TopicStockCleared     = "payout.stock.cleared"
)

// Event types

type GuildConfigured struct {
	GuildID      string    `json:"guild_id"`
	PayoutRoleID string    `json:"payout_role_id"`
	LogChannelID string    `json:"log_channel_id,omitempty"`
	ConfiguredBy string    `json:"configured_by"`
	At           time.Time `json:"at"`
}

type StockAdded struct {
	GuildID     string    `json:"guild_id"`
	ServiceType string    `json:"service_type"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	AddedBy     string    `json:"added_by"`
	At          time.Time `json:"at"`
}

type AccountDispensed struct {
	GuildID      string    `json:"guild_id"`
	ServiceType  string    `json:"service_type"`
	UserID       string    `json:"user_id"`
	AccountEmail string    `json:"account_email"`
	Delivered    bool      `json:"delivered"`
	At           time.Time `json:"at"`
}

type StockCleared struct {
	GuildID     string    `json:"guild_id"`
	ServiceType string    `json:"service_type"`
	Removed     int64     `json:"removed"`
	ClearedBy   string    `json:"cleared_by"`
	At          time.Time `json:"at"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
