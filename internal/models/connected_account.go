package models

import (
	"time"
)

// Sync status values for a connected account.
const (
	SyncStatusPending      = "pending"
	SyncStatusSyncing      = "syncing"
	SyncStatusSuccess      = "success"
	SyncStatusError        = "error"
	SyncStatusDisconnected = "disconnected"
)

// ConnectedAccount is a durable link between a local user and one
// external financial account. Token columns hold JSON-serialized
// crypto.EncryptedToken blobs; plaintext tokens are never persisted.
type ConnectedAccount struct {
	ID     string `gorm:"primaryKey"`
	UserID string `gorm:"not null;uniqueIndex:idx_account_user_provider_external,priority:1"`
	User   User   `gorm:"constraint:OnDelete:CASCADE"`

	Provider          string `gorm:"not null;uniqueIndex:idx_account_user_provider_external,priority:2"` // "coinbase", "schwab"
	ExternalAccountID string `gorm:"not null;uniqueIndex:idx_account_user_provider_external,priority:3"` // ID assigned by the provider

	AccountName string // user-editable display name
	AccountType string // provider-reported category, free text

	// Encrypted token material (opaque text, never indexed)
	AccessToken        string `gorm:"type:text;not null"`
	RefreshToken       string `gorm:"type:text"`
	AccessTokenExpiry  *time.Time
	RefreshTokenExpiry *time.Time

	IsActive   bool   `gorm:"not null;default:true;index"`
	SyncStatus string `gorm:"not null;default:'pending'"`
	SyncError  string `gorm:"type:text"`
	LastSyncAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name used by ConnectedAccount
func (ConnectedAccount) TableName() string {
	return "connected_accounts"
}

// HasRefreshToken reports whether encrypted refresh token material is stored.
func (a *ConnectedAccount) HasRefreshToken() bool {
	return a.RefreshToken != ""
}
