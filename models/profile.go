package models

import (
	"time"
)

// Profile is the cached per-wallet summary shown on the dashboard.
// Tokens mirrors the on-chain balance for display only — the token service is
// authoritative and the cache is refreshed opportunistically after payouts
// and by the balance sync worker.
type Profile struct {
	ID            string  `gorm:"primaryKey;type:uuid" json:"id"`
	WalletAddress string  `gorm:"type:varchar(128);not null;uniqueIndex" json:"walletAddress"`
	Username      string  `gorm:"index" json:"username"`
	Email         string  `json:"email,omitempty"`
	FirstName     *string `json:"firstName,omitempty"`
	LastName      *string `json:"lastName,omitempty"`
	City          *string `json:"city,omitempty"`
	Country       *string `json:"country,omitempty"`

	Tokens            int64      `gorm:"not null;default:0" json:"tokens"`
	LastBalanceSyncAt *time.Time `json:"lastBalanceSyncAt,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
