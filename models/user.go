package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a community member, created on the first request the gateway forwards for them.
type User struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalID     string `gorm:"uniqueIndex;not null" json:"external_id"` // provider account id
	Username       string `gorm:"index;not null" json:"username"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `gorm:"type:text" json:"avatar_url,omitempty"`
	FollowersCount int64  `json:"followers_count"`
	Verified       bool   `json:"verified"`

	// TotalPoints only changes through the points ledger.
	TotalPoints int64 `gorm:"not null;default:0;index" json:"total_points"`
	Rank        int   `gorm:"not null;default:0" json:"rank"` // re-derived on leaderboard reads

	JoinedAt   time.Time  `gorm:"not null;index" json:"joined_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	IsBanned   bool       `gorm:"not null;default:false" json:"is_banned"`

	ProfileSyncedAt *time.Time `json:"profile_synced_at,omitempty"`

	Timestamps
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Now()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
