package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostStatus string

const (
	PostStatusPending  PostStatus = "pending"
	PostStatusVerified PostStatus = "verified"
	PostStatusFlagged  PostStatus = "flagged"  // waiting for a moderator
	PostStatusRejected PostStatus = "rejected" // moderator said no
)

// Post references a submitted social post and its last known engagement.
type Post struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string `gorm:"type:uuid;index;not null" json:"user_id"`
	ExternalPostID string `gorm:"uniqueIndex;not null" json:"external_post_id"`
	URL            string `gorm:"type:text;not null" json:"url"`
	AuthorUsername string `gorm:"index" json:"author_username"`
	Content        string `gorm:"type:text" json:"content"`

	// Engagement counts never go down, see services.EngagementCounts.Merge.
	Likes    int64 `gorm:"not null;default:0" json:"likes"`
	Retweets int64 `gorm:"not null;default:0" json:"retweets"`
	Replies  int64 `gorm:"not null;default:0" json:"replies"`

	TotalPoints   int64 `gorm:"not null;default:0" json:"total_points"`
	AwardedPoints int64 `gorm:"not null;default:0" json:"awarded_points"` // already credited to the owner

	Status           PostStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ValidationStatus string     `gorm:"type:varchar(16)" json:"validation_status"`
	ValidationReason string     `gorm:"type:text" json:"validation_reason,omitempty"`
	Source           string     `gorm:"type:varchar(16)" json:"source"` // api, scraper, embed, manual
	IsCommunityPost  bool       `gorm:"not null;default:false" json:"is_community_post"`

	PostedAt      *time.Time `json:"posted_at,omitempty"` // when the author published it
	SubmittedAt   time.Time  `gorm:"not null;index" json:"submitted_at"`
	LastCheckedAt *time.Time `gorm:"index" json:"last_checked_at,omitempty"`
	ModeratedBy   *string    `json:"moderated_by,omitempty"`

	Timestamps
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = time.Now()
	}
	return nil
}

// PointsHistory is the append-only ledger behind User.TotalPoints.
type PointsHistory struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"type:uuid;index;not null" json:"user_id"`
	PostID        *string   `gorm:"type:uuid;index" json:"post_id,omitempty"`
	PointsAwarded int64     `gorm:"not null" json:"points_awarded"`
	Reason        string    `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (h *PointsHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
