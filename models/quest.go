package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuestType string

const (
	QuestSubmitPosts    QuestType = "submit_posts"
	QuestVerifiedPosts  QuestType = "verified_posts"
	QuestEarnPoints     QuestType = "earn_points"
	QuestTotalLikes     QuestType = "total_likes"
	QuestCommunityPosts QuestType = "community_posts"
)

func (t QuestType) Valid() bool {
	switch t {
	case QuestSubmitPosts, QuestVerifiedPosts, QuestEarnPoints, QuestTotalLikes, QuestCommunityPosts:
		return true
	}
	return false
}

// Quest is a static definition; progress lives in UserQuest.
type Quest struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code         string    `gorm:"uniqueIndex;not null" json:"code"` // e.g. "first-submission"
	Name         string    `gorm:"not null" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	Type         QuestType `gorm:"type:varchar(32);not null" json:"type"`
	Target       int64     `gorm:"not null" json:"target"`
	RewardPoints int64     `gorm:"not null" json:"reward_points"`
	Active       bool      `gorm:"not null" json:"active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (q *Quest) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

type UserQuestStatus string

const (
	UserQuestNotStarted UserQuestStatus = "not_started"
	UserQuestInProgress UserQuestStatus = "in_progress"
	UserQuestCompleted  UserQuestStatus = "completed"
	UserQuestClaimed    UserQuestStatus = "claimed"
)

// order is used to keep status transitions forward-only.
func (s UserQuestStatus) order() int {
	switch s {
	case UserQuestInProgress:
		return 1
	case UserQuestCompleted:
		return 2
	case UserQuestClaimed:
		return 3
	default:
		return 0
	}
}

// Before reports whether s comes strictly before other in the quest lifecycle.
func (s UserQuestStatus) Before(other UserQuestStatus) bool {
	return s.order() < other.order()
}

type UserQuest struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string          `gorm:"type:uuid;not null;uniqueIndex:idx_user_quest" json:"user_id"`
	QuestID     string          `gorm:"type:uuid;not null;uniqueIndex:idx_user_quest" json:"quest_id"`
	Quest       *Quest          `gorm:"foreignKey:QuestID" json:"quest,omitempty"`
	Status      UserQuestStatus `gorm:"type:varchar(16);not null" json:"status"`
	Progress    int64           `gorm:"not null;default:0" json:"progress"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (uq *UserQuest) BeforeCreate(tx *gorm.DB) error {
	if uq.ID == "" {
		uq.ID = uuid.NewString()
	}
	return nil
}

// QuestDefinitions are seeded at start; existing codes are left untouched.
var QuestDefinitions = []Quest{
	{
		Code:         "first-submission",
		Name:         "First Submission",
		Description:  "Submit your first post",
		Type:         QuestSubmitPosts,
		Target:       1,
		RewardPoints: 10,
		Active:       true,
	},
	{
		Code:         "five-verified-posts",
		Name:         "Regular Voice",
		Description:  "Get five posts verified",
		Type:         QuestVerifiedPosts,
		Target:       5,
		RewardPoints: 50,
		Active:       true,
	},
	{
		Code:         "hundred-points",
		Name:         "Century",
		Description:  "Reach 100 points",
		Type:         QuestEarnPoints,
		Target:       100,
		RewardPoints: 25,
		Active:       true,
	},
	{
		Code:         "fifty-likes",
		Name:         "Crowd Pleaser",
		Description:  "Collect 50 likes across your verified posts",
		Type:         QuestTotalLikes,
		Target:       50,
		RewardPoints: 30,
		Active:       true,
	},
	{
		Code:         "community-voice",
		Name:         "Community Voice",
		Description:  "Publish three verified community posts",
		Type:         QuestCommunityPosts,
		Target:       3,
		RewardPoints: 40,
		Active:       true,
	},
}
