package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"community-points/logging"
	"community-points/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuestService struct {
	DB     *gorm.DB
	Points *PointsService
}

func NewQuestService(db *gorm.DB, points *PointsService) *QuestService {
	return &QuestService{DB: db, Points: points}
}

// QuestView is a quest definition with the caller's progress on it.
type QuestView struct {
	models.Quest
	Status      models.UserQuestStatus `json:"status"`
	Progress    int64                  `json:"progress"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time             `json:"claimed_at,omitempty"`
}

type CreateQuestRequest struct {
	Code         string           `json:"code" validate:"omitempty,max=64"`
	Name         string           `json:"name" validate:"required,max=128"`
	Description  string           `json:"description" validate:"max=1000"`
	Type         models.QuestType `json:"type" validate:"required,oneof=submit_posts verified_posts earn_points total_likes community_posts"`
	Target       int64            `json:"target" validate:"required,min=1"`
	RewardPoints int64            `json:"reward_points" validate:"min=0"`
}

// SeedDefaults inserts the built-in quests, leaving existing codes alone.
func (s *QuestService) SeedDefaults() error {
	for _, def := range models.QuestDefinitions {
		q := def
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&q).Error; err != nil {
			return fmt.Errorf("seed quest %s: %w", def.Code, err)
		}
	}
	return nil
}

// Create adds an admin-defined quest. The code defaults to a slug of the name.
func (s *QuestService) Create(req CreateQuestRequest) (*models.Quest, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown quest type %q", req.Type)
	}
	code := slug.Make(req.Code)
	if code == "" {
		code = slug.Make(req.Name)
	}
	q := models.Quest{
		Code:         code,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Type:         req.Type,
		Target:       req.Target,
		RewardPoints: max(req.RewardPoints, 0),
		Active:       true,
	}
	if err := s.DB.Create(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrQuestExists
		}
		return nil, err
	}
	logging.Info().Str("code", q.Code).Str("type", string(q.Type)).Msg("[QUESTS] created")
	return &q, nil
}

// List is Evaluate under the name the handlers read better with.
func (s *QuestService) List(userID string) ([]QuestView, error) {
	return s.Evaluate(userID)
}

// Evaluate recomputes the user's progress on every active quest and moves statuses
// forward. A status never moves backwards, even if a counter drops.
func (s *QuestService) Evaluate(userID string) ([]QuestView, error) {
	var quests []models.Quest
	if err := s.DB.Where("active = ?", true).Order("created_at ASC, code ASC").Find(&quests).Error; err != nil {
		return nil, err
	}

	counters, err := s.counters(userID)
	if err != nil {
		return nil, err
	}

	var existing []models.UserQuest
	if err := s.DB.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
		return nil, err
	}
	byQuest := make(map[string]models.UserQuest, len(existing))
	for _, uq := range existing {
		byQuest[uq.QuestID] = uq
	}

	views := make([]QuestView, 0, len(quests))
	for _, q := range quests {
		progress := counters[q.Type]
		uq, found := byQuest[q.ID]
		if !found {
			uq = models.UserQuest{UserID: userID, QuestID: q.ID, Status: models.UserQuestNotStarted}
		}

		next := nextQuestStatus(uq.Status, progress, q.Target)
		if !found || next != uq.Status || progress != uq.Progress {
			now := time.Now()
			if uq.StartedAt == nil && progress > 0 {
				uq.StartedAt = &now
			}
			if next == models.UserQuestCompleted && uq.CompletedAt == nil {
				uq.CompletedAt = &now
				logging.Info().Str("user_id", userID).Str("quest", q.Code).Msg("[QUESTS] completed")
			}
			uq.Status = next
			uq.Progress = progress

			if err := s.saveProgress(&uq); err != nil {
				return nil, err
			}
		}

		views = append(views, QuestView{
			Quest:       q,
			Status:      uq.Status,
			Progress:    uq.Progress,
			CompletedAt: uq.CompletedAt,
			ClaimedAt:   uq.ClaimedAt,
		})
	}
	return views, nil
}

// saveProgress upserts the row; the status guard keeps a concurrent claim from being undone.
func (s *QuestService) saveProgress(uq *models.UserQuest) error {
	if uq.ID == "" {
		return s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "quest_id"}},
			DoNothing: true,
		}).Create(uq).Error
	}
	return s.DB.Model(&models.UserQuest{}).
		Where("id = ? AND status <> ?", uq.ID, models.UserQuestClaimed).
		Updates(map[string]any{
			"status":       uq.Status,
			"progress":     uq.Progress,
			"started_at":   uq.StartedAt,
			"completed_at": uq.CompletedAt,
		}).Error
}

func nextQuestStatus(current models.UserQuestStatus, progress, target int64) models.UserQuestStatus {
	next := models.UserQuestNotStarted
	switch {
	case progress >= target:
		next = models.UserQuestCompleted
	case progress > 0:
		next = models.UserQuestInProgress
	}
	if next.Before(current) {
		return current
	}
	return next
}

// Claim pays a completed quest's reward once.
func (s *QuestService) Claim(userID, questID string) (*models.UserQuest, error) {
	var uq models.UserQuest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.IsBanned {
			return ErrUserBanned
		}

		if err := tx.Preload("Quest").
			Where("user_id = ? AND quest_id = ?", userID, questID).
			First(&uq).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				var count int64
				if err := tx.Model(&models.Quest{}).Where("id = ?", questID).Count(&count).Error; err != nil {
					return err
				}
				if count == 0 {
					return ErrQuestNotFound
				}
				return ErrQuestNotClaimable
			}
			return err
		}

		switch uq.Status {
		case models.UserQuestClaimed:
			return ErrQuestAlreadyClaimed
		case models.UserQuestCompleted:
		default:
			return ErrQuestNotClaimable
		}

		now := time.Now()
		res := tx.Model(&models.UserQuest{}).
			Where("id = ? AND status = ?", uq.ID, models.UserQuestCompleted).
			Updates(map[string]any{"status": models.UserQuestClaimed, "claimed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQuestAlreadyClaimed
		}
		uq.Status = models.UserQuestClaimed
		uq.ClaimedAt = &now

		return s.Points.AwardTx(tx, userID, nil, uq.Quest.RewardPoints, "quest:"+uq.Quest.Code)
	})
	if err != nil {
		return nil, err
	}

	logging.Info().Str("user_id", userID).Str("quest", uq.Quest.Code).Int64("reward", uq.Quest.RewardPoints).Msg("[QUESTS] claimed")
	// The reward itself may complete a points quest.
	if _, err := s.Evaluate(userID); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("[QUESTS] evaluation after claim failed")
	}
	return &uq, nil
}

func (s *QuestService) counters(userID string) (map[models.QuestType]int64, error) {
	var row struct {
		Submitted int64
		Verified  int64
		Likes     int64
		Community int64
	}
	err := s.DB.Model(&models.Post{}).
		Select(
			"COUNT(*) AS submitted, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS verified, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN likes ELSE 0 END), 0) AS likes, "+
				"COALESCE(SUM(CASE WHEN status = ? AND is_community_post THEN 1 ELSE 0 END), 0) AS community",
			models.PostStatusVerified, models.PostStatusVerified, models.PostStatusVerified,
		).
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.DB.Select("id", "total_points").Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return map[models.QuestType]int64{
		models.QuestSubmitPosts:    row.Submitted,
		models.QuestVerifiedPosts:  row.Verified,
		models.QuestEarnPoints:     user.TotalPoints,
		models.QuestTotalLikes:     row.Likes,
		models.QuestCommunityPosts: row.Community,
	}, nil
}
