package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"community-points/logging"
	"community-points/metrics"
	"community-points/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointsService owns every write to User.TotalPoints; each write appends a PointsHistory row
// in the same transaction.
type PointsService struct {
	DB      *gorm.DB
	Weights PointsWeights
}

func NewPointsService(db *gorm.DB, weights PointsWeights) *PointsService {
	return &PointsService{DB: db, Weights: weights}
}

// Identity is what the gateway tells us about the caller.
type Identity struct {
	ExternalID string
	Username   string
}

// EnsureUser returns the local user for id, creating it on first sight (idempotent).
func (s *PointsService) EnsureUser(id Identity) (*models.User, error) {
	if id.ExternalID == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := s.DB.Where("external_id = ?", id.ExternalID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now()
		user = models.User{
			ExternalID:  id.ExternalID,
			Username:    id.Username,
			DisplayName: id.Username,
			JoinedAt:    now,
			LastSeenAt:  &now,
		}
		// Two first requests can race; the loser re-reads the winner's row.
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(&user).Error; err != nil {
			return nil, err
		}
		if err := s.DB.Where("external_id = ?", id.ExternalID).First(&user).Error; err != nil {
			return nil, err
		}
		logging.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("[POINTS] user joined")
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if id.Username != "" && id.Username != user.Username {
		updates["username"] = id.Username
		user.Username = id.Username
	}
	if user.LastSeenAt == nil || time.Since(*user.LastSeenAt) > time.Minute {
		now := time.Now()
		updates["last_seen_at"] = now
		user.LastSeenAt = &now
	}
	if len(updates) > 0 {
		if err := s.DB.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumns(updates).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// AwardTx credits (or, for negative points, debits) a user inside tx and appends the ledger row.
// A debit that would take the total below zero fails.
func (s *PointsService) AwardTx(tx *gorm.DB, userID string, postID *string, points int64, reason string) error {
	if points == 0 {
		return nil
	}

	q := tx.Model(&models.User{}).Where("id = ?", userID)
	if points < 0 {
		q = q.Where("total_points + ? >= 0", points)
	}
	res := q.UpdateColumns(map[string]any{
		"total_points": gorm.Expr("total_points + ?", points),
		"updated_at":   time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if points < 0 {
			var exists int64
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&exists).Error; err != nil {
				return err
			}
			if exists > 0 {
				return fmt.Errorf("%w: %s", ErrInsufficientPoints, userID)
			}
		}
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	entry := models.PointsHistory{
		UserID:        userID,
		PostID:        postID,
		PointsAwarded: points,
		Reason:        reason,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}

	if points > 0 {
		metrics.PointsAwarded.WithLabelValues(reasonKind(reason)).Add(float64(points))
	}
	logging.Info().
		Str("user_id", userID).
		Int64("points", points).
		Str("reason", reason).
		Msg("[POINTS] ledger entry")
	return nil
}

// AwardPoints is AwardTx in its own transaction; returns the updated user.
func (s *PointsService) AwardPoints(userID string, postID *string, points int64, reason string) (*models.User, error) {
	var updated models.User
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.AwardTx(tx, userID, postID, points, reason); err != nil {
			return err
		}
		return tx.Where("id = ?", userID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreditPostTx credits the part of a verified post's points not yet paid out.
// Returns the credited delta.
func (s *PointsService) CreditPostTx(tx *gorm.DB, post *models.Post) (int64, error) {
	if post.Status != models.PostStatusVerified {
		return 0, nil
	}
	delta := post.TotalPoints - post.AwardedPoints
	if delta <= 0 {
		return 0, nil
	}

	// Guard on the old value so two concurrent refreshes can't both pay the same delta.
	res := tx.Model(&models.Post{}).
		Where("id = ? AND awarded_points = ?", post.ID, post.AwardedPoints).
		UpdateColumn("awarded_points", post.TotalPoints)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("post %s was credited concurrently", post.ID)
	}

	reason := "post_verified:" + post.ExternalPostID
	if post.AwardedPoints > 0 {
		reason = "engagement:" + post.ExternalPostID
	}
	postID := post.ID
	if err := s.AwardTx(tx, post.UserID, &postID, delta, reason); err != nil {
		return 0, err
	}
	post.AwardedPoints = post.TotalPoints
	return delta, nil
}

// ApplyEngagementTx merges counts into the post as high-water marks, recomputes its
// points and credits any new delta. A nil counts only touches LastCheckedAt.
func (s *PointsService) ApplyEngagementTx(tx *gorm.DB, post *models.Post, counts *EngagementCounts) (int64, error) {
	now := time.Now()
	current := EngagementCounts{Likes: post.Likes, Retweets: post.Retweets, Replies: post.Replies}
	if counts != nil {
		current = current.Merge(*counts)
	}
	post.Likes, post.Retweets, post.Replies = current.Likes, current.Retweets, current.Replies
	post.TotalPoints = max(post.TotalPoints, s.Weights.Calculate(current))
	post.LastCheckedAt = &now

	if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumns(map[string]any{
		"likes":           post.Likes,
		"retweets":        post.Retweets,
		"replies":         post.Replies,
		"total_points":    post.TotalPoints,
		"last_checked_at": now,
		"updated_at":      now,
	}).Error; err != nil {
		return 0, err
	}
	return s.CreditPostTx(tx, post)
}

// ApplyEngagement loads the post and runs ApplyEngagementTx in one transaction.
func (s *PointsService) ApplyEngagement(postID string, counts *EngagementCounts) (*models.Post, int64, error) {
	var (
		post  models.Post
		delta int64
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", postID).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostMissing
			}
			return err
		}
		var err error
		delta, err = s.ApplyEngagementTx(tx, &post, counts)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return &post, delta, nil
}

// AdjustPoints is a moderator correction. It goes through the ledger with a "manual:" reason
// and is capped so the total never drops below zero.
func (s *PointsService) AdjustPoints(userID string, delta int64, note string) (*models.User, int64, error) {
	var (
		user    models.User
		applied int64
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		applied = delta
		if user.TotalPoints+applied < 0 {
			applied = -user.TotalPoints
		}
		if err := s.AwardTx(tx, userID, nil, applied, "manual:"+strings.TrimSpace(note)); err != nil {
			return err
		}
		return tx.Where("id = ?", userID).First(&user).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return &user, applied, nil
}

// History returns a page of the user's ledger, newest first.
func (s *PointsService) History(userID string, page, size int) ([]models.PointsHistory, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := s.DB.Model(&models.PointsHistory{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.PointsHistory
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&entries).Error
	return entries, total, err
}

// PointsDrift is a user whose ledger no longer sums to their total.
type PointsDrift struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	TotalPoints int64  `json:"total_points"`
	LedgerSum   int64  `json:"ledger_sum"`
	Difference  int64  `json:"difference"`
}

// Reconcile lists every user whose ledger sum differs from TotalPoints.
func (s *PointsService) Reconcile() ([]PointsDrift, error) {
	type sumRow struct {
		UserID string
		Total  int64
	}
	var rows []sumRow
	if err := s.DB.Model(&models.PointsHistory{}).
		Select("user_id, COALESCE(SUM(points_awarded), 0) AS total").
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	sums := make(map[string]int64, len(rows))
	for _, r := range rows {
		sums[r.UserID] = r.Total
	}

	var users []models.User
	if err := s.DB.Select("id", "username", "total_points").Find(&users).Error; err != nil {
		return nil, err
	}
	drifts := []PointsDrift{}
	for _, u := range users {
		if sum := sums[u.ID]; sum != u.TotalPoints {
			drifts = append(drifts, PointsDrift{
				UserID:      u.ID,
				Username:    u.Username,
				TotalPoints: u.TotalPoints,
				LedgerSum:   sum,
				Difference:  u.TotalPoints - sum,
			})
		}
	}
	return drifts, nil
}

func reasonKind(reason string) string {
	kind, _, _ := strings.Cut(reason, ":")
	switch kind {
	case "post_verified", "engagement":
		return "post"
	case "quest", "manual":
		return kind
	default:
		return "other"
	}
}
