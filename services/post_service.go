package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"community-points/logging"
	"community-points/metrics"
	"community-points/models"
	"community-points/utils"

	"gorm.io/gorm"
)

type PostService struct {
	DB        *gorm.DB
	Points    *PointsService
	Validator *ContentValidator
	Fetcher   PostFetcher
	Quests    *QuestService
	// ManualOnly skips the fetch on submission; counts start at zero.
	ManualOnly bool
}

func NewPostService(db *gorm.DB, points *PointsService, validator *ContentValidator, fetcher PostFetcher, quests *QuestService, manualOnly bool) *PostService {
	return &PostService{
		DB:         db,
		Points:     points,
		Validator:  validator,
		Fetcher:    fetcher,
		Quests:     quests,
		ManualOnly: manualOnly,
	}
}

type SubmitRequest struct {
	URL     string `json:"url" validate:"required,max=512"`
	Content string `json:"content" validate:"max=2000"`
}

type SubmitResult struct {
	Post          *models.Post     `json:"post"`
	Validation    ValidationResult `json:"validation"`
	PointsAwarded int64            `json:"points_awarded"`
}

// Submit verifies and stores a post for user. Approved posts are credited at once,
// warnings wait for a moderator, blocked content returns a *BlockedError and stores nothing.
func (s *PostService) Submit(ctx context.Context, user *models.User, req SubmitRequest) (*SubmitResult, error) {
	if user.IsBanned {
		return nil, ErrUserBanned
	}
	ref, err := utils.ParsePostURL(req.URL)
	if err != nil {
		return nil, err
	}
	if exists, err := s.exists(ref.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadySubmitted
	}

	var data *PostData
	if s.ManualOnly {
		data = &PostData{ExternalID: ref.ID, Author: ref.Username, Content: req.Content, Source: SourceManual}
	} else {
		data, err = s.Fetcher.Fetch(ctx, ref, FetchOptions{})
		if err != nil {
			metrics.PostSubmissions.WithLabelValues("fetch_failed").Inc()
			return nil, err
		}
	}

	author := data.Author
	if author == "" {
		author = ref.Username
	}
	if author != "" && !strings.EqualFold(author, user.Username) {
		metrics.PostSubmissions.WithLabelValues("author_mismatch").Inc()
		return nil, fmt.Errorf("%w: post by @%s, submitted by @%s", ErrAuthorMismatch, author, user.Username)
	}

	content := data.Content
	if strings.TrimSpace(content) == "" {
		content = req.Content
	}
	verdict := s.Validator.Validate(content)
	if verdict.Status == ValidationBlocked {
		metrics.PostSubmissions.WithLabelValues("blocked").Inc()
		return nil, &BlockedError{Result: verdict}
	}

	status := models.PostStatusVerified
	if verdict.Status == ValidationWarning {
		status = models.PostStatusFlagged
	}
	var counts EngagementCounts
	if data.Counts != nil {
		counts = *data.Counts
	}
	now := time.Now()
	post := models.Post{
		UserID:           user.ID,
		ExternalPostID:   ref.ID,
		URL:              ref.URL,
		AuthorUsername:   author,
		Content:          content,
		Likes:            max(counts.Likes, 0),
		Retweets:         max(counts.Retweets, 0),
		Replies:          max(counts.Replies, 0),
		TotalPoints:      s.Points.Weights.Calculate(counts),
		Status:           status,
		ValidationStatus: string(verdict.Status),
		ValidationReason: verdict.Reason,
		Source:           data.Source,
		IsCommunityPost:  s.Validator.IsCommunityPost(content),
		PostedAt:         data.PostedAt,
		SubmittedAt:      now,
		LastCheckedAt:    &now,
	}

	var awarded int64
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadySubmitted
			}
			return err
		}
		var err error
		awarded, err = s.Points.CreditPostTx(tx, &post)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.PostSubmissions.WithLabelValues(string(post.Status)).Inc()
	logging.Info().
		Str("user_id", user.ID).
		Str("post_id", post.ID).
		Str("status", string(post.Status)).
		Str("source", post.Source).
		Int64("points", awarded).
		Msg("[POSTS] submitted")

	s.evaluateQuests(user.ID)
	return &SubmitResult{Post: &post, Validation: verdict, PointsAwarded: awarded}, nil
}

// Refresh re-fetches a post's counts on behalf of its owner or an admin.
func (s *PostService) Refresh(ctx context.Context, actor *models.User, isAdmin bool, postID string, force bool) (*models.Post, int64, error) {
	post, err := s.get(postID)
	if err != nil {
		return nil, 0, err
	}
	if post.UserID != actor.ID && !isAdmin {
		return nil, 0, ErrNotPostOwner
	}
	if post.Status == models.PostStatusRejected {
		return nil, 0, ErrInvalidPostState
	}
	return s.RefreshPost(ctx, post, force)
}

// RefreshPost fetches fresh counts and hands them to the points updater.
func (s *PostService) RefreshPost(ctx context.Context, post *models.Post, force bool) (*models.Post, int64, error) {
	ref, err := utils.ParsePostURL(post.URL)
	if err != nil {
		ref = utils.PostRef{ID: post.ExternalPostID, Username: post.AuthorUsername, URL: post.URL}
	}
	data, err := s.Fetcher.Fetch(ctx, ref, FetchOptions{Force: force, CountsOnly: true})
	if err != nil {
		return nil, 0, err
	}
	updated, delta, err := s.Points.ApplyEngagement(post.ID, data.Counts)
	if err != nil {
		return nil, 0, err
	}
	if delta > 0 {
		s.evaluateQuests(updated.UserID)
	}
	return updated, delta, nil
}

// Moderate settles a flagged post: approve verifies and credits it, reject ends it.
func (s *PostService) Moderate(postID string, approve bool, moderatorID string) (*models.Post, int64, error) {
	var (
		post    models.Post
		awarded int64
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", postID).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostMissing
			}
			return err
		}
		if post.Status != models.PostStatusFlagged && post.Status != models.PostStatusPending {
			return ErrInvalidPostState
		}

		next := models.PostStatusRejected
		if approve {
			next = models.PostStatusVerified
		}
		res := tx.Model(&models.Post{}).
			Where("id = ? AND status = ?", post.ID, post.Status).
			UpdateColumns(map[string]any{"status": next, "moderated_by": moderatorID, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidPostState
		}
		post.Status = next
		post.ModeratedBy = &moderatorID

		var err error
		awarded, err = s.Points.CreditPostTx(tx, &post)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	logging.Info().Str("post_id", post.ID).Str("status", string(post.Status)).Str("moderator", moderatorID).Msg("[POSTS] moderated")
	if approve {
		s.evaluateQuests(post.UserID)
	}
	return &post, awarded, nil
}

func (s *PostService) ListMine(userID string, page, size int) ([]models.Post, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	var total int64
	if err := s.DB.Model(&models.Post{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var posts []models.Post
	err := s.DB.Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&posts).Error
	return posts, total, err
}

func (s *PostService) ListFlagged(limit int) ([]models.Post, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	var posts []models.Post
	err := s.DB.Where("status = ?", models.PostStatusFlagged).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// MonitorBatch refreshes up to batch verified posts submitted within maxAge, least
// recently checked first. Individual failures are logged and skipped.
func (s *PostService) MonitorBatch(ctx context.Context, batch int, maxAge time.Duration) (int, error) {
	if batch < 1 {
		batch = 25
	}
	var posts []models.Post
	if err := s.DB.Where("status = ? AND submitted_at >= ?", models.PostStatusVerified, time.Now().Add(-maxAge)).
		Order("CASE WHEN last_checked_at IS NULL THEN 0 ELSE 1 END, last_checked_at ASC").
		Limit(batch).
		Find(&posts).Error; err != nil {
		return 0, err
	}

	refreshed := 0
	for i := range posts {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, _, err := s.RefreshPost(ctx, &posts[i], false); err != nil {
			logging.Warn().Err(err).Str("post_id", posts[i].ID).Msg("[MONITOR] refresh failed")
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (s *PostService) evaluateQuests(userID string) {
	if s.Quests == nil {
		return
	}
	if _, err := s.Quests.Evaluate(userID); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("[QUESTS] evaluation failed")
	}
}

func (s *PostService) exists(externalID string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.Post{}).Where("external_post_id = ?", externalID).Count(&count).Error
	return count > 0, err
}

func (s *PostService) get(postID string) (*models.Post, error) {
	var post models.Post
	if err := s.DB.Where("id = ?", postID).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostMissing
		}
		return nil, err
	}
	return &post, nil
}
