package services

import (
	"errors"
	"strings"

	"community-points/logging"
	"community-points/models"

	"gorm.io/gorm"
)

type AdminService struct {
	DB         *gorm.DB
	Points     *PointsService
	Engagement *EngagementService // optional, for breaker state
	ManualOnly bool
	Monitoring bool
}

func NewAdminService(db *gorm.DB, points *PointsService, engagement *EngagementService, manualOnly, monitoring bool) *AdminService {
	return &AdminService{DB: db, Points: points, Engagement: engagement, ManualOnly: manualOnly, Monitoring: monitoring}
}

type AdminStats struct {
	Users          int64            `json:"users"`
	BannedUsers    int64            `json:"banned_users"`
	PostsByStatus  map[string]int64 `json:"posts_by_status"`
	TotalPoints    int64            `json:"total_points"`
	HistoryEntries int64            `json:"history_entries"`
	BreakerState   string           `json:"breaker_state"`
	ManualOnly     bool             `json:"manual_only_mode"`
	AutoMonitoring bool             `json:"auto_monitoring"`
}

func (s *AdminService) Stats() (*AdminStats, error) {
	stats := &AdminStats{
		PostsByStatus:  map[string]int64{},
		BreakerState:   "disabled",
		ManualOnly:     s.ManualOnly,
		AutoMonitoring: s.Monitoring,
	}
	if err := s.DB.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.User{}).Where("is_banned = ?", true).Count(&stats.BannedUsers).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.User{}).Select("COALESCE(SUM(total_points), 0)").Scan(&stats.TotalPoints).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.PointsHistory{}).Count(&stats.HistoryEntries).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.DB.Model(&models.Post{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.PostsByStatus[r.Status] = r.Count
	}

	if s.Engagement != nil {
		stats.BreakerState = s.Engagement.BreakerState()
	}
	return stats, nil
}

// SetBanned bans or unbans a user. A banned user drops out of the ranking at once.
func (s *AdminService) SetBanned(userID string, banned bool) (*models.User, error) {
	updates := map[string]any{"is_banned": banned}
	if banned {
		updates["rank"] = 0
	}
	res := s.DB.Model(&models.User{}).Where("id = ?", userID).UpdateColumns(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := s.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	logging.Info().Str("user_id", userID).Bool("banned", banned).Msg("[ADMIN] ban state changed")
	return &user, nil
}

// SearchUsers matches username or display name, case-insensitively.
func (s *AdminService) SearchUsers(query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := s.DB.Model(&models.User{}).Order("total_points DESC").Limit(limit)
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		term := "%" + q + "%"
		db = db.Where("LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?", term, term)
	}
	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

type AdjustPointsRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Delta  int64  `json:"delta" validate:"required,ne=0"`
	Note   string `json:"note" validate:"required,max=200"`
}

// AdjustPoints applies a manual correction; the applied amount may be smaller than
// requested when a debit would go below zero.
func (s *AdminService) AdjustPoints(req AdjustPointsRequest, adminID string) (*models.User, int64, error) {
	user, applied, err := s.Points.AdjustPoints(req.UserID, req.Delta, req.Note)
	if err != nil {
		return nil, 0, err
	}
	logging.Info().
		Str("admin_id", adminID).
		Str("user_id", req.UserID).
		Int64("requested", req.Delta).
		Int64("applied", applied).
		Msg("[ADMIN] points adjusted")
	return user, applied, nil
}

func (s *AdminService) Reconcile() ([]PointsDrift, error) {
	return s.Points.Reconcile()
}
