package services

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"community-points/logging"
	"community-points/models"

	"gorm.io/gorm"
)

// RankUsers returns a copy of users in leaderboard order with Rank set from 1.
// Order: TotalPoints desc, then JoinedAt asc, then ID asc, so the result is a total order.
func RankUsers(users []models.User) []models.User {
	ranked := slices.Clone(users)
	slices.SortFunc(ranked, func(a, b models.User) int {
		if c := cmp.Compare(b.TotalPoints, a.TotalPoints); c != 0 {
			return c
		}
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

type LeaderboardEntry struct {
	Rank           int       `json:"rank"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Verified       bool      `json:"verified"`
	TotalPoints    int64     `json:"total_points"`
	JoinedAt       time.Time `json:"joined_at"`
	Podium         string    `json:"podium,omitempty"`
	IsCurrentUser  bool      `json:"is_current_user,omitempty"`
	FollowersCount int64     `json:"followers_count"`
}

type LeaderboardPage struct {
	Entries []LeaderboardEntry `json:"entries"`
	Total   int                `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

type UserRankView struct {
	Rank       int                `json:"rank"`
	Total      int                `json:"total"`
	Percentile float64            `json:"percentile"` // share of users at or below this rank
	User       LeaderboardEntry   `json:"user"`
	Nearby     []LeaderboardEntry `json:"nearby"`
}

type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// Standings loads every non-banned user, ranks them and persists ranks that changed.
// Concurrent callers may both write; the result converges on the next read.
func (s *LeaderboardService) Standings() ([]models.User, error) {
	var users []models.User
	if err := s.DB.Where("is_banned = ?", false).Find(&users).Error; err != nil {
		return nil, err
	}
	ranked := RankUsers(users)

	prev := make(map[string]int, len(users))
	for _, u := range users {
		prev[u.ID] = u.Rank
	}
	var changed []models.User
	for _, u := range ranked {
		if prev[u.ID] != u.Rank {
			changed = append(changed, u)
		}
	}
	if len(changed) > 0 {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			for _, u := range changed {
				if err := tx.Model(&models.User{}).Where("id = ?", u.ID).UpdateColumn("rank", u.Rank).Error; err != nil {
					return err
				}
			}
			// banned users drop out of the ranking
			return tx.Model(&models.User{}).
				Where(map[string]any{"is_banned": true}).
				Not(map[string]any{"rank": 0}).
				UpdateColumn("rank", 0).Error
		})
		if err != nil {
			return nil, err
		}
		logging.Debug().Int("changed", len(changed)).Msg("[LEADERBOARD] ranks persisted")
	}
	return ranked, nil
}

// Leaderboard returns one page of the ranking.
func (s *LeaderboardService) Leaderboard(limit, offset int) (*LeaderboardPage, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	ranked, err := s.Standings()
	if err != nil {
		return nil, err
	}

	page := &LeaderboardPage{Entries: []LeaderboardEntry{}, Total: len(ranked), Limit: limit, Offset: offset}
	if offset >= len(ranked) {
		return page, nil
	}
	end := min(offset+limit, len(ranked))
	for _, u := range ranked[offset:end] {
		page.Entries = append(page.Entries, toEntry(u))
	}
	return page, nil
}

// UserRank returns the user's position and the users within rng places of it.
func (s *LeaderboardService) UserRank(userID string, rng int) (*UserRankView, error) {
	if rng < 0 {
		rng = 0
	}
	if rng > 25 {
		rng = 25
	}
	ranked, err := s.Standings()
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(ranked, func(u models.User) bool { return u.ID == userID })
	if idx < 0 {
		var exists int64
		if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Count(&exists).Error; err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, ErrUserNotFound
		}
		return nil, ErrUserBanned
	}

	lo := max(0, idx-rng)
	hi := min(len(ranked), idx+rng+1)
	view := &UserRankView{
		Rank:       idx + 1,
		Total:      len(ranked),
		Percentile: percentile(idx+1, len(ranked)),
		User:       toEntry(ranked[idx]),
	}
	for _, u := range ranked[lo:hi] {
		e := toEntry(u)
		e.IsCurrentUser = u.ID == userID
		view.Nearby = append(view.Nearby, e)
	}
	return view, nil
}

// TopPerformers returns the first n ranked users, with podium labels for the top three.
func (s *LeaderboardService) TopPerformers(n int) ([]LeaderboardEntry, error) {
	if n < 1 || n > 10 {
		n = 3
	}
	page, err := s.Leaderboard(n, 0)
	if err != nil {
		return nil, err
	}
	return page.Entries, nil
}

// LookupUser returns a user by internal id.
func (s *LeaderboardService) LookupUser(userID string) (*models.User, error) {
	var u models.User
	if err := s.DB.Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func toEntry(u models.User) LeaderboardEntry {
	return LeaderboardEntry{
		Rank:           u.Rank,
		UserID:         u.ID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		AvatarURL:      u.AvatarURL,
		Verified:       u.Verified,
		TotalPoints:    u.TotalPoints,
		JoinedAt:       u.JoinedAt,
		Podium:         podium(u.Rank),
		FollowersCount: u.FollowersCount,
	}
}

func podium(rank int) string {
	switch rank {
	case 1:
		return "gold"
	case 2:
		return "silver"
	case 3:
		return "bronze"
	default:
		return ""
	}
}

func percentile(rank, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(total-rank+1) / float64(total) * 100
	return float64(int(p*10+0.5)) / 10
}
