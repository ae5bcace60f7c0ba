package services

import (
	"context"
	"fmt"
	"time"

	"community-points/logging"

	"github.com/goccy/go-json"
)

// SnapshotStore is satisfied by utils.R2Client.
type SnapshotStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type Snapshot struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Total       int                `json:"total"`
	Entries     []LeaderboardEntry `json:"entries"`
}

type SnapshotResult struct {
	Key     string `json:"key"`
	URL     string `json:"url"`
	Entries int    `json:"entries"`
}

// SnapshotService exports the full leaderboard as a JSON object.
type SnapshotService struct {
	Leaderboard *LeaderboardService
	Store       SnapshotStore // nil when storage isn't configured
	now         func() time.Time
}

func NewSnapshotService(lb *LeaderboardService, store SnapshotStore) *SnapshotService {
	return &SnapshotService{Leaderboard: lb, Store: store, now: time.Now}
}

func (s *SnapshotService) Enabled() bool { return s.Store != nil }

func (s *SnapshotService) Export(ctx context.Context) (*SnapshotResult, error) {
	if s.Store == nil {
		return nil, ErrSnapshotDisabled
	}
	ranked, err := s.Leaderboard.Standings()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	snap := Snapshot{GeneratedAt: now, Total: len(ranked), Entries: make([]LeaderboardEntry, 0, len(ranked))}
	for _, u := range ranked {
		snap.Entries = append(snap.Entries, toEntry(u))
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("leaderboard/%s/%s.json", now.Format("2006-01-02"), now.Format("150405"))
	url, err := s.Store.PutObject(ctx, key, "application/json", body)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("key", key).Int("entries", len(ranked)).Msg("[SNAPSHOT] leaderboard exported")
	return &SnapshotResult{Key: key, URL: url, Entries: len(ranked)}, nil
}
