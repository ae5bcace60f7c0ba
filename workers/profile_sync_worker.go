package workers

import (
	"context"
	"errors"
	"time"

	"community-points/logging"
	"community-points/models"
	"community-points/services"

	"gorm.io/gorm"
)

// ProfileSyncWorker refreshes display name, follower count and verified flag for
// users whose profile is missing or older than the sync interval.
type ProfileSyncWorker struct {
	db        *gorm.DB
	profiles  services.ProfileFetcher
	interval  time.Duration
	batchSize int
}

func NewProfileSyncWorker(db *gorm.DB, profiles services.ProfileFetcher, interval time.Duration) *ProfileSyncWorker {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &ProfileSyncWorker{
		db:        db,
		profiles:  profiles,
		interval:  interval,
		batchSize: 50,
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	logging.Info().Dur("interval", w.interval).Msg("[PROFILE SYNC] starting worker")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncBatch(ctx); err != nil {
		logging.Warn().Err(err).Msg("[PROFILE SYNC] initial sync failed")
	}

	// poll at a fraction of the interval so new users don't wait a full cycle
	ticker := time.NewTicker(max(w.interval/6, time.Minute))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncBatch(ctx); err != nil {
				logging.Warn().Err(err).Msg("[PROFILE SYNC] batch failed")
			}
		case <-ctx.Done():
			logging.Info().Msg("[PROFILE SYNC] worker stopped")
			return
		}
	}
}

// SyncBatch refreshes one batch of stale profiles and returns how many were updated.
func (w *ProfileSyncWorker) SyncBatch(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-w.interval)
	var users []models.User
	// users who joined without a username have nothing to look up
	if err := w.db.Where("is_banned = ? AND username <> '' AND (profile_synced_at IS NULL OR profile_synced_at < ?)", false, cutoff).
		Order("CASE WHEN profile_synced_at IS NULL THEN 0 ELSE 1 END, profile_synced_at ASC").
		Limit(w.batchSize).
		Find(&users).Error; err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	updated, failed := 0, 0
	for _, u := range users {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		now := time.Now()
		updates := map[string]any{"profile_synced_at": now}

		p, err := w.profiles.FetchProfile(ctx, u.Username)
		switch {
		case errors.Is(err, services.ErrPostNotFound):
			// account gone or renamed; don't retry until the next cycle
		case err != nil:
			failed++
			logging.Debug().Err(err).Str("username", u.Username).Msg("[PROFILE SYNC] fetch failed")
			continue
		default:
			if p.DisplayName != "" {
				updates["display_name"] = p.DisplayName
			}
			updates["followers_count"] = p.FollowersCount
			updates["verified"] = p.Verified
		}

		if err := w.db.Model(&models.User{}).Where("id = ?", u.ID).UpdateColumns(updates).Error; err != nil {
			failed++
			logging.Warn().Err(err).Str("user_id", u.ID).Msg("[PROFILE SYNC] update failed")
			continue
		}
		updated++
	}

	logging.Info().Int("updated", updated).Int("failed", failed).Msg("[PROFILE SYNC] batch done")
	return updated, nil
}
