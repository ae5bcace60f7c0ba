package services

import (
	"context"
	"time"

	"community-points/config"
	"community-points/logging"
	"community-points/metrics"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs the auto-monitoring poll and the daily leaderboard snapshot.
type Scheduler struct {
	sched gocron.Scheduler
}

// StartScheduler registers the enabled jobs and starts them. Jobs never overlap
// themselves; a run that is still going when the next tick fires is rescheduled.
func StartScheduler(ctx context.Context, cfg *config.Config, posts *PostService, snapshots *SnapshotService) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	if cfg.AutoMonitoringActive() {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.Monitoring.Interval),
			gocron.NewTask(func() {
				runMonitor(ctx, posts, cfg.Monitoring.BatchSize, cfg.Monitoring.MaxAge)
			}),
			gocron.WithName("engagement-monitor"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
		logging.Info().Dur("interval", cfg.Monitoring.Interval).Int("batch", cfg.Monitoring.BatchSize).Msg("[SCHEDULER] auto-monitoring enabled")
	}

	if cfg.Snapshot.Daily && snapshots != nil && snapshots.Enabled() {
		_, err = sched.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
			gocron.NewTask(func() {
				if _, err := snapshots.Export(ctx); err != nil {
					logging.Error().Err(err).Msg("[SCHEDULER] snapshot failed")
				}
			}),
			gocron.WithName("leaderboard-snapshot"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
		logging.Info().Msg("[SCHEDULER] daily leaderboard snapshot enabled")
	}

	sched.Start()
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func runMonitor(ctx context.Context, posts *PostService, batch int, maxAge time.Duration) {
	start := time.Now()
	n, err := posts.MonitorBatch(ctx, batch, maxAge)
	if err != nil {
		metrics.MonitorRuns.WithLabelValues("error").Inc()
		logging.Error().Err(err).Msg("[MONITOR] run failed")
		return
	}
	metrics.MonitorRuns.WithLabelValues("ok").Inc()
	logging.Info().Int("refreshed", n).Dur("took", time.Since(start)).Msg("[MONITOR] run finished")
}
