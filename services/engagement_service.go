package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"community-points/config"
	"community-points/logging"
	"community-points/metrics"
	"community-points/utils"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const primaryBreakerName = "twitter-api"

// PostData is what the fetch chain knows about a post. Counts is nil when the
// answering source has no engagement numbers (embed fallback).
type PostData struct {
	ExternalID string            `json:"external_id"`
	Author     string            `json:"author"`
	AuthorName string            `json:"author_name,omitempty"`
	Content    string            `json:"content"`
	PostedAt   *time.Time        `json:"posted_at,omitempty"`
	Counts     *EngagementCounts `json:"counts,omitempty"`
	Source     string            `json:"source"`
}

type ProfileData struct {
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	FollowersCount int64  `json:"followers_count"`
	Verified       bool   `json:"verified"`
}

type FetchOptions struct {
	Force      bool // skip the cache
	CountsOnly bool // caller already has author and content
}

// PostFetcher is the part of EngagementService the post flow depends on.
type PostFetcher interface {
	Fetch(ctx context.Context, ref utils.PostRef, opts FetchOptions) (*PostData, error)
}

type ProfileFetcher interface {
	FetchProfile(ctx context.Context, username string) (*ProfileData, error)
}

type postSource interface {
	Name() string
	FetchPost(ctx context.Context, ref utils.PostRef, countsOnly bool) (*PostData, error)
}

type EngagementOptions struct {
	Primary  postSource // nil when no API credentials are configured
	Scraper  *ScraperClient
	Embed    postSource
	Breaker  config.BreakerConfig
	Rate     config.RateConfig
	Cache    *EngagementCache
	Profiles ProfileFetcher // defaults to Scraper
}

// EngagementService runs the fallback chain: provider API (behind a token bucket and a
// circuit breaker), then the scraper sidecar, then the public embed.
type EngagementService struct {
	primary  postSource
	scraper  postSource
	profiles ProfileFetcher
	embed    postSource
	breaker  *gobreaker.CircuitBreaker[*PostData]
	limiter  *rate.Limiter
	cache    *EngagementCache
}

func NewEngagementService(opts EngagementOptions) *EngagementService {
	s := &EngagementService{
		primary:  opts.Primary,
		embed:    opts.Embed,
		profiles: opts.Profiles,
		cache:    opts.Cache,
	}
	if opts.Scraper != nil {
		s.scraper = opts.Scraper
		if s.profiles == nil {
			s.profiles = opts.Scraper
		}
	}

	requests := max(opts.Rate.Requests, 1)
	window := opts.Rate.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	s.limiter = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)

	threshold := max(opts.Breaker.FailureThreshold, 1)
	metrics.CircuitBreakerState.WithLabelValues(primaryBreakerName).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(primaryBreakerName).Set(0)

	s.breaker = gobreaker.NewCircuitBreaker[*PostData](gobreaker.Settings{
		Name:        primaryBreakerName,
		MaxRequests: 1, // a single probe after the cooldown
		Interval:    0, // counts only reset on state change
		Timeout:     opts.Breaker.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", breakerStateName(from)).Str("to", breakerStateName(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, breakerStateName(from), breakerStateName(to)).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
		// A missing post is an answer, not a dependency failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPostNotFound)
		},
	})
	return s
}

// NewEngagementServiceFromConfig wires the real clients. cache may be nil.
func NewEngagementServiceFromConfig(cfg *config.Config, cache *EngagementCache) *EngagementService {
	opts := EngagementOptions{
		Embed:   NewOEmbedClient(cfg.OEmbed),
		Breaker: cfg.Breaker,
		Rate:    cfg.PrimaryAPI,
		Cache:   cache,
	}
	if cfg.Twitter.Enabled() {
		opts.Primary = NewTwitterClient(cfg.Twitter)
	}
	if cfg.Scraper.URL != "" {
		opts.Scraper = NewScraperClient(cfg.Scraper)
	}
	return NewEngagementService(opts)
}

// Fetch returns the first successful answer along the chain. ErrPostNotFound from any
// source ends the chain; if every source fails the error wraps ErrEngagementUnavailable.
func (s *EngagementService) Fetch(ctx context.Context, ref utils.PostRef, opts FetchOptions) (*PostData, error) {
	if s.cache != nil && !opts.Force {
		if data, ok := s.cache.GetPost(ref.ID, opts.CountsOnly); ok {
			return data, nil
		}
	}

	errs := []error{ErrEngagementUnavailable}
	for _, src := range []postSource{s.primary, s.scraper, s.embed} {
		if src == nil {
			continue
		}
		var (
			data *PostData
			err  error
		)
		if src == s.primary {
			data, err = s.fetchPrimary(ctx, ref, opts.CountsOnly)
		} else {
			data, err = s.fetchFrom(ctx, src, ref, opts.CountsOnly)
		}
		if err == nil {
			if s.cache != nil {
				s.cache.PutPost(ref.ID, data, opts.CountsOnly && data.Author == "")
			}
			return data, nil
		}
		if errors.Is(err, ErrPostNotFound) {
			return nil, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	metrics.FetchUnavailable.Inc()
	err := errors.Join(errs...)
	logging.Warn().Err(err).Str("post_id", ref.ID).Msg("[FETCH] all sources failed")
	return nil, err
}

func (s *EngagementService) fetchPrimary(ctx context.Context, ref utils.PostRef, countsOnly bool) (*PostData, error) {
	// State() also moves an expired open breaker to half-open.
	if s.breaker.State() == gobreaker.StateOpen {
		metrics.FetchAttempts.WithLabelValues(SourceAPI, "skipped").Inc()
		return nil, fmt.Errorf("%w: circuit open", errPrimarySkipped)
	}
	if !s.limiter.Allow() {
		metrics.FetchAttempts.WithLabelValues(SourceAPI, "skipped").Inc()
		return nil, fmt.Errorf("%w: local rate budget spent", errPrimarySkipped)
	}

	data, err := s.breaker.Execute(func() (*PostData, error) {
		return s.fetchFrom(ctx, s.primary, ref, countsOnly)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.FetchAttempts.WithLabelValues(SourceAPI, "skipped").Inc()
		return nil, fmt.Errorf("%w: %v", errPrimarySkipped, err)
	}
	counts := s.breaker.Counts()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(primaryBreakerName).Set(float64(counts.ConsecutiveFailures))
	return data, err
}

func (s *EngagementService) fetchFrom(ctx context.Context, src postSource, ref utils.PostRef, countsOnly bool) (*PostData, error) {
	start := time.Now()
	data, err := src.FetchPost(ctx, ref, countsOnly)
	metrics.FetchDuration.WithLabelValues(src.Name()).Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case errors.Is(err, ErrPostNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "failure"
		logging.Debug().Err(err).Str("source", src.Name()).Str("post_id", ref.ID).Msg("[FETCH] source failed")
	}
	metrics.FetchAttempts.WithLabelValues(src.Name(), outcome).Inc()
	return data, err
}

// FetchProfile reads a profile through the cache. Only the scraper can answer.
func (s *EngagementService) FetchProfile(ctx context.Context, username string) (*ProfileData, error) {
	if s.profiles == nil {
		return nil, fmt.Errorf("%w: no profile source configured", ErrEngagementUnavailable)
	}
	if s.cache != nil {
		if p, ok := s.cache.GetProfile(username); ok {
			return p, nil
		}
	}
	p, err := s.profiles.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.PutProfile(username, p)
	}
	return p, nil
}

// HasProfileSource reports whether profile refreshes can run at all.
func (s *EngagementService) HasProfileSource() bool { return s.profiles != nil }

// BreakerState is "closed", "half-open" or "open".
func (s *EngagementService) BreakerState() string {
	return breakerStateName(s.breaker.State())
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
