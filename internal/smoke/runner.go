package smoke

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/rsvp/pkg/logger"
)

// Run executes a complete smoke test against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	applyDefaults(&cfg)
	log := cfg.Logger
	stats := &Stats{StartTime: time.Now()}
	client := newHTTPClient(&cfg)

	log.Info(ctx, "starting rsvp smoke test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("count", cfg.Count),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
		logger.Bool("verify", cfg.AdminUser != ""))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, err
	}

	// Step 2: Record totals before submitting
	verify := cfg.AdminUser != ""
	if verify {
		before, err := fetchTotals(ctx, client)
		if err != nil {
			return stats, err
		}
		stats.Before = before
	}

	// Step 3: Generate and submit
	guests := generateGuests(cfg.Count)
	stats.Generated = len(guests)
	submitGuests(ctx, &cfg, client, guests, stats)
	if stats.Successful == 0 {
		return finish(ctx, log, stats), fmt.Errorf("%w: %d failed", ErrNoneSent, stats.Failed)
	}

	// Step 4: Verify totals
	if verify {
		after, err := fetchTotals(ctx, client)
		if err != nil {
			return finish(ctx, log, stats), err
		}
		stats.After = after
		if err := verifyTotals(stats.Before, stats.After, stats.Successful); err != nil {
			return finish(ctx, log, stats), err
		}
		stats.Verified = true
	}

	return finish(ctx, log, stats), nil
}

func applyDefaults(cfg *Config) {
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	cfg.Logger = cfg.Logger.Named("smoke")
}

// checkServiceHealth verifies the service is running and its database is
// reachable.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	resp, err := client.Get(ctx, "/healthz", false)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthz returned status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// finish stamps the end time and logs the final statistics.
func finish(ctx context.Context, log logger.Logger, stats *Stats) *Stats {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	var successRate, perSecond float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Successful) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("successful", stats.Successful),
		logger.Int("failed", stats.Failed),
		logger.Bool("verified", stats.Verified),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("perSecond", perSecond))
	return stats
}
