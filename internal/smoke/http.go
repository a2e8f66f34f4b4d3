package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/okian/rsvp/pkg/logger"
)

// HTTPClient wraps http.Client with the admin credentials.
type HTTPClient struct {
	client   *http.Client
	baseURL  string
	user     string
	password string
}

func newHTTPClient(cfg *Config) *HTTPClient {
	return &HTTPClient{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  cfg.BaseURL,
		user:     cfg.AdminUser,
		password: cfg.AdminPassword,
	}
}

// Get performs a GET request, adding basic auth when admin is true.
func (c *HTTPClient) Get(ctx context.Context, path string, admin bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	if admin {
		req.SetBasicAuth(c.user, c.password)
	}
	return c.client.Do(req)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %w", ErrRequest, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// fetchTotals reads GET /rsvps/stats.
func fetchTotals(ctx context.Context, client *HTTPClient) (*Totals, error) {
	resp, err := client.Get(ctx, "/rsvps/stats", true)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: stats returned status %d", ErrRequest, resp.StatusCode)
	}
	var t Totals
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: decode stats: %w", ErrRequest, err)
	}
	return &t, nil
}

// submitGuests posts payloads concurrently using a worker pool.
func submitGuests(ctx context.Context, cfg *Config, client *HTTPClient, guests []Payload, stats *Stats) {
	log := cfg.Logger
	log.Info(ctx, "submitting rsvps", logger.Int("count", len(guests)), logger.Int("workers", cfg.Workers))

	var successful, failed, submitted int64

	jobs := make(chan Payload, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				atomic.AddInt64(&submitted, 1)
				if err := postOne(ctx, client, p); err != nil {
					atomic.AddInt64(&failed, 1)
					if cfg.Verbose {
						log.Warn(ctx, "rsvp rejected", logger.String("lastName", p.LastName), logger.Error(err))
					}
					continue
				}
				atomic.AddInt64(&successful, 1)
			}
		}()
	}

feed:
	for _, p := range guests {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- p:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Submitted = int(submitted)
	stats.Successful = int(successful)
	stats.Failed = int(failed)
}

func postOne(ctx context.Context, client *HTTPClient, p Payload) error {
	resp, err := client.Post(ctx, "/rsvp", p)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRequest, resp.StatusCode, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
