package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"stream-tracker/acquisition"
	"stream-tracker/config"
	"stream-tracker/models"
	"stream-tracker/utils"
)

const maxPageBytes = 5 << 20

// userAgents rotate per attempt.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// statusError is a non-200 response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// isTransient reports whether err is worth retrying: network trouble,
// rate limiting or a server error. Parse failures and 4xx are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, acquisition.ErrValidation) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// FastFetcher reads the play counter from the track page's server-rendered
// HTML with a plain HTTP request.
type FastFetcher struct {
	client  *http.Client
	logger  *utils.Logger
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[int64]
	retry   *utils.RetryConfig
	timeout time.Duration
}

// NewFastFetcher builds the fast tier from cfg.
func NewFastFetcher(cfg *config.Config, logger *utils.Logger) *FastFetcher {
	limit := rate.Inf
	if cfg.RateLimitMs > 0 {
		limit = rate.Every(time.Duration(cfg.RateLimitMs) * time.Millisecond)
	}

	f := &FastFetcher{
		client:  &http.Client{},
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
		timeout: cfg.FetchTimeout,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBase,
			MaxDelay:    cfg.RetryCap,
			Logger:      logger,
			ShouldRetry: isTransient,
		},
	}

	// Opens when >= 60% of at least 10 requests fail, i.e. when the site
	// starts blocking us; the browser tier takes over meanwhile.
	f.breaker = gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:        "fast-fetch",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[fast-fetch] circuit %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
	})
	return f
}

func (f *FastFetcher) Method() models.Method { return models.MethodFastFetch }

// Attempt fetches track.URL and returns the first plausible play count.
func (f *FastFetcher) Attempt(ctx context.Context, track *models.Track) (acquisition.Observation, error) {
	var count int64
	err := f.retry.Do(ctx, "fast-fetch "+track.ExternalID, func(attempt int) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		n, err := f.breaker.Execute(func() (int64, error) {
			return f.fetch(ctx, track.URL, attempt)
		})
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		if errors.Is(err, acquisition.ErrValidation) {
			return acquisition.Observation{}, err
		}
		return acquisition.Observation{}, fmt.Errorf("%w: %v", acquisition.ErrAcquisition, err)
	}

	f.logger.Debug("[fast-fetch] %s: %d", track.Name, count)
	return acquisition.Observation{Count: count, Confidence: 1.0}, nil
}

func (f *FastFetcher) fetch(ctx context.Context, url string, attempt int) (int64, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgents[(attempt-1)%len(userAgents)])
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return 0, &statusError{code: resp.StatusCode}
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return 0, fmt.Errorf("parse page: %w", err)
	}

	texts := playcountTexts(doc)
	n, ok := PickCount(texts)
	if !ok {
		return 0, fmt.Errorf("%w: %d playcount element(s), none usable", acquisition.ErrValidation, len(texts))
	}
	return n, nil
}
