// Package githubapi is a rate-limit-aware, retrying, paginating REST client
// for the read-only GitHub endpoints the collector and agent tools consume.
// It is hand-rolled rather than built on a generated GitHub SDK because the
// pipeline needs exact retry/backoff/rate-limit mechanics (Link header
// parsing, X-RateLimit-Remaining inspection, a bounded page cap) that a
// generic client would hide behind its own abstraction.
package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Client wraps an *http.Client with GitHub's auth, retry, rate-limit, and
// Link-header pagination conventions.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	maxRetries int
	breaker    *gobreaker.CircuitBreaker

	// now is overridable in tests.
	now func() time.Time
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	MaxRetries int
	Timeout    time.Duration
}

// NewClient builds a Client. A gobreaker circuit breaker wraps every
// request: after repeated failures it opens and fails fast for a cooldown
// window, so a sustained GitHub outage doesn't make every stage hammer the
// API on its own polling cadence. This complements, not replaces, the
// request-level retry/backoff loop below.
func NewClient(cfg Config) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "githubapi",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		breaker:    breaker,
		now:        time.Now,
	}
}

// RateLimitError is returned when GitHub responds 403 without any
// rate-limit indicator — a non-retryable authentication/authorization
// failure.
type RateLimitError struct {
	Status int
	Body   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("githubapi: %d response without rate-limit headers: %s", e.Status, e.Body)
}

// backoffSchedule is the three-attempt exponential backoff for transient
// failures: 1s, 2s, 4s.
var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// doRequest executes req with retry, rate-limit handling, and circuit
// breaking, returning the final *http.Response (caller must close Body).
func (c *Client) doRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.breaker.Execute(func() (any, error) {
			return c.httpClient.Do(req.Clone(ctx))
		})
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				c.sleep(ctx, backoffSchedule[min(attempt, len(backoffSchedule)-1)])
				continue
			}
			return nil, fmt.Errorf("githubapi: request failed after %d attempts: %w", attempt+1, lastErr)
		}

		httpResp := resp.(*http.Response)

		if handled, retry, err := c.handleRateLimit(ctx, httpResp); err != nil {
			return nil, err
		} else if retry {
			continue
		} else if handled {
			return httpResp, nil
		}

		if httpResp.StatusCode >= 500 && attempt < c.maxRetries {
			_ = httpResp.Body.Close()
			c.sleep(ctx, backoffSchedule[min(attempt, len(backoffSchedule)-1)])
			continue
		}

		return httpResp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("githubapi: retry budget exhausted by rate-limit waits")
	}
	return nil, lastErr
}

// handleRateLimit inspects X-RateLimit-Remaining/Retry-After/status on a
// response. It reports (handled=true, retry=false) for a non-5xx response
// the caller should use as-is, (handled=false, retry=false) for a 5xx the
// caller's backoff loop decides on, (handled=false, retry=true) after
// sleeping out a rate-limit window (caller should retry the request), or a
// non-nil error for a terminal 403 with no rate-limit indicator.
func (c *Client) handleRateLimit(ctx context.Context, resp *http.Response) (handled bool, retry bool, err error) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	retryAfter := resp.Header.Get("Retry-After")

	if resp.StatusCode == http.StatusForbidden {
		if remaining == "0" || retryAfter != "" {
			c.sleepUntilReset(ctx, resp)
			_ = resp.Body.Close()
			return false, true, nil
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return false, false, &RateLimitError{Status: resp.StatusCode, Body: string(body)}
	}

	if remaining == "0" {
		c.sleepUntilReset(ctx, resp)
		_ = resp.Body.Close()
		return false, true, nil
	}

	return resp.StatusCode < http.StatusInternalServerError, false, nil
}

// sleepUntilReset sleeps until X-RateLimit-Reset (a unix timestamp; no
// sleep when it has already passed) or, if that header is absent or
// unparseable, until Retry-After seconds have elapsed, else for 10s.
func (c *Client) sleepUntilReset(ctx context.Context, resp *http.Response) {
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			d := time.Unix(epoch, 0).Sub(c.now())
			if d > 0 {
				c.sleep(ctx, d)
			}
			return
		}
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			c.sleep(ctx, time.Duration(secs)*time.Second)
			return
		}
	}
	c.sleep(ctx, 10*time.Second)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Get issues a single-resource GET and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("githubapi: GET %s: status %d: %s", path, resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
