// Package schoolapi is a client for the school operations REST API that owns
// holiday declarations and attendance logs.
package schoolapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vidhyam/school-calendar/internal/calendar"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = time.Second
	maxErrorBody      = 512
)

// APIError is a non-2xx response or a {success: false} envelope
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// Client represents the school operations API client
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewClient creates a new API client. Zero timeout and retries fall back to defaults.
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration, retries int, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if retries <= 0 {
		retries = defaultRetries
	}
	if tokens == nil {
		tokens = StaticToken("")
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retries:    retries,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
}

// ListHolidays fetches the school's declared holidays
func (c *Client) ListHolidays(ctx context.Context, schoolID string) ([]calendar.Holiday, error) {
	path := fmt.Sprintf("/operations/attendance/%s/holidays", url.PathEscape(schoolID))

	var wire []Holiday
	if err := c.doRequest(ctx, http.MethodGet, path, &wire); err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}

	holidays := make([]calendar.Holiday, 0, len(wire))
	for _, h := range wire {
		holidays = append(holidays, h.ToCalendar())
	}

	c.logger.Debug("Holidays fetched",
		zap.String("school_id", schoolID),
		zap.Int("count", len(holidays)))

	return holidays, nil
}

// ListAttendance fetches the attendance log of one student or employee
func (c *Client) ListAttendance(ctx context.Context, schoolID string, role calendar.Role, userID string) ([]calendar.AttendanceEvent, error) {
	path := fmt.Sprintf("/operations/attendance/%s/%s/%s",
		url.PathEscape(schoolID), url.PathEscape(string(role)), url.PathEscape(userID))

	var wire []AttendanceRecord
	if err := c.doRequest(ctx, http.MethodGet, path, &wire); err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}

	events := make([]calendar.AttendanceEvent, 0, len(wire))
	for _, r := range wire {
		events = append(events, r.ToCalendar())
	}

	c.logger.Debug("Attendance fetched",
		zap.String("school_id", schoolID),
		zap.String("role", string(role)),
		zap.String("user_id", userID),
		zap.Int("count", len(events)))

	return events, nil
}

// doRequest performs HTTP request with retries on transport errors and temporary API errors
func (c *Client) doRequest(ctx context.Context, method, path string, result interface{}) error {
	endpoint := c.baseURL + path

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		err := c.doRequestOnce(ctx, method, endpoint, result)
		if err == nil {
			return nil
		}

		lastErr = err
		if !retryable(ctx, err) {
			return err
		}

		c.logger.Warn("Request failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.retries),
			zap.Error(err))

		if attempt < c.retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.retries, lastErr)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// doRequestOnce performs a single HTTP request and unwraps the response envelope into result
func (c *Client) doRequestOnce(ctx context.Context, method, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.tokens.GetToken()
	if err != nil {
		return fmt.Errorf("failed to get API token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), maxErrorBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.failureMessage()}
	}

	if result != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
