// Package lifetime provides the HTTP client for the Life Time member API:
// login, schedule fetch, and the two-step event registration protocol.
//
// The API is the same one the my.lifetime.life web app talks to, so requests
// carry the browser header set plus a per-request x-timestamp. Rate limiting
// is handled via a token bucket limiter.
package lifetime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://api.lifetimefitness.com"

	loginPath    = "/auth/v2/login"
	schedulePath = "/ux/web-schedules/v2/schedules/classes"
	registerPath = "/sys/registrations/V3/ux/event"

	subscriptionKey = "924c03ce573d473793e184219a6a19bd"
	requestTimeout  = 30 * time.Second
)

// ErrUnauthorized is returned when the API rejects the session tokens.
// Callers should re-login and retry the operation.
var ErrUnauthorized = errors.New("lifetime: session tokens rejected")

// Session holds the two tokens returned by a successful login.
type Session struct {
	JWE   string // x-ltf-jwe header value
	SSOID string // x-ltf-ssoid header value
}

// Valid reports whether both tokens are present.
func (s Session) Valid() bool {
	return s.JWE != "" && s.SSOID != ""
}

// Client is the shared HTTP client for all Life Time endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a Life Time API client with rate limiting.
func NewClient(baseURL, username, password string, requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		username:   username,
		password:   password,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
		now:        time.Now,
	}
}

// setCommonHeaders applies the browser header set the web app sends.
// The API gateway rejects requests without the subscription key and origin.
func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("accept", "application/json, text/plain, */*")
	req.Header.Set("accept-language", "en-US,en;q=0.7")
	req.Header.Set("cache-control", "no-cache")
	req.Header.Set("ocp-apim-subscription-key", subscriptionKey)
	req.Header.Set("origin", "https://my.lifetime.life")
	req.Header.Set("pragma", "no-cache")
	req.Header.Set("referer", "https://my.lifetime.life/")
	req.Header.Set("user-agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36")
}

// setSessionHeaders applies the auth tokens and a fresh x-timestamp.
func (c *Client) setSessionHeaders(req *http.Request, sess Session) {
	req.Header.Set("x-ltf-jwe", sess.JWE)
	req.Header.Set("x-ltf-ssoid", sess.SSOID)
	req.Header.Set("x-timestamp", c.now().UTC().Format("2006-01-02T15:04:05.000Z"))
}

// doJSON sends a request with a JSON body (if payload is non-nil) and returns
// the response status and body bytes. Transport-level failures are wrapped;
// HTTP status interpretation is left to the caller.
func (c *Client) doJSON(ctx context.Context, method, url string, sess Session, payload any) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	c.setCommonHeaders(req)
	if payload != nil {
		req.Header.Set("content-type", "application/json")
	}
	if sess.Valid() {
		c.setSessionHeaders(req, sess)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return resp.StatusCode, respBody, ErrUnauthorized
	}

	return resp.StatusCode, respBody, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}

// flexString decodes a JSON value that the API sends sometimes as a string
// and sometimes as a bare number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(bytes.TrimSpace(data))
	return nil
}

func (f flexString) String() string { return string(f) }

// epochMillis decodes a millisecond epoch timestamp sent either as a JSON
// number or a numeric string. Zero when absent or unparseable.
type epochMillis int64

func (e *epochMillis) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*e = 0
		return nil
	}
	*e = epochMillis(n)
	return nil
}

// Time converts to a UTC time.Time. Zero value when the timestamp was absent.
func (e epochMillis) Time() time.Time {
	if e == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(e)).UTC()
}
