// Package slackapi is a small Slack Web API and Socket Mode client covering the
// methods the assistant uses.
package slackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultBaseURL = "https://slack.com/api"

// APIError is a failed Slack call: a non-2xx status, or ok=false with an error code.
type APIError struct {
	Method string
	Status int
	Code   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("slack %s failed: %s", e.Method, e.Code)
	}
	return fmt.Sprintf("slack %s http %d", e.Method, e.Status)
}

type Client struct {
	http     *http.Client
	baseURL  string
	botToken string
	appToken string
}

func New(httpClient *http.Client, baseURL, botToken, appToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(botToken),
		appToken: strings.TrimSpace(appToken),
	}
}

type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

const maxAttempts = 3

// call invokes a Web API method, retrying rate limits and server errors, and
// decodes the response into out. A nil query sends payload as JSON; otherwise
// the method is called with GET and the query string.
func (c *Client) call(ctx context.Context, token, method string, payload any, query url.Values, out any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var (
			body    []byte
			status  int
			headers http.Header
			err     error
		)
		if query != nil {
			body, status, headers, err = c.getAuth(ctx, token, "/"+method, query)
		} else {
			body, status, headers, err = c.postAuthJSON(ctx, token, "/"+method, payload)
		}
		if err != nil {
			lastErr = err
		} else if status < 200 || status >= 300 {
			lastErr = &APIError{Method: method, Status: status}
		} else {
			var env envelope
			if err := json.Unmarshal(body, &env); err != nil {
				return fmt.Errorf("slack %s: decode response: %w", method, err)
			}
			if !env.OK {
				code := strings.TrimSpace(env.Error)
				if code == "" {
					code = "unknown_error"
				}
				return &APIError{Method: method, Status: status, Code: code}
			}
			if out != nil {
				if err := json.Unmarshal(body, out); err != nil {
					return fmt.Errorf("slack %s: decode response: %w", method, err)
				}
			}
			return nil
		}

		if attempt >= maxAttempts {
			break
		}
		wait, retryable := retryDelay(status, headers, attempt)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func retryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(headers.Get("Retry-After"))
		secs, err := strconv.Atoi(retryAfter)
		if err != nil || secs <= 0 {
			return 1 * time.Second, true
		}
		return time.Duration(secs) * time.Second, true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) postAuthJSON(ctx context.Context, token, path string, payload any) ([]byte, int, http.Header, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return c.do(req, token)
}

func (c *Client) getAuth(ctx context.Context, token, path string, query url.Values) ([]byte, int, http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, nil, err
	}
	return c.do(req, token)
}

func (c *Client) do(req *http.Request, token string) ([]byte, int, http.Header, error) {
	if c == nil || c.http == nil {
		return nil, 0, nil, fmt.Errorf("slack api is not initialized")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, 0, nil, fmt.Errorf("slack token is required")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, resp.Header, readErr
	}
	return raw, resp.StatusCode, resp.Header, nil
}

type AuthInfo struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	BotID  string `json:"bot_id"`
	Team   string `json:"team"`
	User   string `json:"user"`
}

func (c *Client) AuthTest(ctx context.Context) (AuthInfo, error) {
	var out AuthInfo
	err := c.call(ctx, c.botToken, "auth.test", nil, nil, &out)
	return out, err
}

// ConnectSocket opens a Socket Mode websocket using the app-level token.
func (c *Client) ConnectSocket(ctx context.Context) (*websocket.Conn, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.call(ctx, c.appToken, "apps.connections.open", nil, nil, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return nil, fmt.Errorf("slack apps.connections.open returned empty url")
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, out.URL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
