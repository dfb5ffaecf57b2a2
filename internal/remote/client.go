// Package remote speaks the host's session-cookie HTTP/JSON protocol:
// login for a token, fetch the app catalog, push or delete one app. Every
// network operation carries a bounded retry budget with exponential
// backoff; a 401 invalidates the session and triggers one re-login.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sunsync/sunsync/internal/catalog"
)

// UnassignedIndex tells the host to assign a position (and identifier)
// itself: the entry is a create, not an update.
const UnassignedIndex = -1

// Client is the surface the plan applier needs from the remote host.
type Client interface {
	Login(ctx context.Context) error
	FetchApps(ctx context.Context) ([]catalog.Entry, error)
	PushApp(ctx context.Context, entry catalog.Entry, index int) error
	DeleteApp(ctx context.Context, index int) error
}

type Options struct {
	BaseURL  string
	Username string
	Password string
	// HTTPClient overrides the default client (tests). When nil one is
	// built honoring InsecureTLS and Timeout.
	HTTPClient *http.Client
	// InsecureTLS relaxes certificate validation. The target host commonly
	// serves a self-signed certificate on a local network; this is a
	// deliberate, documented trust boundary.
	InsecureTLS bool
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Clock       clockwork.Clock
}

// HTTPClient implements Client over the wire protocol. Not safe for
// concurrent use; the sync pass is single-threaded.
type HTTPClient struct {
	baseURL     string
	username    string
	password    string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	clock       clockwork.Clock
	jitter      func() float64

	// token is the session cookie, empty while unauthenticated.
	token string
}

func NewHTTPClient(opts Options) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport
		if opts.InsecureTLS {
			transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HTTPClient{
		baseURL:     baseURL,
		username:    strings.TrimSpace(opts.Username),
		password:    opts.Password,
		httpClient:  httpClient,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		clock:       clock,
		jitter:      rand.Float64,
	}
}

// Authenticated reports whether a session token is held.
func (c *HTTPClient) Authenticated() bool {
	return c.token != ""
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type appsResponse struct {
	Apps []catalog.Entry `json:"apps"`
}

// wireEntry is the push encoding of an entry. Sync fields are emitted even
// when zero, so a field cleared locally reaches the host as an explicit
// empty value instead of the host keeping its previous one. Remote-only
// fields stay compact; they are preserved verbatim and never cleared.
type wireEntry struct {
	Name                 string        `json:"name"`
	Cmd                  string        `json:"cmd"`
	Detached             []string      `json:"detached"`
	Output               string        `json:"output"`
	Elevated             bool          `json:"elevated"`
	AutoDetach           bool          `json:"auto-detach"`
	WaitAll              bool          `json:"wait-all"`
	ExitTimeout          int           `json:"exit-timeout"`
	ExcludeGlobalPrepCmd bool          `json:"exclude-global-prep-cmd"`
	PrepCmds             []wirePrepCmd `json:"prep-cmd"`

	UUID        string            `json:"uuid,omitempty"`
	ImagePath   string            `json:"image-path,omitempty"`
	PerClient   bool              `json:"per-client,omitempty"`
	ScaleFactor int               `json:"scale-factor,omitempty"`
	Gamepad     string            `json:"gamepad,omitempty"`
	StateCmds   []catalog.PrepCmd `json:"state-cmd,omitempty"`

	Index int `json:"index"`
}

type wirePrepCmd struct {
	Do       string `json:"do"`
	Undo     string `json:"undo"`
	Elevated bool   `json:"elevated"`
}

func toWireEntry(entry catalog.Entry, index int) wireEntry {
	detached := entry.Detached
	if detached == nil {
		detached = []string{}
	}
	prepCmds := make([]wirePrepCmd, len(entry.PrepCmds))
	for i, p := range entry.PrepCmds {
		prepCmds[i] = wirePrepCmd{Do: p.Do, Undo: p.Undo, Elevated: p.Elevated}
	}
	return wireEntry{
		Name:                 entry.Name,
		Cmd:                  entry.Cmd,
		Detached:             detached,
		Output:               entry.Output,
		Elevated:             entry.Elevated,
		AutoDetach:           entry.AutoDetach,
		WaitAll:              entry.WaitAll,
		ExitTimeout:          entry.ExitTimeout,
		ExcludeGlobalPrepCmd: entry.ExcludeGlobalPrepCmd,
		PrepCmds:             prepCmds,
		UUID:                 entry.UUID,
		ImagePath:            entry.ImagePath,
		PerClient:            entry.PerClient,
		ScaleFactor:          entry.ScaleFactor,
		Gamepad:              entry.Gamepad,
		StateCmds:            entry.StateCmds,
		Index:                index,
	}
}

// Login exchanges credentials for a session token taken from the first
// Set-Cookie value, up to its first ";".
func (c *HTTPClient) Login(ctx context.Context) error {
	c.token = ""
	body, err := json.Marshal(loginRequest{Username: c.username, Password: c.password})
	if err != nil {
		return err
	}
	res, err := c.do(ctx, http.MethodPost, "/api/login", body, false)
	if err != nil {
		return err
	}
	if err := mapStatus("login", res); err != nil {
		return err
	}
	cookies := res.header.Values("Set-Cookie")
	if len(cookies) == 0 {
		return &APIError{Operation: "login", StatusCode: res.status, Message: "no session cookie in response"}
	}
	token := cookies[0]
	if idx := strings.Index(token, ";"); idx >= 0 {
		token = token[:idx]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return &APIError{Operation: "login", StatusCode: res.status, Message: "empty session cookie"}
	}
	c.token = token
	return nil
}

// FetchApps returns the catalog as currently held by the host.
func (c *HTTPClient) FetchApps(ctx context.Context) ([]catalog.Entry, error) {
	var out appsResponse
	err := c.withSession(ctx, "fetch apps", func() error {
		res, err := c.do(ctx, http.MethodGet, "/api/apps", nil, true)
		if err != nil {
			return err
		}
		if err := mapStatus("fetch apps", res); err != nil {
			return err
		}
		return json.Unmarshal(res.body, &out)
	})
	if err != nil {
		return nil, err
	}
	if out.Apps == nil {
		out.Apps = []catalog.Entry{}
	}
	return out.Apps, nil
}

// PushApp sends one entry. index identifies the host-side position to
// update; UnassignedIndex creates a new entry.
func (c *HTTPClient) PushApp(ctx context.Context, entry catalog.Entry, index int) error {
	body, err := json.Marshal(toWireEntry(entry, index))
	if err != nil {
		return err
	}
	return c.withSession(ctx, "push app", func() error {
		res, err := c.do(ctx, http.MethodPost, "/api/apps", body, true)
		if err != nil {
			return err
		}
		return mapStatus("push app", res)
	})
}

// DeleteApp removes the entry at the given host-side position.
func (c *HTTPClient) DeleteApp(ctx context.Context, index int) error {
	return c.withSession(ctx, "delete app", func() error {
		res, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/apps/%d", index), nil, true)
		if err != nil {
			return err
		}
		return mapStatus("delete app", res)
	})
}

// withSession runs call with a valid session, logging in first when no
// token is held and re-logging in exactly once when the call reports an
// expired session.
func (c *HTTPClient) withSession(ctx context.Context, operation string, call func() error) error {
	if c.token == "" {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}
	err := call()
	if err == nil || !errors.Is(err, ErrAuth) {
		return err
	}
	if loginErr := c.Login(ctx); loginErr != nil {
		return loginErr
	}
	if err := call(); err != nil {
		if errors.Is(err, ErrAuth) {
			return &AuthError{Operation: operation}
		}
		return err
	}
	return nil
}

type httpResult struct {
	status int
	header http.Header
	body   []byte
}

// do performs one logical request with the retry policy: transport errors
// and 5xx/429 responses are retried up to the attempt budget with
// exponential backoff and jitter; everything else returns immediately.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, authed bool) (*httpResult, error) {
	for attempt := 1; ; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-Correlation-Id", uuid.NewString())
		if authed && c.token != "" {
			req.Header.Set("Cookie", c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxAttempts {
				if waitErr := c.wait(ctx, c.retryDelay(attempt)); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, &ConnectivityError{Operation: method + " " + path, Err: err}
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		result := &httpResult{status: resp.StatusCode, header: resp.Header, body: payload}

		if (resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxAttempts {
			if waitErr := c.wait(ctx, c.retryDelay(attempt)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized && authed {
			// The held session is dead; drop it so the next call re-logs in.
			c.token = ""
		}
		return result, nil
	}
}

// retryDelay grows exponentially from the base delay, capped, with ±25%
// jitter so concurrent clients do not stampede.
func (c *HTTPClient) retryDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			delay = c.maxDelay
			break
		}
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	jittered := float64(delay) * (0.75 + 0.5*c.jitter())
	return time.Duration(jittered)
}

func (c *HTTPClient) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(delay):
		return nil
	}
}

func mapStatus(operation string, res *httpResult) error {
	if res.status >= 200 && res.status <= 299 {
		return nil
	}
	if res.status == http.StatusUnauthorized {
		return &AuthError{Operation: operation}
	}
	message := strings.TrimSpace(string(res.body))
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(res.body, &parsed) == nil {
		if parsed.Message != "" {
			message = parsed.Message
		} else if parsed.Error != "" {
			message = parsed.Error
		}
	}
	return &APIError{Operation: operation, StatusCode: res.status, Message: message}
}
