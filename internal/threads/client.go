package threads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	logx "threadpost/pkg/logx"
)

const (
	DefaultBaseURL    = "https://graph.threads.net"
	DefaultAPIVersion = "v18.0"

	maxResponseBytes = 1 << 20
)

// Config configures the API client.
//
// StatusRetries bounds automatic retries of one status query on transient
// failures; it is independent of the PollUntilReady attempt budget.
type Config struct {
	BaseURL           string
	APIVersion        string
	UserID            string
	AccessToken       string
	Timeout           time.Duration
	RequestsPerMinute int

	StatusRetries   int
	StatusRetryBase time.Duration
	StatusRetryMax  time.Duration
}

// Client talks to the Threads Graph API. It holds no per-post state.
type Client struct {
	cfg     Config
	base    string
	http    *http.Client
	log     logx.Logger
	limiter *rate.Limiter

	statusExec failsafe.Executor[Status]

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.StatusRetries < 0 {
		cfg.StatusRetries = 0
	}
	if cfg.StatusRetryBase <= 0 {
		cfg.StatusRetryBase = 500 * time.Millisecond
	}
	if cfg.StatusRetryMax < cfg.StatusRetryBase {
		cfg.StatusRetryMax = cfg.StatusRetryBase
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("threads: invalid base url: %w", err)
	}

	c := &Client{
		cfg:   cfg,
		base:  strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.APIVersion, "/"),
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   log,
		sleep: sleepCtx,
		now:   time.Now,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	policy := retrypolicy.NewBuilder[Status]().
		HandleIf(func(_ Status, err error) bool { return errors.Is(err, ErrTransient) }).
		WithBackoff(cfg.StatusRetryBase, cfg.StatusRetryMax).
		WithMaxRetries(cfg.StatusRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()
	c.statusExec = failsafe.With(policy)
	return c, nil
}

// Validate checks that credentials are present.
func (c *Client) Validate() error {
	if strings.TrimSpace(c.cfg.UserID) == "" {
		return errors.New("threads: user id is not set")
	}
	if strings.TrimSpace(c.cfg.AccessToken) == "" {
		return errors.New("threads: access token is not set")
	}
	return nil
}

type stageRequest struct {
	MediaType   MediaType `json:"media_type"`
	Text        string    `json:"text"`
	ImageURL    string    `json:"image_url,omitempty"`
	AccessToken string    `json:"access_token"`
}

type publishRequest struct {
	CreationID  string `json:"creation_id"`
	AccessToken string `json:"access_token"`
}

type idResponse struct {
	ID string `json:"id"`
}

// Stage creates a text or image container. A 4xx answer wraps ErrStageRejected.
func (c *Client) Stage(ctx context.Context, text, mediaURL string) (Container, error) {
	mt := MediaText
	if strings.TrimSpace(mediaURL) != "" {
		mt = MediaImage
	}
	req := stageRequest{MediaType: mt, Text: text, AccessToken: c.cfg.AccessToken}
	if mt == MediaImage {
		req.ImageURL = strings.TrimSpace(mediaURL)
	}

	var resp idResponse
	start := c.now()
	if err := c.postJSON(ctx, "/"+url.PathEscape(c.cfg.UserID)+"/threads", req, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Transient() {
			return Container{}, fmt.Errorf("%w: %w", ErrStageRejected, err)
		}
		return Container{}, fmt.Errorf("stage: %w", err)
	}
	if resp.ID == "" {
		return Container{}, fmt.Errorf("stage: response without container id")
	}

	c.log.Debug("container staged",
		logx.String("container_id", resp.ID),
		logx.String("media_type", string(mt)),
		logx.Duration("took", c.now().Sub(start)),
	)
	return Container{ID: resp.ID, MediaType: mt, StagedAt: start}, nil
}

// Status queries the container processing state, retrying transient failures.
func (c *Client) Status(ctx context.Context, containerID string) (Status, error) {
	q := url.Values{}
	q.Set("fields", "status,error_message")
	q.Set("access_token", c.cfg.AccessToken)
	path := "/" + url.PathEscape(containerID) + "?" + q.Encode()

	return c.statusExec.WithContext(ctx).Get(func() (Status, error) {
		var st Status
		if err := c.do(ctx, http.MethodGet, path, nil, &st); err != nil {
			return Status{}, err
		}
		return st, nil
	})
}

// PollUntilReady queries the container up to maxAttempts times, interval apart.
//
// FINISHED returns nil. ERROR (or EXPIRED) returns a *PollError with Remote set.
// Running out of attempts returns a *PollError with Timeout set. All *PollError
// values match ErrPollFailed.
func (c *Client) PollUntilReady(ctx context.Context, ct Container, maxAttempts int, interval time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var (
		last    Status
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st, err := c.Status(ctx, ct.ID)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && !errors.Is(err, ErrTransient):
			return &PollError{ContainerID: ct.ID, Attempts: attempt, Err: err}
		case err != nil:
			lastErr = err
			c.log.Warn("container status check failed",
				logx.String("container_id", ct.ID),
				logx.Int("attempt", attempt),
				logx.Int("max_attempts", maxAttempts),
				logx.Err(err),
			)
		default:
			lastErr = nil
			last = st
			switch st.Status {
			case StatusFinished:
				c.log.Debug("container ready", logx.String("container_id", ct.ID), logx.Int("attempt", attempt))
				return nil
			case StatusError:
				return &PollError{ContainerID: ct.ID, Remote: true, Attempts: attempt, Message: st.ErrorMessage}
			case StatusExpired:
				return &PollError{ContainerID: ct.ID, Remote: true, Attempts: attempt, Message: "container expired"}
			}
			c.log.Debug("container processing",
				logx.String("container_id", ct.ID),
				logx.String("status", string(st.Status)),
				logx.Int("attempt", attempt),
				logx.Int("max_attempts", maxAttempts),
			)
		}
		if attempt < maxAttempts {
			if err := c.sleep(ctx, interval); err != nil {
				return err
			}
		}
	}
	msg := string(last.Status)
	if msg == "" {
		msg = "unknown"
	}
	return &PollError{ContainerID: ct.ID, Timeout: true, Attempts: maxAttempts, Message: msg, Err: lastErr}
}

// Confirm publishes a ready container and returns the post id.
// Any failure wraps ErrConfirmFailed; the container must not be confirmed again.
func (c *Client) Confirm(ctx context.Context, ct Container) (string, error) {
	var resp idResponse
	req := publishRequest{CreationID: ct.ID, AccessToken: c.cfg.AccessToken}
	if err := c.postJSON(ctx, "/"+url.PathEscape(c.cfg.UserID)+"/threads_publish", req, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfirmFailed, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: response without post id", ErrConfirmFailed)
	}
	c.log.Debug("container published", logx.String("container_id", ct.ID), logx.String("post_id", resp.ID))
	return resp.ID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, b, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrTransient, redact(err.Error(), c.cfg.AccessToken))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var env struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		env.Error.StatusCode = status
		return env.Error
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// redact keeps the access token out of error strings (url.Error embeds the full URL).
func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "REDACTED")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
