// Package registry is a client for the model registry (a Hugging Face
// compatible hub). It resolves revisions to commit hashes and fetches the
// files the submission checks need.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	back "github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	backoffAttempts = 2
	backoffInterval = 500 * time.Millisecond
	backoffMax      = 5 * time.Second

	cacheSize = 512
	cacheTTL  = 30 * time.Minute

	maxJsonBody = 16 << 20
)

type Client struct {
	endpoint string
	token    string
	cl       *http.Client
	backoff  func() back.BackOff
	logger   *slog.Logger

	infos *expirable.LRU[string, *ModelInfo]
	cards *expirable.LRU[string, *ModelCard]
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) { c.cl = cl }
}

// WithBackOff replaces the retry policy for transient failures.
func WithBackOff(b func() back.BackOff) Option {
	return func(c *Client) { c.backoff = b }
}

func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.cl.Timeout = d }
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		cl:       cleanhttp.DefaultPooledClient(),
		backoff:  backoff,
		logger:   slog.Default().With("module", "registry"),
		infos:    expirable.NewLRU[string, *ModelInfo](cacheSize, nil, cacheTTL),
		cards:    expirable.NewLRU[string, *ModelCard](cacheSize, nil, cacheTTL),
	}
	c.cl.Timeout = 30 * time.Second
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func backoff() back.BackOff {
	bf := back.NewExponentialBackOff()
	bf.InitialInterval = backoffInterval
	bf.MaxInterval = backoffMax
	return back.WithMaxRetries(bf, backoffAttempts)
}

// ModelInfo returns the metadata of a model that may be evaluated.
// Models whose config asks to execute remote code are refused.
func (c *Client) ModelInfo(ctx context.Context, modelID string, revision string) (*ModelInfo, error) {
	info, err := c.RepoInfo(ctx, modelID, revision)
	if err != nil {
		return nil, err
	}
	if info.NeedsRemoteCode() {
		return nil, fmt.Errorf("%s: %w", modelID, ErrNeedsRemoteCode)
	}
	return info, nil
}

// RepoInfo resolves revision and returns the repository metadata as is.
// Revisions that are already commit hashes are served from cache.
func (c *Client) RepoInfo(ctx context.Context, modelID string, revision string) (*ModelInfo, error) {
	if revision == "" {
		revision = "main"
	}
	key := modelID + "@" + revision
	if info, ok := c.infos.Get(key); ok {
		return info, nil
	}

	u := fmt.Sprintf("%s/api/models/%s/revision/%s", c.endpoint, modelID, url.PathEscape(revision))
	body, err := c.fetch(ctx, u, "")
	if err != nil {
		return nil, fmt.Errorf("model info %s@%s: %w", modelID, revision, err)
	}
	var info ModelInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode model info of %s: %w", modelID, err)
	}
	if info.SHA == "" {
		return nil, fmt.Errorf("model info of %s has no commit hash", modelID)
	}
	// only commit hashes are immutable
	c.infos.Add(modelID+"@"+info.SHA, &info)
	return &info, nil
}

// ModelCard downloads and parses README.md at the given revision.
func (c *Client) ModelCard(ctx context.Context, modelID string, revision string) (*ModelCard, error) {
	key := modelID + "@" + revision
	if card, ok := c.cards.Get(key); ok {
		return card, nil
	}
	body, err := c.fetch(ctx, c.fileURL(modelID, revision, "README.md"), "")
	if err != nil {
		return nil, fmt.Errorf("model card of %s: %w", modelID, err)
	}
	card, err := parseModelCard(body)
	if err != nil {
		return nil, err
	}
	c.cards.Add(key, card)
	return card, nil
}

func (c *Client) TokenizerConfig(ctx context.Context, modelID string, revision string) (map[string]any, error) {
	body, err := c.fetch(ctx, c.fileURL(modelID, revision, "tokenizer_config.json"), "")
	if err != nil {
		return nil, fmt.Errorf("tokenizer config of %s: %w", modelID, err)
	}
	var res map[string]any
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode tokenizer config of %s: %w", modelID, err)
	}
	return res, nil
}

func (c *Client) fileURL(modelID, revision, filename string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", c.endpoint, modelID, url.PathEscape(revision), filename)
}

// fetch performs a GET and returns the body. Server errors and
// connection failures are retried; timeouts are not.
func (c *Client) fetch(ctx context.Context, u string, byteRange string) ([]byte, error) {
	var body []byte
	op := func() error {
		var err error
		body, err = c.get(ctx, u, byteRange)
		return err
	}
	err := back.Retry(op, back.WithContext(c.backoff(), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, u string, byteRange string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, back.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	resp, err := c.cl.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, back.Permanent(fmt.Errorf("%w: %w", ErrUnavailable, err))
		}
		c.logger.Warn("registry request failed", "url", u, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, back.Permanent(ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, back.Permanent(ErrGated)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, back.Permanent(fmt.Errorf("unexpected registry status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJsonBody))
	if err != nil {
		if isTimeout(err) {
			return nil, back.Permanent(fmt.Errorf("%w: %w", ErrUnavailable, err))
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
