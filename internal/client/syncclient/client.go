// Package syncclient pushes local counts to the snackboard server and pulls
// the ranking back. Every call is best effort: failures are logged and the
// previously held ranking stays in place.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

// Default client configuration constants.
const (
	defaultTimeout      = 10 * time.Second
	defaultRankingLimit = 10
	maxErrorBodyBytes   = 512
)

// Client talks to the server's /records and /ranking endpoints.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	limit   int

	mu         sync.RWMutex
	ranking    []types.UserRecord
	loaded     bool
	pullSeq    uint64
	appliedSeq uint64

	logger logger.Logger
}

// pushRequest is the POST /records body.
type pushRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Count    int    `json:"count"`
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		base:    u,
		http:    http.DefaultClient,
		timeout: defaultTimeout,
		limit:   defaultRankingLimit,
		ranking: []types.UserRecord{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Named("sync")
	}
	return c, nil
}

// BaseURL returns the server URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Push sends the latest count for a user. It returns true when the server
// acknowledged it, after which the ranking is pulled again. Failures are
// logged and reported as false.
func (c *Client) Push(ctx context.Context, id, name string, count int) bool {
	body, err := json.Marshal(pushRequest{UserID: id, UserName: name, Count: count})
	if err != nil {
		c.logger.Error(ctx, "encode push body", logger.Error(err))
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint("/records", nil), bytes.NewReader(body))
	if err != nil {
		c.logger.Error(ctx, "build push request", logger.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "push failed; server unreachable",
			logger.String("user_id", id), logger.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn(ctx, "push rejected by server",
			logger.String("user_id", id),
			logger.Int("status", resp.StatusCode),
			logger.String("body", readSnippet(resp.Body)),
		)
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug(ctx, "push acknowledged",
		logger.String("user_id", id), logger.Int("count", count))
	c.Pull(ctx)
	return true
}

// Pull fetches the ranking and returns the ranking now held. A failed pull,
// or one whose ctx ended before the response was applied, leaves the held
// ranking unchanged. When pulls overlap, the most recently started one wins.
func (c *Client) Pull(ctx context.Context) []types.UserRecord {
	c.mu.Lock()
	c.pullSeq++
	seq := c.pullSeq
	c.mu.Unlock()

	ranked, err := c.fetchRanking(ctx)
	if err != nil {
		c.logger.Warn(ctx, "ranking pull failed; keeping previous ranking", logger.Error(err))
		return c.Ranking()
	}
	if ctx.Err() != nil {
		c.logger.Debug(ctx, "discarding ranking for a finished caller")
		return c.Ranking()
	}

	c.mu.Lock()
	if seq > c.appliedSeq {
		c.appliedSeq = seq
		c.ranking = ranked
		c.loaded = true
	}
	c.mu.Unlock()

	return c.Ranking()
}

// Ranking returns a copy of the held ranking; empty until the first successful pull.
func (c *Client) Ranking() []types.UserRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.CloneRecords(c.ranking)
}

// Loaded reports whether any pull has succeeded.
func (c *Client) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Client) fetchRanking(ctx context.Context) ([]types.UserRecord, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var query url.Values
	if c.limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(c.limit)}}
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint("/ranking", query), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build ranking request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get ranking: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d: %s", ErrStatus, resp.StatusCode, readSnippet(resp.Body))
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: %q: %s", ErrUnexpectedType, resp.Header.Get("Content-Type"), readSnippet(resp.Body))
	}

	var ranked []types.UserRecord
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, fmt.Errorf("decode ranking: %w", err)
	}
	if ranked == nil {
		ranked = []types.UserRecord{}
	}
	return ranked, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	return strings.TrimSpace(string(b))
}
