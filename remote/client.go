// Package remote is the HTTP side of a repository: it turns requests against
// the brokerage REST API into tradesync.RawResult values for Classify.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/tradesync"
)

// RequestIDHeader carries a fresh UUID per request unless the caller set one.
const RequestIDHeader = "X-Request-Id"

const (
	defaultTimeout = 10 * time.Second
	defaultMaxBody = 8 << 20
)

var ErrBodyTooLarge = errors.New("remote: response body too large")

type Config struct {
	BaseURL    string
	Token      string        // sent as a bearer token when set
	Timeout    time.Duration // per request; 0 => 10s
	MaxBody    int64         // 0 => 8 MiB
	UserAgent  string
	Header     http.Header
	HTTPClient *http.Client // nil => a client with Timeout
}

type Client struct {
	base    *url.URL
	http    *http.Client
	token   string
	agent   string
	header  http.Header
	maxBody int64
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote: base url is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		base:    u,
		http:    hc,
		token:   cfg.Token,
		agent:   cfg.UserAgent,
		header:  cfg.Header,
		maxBody: cfg.MaxBody,
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxBody
	}
	if c.agent == "" {
		c.agent = "tradesync"
	}
	return c, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) tradesync.RawResult {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Do performs one request. It never retries; transport failures come back
// in RawResult.Err with timeouts recognisable through RawResult.TimedOut.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body []byte) tradesync.RawResult {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return tradesync.RawResult{Err: err}
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return tradesync.RawResult{Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return tradesync.RawResult{Err: err}
	}
	if int64(len(b)) > c.maxBody {
		return tradesync.RawResult{Err: fmt.Errorf("%w: limit %d", ErrBodyTooLarge, c.maxBody)}
	}
	return tradesync.RawResult{Status: resp.StatusCode, Body: b}
}

// Endpoint binds a GET path and a filter encoder into a tradesync.Fetcher.
type Endpoint[F any] struct {
	Client *Client
	Path   string
	Query  func(F) url.Values // nil => no query string
}

var _ tradesync.Fetcher[struct{}] = Endpoint[struct{}]{}

func (e Endpoint[F]) Fetch(ctx context.Context, filter F) tradesync.RawResult {
	var q url.Values
	if e.Query != nil {
		q = e.Query(filter)
	}
	return e.Client.Get(ctx, e.Path, q)
}
