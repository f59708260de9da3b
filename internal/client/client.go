package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"diagload/internal/stats"
)

// APIPrefix is prepended to every request path.
const APIPrefix = "/api/v1"

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the HTTP surface every scenario talks through. Requests never
// return a Go error; a failed call is a Response with Status 0 and Err set,
// which callers treat exactly like an unparseable body.
type Client struct {
	base  string
	http  *http.Client
	stats *stats.Stats
	log   *zap.Logger
}

func New(cfg Config, st *stats.Stats, log *zap.Logger) *Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if st == nil {
		st = stats.NewStats()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: t,
		},
		stats: st,
		log:   log,
	}
}

func (c *Client) Stats() *stats.Stats {
	return c.stats
}

// URL joins the base URL, the API prefix and path, plus an encoded query.
func (c *Client) URL(path string, query url.Values) string {
	u := c.base + APIPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) *Response {
	return c.do(ctx, http.MethodGet, c.URL(path, query), nil)
}

// Post sends body JSON-encoded.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body any) *Response {
	b, err := json.Marshal(body)
	if err != nil {
		return &Response{Method: http.MethodPost, URL: c.URL(path, query), Err: fmt.Errorf("encode body: %w", err)}
	}
	return c.do(ctx, http.MethodPost, c.URL(path, query), b)
}

func (c *Client) Put(ctx context.Context, path string, query url.Values) *Response {
	return c.do(ctx, http.MethodPut, c.URL(path, query), nil)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) *Response {
	res := &Response{Method: method, URL: target}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		res.Err = err
		return res
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.stats.Inflight.Add(1)
	defer c.stats.Inflight.Add(-1)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		res.Duration = time.Since(start)
		res.Err = err
		c.stats.Observe(0, 0, res.Duration, errorKey(err))
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("url", target),
			zap.Error(err),
		)
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	res.Body, err = io.ReadAll(resp.Body)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
	}

	c.stats.Observe(res.Status, int64(len(res.Body)), res.Duration, "")

	return res
}

// errorKey folds per-request detail (URLs, ports) out of transport errors so
// they aggregate.
func errorKey(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded.Error()
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled.Error()
	}
	return err.Error()
}
