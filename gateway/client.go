// Package gateway resolves content identifiers to gateway URLs and fetches
// their bytes over HTTP.
//
// Reachability is not validity: a successful fetch only yields candidate
// bytes. Callers verify them against a commitment before use.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single fetch, including reading the body.
	DefaultTimeout = 30 * time.Second
	UserAgent      = "memo-reader/1.0"
	Accept         = "application/json,*/*"
)

// StatusError is returned for non-2xx gateway responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Response is a fetched gateway body. Body is raw; it is not decoded here.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client fetches gateway URLs. It never retries.
type Client struct {
	rc *resty.Client
}

type Options struct {
	// HTTPClient, when set, supplies the transport. It is copied; the
	// caller's client is not modified.
	HTTPClient *http.Client
	// Timeout overrides DefaultTimeout when non-zero.
	Timeout time.Duration
	Logger  *zap.Logger
}

func New(opts Options) *Client {
	rc := resty.New()
	if opts.HTTPClient != nil {
		hc := *opts.HTTPClient
		rc = resty.NewWithClient(&hc)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rc.SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", UserAgent).
		SetHeader("Accept", Accept).
		SetLogger(log.Named("gateway").Sugar())
	return &Client{rc: rc}
}

// Fetch performs a single GET of url.
// Transport errors, timeouts and non-2xx statuses are all errors.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	resp, err := c.rc.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("gateway: get %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), URL: url}
	}
	return &Response{
		URL:         url,
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}
