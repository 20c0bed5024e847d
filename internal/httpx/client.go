// Package httpx is the HTTP plumbing shared by the platform clients: request
// pacing, retries for idempotent reads, and error decoding.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"herald/internal/metrics"
	"herald/internal/platform"
)

// Options tunes a Client.
type Options struct {
	RPS        float64
	Burst      int
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.RPS <= 0 {
		o.RPS = 2
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = 10 * o.BaseDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	return o
}

// Client sends requests for one platform.
type Client struct {
	platform   string
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       Options
}

func New(platformName string, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		platform:   platformName,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		opts:       opts,
	}
}

// SetHTTPClient swaps the transport, mainly for tests.
func (c *Client) SetHTTPClient(h *http.Client) { c.httpClient = h }

func (c *Client) Platform() string { return c.platform }

// shouldRetry retries transport failures and 5xx. 429 is not retried here:
// callers need to see it to apply their cooldown.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode >= 500
}

//nolint:bodyclose // the response is handed back to the caller
func (c *Client) retryPolicy(endpoint string) retrypolicy.RetryPolicy[*http.Response] {
	return retrypolicy.NewBuilder[*http.Response]().
		HandleIf(shouldRetry).
		WithBackoff(c.opts.BaseDelay, c.opts.MaxDelay).
		WithMaxRetries(c.opts.MaxRetries).
		WithJitterFactor(0.2).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			metrics.IncAPIRetry(endpoint)
			if r := e.LastResult(); r != nil && r.Body != nil {
				_ = r.Body.Close()
			}
		}).
		Build()
}

// Do sends req after waiting for the limiter. Idempotent requests (GET) are
// retried on transport errors and 5xx; writes are sent exactly once.
func (c *Client) Do(ctx context.Context, endpoint string, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	first, err := newReq(ctx)
	if err != nil {
		return nil, err
	}
	if first.Method != http.MethodGet {
		return c.httpClient.Do(first)
	}
	attempt := 0
	return failsafe.With[*http.Response](c.retryPolicy(endpoint)).WithContext(ctx).Get(func() (*http.Response, error) {
		attempt++
		if attempt == 1 {
			return c.httpClient.Do(first)
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	})
}

// DoJSON sends a request and decodes a 2xx JSON body into out (when non-nil).
// Non-2xx responses become *platform.Error.
func (c *Client) DoJSON(ctx context.Context, op string, newReq func(ctx context.Context) (*http.Request, error), out any) error {
	resp, err := c.Do(ctx, op, newReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.platform, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return DecodeError(c.platform, op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", c.platform, op, err)
	}
	return nil
}

// JSONBody encodes v for a request body.
func JSONBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// DecodeError builds a *platform.Error from a failed response, pulling the
// message from the common JSON error shapes of Neynar and X.
func DecodeError(platformName, op string, resp *http.Response) error {
	pe := &platform.Error{Platform: platformName, Op: op, Status: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var raw struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
		Detail  string `json:"detail"`
		Title   string `json:"title"`
		Errors  []struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"errors"`
	}
	if json.Unmarshal(b, &raw) == nil {
		pe.Code = codeString(raw.Code)
		switch {
		case raw.Message != "":
			pe.Message = raw.Message
		case raw.Detail != "":
			pe.Message = raw.Detail
		case len(raw.Errors) > 0:
			pe.Message = raw.Errors[0].Message
		}
		if pe.Code == "" && raw.Title != "" {
			pe.Code = raw.Title
		}
	} else if len(b) > 0 {
		pe.Message = string(bytes.TrimSpace(b))
	}
	return pe
}

// codeString renders an error code that may be a JSON string or number.
func codeString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return fmt.Sprint(c)
	}
}
