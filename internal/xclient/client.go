// Package xclient implements platform.Adapter for X (Twitter) API v2.
package xclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"herald/internal/httpx"
	"herald/internal/model"
	"herald/internal/platform"
)

// Client reads with the app bearer token and writes with OAuth 1.0a user
// context.
type Client struct {
	baseURL     string
	bearerToken string
	oauth       OAuth1
	http        *httpx.Client

	mu     sync.Mutex
	userID string

	nowFn   func() time.Time
	nonceFn func() string
}

var _ platform.Adapter = (*Client)(nil)

func New(baseURL, bearerToken string, oauth OAuth1, userID string, opts httpx.Options) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: bearerToken,
		oauth:       oauth,
		userID:      userID,
		http:        httpx.New("x", opts),
		nowFn:       time.Now,
		nonceFn:     func() string { return strconv.FormatInt(rand.Int63(), 36) },
	}
}

// SetHTTPClient swaps the transport, mainly for tests.
func (c *Client) SetHTTPClient(h *http.Client) { c.http.SetHTTPClient(h) }

func (c *Client) Name() string                     { return "twitter" }
func (c *Client) ShareReaction() platform.Reaction { return platform.Retweet }

func (c *Client) PostURL(id string) string { return "https://x.com/i/web/status/" + id }

// request builds a request factory. userContext forces OAuth 1.0a signing;
// otherwise the bearer token is used when present.
func (c *Client) request(method, path string, query url.Values, body any, userContext bool) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		var req *http.Request
		var err error
		if body != nil {
			r, berr := httpx.JSONBody(body)
			if berr != nil {
				return nil, berr
			}
			req, err = http.NewRequestWithContext(ctx, method, u, r)
		} else {
			req, err = http.NewRequestWithContext(ctx, method, u, nil)
		}
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if userContext || c.bearerToken == "" {
			c.sign(req)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}
		return req, nil
	}
}

// Publish posts a tweet and returns its id.
func (c *Client) Publish(ctx context.Context, text string) (string, error) {
	if !c.oauth.complete() {
		return "", errors.New("x publish: missing OAuth1 user credentials")
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	body := map[string]string{"text": text}
	if err := c.http.DoJSON(ctx, "publish", c.request(http.MethodPost, "/tweets", nil, body, true), &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// me returns the authenticated user's id, looking it up once if needed.
func (c *Client) me(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.userID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.http.DoJSON(ctx, "users_me", c.request(http.MethodGet, "/users/me", nil, nil, true), &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", errors.New("x users/me: empty id")
	}
	c.mu.Lock()
	c.userID = out.Data.ID
	c.mu.Unlock()
	return out.Data.ID, nil
}

// React likes or retweets post as the authenticated user.
func (c *Client) React(ctx context.Context, reaction platform.Reaction, post model.Post) error {
	var path string
	switch reaction {
	case platform.Like:
		path = "/likes"
	case platform.Retweet:
		path = "/retweets"
	default:
		return fmt.Errorf("x: unsupported reaction %q", reaction)
	}
	if !c.oauth.complete() {
		return fmt.Errorf("x %s: missing OAuth1 user credentials", reaction)
	}
	me, err := c.me(ctx)
	if err != nil {
		return err
	}
	body := map[string]string{"tweet_id": post.ID}
	return c.http.DoJSON(ctx, string(reaction), c.request(http.MethodPost, "/users/"+url.PathEscape(me)+path, nil, body, true), nil)
}

// FetchRecent returns up to limit original tweets by account newer than since.
func (c *Client) FetchRecent(ctx context.Context, account model.Account, since time.Time, limit int) ([]model.Post, error) {
	if account.ID == "" {
		return nil, errors.New("x: account has no user id")
	}
	if limit <= 0 {
		limit = 5
	}
	var out []model.Post
	next := ""
	for len(out) < limit {
		q := url.Values{}
		q.Set("max_results", strconv.Itoa(clamp(limit-len(out), 5, 100)))
		q.Set("tweet.fields", "created_at,author_id")
		q.Set("exclude", "retweets,replies")
		if !since.IsZero() {
			q.Set("start_time", since.UTC().Format(time.RFC3339))
		}
		if next != "" {
			q.Set("pagination_token", next)
		}
		var page struct {
			Data []struct {
				ID        string    `json:"id"`
				Text      string    `json:"text"`
				AuthorID  string    `json:"author_id"`
				CreatedAt time.Time `json:"created_at"`
			} `json:"data"`
			Meta struct {
				NextToken string `json:"next_token"`
			} `json:"meta"`
		}
		path := "/users/" + url.PathEscape(account.ID) + "/tweets"
		if err := c.http.DoJSON(ctx, "user_tweets", c.request(http.MethodGet, path, q, nil, false), &page); err != nil {
			return out, err
		}
		for _, d := range page.Data {
			author := d.AuthorID
			if author == "" {
				author = account.ID
			}
			out = append(out, model.Post{
				ID:           d.ID,
				AuthorID:     author,
				AuthorHandle: account.Handle,
				Text:         d.Text,
				CreatedAt:    d.CreatedAt,
			})
			if len(out) >= limit {
				break
			}
		}
		next = page.Meta.NextToken
		if len(page.Data) == 0 || next == "" {
			break
		}
	}
	return out, nil
}

// ResolveAccounts looks up user ids for handles (without '@'), 100 per call.
func (c *Client) ResolveAccounts(ctx context.Context, handles []string) ([]model.Account, error) {
	var names []string
	for _, h := range handles {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h != "" {
			names = append(names, h)
		}
	}
	var out []model.Account
	for i := 0; i < len(names); i += 100 {
		end := min(i+100, len(names))
		q := url.Values{"usernames": {strings.Join(names[i:end], ",")}}
		var resp struct {
			Data []struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"data"`
		}
		if err := c.http.DoJSON(ctx, "users_by", c.request(http.MethodGet, "/users/by", q, nil, false), &resp); err != nil {
			return out, err
		}
		for _, d := range resp.Data {
			out = append(out, model.Account{Handle: d.Username, ID: d.ID})
		}
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
