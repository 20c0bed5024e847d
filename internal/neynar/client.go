// Package neynar implements platform.Adapter for Farcaster through the
// Neynar v2 API.
package neynar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"herald/internal/httpx"
	"herald/internal/logging"
	"herald/internal/model"
	"herald/internal/platform"
)

const maxPageSize = 150

// Client talks to Neynar on behalf of one signer.
type Client struct {
	baseURL    string
	apiKey     string
	signerUUID string
	http       *httpx.Client
}

var _ platform.Adapter = (*Client)(nil)

func New(baseURL, apiKey, signerUUID string, opts httpx.Options) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		signerUUID: signerUUID,
		http:       httpx.New("neynar", opts),
	}
}

// SetHTTPClient swaps the transport, mainly for tests.
func (c *Client) SetHTTPClient(h *http.Client) { c.http.SetHTTPClient(h) }

func (c *Client) Name() string                     { return "farcaster" }
func (c *Client) ShareReaction() platform.Reaction { return platform.Recast }

func (c *Client) PostURL(hash string) string {
	return "https://warpcast.com/~/conversations/" + hash
}

func (c *Client) request(method, path string, query url.Values, body any) func(ctx context.Context) (*http.Request, error) {
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
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("api_key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

type castBody struct {
	SignerUUID string  `json:"signer_uuid"`
	Text       string  `json:"text"`
	Embeds     []embed `json:"embeds,omitempty"`
}

type embed struct {
	CastID castRef `json:"cast_id"`
}

type castRef struct {
	Hash string `json:"hash"`
	FID  int64  `json:"fid"`
}

// Publish creates a cast and returns its hash.
func (c *Client) Publish(ctx context.Context, text string) (string, error) {
	var out struct {
		Cast struct {
			Hash string `json:"hash"`
		} `json:"cast"`
	}
	body := castBody{SignerUUID: c.signerUUID, Text: text}
	if err := c.http.DoJSON(ctx, "publish", c.request(http.MethodPost, "/cast", nil, body), &out); err != nil {
		return "", err
	}
	if out.Cast.Hash == "" {
		return "unknown", nil
	}
	return out.Cast.Hash, nil
}

// React likes or recasts post. Recasts are sent as an empty cast embedding
// the target, which needs the author's FID.
func (c *Client) React(ctx context.Context, reaction platform.Reaction, post model.Post) error {
	switch reaction {
	case platform.Like:
		body := map[string]string{
			"signer_uuid":   c.signerUUID,
			"reaction_type": "like",
			"target":        post.ID,
		}
		return c.http.DoJSON(ctx, "like", c.request(http.MethodPost, "/reaction", nil, body), nil)
	case platform.Recast:
		fid, err := strconv.ParseInt(post.AuthorID, 10, 64)
		if err != nil {
			return fmt.Errorf("neynar recast: invalid author fid %q", post.AuthorID)
		}
		body := castBody{
			SignerUUID: c.signerUUID,
			Text:       "",
			Embeds:     []embed{{CastID: castRef{Hash: post.ID, FID: fid}}},
		}
		return c.http.DoJSON(ctx, "recast", c.request(http.MethodPost, "/cast", nil, body), nil)
	default:
		return fmt.Errorf("neynar: unsupported reaction %q", reaction)
	}
}

type apiCast struct {
	Hash      string `json:"hash"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		FID      int64  `json:"fid"`
		Username string `json:"username"`
	} `json:"author"`
}

// FetchRecent returns up to limit casts by account newer than since (zero
// since means no time bound), following the feed cursor as needed.
func (c *Client) FetchRecent(ctx context.Context, account model.Account, since time.Time, limit int) ([]model.Post, error) {
	if account.ID == "" {
		return nil, errors.New("neynar: account has no fid")
	}
	if limit <= 0 {
		limit = 5
	}
	var out []model.Post
	cursor := ""
	for len(out) < limit {
		q := url.Values{}
		q.Set("fid", account.ID)
		q.Set("limit", strconv.Itoa(min(limit-len(out), maxPageSize)))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page struct {
			Casts []apiCast `json:"casts"`
			Next  struct {
				Cursor string `json:"cursor"`
			} `json:"next"`
		}
		if err := c.http.DoJSON(ctx, "fetch_casts", c.request(http.MethodGet, "/feed/user/casts", q, nil), &page); err != nil {
			return out, err
		}
		reachedSince := false
		for _, ac := range page.Casts {
			ts, _ := time.Parse(time.RFC3339, ac.Timestamp)
			if !since.IsZero() && !ts.IsZero() && ts.Before(since) {
				reachedSince = true
				continue
			}
			out = append(out, model.Post{
				ID:           ac.Hash,
				AuthorID:     strconv.FormatInt(ac.Author.FID, 10),
				AuthorHandle: ac.Author.Username,
				Text:         ac.Text,
				CreatedAt:    ts,
			})
			if len(out) >= limit {
				break
			}
		}
		cursor = page.Next.Cursor
		if len(page.Casts) == 0 || cursor == "" || reachedSince {
			break
		}
	}
	return out, nil
}

// ResolveAccounts looks up FIDs for handles (without '@'). Unknown handles
// are left out of the result; other lookup failures are joined into the
// returned error alongside whatever did resolve.
func (c *Client) ResolveAccounts(ctx context.Context, handles []string) ([]model.Account, error) {
	out := make([]model.Account, 0, len(handles))
	var errs []error
	for _, h := range handles {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h == "" {
			continue
		}
		var resp struct {
			User struct {
				FID      int64  `json:"fid"`
				Username string `json:"username"`
			} `json:"user"`
		}
		q := url.Values{"username": {h}}
		if err := c.http.DoJSON(ctx, "lookup_user", c.request(http.MethodGet, "/user/by_username", q, nil), &resp); err != nil {
			if notFound(err) {
				logging.Debug("neynar_user_not_found", logging.Fields{"handle": h})
				continue
			}
			errs = append(errs, fmt.Errorf("lookup %s: %w", h, err))
			continue
		}
		if resp.User.FID == 0 {
			continue
		}
		handle := resp.User.Username
		if handle == "" {
			handle = h
		}
		out = append(out, model.Account{Handle: handle, ID: strconv.FormatInt(resp.User.FID, 10)})
	}
	return out, errors.Join(errs...)
}

func notFound(err error) bool {
	var pe *platform.Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Status == http.StatusNotFound || platform.Classify(err) == platform.InvalidInput
}
