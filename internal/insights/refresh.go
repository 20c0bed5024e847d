package insights

import (
	"context"
	"time"

	"herald/internal/logging"
	"herald/internal/model"
	"herald/internal/platform"
	"herald/internal/util"
)

// AccountSource provides the allied accounts with their ids;
// *engage.Driver implements it.
type AccountSource interface {
	Accounts(ctx context.Context) []model.Account
}

// StaticAccounts is a fixed AccountSource.
type StaticAccounts []model.Account

func (s StaticAccounts) Accounts(context.Context) []model.Account { return s }

// Refresher pulls recent posts from allied accounts into the store.
type Refresher struct {
	adapter    platform.Adapter
	store      *Store
	accounts   AccountSource
	perAccount int
	window     time.Duration
	now        func() time.Time
}

func NewRefresher(adapter platform.Adapter, store *Store, accounts AccountSource, perAccount int, window time.Duration) *Refresher {
	if perAccount <= 0 {
		perAccount = 10
	}
	return &Refresher{
		adapter:    adapter,
		store:      store,
		accounts:   accounts,
		perAccount: perAccount,
		window:     window,
		now:        time.Now,
	}
}

// Refresh fetches up to perAccount posts per account newer than the window.
// Accounts that fail are logged and skipped.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	now := r.now()
	var records []Record
	for _, acc := range r.accounts.Accounts(ctx) {
		if acc.ID == "" {
			logging.Debug("insights_account_unresolved", logging.Fields{"account": acc.Handle})
			continue
		}
		posts, err := r.adapter.FetchRecent(ctx, acc, now.Add(-r.window), r.perAccount)
		if err != nil {
			logging.Warn("insights_fetch_failed", logging.Fields{"account": acc.Handle, "error": err.Error()})
			continue
		}
		for _, p := range posts {
			records = append(records, recordFromPost(acc, p))
		}
	}
	added, err := r.store.Add(records, now)
	if err != nil {
		return 0, err
	}
	logging.Info("insights_refreshed", logging.Fields{"fetched": len(records), "added": added})
	return added, nil
}

func recordFromPost(acc model.Account, p model.Post) Record {
	author := p.AuthorHandle
	if author == "" {
		author = acc.Handle
	}
	return Record{
		ID:       p.ID,
		Author:   author,
		TS:       p.CreatedAt.UnixMilli(),
		Text:     util.NormalizeWhitespace(p.Text),
		Hashtags: util.Hashtags(p.Text),
		Mentions: util.Mentions(p.Text),
	}
}
