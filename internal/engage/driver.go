// Package engage likes and shares recent posts from allied accounts while
// remembering what it already did.
package engage

import (
	"context"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/model"
	"herald/internal/platform"
)

const (
	ModeAll    = "all"
	ModeRandom = "random"
)

// Ledger records performed reactions and counts them for the daily budget.
type Ledger interface {
	Counter
	PutEvent(ctx context.Context, ts time.Time, typ, ref string, payload any) error
}

// Rand is the subset of *rand.Rand the driver needs.
type Rand interface {
	Intn(n int) int
}

// Options tunes a Driver. Zero durations disable the corresponding wait.
type Options struct {
	Accounts          []model.Account
	Mode              string
	PageSize          int
	Lookback          time.Duration
	MaxActionsPerRun  int // 0 = unlimited
	MaxPerDay         int // 0 = unlimited
	ActionDelay       time.Duration
	RateLimitCooldown time.Duration
	Location          *time.Location
	Ledger            Ledger
	Now               func() time.Time
	Sleep             func(ctx context.Context, d time.Duration) error
	Rand              Rand
}

// AccountResult summarises one account's pass.
type AccountResult struct {
	Account     model.Account
	Fetched     int
	Actions     int
	Already     int
	Failed      int
	RateLimited bool
	Exhausted   bool // daily budget reached
	Err         error
}

// Result summarises a sweep.
type Result struct {
	SweepID  string
	Label    string
	Skipped  bool
	Accounts []AccountResult
}

// Actions totals successful reactions across accounts.
func (r Result) Actions() int {
	n := 0
	for _, a := range r.Accounts {
		n += a.Actions
	}
	return n
}

// Driver runs engagement sweeps. It owns the state shared across sweeps:
// plan restrictions and resolved account ids.
type Driver struct {
	adapter platform.Adapter
	dedup   *Deduplicator
	opts    Options
	guard   *semaphore.Weighted

	mu         sync.Mutex
	disabled   map[platform.Reaction]bool
	accounts   []model.Account
	unresolved map[string]bool // handles the platform does not know
}

func NewDriver(adapter platform.Adapter, dedup *Deduplicator, opts Options) *Driver {
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Driver{
		adapter:    adapter,
		dedup:      dedup,
		opts:       opts,
		guard:      semaphore.NewWeighted(1),
		disabled:   map[platform.Reaction]bool{},
		accounts:   append([]model.Account(nil), opts.Accounts...),
		unresolved: map[string]bool{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// Disabled reports whether reaction was turned off by a plan restriction.
func (d *Driver) Disabled(reaction platform.Reaction) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disabled[reaction]
}

func (d *Driver) disable(reaction platform.Reaction) {
	d.mu.Lock()
	d.disabled[reaction] = true
	d.mu.Unlock()
}

// EngageAll sweeps the configured accounts, or one random account in random
// mode. A call made while another sweep is running returns Skipped.
func (d *Driver) EngageAll(ctx context.Context, label string) Result {
	res := Result{SweepID: uuid.NewString(), Label: label}
	if !d.guard.TryAcquire(1) {
		res.Skipped = true
		metrics.IncSweep("skipped")
		logging.Warn("engage_sweep_skipped", logging.Fields{"label": label, "reason": "already_running"})
		return res
	}
	defer d.guard.Release(1)

	start := d.opts.Now()
	targets := d.targets(d.Accounts(ctx))
	logging.Info("engage_sweep_start", logging.Fields{
		"sweep": res.SweepID, "label": label, "mode": d.opts.Mode, "accounts": len(targets),
	})
	for _, acc := range targets {
		if ctx.Err() != nil {
			break
		}
		ar := d.engage(ctx, acc, res.SweepID)
		res.Accounts = append(res.Accounts, ar)
		if ar.Exhausted || ar.RateLimited {
			break
		}
	}
	metrics.IncSweep("completed")
	logging.Info("engage_sweep_done", logging.Fields{
		"sweep":   res.SweepID,
		"label":   label,
		"actions": res.Actions(),
		"elapsed": d.opts.Now().Sub(start).String(),
	})
	return res
}

// EngageWithAccount runs a single account pass outside of a sweep. It shares
// the sweep guard.
func (d *Driver) EngageWithAccount(ctx context.Context, account model.Account) (AccountResult, bool) {
	if !d.guard.TryAcquire(1) {
		logging.Warn("engage_account_skipped", logging.Fields{"account": account.Handle, "reason": "already_running"})
		return AccountResult{Account: account}, false
	}
	defer d.guard.Release(1)
	return d.engage(ctx, account, uuid.NewString()), true
}

func (d *Driver) targets(accounts []model.Account) []model.Account {
	var usable []model.Account
	for _, a := range accounts {
		if a.ID == "" {
			logging.Warn("engage_account_unresolved", logging.Fields{"account": a.Handle})
			continue
		}
		usable = append(usable, a)
	}
	if d.opts.Mode == ModeRandom && len(usable) > 1 {
		return []model.Account{usable[d.opts.Rand.Intn(len(usable))]}
	}
	return usable
}

// Accounts returns the configured accounts, looking up ids for those given
// by handle only. Resolved ids are kept for the life of the driver; handles
// the platform does not know are not looked up again.
func (d *Driver) Accounts(ctx context.Context) []model.Account {
	d.mu.Lock()
	defer d.mu.Unlock()

	var handles []string
	for _, a := range d.accounts {
		if a.ID == "" && a.Handle != "" && !d.unresolved[key(a.Handle)] {
			handles = append(handles, a.Handle)
		}
	}
	if len(handles) > 0 {
		d.resolve(ctx, handles)
	}
	return append([]model.Account(nil), d.accounts...)
}

func key(handle string) string { return strings.ToLower(strings.TrimPrefix(handle, "@")) }

// resolve applies whatever the platform resolved, even when the lookup
// failed part way. Called with d.mu held.
func (d *Driver) resolve(ctx context.Context, handles []string) {
	resolved, err := d.adapter.ResolveAccounts(ctx, handles)
	if err != nil {
		logging.Warn("engage_resolve_failed", logging.Fields{"handles": handles, "resolved": len(resolved), "error": err.Error()})
	}
	ids := make(map[string]string, len(resolved))
	for _, r := range resolved {
		ids[key(r.Handle)] = r.ID
	}
	for i, a := range d.accounts {
		if a.ID != "" {
			continue
		}
		if id, ok := ids[key(a.Handle)]; ok && id != "" {
			d.accounts[i].ID = id
			logging.Info("engage_account_resolved", logging.Fields{"account": a.Handle, "id": id})
		} else if err == nil && slices.Contains(handles, a.Handle) {
			d.unresolved[key(a.Handle)] = true
			logging.Warn("engage_account_not_found", logging.Fields{"account": a.Handle})
		}
	}
}

func (d *Driver) engage(ctx context.Context, acc model.Account, sweep string) AccountResult {
	res := AccountResult{Account: acc}
	now := d.opts.Now()

	budget, err := RemainingToday(ctx, d.opts.Ledger, d.opts.MaxPerDay, now, d.opts.Location)
	if err != nil {
		logging.Warn("engage_budget_unavailable", logging.Fields{"error": err.Error()})
		budget = -1
	}
	if budget == 0 {
		res.Exhausted = true
		logging.Info("engage_budget_exhausted", logging.Fields{"account": acc.Handle})
		return res
	}

	posts, err := d.adapter.FetchRecent(ctx, acc, now.Add(-d.opts.Lookback), d.opts.PageSize)
	if err != nil {
		res.Err = err
		logging.Error("engage_fetch_failed", logging.Fields{
			"account": acc.Handle, "kind": platform.Classify(err).String(), "error": err.Error(),
		})
		return res
	}
	res.Fetched = len(posts)
	logging.Info("engage_account_start", logging.Fields{"sweep": sweep, "account": acc.Handle, "posts": len(posts)})

	reactions := []platform.Reaction{platform.Like, d.adapter.ShareReaction()}
	for _, p := range posts {
		if p.ID == "" {
			continue
		}
		for _, r := range reactions {
			if d.Disabled(r) || d.dedup.Has(r, p.ID) {
				continue
			}
			if budget == 0 {
				res.Exhausted = true
				logging.Info("engage_budget_exhausted", logging.Fields{"account": acc.Handle})
				return res
			}
			done, stop := d.react(ctx, r, p, acc, sweep, &res)
			if stop {
				return res
			}
			if done && budget > 0 {
				budget--
			}
			if d.opts.MaxActionsPerRun > 0 && res.Actions >= d.opts.MaxActionsPerRun {
				logging.Info("engage_account_cap", logging.Fields{"account": acc.Handle, "actions": res.Actions})
				return res
			}
		}
	}
	return res
}

// react applies one reaction. done reports a successful call; stop reports
// that the account pass must end.
func (d *Driver) react(ctx context.Context, r platform.Reaction, p model.Post, acc model.Account, sweep string, res *AccountResult) (done, stop bool) {
	fields := logging.Fields{"sweep": sweep, "account": acc.Handle, "post": p.ID, "reaction": string(r)}
	err := d.adapter.React(ctx, r, p)
	if err == nil {
		res.Actions++
		metrics.IncReaction(string(r), "ok")
		logging.Info("engage_reaction_ok", fields)
		if err := d.dedup.Record(r, p.ID); err != nil {
			logging.Error("interaction_history_save_failed", logging.Fields{"error": err.Error()})
		}
		if d.opts.Ledger != nil {
			payload := map[string]string{"account": acc.Handle, "sweep": sweep}
			if err := d.opts.Ledger.PutEvent(ctx, d.opts.Now(), string(r), p.ID, payload); err != nil {
				logging.Warn("ledger_write_failed", logging.Fields{"error": err.Error()})
			}
		}
		return true, d.opts.Sleep(ctx, d.opts.ActionDelay) != nil
	}

	kind := platform.Classify(err)
	fields["kind"] = kind.String()
	fields["error"] = err.Error()
	metrics.IncReaction(string(r), kind.String())
	switch kind {
	case platform.AlreadyApplied:
		res.Already++
		logging.Info("engage_already_applied", fields)
		if err := d.dedup.Record(r, p.ID); err != nil {
			logging.Error("interaction_history_save_failed", logging.Fields{"error": err.Error()})
		}
		return false, false
	case platform.RateLimited:
		res.RateLimited = true
		fields["cooldown"] = d.opts.RateLimitCooldown.String()
		logging.Warn("engage_rate_limited", fields)
		_ = d.opts.Sleep(ctx, d.opts.RateLimitCooldown)
		return false, true
	case platform.PlanRestricted:
		d.disable(r)
		logging.Warn("engage_reaction_disabled", fields)
		return false, false
	default:
		res.Failed++
		logging.Error("engage_reaction_failed", fields)
		return false, false
	}
}
