package engage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/model"
	"herald/internal/platform"
	"herald/internal/store/ledger"
)

type call struct {
	Reaction platform.Reaction
	Post     string
}

type fakeAdapter struct {
	mu         sync.Mutex
	posts      map[string][]model.Post
	fetchErr   error
	errs       map[call]error
	calls      []call
	resolved   map[string]string
	resolveErr error
	lookups    [][]string
	fetched    []string
	block      chan struct{}
	entered    chan struct{}
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) Publish(ctx context.Context, text string) (string, error) {
	return "", nil
}

func (f *fakeAdapter) React(ctx context.Context, r platform.Reaction, p model.Post) error {
	if f.block != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := call{r, p.ID}
	f.calls = append(f.calls, c)
	return f.errs[c]
}

func (f *fakeAdapter) FetchRecent(ctx context.Context, a model.Account, since time.Time, limit int) ([]model.Post, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, a.ID)
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	ps := f.posts[a.ID]
	if len(ps) > limit {
		ps = ps[:limit]
	}
	return ps, nil
}

func (f *fakeAdapter) ResolveAccounts(ctx context.Context, handles []string) ([]model.Account, error) {
	f.lookups = append(f.lookups, append([]string(nil), handles...))
	var out []model.Account
	for _, h := range handles {
		if id, ok := f.resolved[h]; ok {
			out = append(out, model.Account{Handle: h, ID: id})
		}
	}
	return out, f.resolveErr
}

func (f *fakeAdapter) ShareReaction() platform.Reaction { return platform.Recast }
func (f *fakeAdapter) PostURL(id string) string         { return id }

func posts(ids ...string) []model.Post {
	out := make([]model.Post, len(ids))
	for i, id := range ids {
		out[i] = model.Post{ID: id, AuthorID: "1"}
	}
	return out
}

type sleeps struct{ d []time.Duration }

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.d = append(s.d, d)
	return nil
}

func newDriver(t *testing.T, fa *fakeAdapter, opts Options) (*Driver, *Deduplicator, *sleeps) {
	t.Helper()
	dd, err := NewDeduplicator(filepath.Join(t.TempDir(), "interactions.json"), 0, platform.Like, platform.Recast)
	require.NoError(t, err)
	s := &sleeps{}
	if opts.Accounts == nil {
		opts.Accounts = []model.Account{{Handle: "ally", ID: "1"}}
	}
	if opts.ActionDelay == 0 {
		opts.ActionDelay = 3 * time.Second
	}
	if opts.RateLimitCooldown == 0 {
		opts.RateLimitCooldown = time.Minute
	}
	opts.Sleep = s.sleep
	opts.Now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return NewDriver(fa, dd, opts), dd, s
}

func TestDeduplicatorCapsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")
	dd, err := NewDeduplicator(path, 0, platform.Like, platform.Recast)
	require.NoError(t, err)
	for i := 0; i < 150; i++ {
		require.NoError(t, dd.Record(platform.Like, fmt.Sprintf("p%d", i)))
	}
	snap := dd.Snapshot()
	require.Len(t, snap["liked"], DefaultHistoryCap)
	assert.Equal(t, "p149", snap["liked"][0])
	assert.False(t, dd.Has(platform.Like, "p49"))
	assert.True(t, dd.Has(platform.Like, "p50"))

	reloaded, err := NewDeduplicator(path, 0, platform.Like, platform.Recast)
	require.NoError(t, err)
	assert.True(t, reloaded.Has(platform.Like, "p149"))
	assert.Equal(t, []string{}, reloaded.Snapshot()["recasted"])

	require.NoError(t, reloaded.Reset())
	assert.False(t, reloaded.Has(platform.Like, "p149"))
}

func TestDeduplicatorRepairsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	dd, err := NewDeduplicator(path, 0, platform.Like, platform.Retweet)
	require.NoError(t, err)
	if diff := cmp.Diff(Interactions{"liked": {}, "retweeted": {}}, dd.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestDeduplicatorRepairsNullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")
	require.NoError(t, os.WriteFile(path, []byte("null"), 0o644))
	dd, err := NewDeduplicator(path, 0, platform.Like, platform.Recast)
	require.NoError(t, err)
	assert.False(t, dd.Has(platform.Like, "a"))
	require.NoError(t, dd.Record(platform.Like, "a"))
	assert.True(t, dd.Has(platform.Like, "a"))
	assert.Equal(t, []string{}, dd.Snapshot()["recasted"])
}

func TestPartialReactionOnlyAppliesMissingOne(t *testing.T) {
	fa := &fakeAdapter{posts: map[string][]model.Post{"1": posts("P")}}
	d, dd, _ := newDriver(t, fa, Options{PageSize: 5})
	require.NoError(t, dd.Record(platform.Like, "P"))

	res := d.EngageAll(context.Background(), "test")
	require.False(t, res.Skipped)
	require.Equal(t, []call{{platform.Recast, "P"}}, fa.calls)
	assert.True(t, dd.Has(platform.Recast, "P"))
	assert.Equal(t, 1, res.Actions())
}

func TestFullyRecordedPostIsSkipped(t *testing.T) {
	fa := &fakeAdapter{posts: map[string][]model.Post{"1": posts("P")}}
	d, dd, _ := newDriver(t, fa, Options{})
	require.NoError(t, dd.Record(platform.Like, "P"))
	require.NoError(t, dd.Record(platform.Recast, "P"))
	d.EngageAll(context.Background(), "test")
	assert.Empty(t, fa.calls)
}

func TestActionCapAndDelay(t *testing.T) {
	fa := &fakeAdapter{posts: map[string][]model.Post{"1": posts("a", "b", "c", "d")}}
	d, _, sl := newDriver(t, fa, Options{MaxActionsPerRun: 3})
	res := d.EngageAll(context.Background(), "test")
	want := []call{{platform.Like, "a"}, {platform.Recast, "a"}, {platform.Like, "b"}}
	if diff := cmp.Diff(want, fa.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, res.Actions())
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}, sl.d)
}

func TestRateLimitStopsAccountAndKeepsEarlierRecords(t *testing.T) {
	fa := &fakeAdapter{
		posts: map[string][]model.Post{"1": posts("a", "b", "c")},
		errs: map[call]error{
			{platform.Like, "b"}: &platform.Error{Platform: "fake", Op: "react", Status: 429},
		},
	}
	d, dd, sl := newDriver(t, fa, Options{})
	res := d.EngageAll(context.Background(), "test")

	require.Len(t, res.Accounts, 1)
	assert.True(t, res.Accounts[0].RateLimited)
	assert.Equal(t, 2, res.Accounts[0].Actions)
	assert.Len(t, fa.calls, 3, "no calls after the rate limit")
	assert.True(t, dd.Has(platform.Like, "a"))
	assert.True(t, dd.Has(platform.Recast, "a"))
	assert.False(t, dd.Has(platform.Like, "b"))
	assert.Equal(t, time.Minute, sl.d[len(sl.d)-1])

	reloaded, err := NewDeduplicator(dd.Path(), 0, platform.Like, platform.Recast)
	require.NoError(t, err)
	assert.True(t, reloaded.Has(platform.Recast, "a"))
}

func TestAlreadyAppliedIsRecorded(t *testing.T) {
	fa := &fakeAdapter{
		posts: map[string][]model.Post{"1": posts("a")},
		errs: map[call]error{
			{platform.Like, "a"}: &platform.Error{Platform: "fake", Op: "react", Status: 403, Message: "You have already liked this"},
		},
	}
	d, dd, _ := newDriver(t, fa, Options{})
	res := d.EngageAll(context.Background(), "test")
	assert.True(t, dd.Has(platform.Like, "a"))
	assert.Equal(t, 1, res.Accounts[0].Already)
	assert.Equal(t, 1, res.Actions())
}

func TestPlanRestrictionDisablesReactionKind(t *testing.T) {
	fa := &fakeAdapter{
		posts: map[string][]model.Post{"1": posts("a", "b")},
		errs: map[call]error{
			{platform.Recast, "a"}: &platform.Error{Platform: "fake", Op: "react", Status: 402, Message: "upgrade required"},
		},
	}
	d, _, _ := newDriver(t, fa, Options{})
	d.EngageAll(context.Background(), "first")
	assert.True(t, d.Disabled(platform.Recast))
	want := []call{{platform.Like, "a"}, {platform.Recast, "a"}, {platform.Like, "b"}}
	require.Equal(t, want, fa.calls)

	fa.posts["1"] = posts("c")
	d.EngageAll(context.Background(), "second")
	assert.Equal(t, call{platform.Like, "c"}, fa.calls[len(fa.calls)-1])
	assert.Len(t, fa.calls, 4)
}

func TestOtherErrorsContinue(t *testing.T) {
	fa := &fakeAdapter{
		posts: map[string][]model.Post{"1": posts("a", "b")},
		errs: map[call]error{
			{platform.Like, "a"}: &platform.Error{Platform: "fake", Op: "react", Status: 500},
		},
	}
	d, dd, _ := newDriver(t, fa, Options{})
	res := d.EngageAll(context.Background(), "test")
	assert.Equal(t, 1, res.Accounts[0].Failed)
	assert.False(t, dd.Has(platform.Like, "a"))
	assert.True(t, dd.Has(platform.Like, "b"))
}

func TestFetchErrorSkipsAccount(t *testing.T) {
	fa := &fakeAdapter{fetchErr: fmt.Errorf("boom")}
	d, _, _ := newDriver(t, fa, Options{Accounts: []model.Account{{Handle: "x", ID: "1"}, {Handle: "y", ID: "2"}}})
	res := d.EngageAll(context.Background(), "test")
	require.Len(t, res.Accounts, 2)
	assert.Error(t, res.Accounts[0].Err)
	assert.Empty(t, fa.calls)
}

func TestConcurrentSweepIsSkipped(t *testing.T) {
	fa := &fakeAdapter{
		posts:   map[string][]model.Post{"1": posts("a")},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	d, _, _ := newDriver(t, fa, Options{})

	done := make(chan Result)
	go func() { done <- d.EngageAll(context.Background(), "first") }()
	select {
	case <-fa.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep never reached React")
	}

	second := d.EngageAll(context.Background(), "second")
	assert.True(t, second.Skipped)
	close(fa.block)
	first := <-done
	assert.False(t, first.Skipped)
}

func TestRandomModePicksOneAccount(t *testing.T) {
	fa := &fakeAdapter{posts: map[string][]model.Post{"1": posts("a"), "2": posts("b")}}
	d, _, _ := newDriver(t, fa, Options{
		Mode:     ModeRandom,
		Accounts: []model.Account{{Handle: "x", ID: "1"}, {Handle: "y", ID: "2"}},
		Rand:     fixedRand(1),
	})
	res := d.EngageAll(context.Background(), "test")
	require.Len(t, res.Accounts, 1)
	assert.Equal(t, "y", res.Accounts[0].Account.Handle)
}

type fixedRand int

func (f fixedRand) Intn(n int) int { return int(f) % n }

func TestUnresolvedAccountsAreLookedUp(t *testing.T) {
	fa := &fakeAdapter{
		posts:    map[string][]model.Post{"42": posts("a")},
		resolved: map[string]string{"celo-col": "42"},
	}
	d, _, _ := newDriver(t, fa, Options{Accounts: []model.Account{{Handle: "celo-col"}, {Handle: "ghost"}}})
	res := d.EngageAll(context.Background(), "test")
	require.Len(t, res.Accounts, 1)
	assert.Equal(t, "42", res.Accounts[0].Account.ID)
}

func TestDailyBudgetFromLedger(t *testing.T) {
	db, err := ledger.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.PutEvent(ctx, now.Add(-time.Hour), "like", "old", nil))
	require.NoError(t, db.PutEvent(ctx, now.Add(-10*time.Hour), "like", "yesterday", nil))
	require.NoError(t, db.PutEvent(ctx, now.Add(-time.Hour), "publish", "cast", nil))

	left, err := RemainingToday(ctx, db, 3, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	fa := &fakeAdapter{posts: map[string][]model.Post{"1": posts("a", "b")}}
	d, _, _ := newDriver(t, fa, Options{Ledger: db, MaxPerDay: 3, Location: time.UTC})
	res := d.EngageAll(ctx, "test")
	assert.Equal(t, 2, res.Actions())
	assert.True(t, res.Accounts[0].Exhausted)

	n, err := db.CountWithin(ctx, now.Add(-24*time.Hour), now.Add(time.Hour), ReactionEventTypes...)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestUnlimitedBudget(t *testing.T) {
	left, err := RemainingToday(context.Background(), nil, 0, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, -1, left)
}

func TestUnknownHandleDoesNotBlockOthers(t *testing.T) {
	fa := &fakeAdapter{
		posts:    map[string][]model.Post{"42": posts("a"), "43": posts("b")},
		resolved: map[string]string{"celo-col": "42", "refimed": "43"},
	}
	d, _, _ := newDriver(t, fa, Options{Accounts: []model.Account{{Handle: "celo-col"}, {Handle: "renamed"}, {Handle: "refimed"}}})
	res := d.EngageAll(context.Background(), "first")
	require.Len(t, res.Accounts, 2)
	assert.Equal(t, 4, res.Actions())

	d.EngageAll(context.Background(), "second")
	require.Len(t, fa.lookups, 1, "resolved and unknown handles are not looked up again")
}

func TestPartialLookupFailureKeepsResolvedAccounts(t *testing.T) {
	fa := &fakeAdapter{
		posts:      map[string][]model.Post{"42": posts("a")},
		resolved:   map[string]string{"celo-col": "42"},
		resolveErr: errors.New("lookup refimed: status 503"),
	}
	d, _, _ := newDriver(t, fa, Options{Accounts: []model.Account{{Handle: "celo-col"}, {Handle: "refimed"}}})
	res := d.EngageAll(context.Background(), "first")
	require.Len(t, res.Accounts, 1)
	assert.Equal(t, "42", res.Accounts[0].Account.ID)

	fa.resolveErr = nil
	fa.resolved["refimed"] = "43"
	accounts := d.Accounts(context.Background())
	assert.Equal(t, []model.Account{{Handle: "celo-col", ID: "42"}, {Handle: "refimed", ID: "43"}}, accounts)
	assert.Equal(t, []string{"refimed"}, fa.lookups[len(fa.lookups)-1], "failed handles are retried")
}

func TestRateLimitEndsSweep(t *testing.T) {
	fa := &fakeAdapter{
		posts: map[string][]model.Post{"1": posts("a"), "2": posts("b")},
		errs: map[call]error{
			{platform.Like, "a"}: &platform.Error{Platform: "fake", Op: "react", Status: 429},
		},
	}
	d, _, _ := newDriver(t, fa, Options{Accounts: []model.Account{{Handle: "x", ID: "1"}, {Handle: "y", ID: "2"}}})
	res := d.EngageAll(context.Background(), "test")
	require.Len(t, res.Accounts, 1)
	assert.True(t, res.Accounts[0].RateLimited)
	assert.Equal(t, []string{"1"}, fa.fetched, "second account is not fetched")
}

func TestDisabledIsSafeDuringSweep(t *testing.T) {
	fa := &fakeAdapter{
		posts: map[string][]model.Post{"1": posts("a", "b", "c")},
		errs: map[call]error{
			{platform.Recast, "a"}: &platform.Error{Platform: "fake", Op: "react", Status: 402},
		},
	}
	d, _, _ := newDriver(t, fa, Options{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.EngageAll(context.Background(), "test")
	}()
	for {
		select {
		case <-done:
			assert.True(t, d.Disabled(platform.Recast))
			return
		default:
			_ = d.Disabled(platform.Recast)
		}
	}
}
