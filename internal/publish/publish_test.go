package publish

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"herald/internal/model"
	"herald/internal/platform"
	"herald/internal/rotation"
)

type fixedRand int

func (f fixedRand) Intn(n int) int { return int(f) % n }

type fakeAdapter struct {
	published []string
	err       error
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) Publish(ctx context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, text)
	return "id-1", nil
}
func (f *fakeAdapter) React(ctx context.Context, r platform.Reaction, p model.Post) error { return nil }
func (f *fakeAdapter) FetchRecent(ctx context.Context, a model.Account, since time.Time, limit int) ([]model.Post, error) {
	return nil, nil
}
func (f *fakeAdapter) ResolveAccounts(ctx context.Context, h []string) ([]model.Account, error) {
	return nil, nil
}
func (f *fakeAdapter) ShareReaction() platform.Reaction { return platform.Recast }
func (f *fakeAdapter) PostURL(id string) string         { return "https://example.test/" + id }

type recorder struct{ types []string }

func (r *recorder) PutEvent(ctx context.Context, ts time.Time, typ, ref string, payload any) error {
	r.types = append(r.types, typ)
	return nil
}

func TestGateOpensWithoutHistoryAndClosesAfterPublish(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	g, err := NewGate(store, 24*time.Hour, 8, fixedRand(0))
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.True(t, g.CanPostNow(now))
	require.NoError(t, g.MarkPublished(now))
	require.False(t, g.CanPostNow(now))
	require.False(t, g.CanPostNow(now.Add(23*time.Hour+59*time.Minute)))
	require.Equal(t, time.Minute, g.Remaining(now.Add(23*time.Hour+59*time.Minute)))
	require.True(t, g.CanPostNow(now.Add(24*time.Hour)))

	// A new gate picks up the persisted timestamp.
	g2, err := NewGate(store, 24*time.Hour, 8, nil)
	require.NoError(t, err)
	require.False(t, g2.CanPostNow(now.Add(time.Hour)))
	last, ok := g2.LastPost()
	require.True(t, ok)
	require.True(t, last.Equal(now))
}

func TestRollFiresAboutOneInEight(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	g, err := NewGate(store, 0, 8, rand.New(rand.NewSource(2024)))
	require.NoError(t, err)
	const n = 80000
	hits := 0
	for i := 0; i < n; i++ {
		if g.Roll() {
			hits++
		}
	}
	rate := float64(hits) / n
	require.InDelta(t, 0.125, rate, 0.01)
}

type harness struct {
	svc     *Service
	adapter *fakeAdapter
	history *rotation.HistoryStore
	state   *StateStore
	logPath string
	ledger  *recorder
	now     time.Time
}

func newHarness(t *testing.T, roll int, commitOnPublish bool) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		adapter: &fakeAdapter{},
		history: rotation.NewHistoryStore(filepath.Join(dir, "history.json"), rotation.DefaultWindow),
		state:   NewStateStore(filepath.Join(dir, "state.json")),
		logPath: filepath.Join(dir, "casts.log"),
		ledger:  &recorder{},
		now:     time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC),
	}
	pool := rotation.StaticPool{
		model.Morning: {"buenos días"},
		model.Noon:    {"buenas tardes"},
	}
	sel := rotation.NewSelector(pool, h.history, rand.New(rand.NewSource(1)))
	gate, err := NewGate(h.state, 24*time.Hour, 8, fixedRand(roll))
	require.NoError(t, err)
	h.svc = NewService(h.adapter, gate, sel, Options{
		LogPath:         h.logPath,
		LogTimeLayout:   "2006-01-02 15:04",
		Location:        time.UTC,
		CommitOnPublish: commitOnPublish,
		Ledger:          h.ledger,
		Now:             func() time.Time { return h.now },
	})
	return h
}

func TestTickPublishesAndRecords(t *testing.T) {
	h := newHarness(t, 0, false)
	out, err := h.svc.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, Published, out)
	require.Equal(t, []string{"buenos días"}, h.adapter.published)

	b, err := os.ReadFile(h.logPath)
	require.NoError(t, err)
	require.Equal(t, "[2025-06-01 08:30] (morning) buenos días\n", string(b))

	st, err := h.state.Load()
	require.NoError(t, err)
	last, ok := st.LastPost()
	require.True(t, ok)
	require.True(t, last.Equal(h.now))

	hist, err := h.history.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"buenos días"}, hist[model.Morning])
	require.Equal(t, []string{"publish"}, h.ledger.types)

	h.now = h.now.Add(3 * time.Hour)
	out, err = h.svc.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, Waiting, out)
	require.Len(t, h.adapter.published, 1)
}

func TestTickRollMissDoesNothing(t *testing.T) {
	h := newHarness(t, 3, false)
	out, err := h.svc.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, RollMiss, out)
	require.Empty(t, h.adapter.published)
	_, err = os.Stat(h.logPath)
	require.True(t, os.IsNotExist(err))
}

func TestTickEmptyBucketSkips(t *testing.T) {
	h := newHarness(t, 0, false)
	h.now = time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
	out, err := h.svc.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, NoMessage, out)
	require.Empty(t, h.adapter.published)
}

func TestFailedPublishKeepsGateOpen(t *testing.T) {
	for _, commit := range []bool{false, true} {
		h := newHarness(t, 0, commit)
		h.adapter.err = &platform.Error{Platform: "fake", Op: "publish", Status: 503}
		out, err := h.svc.Tick(context.Background())
		require.Error(t, err)
		require.Equal(t, Failed, out)
		require.True(t, h.svc.Gate().CanPostNow(h.now))
		require.Empty(t, h.ledger.types)

		hist, err := h.history.Load()
		require.NoError(t, err)
		if commit {
			require.Empty(t, hist[model.Morning], "commit-on-publish must not record failed picks")
		} else {
			require.Equal(t, []string{"buenos días"}, hist[model.Morning], "pick is recorded before publishing")
		}
	}
}

func TestPublishNowBypassesGate(t *testing.T) {
	h := newHarness(t, 5, true)
	require.NoError(t, h.svc.Gate().MarkPublished(h.now))
	h.now = h.now.Add(5 * time.Hour)
	out, err := h.svc.PublishNow(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, Published, out)
	require.Equal(t, []string{"buenas tardes"}, h.adapter.published)

	hist, err := h.history.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"buenas tardes"}, hist[model.Noon])

	b, err := os.ReadFile(h.logPath)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(b), "(noon) buenas tardes\n"))
}

func TestStateKeepsInsightsKey(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save(State{LastInsightsPostYMD: "2025-06-01"}))
	g, err := NewGate(store, 0, 0, nil)
	require.NoError(t, err)
	require.NoError(t, g.MarkPublished(time.Now()))
	st, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "2025-06-01", st.LastInsightsPostYMD)
	require.NotNil(t, st.LastPostMS)
}
