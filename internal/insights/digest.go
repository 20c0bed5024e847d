package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"herald/internal/logging"
	"herald/internal/platform"
	"herald/internal/publish"
	"herald/internal/util"
)

// MaxDigestRunes keeps a digest within the shorter of the platform limits.
const MaxDigestRunes = 280

var stopwords = toSet(strings.Fields(`
a al algo como con de del el en es esta este esto estos ha hay la las le lo los
mas más me mi muy no nos o para pero por que qué se si sin sobre su sus te tu un
una unas uno unos y ya yo
the and for with this that from are was you your our have has not but all can
will just what when who how its it's of to in on is be at by an or as we us`))

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Count is a term and its frequency.
type Count struct {
	Term string
	N    int
}

// Summary is the aggregate view of the stored posts inside a window.
type Summary struct {
	Posts    int
	Authors  int
	Keywords []Count
	Hashtags []Count
	Mentions []Count
}

// Summarize counts keywords, hashtags and mentions in items newer than since.
func Summarize(items []Record, since time.Time, topN int) Summary {
	words := map[string]int{}
	tags := map[string]int{}
	mentions := map[string]int{}
	authors := map[string]struct{}{}
	s := Summary{}
	for _, r := range items {
		if r.Time().Before(since) {
			continue
		}
		s.Posts++
		authors[r.Author] = struct{}{}
		for _, w := range util.Tokenize(r.Text) {
			if keyword(w) {
				words[w]++
			}
		}
		for _, h := range r.Hashtags {
			tags[h]++
		}
		for _, m := range r.Mentions {
			mentions[m]++
		}
	}
	s.Authors = len(authors)
	s.Keywords = top(words, topN)
	s.Hashtags = top(tags, topN)
	s.Mentions = top(mentions, topN)
	return s
}

func keyword(w string) bool {
	if len([]rune(w)) < 3 {
		return false
	}
	if _, stop := stopwords[w]; stop {
		return false
	}
	for _, r := range w {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// top returns the n most frequent terms, ties broken alphabetically.
func top(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Term: k, N: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Term < out[j].Term
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Compose renders a summary as a post. ok is false when there is nothing to
// say.
func Compose(s Summary, window time.Duration) (string, bool) {
	if s.Posts == 0 {
		return "", false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Pulso de la comunidad (%dh): %d publicaciones de %d aliados.", int(window.Hours()), s.Posts, s.Authors)
	if len(s.Keywords) > 0 {
		b.WriteString(" Temas: " + join(s.Keywords, ""))
		b.WriteString(".")
	}
	if len(s.Hashtags) > 0 {
		b.WriteString(" " + join(s.Hashtags, "#"))
	}
	if len(s.Mentions) > 0 {
		b.WriteString(" " + join(s.Mentions, "@"))
	}
	return util.Truncate(b.String(), MaxDigestRunes), true
}

func join(cs []Count, prefix string) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = prefix + c.Term
	}
	sep := " "
	if prefix == "" {
		sep = ", "
	}
	return strings.Join(parts, sep)
}

// EventRecorder stores performed actions; *ledger.DB implements it.
type EventRecorder interface {
	PutEvent(ctx context.Context, ts time.Time, typ, ref string, payload any) error
}

// Digester publishes at most one digest per local calendar day.
type Digester struct {
	adapter platform.Adapter
	store   *Store
	state   *publish.StateStore
	ledger  EventRecorder
	window  time.Duration
	topN    int
	loc     *time.Location
	now     func() time.Time
}

func NewDigester(adapter platform.Adapter, store *Store, state *publish.StateStore, ledger EventRecorder, window time.Duration, topN int, loc *time.Location) *Digester {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if loc == nil {
		loc = time.Local
	}
	return &Digester{
		adapter: adapter, store: store, state: state, ledger: ledger,
		window: window, topN: topN, loc: loc, now: time.Now,
	}
}

// DigestResult reports what a digest run did.
type DigestResult struct {
	Text    string
	Posted  bool
	Reason  string // already_posted, empty, dry_run
	PostID  string
	PostURL string
	DayKey  string
	Summary Summary
}

// Run composes the digest and publishes it unless dryRun is set or a digest
// already went out today.
func (d *Digester) Run(ctx context.Context, dryRun bool) (DigestResult, error) {
	now := d.now()
	day := now.In(d.loc).Format("2006-01-02")
	res := DigestResult{DayKey: day}

	st, err := d.state.Load()
	if err != nil {
		return res, err
	}
	if st.LastInsightsPostYMD == day && !dryRun {
		res.Reason = "already_posted"
		logging.Info("insights_digest_skipped", logging.Fields{"day": day, "reason": res.Reason})
		return res, nil
	}

	doc, err := d.store.Load()
	if err != nil {
		return res, err
	}
	res.Summary = Summarize(doc.Items, now.Add(-d.window), d.topN)
	text, ok := Compose(res.Summary, d.window)
	if !ok {
		res.Reason = "empty"
		logging.Info("insights_digest_skipped", logging.Fields{"day": day, "reason": res.Reason})
		return res, nil
	}
	res.Text = text
	if dryRun {
		res.Reason = "dry_run"
		return res, nil
	}

	id, err := d.adapter.Publish(ctx, text)
	if err != nil {
		logging.Error("insights_digest_failed", logging.Fields{"kind": platform.Classify(err).String(), "error": err.Error()})
		return res, fmt.Errorf("publish digest: %w", err)
	}
	res.Posted, res.PostID, res.PostURL = true, id, d.adapter.PostURL(id)
	if err := d.state.Update(func(s *publish.State) { s.LastInsightsPostYMD = day }); err != nil {
		logging.Error("publish_state_save_failed", logging.Fields{"error": err.Error()})
	}
	if d.ledger != nil {
		if err := d.ledger.PutEvent(ctx, now, "digest", id, map[string]any{"posts": res.Summary.Posts}); err != nil {
			logging.Warn("ledger_write_failed", logging.Fields{"error": err.Error()})
		}
	}
	logging.Info("insights_digest_posted", logging.Fields{"day": day, "id": id, "url": res.PostURL})
	return res, nil
}
