// Package insights collects recent posts from allied accounts and turns them
// into a short daily digest.
package insights

import (
	"slices"
	"sort"
	"time"

	"herald/internal/store/jsondoc"
)

// Record is a stored post.
type Record struct {
	ID       string   `json:"id"`
	Author   string   `json:"author"`
	TS       int64    `json:"ts"` // unix ms
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
}

func (r Record) Time() time.Time { return time.UnixMilli(r.TS) }

// Doc is the persisted insights document.
type Doc struct {
	Seen  []string `json:"seen"`
	Items []Record `json:"items"`
}

// Store persists Doc as JSON.
type Store struct {
	path      string
	retention time.Duration
	maxItems  int
}

func NewStore(path string, retention time.Duration, maxItems int) *Store {
	if maxItems <= 0 {
		maxItems = 500
	}
	return &Store{path: path, retention: retention, maxItems: maxItems}
}

func (s *Store) Load() (Doc, error) {
	doc := Doc{Seen: []string{}, Items: []Record{}}
	err := jsondoc.Load(s.path, &doc, func() { doc = Doc{Seen: []string{}, Items: []Record{}} })
	return doc, err
}

func (s *Store) Save(doc Doc) error { return jsondoc.Save(s.path, doc) }

// Add merges unseen records into the document, prunes it, persists it, and
// returns how many records were new.
func (s *Store) Add(records []Record, now time.Time) (int, error) {
	doc, err := s.Load()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(doc.Seen))
	for _, id := range doc.Seen {
		seen[id] = struct{}{}
	}
	added := 0
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		doc.Items = append(doc.Items, r)
		added++
	}
	doc = s.prune(doc, now)
	return added, s.Save(doc)
}

// prune drops items older than the retention window, keeps the newest
// maxItems, and limits seen ids to the surviving items.
func (s *Store) prune(doc Doc, now time.Time) Doc {
	items := doc.Items[:0:0]
	for _, r := range doc.Items {
		if s.retention > 0 && now.Sub(r.Time()) > s.retention {
			continue
		}
		items = append(items, r)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].TS > items[j].TS })
	if len(items) > s.maxItems {
		items = items[:s.maxItems]
	}
	seen := make([]string, 0, len(items))
	for _, r := range items {
		seen = append(seen, r.ID)
	}
	slices.Sort(seen)
	return Doc{Seen: seen, Items: items}
}
