package rotation

import (
	"herald/internal/model"
	"herald/internal/store/jsondoc"
)

// DefaultWindow is how many recent picks per bucket are remembered.
const DefaultWindow = 10

// History holds, per bucket, the most recent picks, newest first.
type History map[model.Bucket][]string

// EmptyHistory returns a history with every bucket present and empty.
func EmptyHistory() History {
	h := make(History, len(model.Buckets))
	for _, b := range model.Buckets {
		h[b] = []string{}
	}
	return h
}

// HistoryStore persists History as a JSON document.
type HistoryStore struct {
	path   string
	window int
}

func NewHistoryStore(path string, window int) *HistoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &HistoryStore{path: path, window: window}
}

func (s *HistoryStore) Path() string { return s.path }

// Load returns the stored history; a missing or corrupt file yields an empty one.
func (s *HistoryStore) Load() (History, error) {
	h := EmptyHistory()
	if err := jsondoc.Load(s.path, &h, func() { h = EmptyHistory() }); err != nil {
		return EmptyHistory(), err
	}
	if h == nil {
		h = EmptyHistory()
	}
	for _, b := range model.Buckets {
		if h[b] == nil {
			h[b] = []string{}
		}
	}
	return h, nil
}

func (s *HistoryStore) Save(h History) error { return jsondoc.Save(s.path, h) }

// Reset replaces the stored history with an empty one.
func (s *HistoryStore) Reset() error { return s.Save(EmptyHistory()) }

// Push prepends msg to bucket's history, truncates it to the window, and
// persists the result.
func (s *HistoryStore) Push(bucket model.Bucket, msg string) error {
	h, err := s.Load()
	if err != nil {
		return err
	}
	h[bucket] = prependCapped(h[bucket], msg, s.window)
	return s.Save(h)
}

func prependCapped(list []string, v string, limit int) []string {
	out := make([]string, 0, min(len(list)+1, limit))
	out = append(out, v)
	for _, x := range list {
		if len(out) >= limit {
			break
		}
		out = append(out, x)
	}
	return out
}
