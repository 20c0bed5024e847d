package publish

import (
	"time"

	"herald/internal/store/jsondoc"
)

// State is the persisted publish-state document.
type State struct {
	LastPostMS          *int64 `json:"last_post_ms"`
	LastInsightsPostYMD string `json:"last_insights_post_ymd,omitempty"`
}

// LastPost returns the last successful publish time, if any.
func (s State) LastPost() (time.Time, bool) {
	if s.LastPostMS == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*s.LastPostMS), true
}

// StateStore persists State as JSON.
type StateStore struct{ path string }

func NewStateStore(path string) *StateStore { return &StateStore{path: path} }

// Load returns the stored state; missing or corrupt files yield the zero State.
func (s *StateStore) Load() (State, error) {
	var st State
	err := jsondoc.Load(s.path, &st, func() { st = State{} })
	return st, err
}

func (s *StateStore) Save(st State) error { return jsondoc.Save(s.path, st) }

// Update applies fn to the stored state and saves the result.
func (s *StateStore) Update(fn func(*State)) error {
	st, err := s.Load()
	if err != nil {
		return err
	}
	fn(&st)
	return s.Save(st)
}
