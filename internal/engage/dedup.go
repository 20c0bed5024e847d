package engage

import (
	"slices"
	"sync"

	"herald/internal/platform"
	"herald/internal/store/jsondoc"
)

// DefaultHistoryCap bounds each reaction's id list.
const DefaultHistoryCap = 100

// Interactions is the persisted interaction-history document, keyed by
// Reaction.HistoryKey, ids newest first.
type Interactions map[string][]string

// Deduplicator remembers which posts already received which reaction.
type Deduplicator struct {
	mu        sync.Mutex
	path      string
	limit     int
	reactions []platform.Reaction
	doc       Interactions
}

// NewDeduplicator loads the history at path. A missing or corrupt document
// starts empty.
func NewDeduplicator(path string, limit int, reactions ...platform.Reaction) (*Deduplicator, error) {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	d := &Deduplicator{path: path, limit: limit, reactions: reactions}
	d.doc = d.empty()
	err := jsondoc.Load(path, &d.doc, func() { d.doc = d.empty() })
	if d.doc == nil {
		d.doc = d.empty()
	}
	for _, r := range reactions {
		if d.doc[r.HistoryKey()] == nil {
			d.doc[r.HistoryKey()] = []string{}
		}
	}
	return d, err
}

func (d *Deduplicator) empty() Interactions {
	doc := make(Interactions, len(d.reactions))
	for _, r := range d.reactions {
		doc[r.HistoryKey()] = []string{}
	}
	return doc
}

func (d *Deduplicator) Path() string { return d.path }

// Has reports whether reaction was already applied to id.
func (d *Deduplicator) Has(reaction platform.Reaction, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Contains(d.doc[reaction.HistoryKey()], id)
}

// Record marks reaction as applied to id and persists the document.
func (d *Deduplicator) Record(reaction platform.Reaction, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := reaction.HistoryKey()
	list := d.doc[key]
	if slices.Contains(list, id) {
		return nil
	}
	next := make([]string, 0, min(len(list)+1, d.limit))
	next = append(next, id)
	for _, v := range list {
		if len(next) >= d.limit {
			break
		}
		next = append(next, v)
	}
	d.doc[key] = next
	return jsondoc.Save(d.path, d.doc)
}

// Snapshot returns a copy of the current document.
func (d *Deduplicator) Snapshot() Interactions {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(Interactions, len(d.doc))
	for k, v := range d.doc {
		out[k] = slices.Clone(v)
	}
	return out
}

// Reset forgets every recorded interaction and persists the empty document.
func (d *Deduplicator) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc = d.empty()
	return jsondoc.Save(d.path, d.doc)
}
