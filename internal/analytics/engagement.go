// Package analytics aggregates ledger events for reporting.
package analytics

import (
	"sort"
	"time"

	"herald/internal/store/ledger"
)

// HourlyActivity aggregates events into per-hour buckets in loc.
func HourlyActivity(events []ledger.Event, loc *time.Location) map[time.Time]map[string]int {
	if loc == nil {
		loc = time.UTC
	}
	buckets := make(map[time.Time]map[string]int)
	for _, e := range events {
		ts := e.TS.In(loc)
		key := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, loc)
		if _, ok := buckets[key]; !ok {
			buckets[key] = make(map[string]int)
		}
		buckets[key][e.Type]++
	}
	return buckets
}

// Totals counts events per type.
func Totals(events []ledger.Event) map[string]int {
	out := make(map[string]int)
	for _, e := range events {
		out[e.Type]++
	}
	return out
}

// SortedBucketKeys returns sorted hour keys.
func SortedBucketKeys(m map[time.Time]map[string]int) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// SortedTypes returns the event types present in m, alphabetically.
func SortedTypes(m map[time.Time]map[string]int) []string {
	seen := map[string]struct{}{}
	for _, byType := range m {
		for t := range byType {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
