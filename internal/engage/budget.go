package engage

import (
	"context"
	"time"

	"herald/internal/platform"
)

// Counter counts ledger events in a time range; *ledger.DB implements it.
type Counter interface {
	CountWithin(ctx context.Context, start, end time.Time, types ...string) (int, error)
}

// ReactionEventTypes are the ledger event types that consume the daily budget.
var ReactionEventTypes = []string{string(platform.Like), string(platform.Recast), string(platform.Retweet)}

// DayBounds returns the local calendar day containing now.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	t := now.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// RemainingToday returns how many reactions may still be performed today
// under maxPerDay. A negative result means unlimited.
func RemainingToday(ctx context.Context, c Counter, maxPerDay int, now time.Time, loc *time.Location) (int, error) {
	if maxPerDay <= 0 || c == nil {
		return -1, nil
	}
	start, end := DayBounds(now, loc)
	n, err := c.CountWithin(ctx, start, end, ReactionEventTypes...)
	if err != nil {
		return 0, err
	}
	return max(maxPerDay-n, 0), nil
}
