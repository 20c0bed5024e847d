package model

import "time"

// Bucket is a time-of-day partition of the message pool.
type Bucket string

const (
	Morning Bucket = "morning"
	Noon    Bucket = "noon"
	Evening Bucket = "evening"
)

// Buckets lists every bucket in day order.
var Buckets = []Bucket{Morning, Noon, Evening}

// BucketForHour maps a wall-clock hour to its bucket: [5,12) morning,
// [12,18) noon, everything else evening.
func BucketForHour(hour int) Bucket {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 18:
		return Noon
	default:
		return Evening
	}
}

// Account is an allied account the bot engages with.
type Account struct {
	Handle string `yaml:"handle" json:"handle"`
	// ID is the platform identifier: a Farcaster FID or an X user id.
	ID string `yaml:"id" json:"id"`
}

// Post represents a subset of cast/tweet fields used by the bot.
type Post struct {
	ID           string
	AuthorID     string
	AuthorHandle string
	Text         string
	CreatedAt    time.Time
}
