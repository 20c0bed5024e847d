// Package platform defines the capabilities the bot needs from a social
// network and the error taxonomy shared by every client.
package platform

import (
	"context"
	"time"

	"herald/internal/model"
)

// Reaction is an interaction the bot can apply to someone else's post.
type Reaction string

const (
	Like    Reaction = "like"
	Recast  Reaction = "recast"
	Retweet Reaction = "retweet"
)

// HistoryKey is the interaction-history document key for the reaction.
func (r Reaction) HistoryKey() string {
	switch r {
	case Like:
		return "liked"
	case Recast:
		return "recasted"
	case Retweet:
		return "retweeted"
	default:
		return string(r)
	}
}

// Adapter is implemented by each platform client.
type Adapter interface {
	Name() string
	Publish(ctx context.Context, text string) (string, error)
	React(ctx context.Context, reaction Reaction, post model.Post) error
	FetchRecent(ctx context.Context, account model.Account, since time.Time, limit int) ([]model.Post, error)
	ResolveAccounts(ctx context.Context, handles []string) ([]model.Account, error)
	// ShareReaction is the platform's repost reaction (recast or retweet).
	ShareReaction() Reaction
	PostURL(id string) string
}
