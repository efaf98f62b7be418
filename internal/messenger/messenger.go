// Package messenger defines the contract the rotation engine consumes from
// the chat platform. Identifiers are opaque strings at this boundary; the
// engine never does arithmetic on them.
package messenger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a message, channel or user no longer exists.
// Callers treat it as "target already gone" rather than a failure.
var ErrNotFound = errors.New("messenger: not found")

// MessageRef locates a posted message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

func (r MessageRef) IsZero() bool {
	return r.ChannelID == "" && r.MessageID == ""
}

// Reaction is one symbol's tally on a message. Me reports whether the bot
// itself is among the reactors, so tallies can discount seeding reactions.
type Reaction struct {
	Symbol string
	Count  int
	Me     bool
}

// Profile is a resolved chat user.
type Profile struct {
	ID          string
	DisplayName string
}

type EventKind string

const (
	ReactionAdded   EventKind = "reaction_added"
	ReactionRemoved EventKind = "reaction_removed"
)

// ReactionEvent is delivered for every reaction change the gateway observes.
// AuthorID is the author of the reacted-to message when the platform exposes
// it, empty otherwise.
type ReactionEvent struct {
	Kind     EventKind
	Message  MessageRef
	Symbol   string
	ActorID  string
	AuthorID string
	Time     time.Time
}

// Gateway is the messaging collaborator. Commands are best-effort: Send may
// fail, Edit/Delete tolerate an already-gone target by returning ErrNotFound.
// Events arrive at-least-once and unordered.
type Gateway interface {
	Send(ctx context.Context, channelID, content string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, content string) error
	Delete(ctx context.Context, ref MessageRef) error

	AddReaction(ctx context.Context, ref MessageRef, symbol string) error
	RemoveReaction(ctx context.Context, ref MessageRef, symbol, actorID string) error
	Reactions(ctx context.Context, ref MessageRef) ([]Reaction, error)

	ResolveUser(ctx context.Context, userID string) (Profile, error)

	// SubscribeReactions returns a stream of reaction events and a cancel
	// function. The stream has no timeout; it closes when the subscription is
	// cancelled.
	SubscribeReactions(ctx context.Context) (<-chan ReactionEvent, func())
}
