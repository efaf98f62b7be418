package rotation

import (
	"context"
	"strconv"
	"sync"

	"github.com/clanhall/taskwheel/internal/messenger"
)

// fakeGateway records outbound traffic and serves canned reaction tallies.
type fakeGateway struct {
	mu        sync.Mutex
	nextMsgID int
	sent      []fakeMessage
	deleted   map[string]bool
	reactions map[string][]messenger.Reaction
	users     map[string]messenger.Profile
	events    chan messenger.ReactionEvent
	sendErr   error
}

type fakeMessage struct {
	Ref     messenger.MessageRef
	Content string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		deleted:   make(map[string]bool),
		reactions: make(map[string][]messenger.Reaction),
		users:     make(map[string]messenger.Profile),
		events:    make(chan messenger.ReactionEvent, 16),
	}
}

func (g *fakeGateway) Send(_ context.Context, channelID, content string) (messenger.MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sendErr != nil {
		return messenger.MessageRef{}, g.sendErr
	}
	g.nextMsgID++
	ref := messenger.MessageRef{ChannelID: channelID, MessageID: strconv.Itoa(g.nextMsgID)}
	g.sent = append(g.sent, fakeMessage{Ref: ref, Content: content})
	return ref, nil
}

func (g *fakeGateway) Edit(_ context.Context, ref messenger.MessageRef, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.deleted[ref.MessageID] {
		return messenger.ErrNotFound
	}
	for i := range g.sent {
		if g.sent[i].Ref == ref {
			g.sent[i].Content = content
			return nil
		}
	}
	return messenger.ErrNotFound
}

func (g *fakeGateway) Delete(_ context.Context, ref messenger.MessageRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.deleted[ref.MessageID] {
		return messenger.ErrNotFound
	}
	g.deleted[ref.MessageID] = true
	return nil
}

func (g *fakeGateway) AddReaction(_ context.Context, ref messenger.MessageRef, symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, r := range g.reactions[ref.MessageID] {
		if r.Symbol == symbol {
			g.reactions[ref.MessageID][i].Count++
			g.reactions[ref.MessageID][i].Me = true
			return nil
		}
	}
	g.reactions[ref.MessageID] = append(g.reactions[ref.MessageID], messenger.Reaction{Symbol: symbol, Count: 1, Me: true})
	return nil
}

func (g *fakeGateway) RemoveReaction(_ context.Context, ref messenger.MessageRef, symbol, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, r := range g.reactions[ref.MessageID] {
		if r.Symbol == symbol && r.Count > 0 {
			g.reactions[ref.MessageID][i].Count--
		}
	}
	return nil
}

func (g *fakeGateway) Reactions(_ context.Context, ref messenger.MessageRef) ([]messenger.Reaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.deleted[ref.MessageID] {
		return nil, messenger.ErrNotFound
	}
	return append([]messenger.Reaction(nil), g.reactions[ref.MessageID]...), nil
}

func (g *fakeGateway) ResolveUser(_ context.Context, userID string) (messenger.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.users[userID]
	if !ok {
		return messenger.Profile{}, messenger.ErrNotFound
	}
	return p, nil
}

func (g *fakeGateway) SubscribeReactions(_ context.Context) (<-chan messenger.ReactionEvent, func()) {
	return g.events, func() {}
}

// setReactions overrides a message's tallies wholesale.
func (g *fakeGateway) setReactions(messageID string, reactions []messenger.Reaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactions[messageID] = reactions
}

func (g *fakeGateway) lastSent() *fakeMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return nil
	}
	copied := g.sent[len(g.sent)-1]
	return &copied
}

func (g *fakeGateway) messageContent(messageID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.sent {
		if m.Ref.MessageID == messageID {
			return m.Content
		}
	}
	return ""
}
