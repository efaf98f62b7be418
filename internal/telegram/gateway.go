// Package telegram implements the messenger gateway on the Telegram Bot API.
//
// Telegram does not let a bot enumerate who reacted to a message, so the
// gateway keeps its own tally fed from message_reaction updates, and
// remembers message authors so approval reactions can be attributed to an
// evidence message's author. Tallies are written through to the store as
// events arrive; an open ballot keeps its counts across a process restart.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/messenger"
)

const maxTrackedAuthors = 10000

// TallyStore persists reaction counts. Backed by the repository in production
// so counts survive restarts while a ballot is open.
type TallyStore interface {
	AdjustReaction(ctx context.Context, channelID, messageID, symbol string, delta int, me bool) error
	ReactionTallies(ctx context.Context, channelID, messageID string) ([]domain.ReactionTally, error)
}

type Gateway struct {
	bot             *bot.Bot
	selfID          int64
	communityChatID string
	tallies         TallyStore

	mu      sync.Mutex
	own     map[messenger.MessageRef][]string
	authors map[messenger.MessageRef]string
	subs    map[int]chan messenger.ReactionEvent
	nextSub int
}

// New creates a gateway. communityChatID is the chat used for user lookups;
// selfID is the bot's own user id, used to flag seeding reactions.
func New(b *bot.Bot, selfID int64, communityChatID string, tallies TallyStore) *Gateway {
	return &Gateway{
		bot:             b,
		selfID:          selfID,
		communityChatID: communityChatID,
		tallies:         tallies,
		own:             make(map[messenger.MessageRef][]string),
		authors:         make(map[messenger.MessageRef]string),
		subs:            make(map[int]chan messenger.ReactionEvent),
	}
}

func (g *Gateway) Send(ctx context.Context, channelID, content string) (messenger.MessageRef, error) {
	msg, err := g.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: channelID,
		Text:   content,
	})
	if err != nil {
		return messenger.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return messenger.MessageRef{
		ChannelID: channelID,
		MessageID: strconv.Itoa(msg.ID),
	}, nil
}

func (g *Gateway) Edit(ctx context.Context, ref messenger.MessageRef, content string) error {
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("parse message id: %w", err)
	}
	_, err = g.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    ref.ChannelID,
		MessageID: messageID,
		Text:      content,
	})
	if isGone(err) {
		return messenger.ErrNotFound
	}
	return err
}

func (g *Gateway) Delete(ctx context.Context, ref messenger.MessageRef) error {
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("parse message id: %w", err)
	}
	_, err = g.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    ref.ChannelID,
		MessageID: messageID,
	})
	if isGone(err) {
		return messenger.ErrNotFound
	}
	return err
}

// AddReaction adds one of the bot's own reactions. Telegram replaces a user's
// whole reaction set per call, so the gateway re-sends everything it has
// placed on the message so far.
func (g *Gateway) AddReaction(ctx context.Context, ref messenger.MessageRef, symbol string) error {
	g.mu.Lock()
	symbols := appendUnique(g.own[ref], symbol)
	g.own[ref] = symbols
	g.mu.Unlock()

	if err := g.setOwnReactions(ctx, ref, symbols); err != nil {
		return err
	}
	return g.tallies.AdjustReaction(ctx, ref.ChannelID, ref.MessageID, symbol, 1, true)
}

// RemoveReaction removes the bot's own reaction. Telegram offers no way to
// remove another user's reaction, so a foreign actor is a no-op.
func (g *Gateway) RemoveReaction(ctx context.Context, ref messenger.MessageRef, symbol, actorID string) error {
	if actorID != strconv.FormatInt(g.selfID, 10) {
		return nil
	}

	g.mu.Lock()
	symbols := remove(g.own[ref], symbol)
	g.own[ref] = symbols
	g.mu.Unlock()

	if err := g.setOwnReactions(ctx, ref, symbols); err != nil {
		return err
	}
	return g.tallies.AdjustReaction(ctx, ref.ChannelID, ref.MessageID, symbol, -1, true)
}

func (g *Gateway) setOwnReactions(ctx context.Context, ref messenger.MessageRef, symbols []string) error {
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("parse message id: %w", err)
	}
	reaction := make([]models.ReactionType, 0, len(symbols))
	for _, s := range symbols {
		reaction = append(reaction, models.ReactionType{
			Type:              models.ReactionTypeTypeEmoji,
			ReactionTypeEmoji: &models.ReactionTypeEmoji{Type: "emoji", Emoji: s},
		})
	}
	_, err = g.bot.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    ref.ChannelID,
		MessageID: messageID,
		Reaction:  reaction,
	})
	if isGone(err) {
		return messenger.ErrNotFound
	}
	return err
}

func (g *Gateway) Reactions(ctx context.Context, ref messenger.MessageRef) ([]messenger.Reaction, error) {
	tallies, err := g.tallies.ReactionTallies(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		return nil, fmt.Errorf("read reaction tallies: %w", err)
	}
	reactions := make([]messenger.Reaction, 0, len(tallies))
	for _, t := range tallies {
		reactions = append(reactions, messenger.Reaction{Symbol: t.Symbol, Count: t.Count, Me: t.Me})
	}
	return reactions, nil
}

func (g *Gateway) ResolveUser(ctx context.Context, userID string) (messenger.Profile, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return messenger.Profile{}, messenger.ErrNotFound
	}
	member, err := g.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: g.communityChatID,
		UserID: id,
	})
	if err != nil {
		if isGone(err) {
			return messenger.Profile{}, messenger.ErrNotFound
		}
		return messenger.Profile{}, fmt.Errorf("get chat member: %w", err)
	}
	user := memberUser(member)
	if user == nil {
		return messenger.Profile{}, messenger.ErrNotFound
	}
	name := user.FirstName
	if user.Username != "" {
		name = "@" + user.Username
	}
	return messenger.Profile{ID: userID, DisplayName: name}, nil
}

func (g *Gateway) SubscribeReactions(_ context.Context) (<-chan messenger.ReactionEvent, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSub
	g.nextSub++
	ch := make(chan messenger.ReactionEvent, 64)
	g.subs[id] = ch

	cancel := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if sub, ok := g.subs[id]; ok {
			delete(g.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// HandleUpdate feeds the gateway's reaction tally and author memory. It is
// registered as the bot's default handler.
func (g *Gateway) HandleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message != nil && update.Message.From != nil {
		g.rememberAuthor(update.Message)
		return
	}
	if update.MessageReaction != nil {
		g.handleReactionUpdate(ctx, update.MessageReaction)
	}
}

func (g *Gateway) rememberAuthor(msg *models.Message) {
	ref := messenger.MessageRef{
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.Itoa(msg.ID),
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.authors) >= maxTrackedAuthors {
		g.authors = make(map[messenger.MessageRef]string)
	}
	g.authors[ref] = strconv.FormatInt(msg.From.ID, 10)
}

func (g *Gateway) handleReactionUpdate(ctx context.Context, upd *models.MessageReactionUpdated) {
	ref := messenger.MessageRef{
		ChannelID: strconv.FormatInt(upd.Chat.ID, 10),
		MessageID: strconv.Itoa(upd.MessageID),
	}
	actorID := ""
	if upd.User != nil {
		actorID = strconv.FormatInt(upd.User.ID, 10)
	}
	// The bot's own reactions are tallied at AddReaction/RemoveReaction time;
	// counting an echoed update would double them.
	if actorID == strconv.FormatInt(g.selfID, 10) {
		return
	}

	old := symbolSet(upd.OldReaction)
	now := symbolSet(upd.NewReaction)

	g.mu.Lock()
	authorID := g.authors[ref]
	subs := make([]chan messenger.ReactionEvent, 0, len(g.subs))
	for _, sub := range g.subs {
		subs = append(subs, sub)
	}
	g.mu.Unlock()

	var events []messenger.ReactionEvent
	for symbol := range now {
		if _, ok := old[symbol]; ok {
			continue
		}
		g.adjust(ctx, ref, symbol, 1)
		events = append(events, g.event(messenger.ReactionAdded, ref, symbol, actorID, authorID, upd.Date))
	}
	for symbol := range old {
		if _, ok := now[symbol]; ok {
			continue
		}
		g.adjust(ctx, ref, symbol, -1)
		events = append(events, g.event(messenger.ReactionRemoved, ref, symbol, actorID, authorID, upd.Date))
	}

	for _, ev := range events {
		for _, sub := range subs {
			select {
			case sub <- ev:
			default:
				slog.Warn("reaction subscriber backlogged, dropping event", "message_id", ev.Message.MessageID)
			}
		}
	}
}

func (g *Gateway) event(kind messenger.EventKind, ref messenger.MessageRef, symbol, actorID, authorID string, date int) messenger.ReactionEvent {
	return messenger.ReactionEvent{
		Kind:     kind,
		Message:  ref,
		Symbol:   symbol,
		ActorID:  actorID,
		AuthorID: authorID,
		Time:     time.Unix(int64(date), 0),
	}
}

func (g *Gateway) adjust(ctx context.Context, ref messenger.MessageRef, symbol string, delta int) {
	if err := g.tallies.AdjustReaction(ctx, ref.ChannelID, ref.MessageID, symbol, delta, false); err != nil {
		slog.Error("persist reaction tally", "message_id", ref.MessageID, "symbol", symbol, "error", err)
	}
}

func symbolSet(reactions []models.ReactionType) map[string]struct{} {
	set := make(map[string]struct{}, len(reactions))
	for _, r := range reactions {
		if r.ReactionTypeEmoji != nil {
			set[r.ReactionTypeEmoji.Emoji] = struct{}{}
		}
	}
	return set
}

func memberUser(member *models.ChatMember) *models.User {
	switch {
	case member == nil:
		return nil
	case member.Owner != nil:
		return member.Owner.User
	case member.Administrator != nil:
		return &member.Administrator.User
	case member.Member != nil:
		return member.Member.User
	case member.Restricted != nil:
		return member.Restricted.User
	default:
		return nil
	}
}

func appendUnique(symbols []string, symbol string) []string {
	for _, s := range symbols {
		if s == symbol {
			return symbols
		}
	}
	return append(symbols, symbol)
}

func remove(symbols []string, symbol string) []string {
	out := symbols[:0]
	for _, s := range symbols {
		if s != symbol {
			out = append(out, s)
		}
	}
	return out
}

// isGone reports whether the API rejected the call because the target no
// longer exists.
func isGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "message to edit") ||
		strings.Contains(msg, "message to delete") ||
		strings.Contains(msg, "chat not found")
}
