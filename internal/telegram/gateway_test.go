package telegram

import (
	"context"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clanhall/taskwheel/internal/messenger"
	"github.com/clanhall/taskwheel/internal/repository/memory"
)

const botID = 99

func emojiTypes(symbols []string) []models.ReactionType {
	out := make([]models.ReactionType, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, models.ReactionType{
			Type:              models.ReactionTypeTypeEmoji,
			ReactionTypeEmoji: &models.ReactionTypeEmoji{Type: "emoji", Emoji: s},
		})
	}
	return out
}

func reactionUpdate(userID int64, old, now []string) *models.Update {
	return &models.Update{MessageReaction: &models.MessageReactionUpdated{
		Chat:        models.Chat{ID: -100},
		MessageID:   7,
		User:        &models.User{ID: userID},
		OldReaction: emojiTypes(old),
		NewReaction: emojiTypes(now),
		Date:        1700000000,
	}}
}

func TestReactionTalliesSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ref := messenger.MessageRef{ChannelID: "-100", MessageID: "7"}

	gw := New(nil, botID, "-100", store)
	gw.HandleUpdate(ctx, nil, reactionUpdate(11, nil, []string{"1️⃣"}))
	gw.HandleUpdate(ctx, nil, reactionUpdate(12, nil, []string{"1️⃣"}))
	gw.HandleUpdate(ctx, nil, reactionUpdate(13, nil, []string{"2️⃣"}))

	// A fresh gateway over the same store sees the counts, as after a
	// process restart mid-vote.
	restarted := New(nil, botID, "-100", store)
	reactions, err := restarted.Reactions(ctx, ref)
	require.NoError(t, err)
	require.Len(t, reactions, 2)
	assert.Equal(t, messenger.Reaction{Symbol: "1️⃣", Count: 2}, reactions[0])
	assert.Equal(t, messenger.Reaction{Symbol: "2️⃣", Count: 1}, reactions[1])
}

func TestReactionUpdateDiffsOldAndNewSets(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ref := messenger.MessageRef{ChannelID: "-100", MessageID: "7"}

	gw := New(nil, botID, "-100", store)
	gw.HandleUpdate(ctx, nil, reactionUpdate(11, nil, []string{"1️⃣"}))
	// The user switches their ballot from option 1 to option 2.
	gw.HandleUpdate(ctx, nil, reactionUpdate(11, []string{"1️⃣"}, []string{"2️⃣"}))

	reactions, err := gw.Reactions(ctx, ref)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, "2️⃣", reactions[0].Symbol)
	assert.Equal(t, 1, reactions[0].Count)
}

func TestReactionUpdateIgnoresOwnEcho(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ref := messenger.MessageRef{ChannelID: "-100", MessageID: "7"}

	gw := New(nil, botID, "-100", store)
	// Telegram echoing the bot's own seeding reaction must not count it a
	// second time.
	gw.HandleUpdate(ctx, nil, reactionUpdate(botID, nil, []string{"1️⃣"}))

	reactions, err := gw.Reactions(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, reactions)
}
