package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clanhall/taskwheel/internal/catalog"
	"github.com/clanhall/taskwheel/internal/config"
	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/messenger"
	"github.com/clanhall/taskwheel/internal/repository/memory"
)

func newVoteLifecycle(t *testing.T, tasks int) (*VoteLifecycle, *memory.Store, *fakeGateway) {
	t.Helper()
	store := memory.NewStore()
	seedCatalog(t, store, tasks)
	gw := newFakeGateway()
	return NewVoteLifecycle(store, catalog.New(store), gw, testConfig()), store, gw
}

func TestOpenVote(t *testing.T) {
	ctx := context.Background()
	lifecycle, store, gw := newVoteLifecycle(t, 5)

	vote, err := lifecycle.Open(ctx)
	require.NoError(t, err)
	require.NotZero(t, vote.ID)
	require.NotEmpty(t, vote.MessageID)
	assert.Zero(t, vote.EndTime.Second(), "deadline should land on a whole minute")

	options, err := store.VoteOptions(ctx, vote.ID)
	require.NoError(t, err)
	require.Len(t, options, 3)
	seen := make(map[int]struct{})
	for i, o := range options {
		assert.Equal(t, i, o.OptionIndex)
		require.NotNil(t, o.TaskID)
		_, dup := seen[*o.TaskID]
		require.False(t, dup, "options must reference distinct tasks")
		seen[*o.TaskID] = struct{}{}
		assert.NotEmpty(t, o.EvaluatedTask)
	}

	// One seeding reaction per option, marked as the bot's own.
	reactions, err := gw.Reactions(ctx, messenger.MessageRef{ChannelID: vote.ChannelID, MessageID: vote.MessageID})
	require.NoError(t, err)
	require.Len(t, reactions, 3)
	for i, r := range reactions {
		assert.Equal(t, config.BallotSymbols[i], r.Symbol)
		assert.True(t, r.Me)
	}
}

func TestOpenVoteRefusesSecondOpen(t *testing.T) {
	ctx := context.Background()
	lifecycle, _, _ := newVoteLifecycle(t, 5)

	_, err := lifecycle.Open(ctx)
	require.NoError(t, err)
	_, err = lifecycle.Open(ctx)
	assert.ErrorIs(t, err, domain.ErrVoteOpen)
}

func TestOpenVoteGuardHoldsAtStoreLevel(t *testing.T) {
	// The command handler and the vote-start watcher run on different
	// goroutines; both can read "no open vote" before either inserts. The
	// store's own insert guard must let only one through.
	ctx := context.Background()
	store := memory.NewStore()

	first := &domain.TaskVote{StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}
	require.NoError(t, store.OpenVote(ctx, first, nil))

	second := &domain.TaskVote{StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}
	assert.ErrorIs(t, store.OpenVote(ctx, second, nil), domain.ErrVoteOpen)

	// Completing the open vote releases the guard.
	require.NoError(t, store.CompleteVote(ctx, first.ID, nil))
	require.NoError(t, store.OpenVote(ctx, second, nil))
}

func TestCancelOpen(t *testing.T) {
	ctx := context.Background()
	lifecycle, store, _ := newVoteLifecycle(t, 5)

	assert.ErrorIs(t, lifecycle.CancelOpen(ctx), domain.ErrNoActiveVote)

	_, err := lifecycle.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, lifecycle.CancelOpen(ctx))

	open, err := store.UncompletedVote(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestOpenVoteInsufficientCatalog(t *testing.T) {
	lifecycle, _, _ := newVoteLifecycle(t, 2)
	_, err := lifecycle.Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrInsufficientCatalog)
}

func TestTallyDiscountsSeedsAndBreaksTiesByIndex(t *testing.T) {
	ctx := context.Background()
	lifecycle, store, gw := newVoteLifecycle(t, 5)

	vote, err := lifecycle.Open(ctx)
	require.NoError(t, err)

	// Raw tallies 4/4/2 including one seed each: real ballots 3/3/1, so the
	// tie between the first two options goes to the lower index.
	gw.setReactions(vote.MessageID, []messenger.Reaction{
		{Symbol: config.BallotSymbols[0], Count: 4, Me: true},
		{Symbol: config.BallotSymbols[1], Count: 4, Me: true},
		{Symbol: config.BallotSymbols[2], Count: 2, Me: true},
	})

	winner, err := lifecycle.Tally(ctx, vote)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, 0, winner.OptionIndex)

	latest, err := store.LatestVote(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Completed)
	require.NotNil(t, latest.SelectedOptionID)
	assert.Equal(t, winner.ID, *latest.SelectedOptionID)

	assert.Contains(t, gw.messageContent(vote.MessageID), winner.EvaluatedTask)
}

func TestTallyWithNoBallots(t *testing.T) {
	ctx := context.Background()
	lifecycle, store, gw := newVoteLifecycle(t, 5)

	vote, err := lifecycle.Open(ctx)
	require.NoError(t, err)

	// Only the seeding reactions are present.
	winner, err := lifecycle.Tally(ctx, vote)
	require.NoError(t, err)
	assert.Nil(t, winner)

	latest, err := store.LatestVote(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Completed)
	assert.Nil(t, latest.SelectedOptionID)

	assert.Contains(t, gw.messageContent(vote.MessageID), "Nobody voted")
}

func TestTallyIgnoresStrayReactions(t *testing.T) {
	ctx := context.Background()
	lifecycle, _, gw := newVoteLifecycle(t, 5)

	vote, err := lifecycle.Open(ctx)
	require.NoError(t, err)

	gw.setReactions(vote.MessageID, []messenger.Reaction{
		{Symbol: "👍", Count: 7},
		{Symbol: config.BallotSymbols[8], Count: 5},
		{Symbol: config.BallotSymbols[1], Count: 2, Me: true},
	})

	winner, err := lifecycle.Tally(ctx, vote)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, 1, winner.OptionIndex)
}

func TestCancelRemovesVoteAndBallot(t *testing.T) {
	ctx := context.Background()
	lifecycle, store, gw := newVoteLifecycle(t, 5)

	vote, err := lifecycle.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, lifecycle.Cancel(ctx, vote))

	open, err := store.UncompletedVote(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)

	options, err := store.VoteOptions(ctx, vote.ID)
	require.NoError(t, err)
	assert.Empty(t, options)

	assert.True(t, gw.deleted[vote.MessageID])

	// Cancelling twice hits a deleted ballot message without failing.
	require.NoError(t, lifecycle.Cancel(ctx, vote))
}

func TestRoundToMinute(t *testing.T) {
	base := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	assert.Equal(t, base, roundToMinute(base))
	assert.Equal(t, base, roundToMinute(base.Add(29*time.Second)))
	assert.Equal(t, base.Add(time.Minute), roundToMinute(base.Add(30*time.Second)))
	assert.Equal(t, base.Add(time.Minute), roundToMinute(base.Add(59*time.Second)))
}
