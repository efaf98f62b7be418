package rotation

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clanhall/taskwheel/internal/config"
	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/messenger"
	"github.com/clanhall/taskwheel/internal/repository/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		TaskChannelID:   "tasks",
		VoteChannelID:   "votes",
		AdminIDs:        []string{"admin"},
		ApproverIDs:     []string{"approver"},
		TaskDuration:    168 * time.Hour,
		BonusDuration:   168 * time.Hour,
		VotingWindow:    time.Hour,
		TaskStartDelay:  time.Minute,
		VotingTaskCount: 3,
	}
}

func seedCatalog(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for id := 1; id <= n; id++ {
		err := store.UpsertTask(context.Background(), domain.Task{
			ID:          id,
			Description: "Task " + strconv.Itoa(id),
			Instruction: "Submit proof",
			Weight:      1,
		})
		require.NoError(t, err)
	}
}

func TestCreateSingleActivePerType(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	gw := newFakeGateway()
	lifecycle := NewInstanceLifecycle(store, gw, testConfig())

	first, err := lifecycle.Create(ctx, nil, domain.TaskStandard, "Kill 3 goblins", time.Hour)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := lifecycle.Create(ctx, nil, domain.TaskStandard, "Chop 20 logs", time.Hour)
	require.NoError(t, err)

	active, err := store.ActiveInstance(ctx, domain.TaskStandard, time.Now())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	// The first announcement is re-rendered as ended.
	assert.Contains(t, gw.messageContent(first.MessageID), "Task ended")
	assert.Contains(t, gw.messageContent(first.MessageID), "Kill 3 goblins")
}

func TestCreateDoesNotRetireOtherType(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	lifecycle := NewInstanceLifecycle(store, newFakeGateway(), testConfig())

	standard, err := lifecycle.Create(ctx, nil, domain.TaskStandard, "Kill 3 goblins", time.Hour)
	require.NoError(t, err)
	_, err = lifecycle.Create(ctx, nil, domain.TaskBonus, "Secret challenge", time.Hour)
	require.NoError(t, err)

	active, err := store.ActiveInstance(ctx, domain.TaskStandard, time.Now())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, standard.ID, active.ID)
}

func TestCreateAnnouncementIncludesInstruction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCatalog(t, store, 1)
	gw := newFakeGateway()
	lifecycle := NewInstanceLifecycle(store, gw, testConfig())

	taskID := 1
	inst, err := lifecycle.Create(ctx, &taskID, domain.TaskStandard, "Task 1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, inst.MessageID)

	sent := gw.lastSent()
	require.NotNil(t, sent)
	assert.Equal(t, "tasks", sent.Ref.ChannelID)
	assert.Contains(t, sent.Content, "Task 1")
	assert.Contains(t, sent.Content, "Submit proof")

	// The announcement location is persisted for later edits.
	stored, err := store.ActiveInstance(ctx, domain.TaskStandard, time.Now())
	require.NoError(t, err)
	assert.Equal(t, inst.MessageID, stored.MessageID)
}

func TestCreateSurvivesSendFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	gw := newFakeGateway()
	gw.sendErr = errors.New("gateway down")
	lifecycle := NewInstanceLifecycle(store, gw, testConfig())

	inst, err := lifecycle.Create(ctx, nil, domain.TaskStandard, "Kill 3 goblins", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, inst.MessageID)

	// The instance exists even though the announcement never went out.
	active, err := store.ActiveInstance(ctx, domain.TaskStandard, time.Now())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, inst.ID, active.ID)
}

func TestEndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	gw := newFakeGateway()
	lifecycle := NewInstanceLifecycle(store, gw, testConfig())

	inst, err := lifecycle.Create(ctx, nil, domain.TaskStandard, "Kill 3 goblins", time.Hour)
	require.NoError(t, err)

	require.NoError(t, lifecycle.End(ctx, inst))
	require.NoError(t, lifecycle.End(ctx, inst))

	active, err := store.ActiveInstance(ctx, domain.TaskStandard, time.Now())
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Contains(t, gw.messageContent(inst.MessageID), "Task ended")
}

func TestEndToleratesDeletedAnnouncement(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	gw := newFakeGateway()
	lifecycle := NewInstanceLifecycle(store, gw, testConfig())

	inst, err := lifecycle.Create(ctx, nil, domain.TaskStandard, "Kill 3 goblins", time.Hour)
	require.NoError(t, err)
	require.NoError(t, gw.Delete(ctx, messenger.MessageRef{ChannelID: inst.ChannelID, MessageID: inst.MessageID}))

	require.NoError(t, lifecycle.End(ctx, inst))
}
