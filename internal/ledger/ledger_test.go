package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/repository/memory"
)

func completion(instanceID int64, userID, evidenceID string) *domain.TaskCompletion {
	return &domain.TaskCompletion{
		InstanceID:        instanceID,
		UserID:            userID,
		ApproverID:        "approver",
		CompletionTime:    time.Now(),
		EvidenceChannelID: "community",
		EvidenceMessageID: evidenceID,
	}
}

func TestAddRejectsDuplicateParticipant(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewStore())

	recorded, err := svc.Add(ctx, completion(1, "player1", "100"))
	require.NoError(t, err)
	assert.True(t, recorded)

	// Second attestation of the same player on the same instance is dropped
	// without error, even on different evidence.
	recorded, err = svc.Add(ctx, completion(1, "player1", "101"))
	require.NoError(t, err)
	assert.False(t, recorded)

	completions, err := svc.ForInstance(ctx, 1)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	assert.Equal(t, "100", completions[0].EvidenceMessageID)
}

func TestAddAllowsSameUserAcrossInstances(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewStore())

	recorded, err := svc.Add(ctx, completion(1, "player1", "100"))
	require.NoError(t, err)
	assert.True(t, recorded)
	recorded, err = svc.Add(ctx, completion(2, "player1", "101"))
	require.NoError(t, err)
	assert.True(t, recorded)
}

func TestRemoveByEvidenceMessage(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewStore())

	_, err := svc.Add(ctx, completion(1, "player1", "100"))
	require.NoError(t, err)
	_, err = svc.Add(ctx, completion(1, "player2", "200"))
	require.NoError(t, err)

	removed, err := svc.RemoveByEvidenceMessage(ctx, "100")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "player1", removed[0].UserID)

	// Only the exact evidence message is touched.
	completions, err := svc.ForInstance(ctx, 1)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	assert.Equal(t, "player2", completions[0].UserID)

	// Retracting again finds nothing.
	removed, err = svc.RemoveByEvidenceMessage(ctx, "100")
	require.NoError(t, err)
	assert.Empty(t, removed)
}
