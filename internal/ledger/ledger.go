// Package ledger records attested task completions with at-most-one-per-
// participant enforcement.
package ledger

import (
	"context"

	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/repository"
)

type Service struct {
	store repository.Store
}

func New(store repository.Store) *Service {
	return &Service{store: store}
}

// Add records a completion. A duplicate (instance, user) pair is an expected
// race between approvers, not an error: the store keeps the first row and
// Add reports recorded=false.
func (s *Service) Add(ctx context.Context, c *domain.TaskCompletion) (bool, error) {
	return s.store.AddCompletion(ctx, c)
}

// RemoveByEvidenceMessage retracts every completion attested on the given
// evidence message and returns the removed rows.
func (s *Service) RemoveByEvidenceMessage(ctx context.Context, evidenceMessageID string) ([]domain.TaskCompletion, error) {
	return s.store.RemoveCompletionsByEvidence(ctx, evidenceMessageID)
}

// ForInstance lists all completions of one task instance.
func (s *Service) ForInstance(ctx context.Context, instanceID int64) ([]domain.TaskCompletion, error) {
	return s.store.CompletionsForInstance(ctx, instanceID)
}
