// Package draw selects prize winners among completions of task instances
// that have not yet been rewarded.
package draw

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/messenger"
	"github.com/clanhall/taskwheel/internal/repository"
)

type Service struct {
	store   repository.Store
	gateway messenger.Gateway
	prize   decimal.Decimal
}

func New(store repository.Store, gateway messenger.Gateway, prize decimal.Decimal) *Service {
	return &Service{store: store, gateway: gateway, prize: prize}
}

// Options control the draw pool. A zero From/To draws over all instances
// still flagged unclaimed and marks them; a time range re-draws a historical
// window instead, and UpdateTasks=false leaves the flags untouched so a
// correction draw never consumes anything.
type Options struct {
	From, To    time.Time
	UpdateTasks bool
}

// Report is the audit record of one draw.
type Report struct {
	ID                 uuid.UUID
	Winner             *messenger.Profile
	WinningCompletion  *domain.TaskCompletion
	TotalCompletions   int
	StandardCount      int
	BonusCount         int
	UniqueParticipants int
	Prize              decimal.Decimal
}

// Draw picks one completion uniformly from the pool — a participant with more
// completions is proportionally more likely to win. Completions whose user
// can no longer be resolved are excluded and the draw repeats on the rest;
// an exhausted pool yields a report with no winner.
func (s *Service) Draw(ctx context.Context, opts Options) (*Report, error) {
	var (
		instances []domain.TaskInstance
		err       error
	)
	if opts.From.IsZero() && opts.To.IsZero() {
		instances, err = s.store.UndrawnInstances(ctx)
	} else {
		instances, err = s.store.InstancesInRange(ctx, opts.From, opts.To)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(instances))
	typeByID := make(map[int64]domain.TaskType, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
		typeByID[inst.ID] = inst.Type
	}

	pool, err := s.store.CompletionsForInstances(ctx, ids)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ID:               uuid.New(),
		TotalCompletions: len(pool),
		Prize:            s.prize,
	}
	participants := make(map[string]struct{})
	for _, c := range pool {
		participants[c.UserID] = struct{}{}
		switch typeByID[c.InstanceID] {
		case domain.TaskBonus:
			report.BonusCount++
		default:
			report.StandardCount++
		}
	}
	report.UniqueParticipants = len(participants)

	for len(pool) > 0 {
		i := rand.Intn(len(pool))
		c := pool[i]
		profile, err := s.gateway.ResolveUser(ctx, c.UserID)
		if errors.Is(err, messenger.ErrNotFound) {
			pool[i] = pool[len(pool)-1]
			pool = pool[:len(pool)-1]
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve user %s: %w", c.UserID, err)
		}
		report.Winner = &profile
		report.WinningCompletion = &c
		break
	}

	if opts.UpdateTasks {
		if err := s.store.MarkInstancesDrawn(ctx, ids); err != nil {
			return nil, err
		}
	}
	return report, nil
}
