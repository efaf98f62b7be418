package rotation

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/clanhall/taskwheel/internal/catalog"
	"github.com/clanhall/taskwheel/internal/config"
	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/ledger"
	"github.com/clanhall/taskwheel/internal/messenger"
	"github.com/clanhall/taskwheel/internal/repository"
)

// Scheduler owns the timed watchers. Each watcher recomputes its decision
// from persisted timestamps on every tick, so the process can restart at any
// point without losing a transition: there are no in-memory timers keyed to
// deadlines anywhere.
type Scheduler struct {
	store     repository.Store
	catalog   *catalog.Service
	instances *InstanceLifecycle
	votes     *VoteLifecycle
	ledger    *ledger.Service
	gateway   messenger.Gateway
	cfg       *config.Config

	// CanApprove gates completion attestation. Defaults to the config
	// approver list.
	CanApprove func(ctx context.Context, userID string) bool
}

func NewScheduler(store repository.Store, cat *catalog.Service, instances *InstanceLifecycle, votes *VoteLifecycle, led *ledger.Service, gateway messenger.Gateway, cfg *config.Config) *Scheduler {
	s := &Scheduler{
		store:     store,
		catalog:   cat,
		instances: instances,
		votes:     votes,
		ledger:    led,
		gateway:   gateway,
		cfg:       cfg,
	}
	s.CanApprove = func(_ context.Context, userID string) bool {
		return cfg.IsApprover(userID)
	}
	return s
}

// Watcher is one independent polling loop. RunOnce reads persisted state,
// decides whether a timed transition is due and performs it; every transition
// it triggers is idempotent, so a redundant tick is harmless.
type Watcher struct {
	Name     string
	Interval time.Duration
	RunOnce  func(ctx context.Context) error
}

// Run polls until the context is cancelled. A failing or panicking iteration
// is logged and the loop continues at the next tick.
func (w Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w Watcher) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered in watcher",
				"watcher", w.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	if err := w.RunOnce(ctx); err != nil {
		slog.Error("watcher iteration failed", "watcher", w.Name, "error", err)
	}
}

// Watchers returns the timed loops: vote-start, vote-end and task-start.
func (s *Scheduler) Watchers() []Watcher {
	return []Watcher{
		{Name: "vote-start", Interval: config.PollInterval, RunOnce: s.VoteStartOnce},
		{Name: "vote-end", Interval: config.PollInterval, RunOnce: s.VoteEndOnce},
		{Name: "task-start", Interval: config.PollInterval, RunOnce: s.TaskStartOnce},
	}
}

// VoteStartOnce opens a new vote when none is open, no completed vote is
// still waiting for its task to start, and the active standard instance is
// absent or inside the lead window before its end.
func (s *Scheduler) VoteStartOnce(ctx context.Context) error {
	now := time.Now()

	open, err := s.store.UncompletedVote(ctx)
	if err != nil {
		return err
	}
	if open != nil {
		return nil
	}

	latest, err := s.store.LatestVote(ctx)
	if err != nil {
		return err
	}
	if latest != nil && latest.SelectedOptionID != nil {
		materialized, err := s.voteMaterialized(ctx, latest)
		if err != nil {
			return err
		}
		if !materialized {
			return nil
		}
	}

	active, err := s.store.ActiveInstance(ctx, domain.TaskStandard, now)
	if err != nil {
		return err
	}
	lead := s.cfg.VotingWindow + s.cfg.TaskStartDelay
	if active != nil && active.EndTime.Sub(now) > lead {
		return nil
	}

	_, err = s.votes.Open(ctx)
	if errors.Is(err, domain.ErrVoteOpen) {
		// Another watcher iteration won the race; nothing to do.
		return nil
	}
	if errors.Is(err, domain.ErrCatalogEmpty) || errors.Is(err, domain.ErrInsufficientCatalog) {
		slog.Warn("cannot open vote", "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("vote opened")
	return nil
}

// VoteEndOnce tallies the open vote once its persisted deadline has passed.
func (s *Scheduler) VoteEndOnce(ctx context.Context) error {
	now := time.Now()

	open, err := s.store.UncompletedVote(ctx)
	if err != nil {
		return err
	}
	if open == nil || open.EndTime.After(now) {
		return nil
	}

	winner, err := s.votes.Tally(ctx, open)
	if err != nil {
		return err
	}
	if winner == nil {
		slog.Info("vote closed with no ballots", "vote_id", open.ID)
	} else {
		slog.Info("vote closed", "vote_id", open.ID, "selected_option", winner.OptionIndex)
	}
	return nil
}

// TaskStartOnce materializes the selected option of the latest completed vote
// once the grace delay past the vote deadline has elapsed. The frozen option
// text is reused as-is; rotation must not re-randomize wording.
func (s *Scheduler) TaskStartOnce(ctx context.Context) error {
	now := time.Now()

	latest, err := s.store.LatestVote(ctx)
	if err != nil {
		return err
	}
	if latest == nil || !latest.Completed || latest.SelectedOptionID == nil {
		return nil
	}
	if now.Before(latest.EndTime.Add(s.cfg.TaskStartDelay)) {
		return nil
	}

	materialized, err := s.voteMaterialized(ctx, latest)
	if err != nil {
		return err
	}
	if materialized {
		return nil
	}

	options, err := s.store.VoteOptions(ctx, latest.ID)
	if err != nil {
		return err
	}
	var selected *domain.TaskVoteOption
	for i := range options {
		if options[i].ID == *latest.SelectedOptionID {
			selected = &options[i]
			break
		}
	}
	if selected == nil {
		slog.Error("selected vote option missing", "vote_id", latest.ID, "option_id", *latest.SelectedOptionID)
		return nil
	}

	inst, err := s.instances.Create(ctx, selected.TaskID, domain.TaskStandard, selected.EvaluatedTask, s.cfg.TaskDuration)
	if err != nil {
		return err
	}
	slog.Info("task instance started from vote", "vote_id", latest.ID, "instance_id", inst.ID)
	return nil
}

// voteMaterialized reports whether a standard instance has already been
// created for this vote: any standard instance started after the vote closed.
func (s *Scheduler) voteMaterialized(ctx context.Context, vote *domain.TaskVote) (bool, error) {
	latest, err := s.store.LatestInstance(ctx, domain.TaskStandard)
	if err != nil {
		return false, err
	}
	return latest != nil && !latest.StartTime.Before(vote.EndTime), nil
}

// RunReactionWatcher consumes the gateway's reaction stream for the lifetime
// of the context, recording and retracting completions. The wait for the next
// event is unbounded.
func (s *Scheduler) RunReactionWatcher(ctx context.Context) {
	events, cancel := s.gateway.SubscribeReactions(ctx)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleReaction(ctx, ev)
		}
	}
}

func (s *Scheduler) handleReaction(ctx context.Context, ev messenger.ReactionEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered in reaction watcher", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	var typ domain.TaskType
	switch ev.Symbol {
	case config.ApproveStandardSymbol:
		typ = domain.TaskStandard
	case config.ApproveBonusSymbol:
		typ = domain.TaskBonus
	default:
		return
	}
	if !s.CanApprove(ctx, ev.ActorID) {
		return
	}

	switch ev.Kind {
	case messenger.ReactionAdded:
		s.approveCompletion(ctx, ev, typ)
	case messenger.ReactionRemoved:
		removed, err := s.ledger.RemoveByEvidenceMessage(ctx, ev.Message.MessageID)
		if err != nil {
			slog.Error("retract completion", "evidence_message", ev.Message.MessageID, "error", err)
			return
		}
		if len(removed) > 0 {
			slog.Info("completion retracted", "evidence_message", ev.Message.MessageID, "count", len(removed))
		}
	}
}

func (s *Scheduler) approveCompletion(ctx context.Context, ev messenger.ReactionEvent, typ domain.TaskType) {
	if ev.AuthorID == "" {
		slog.Warn("approval on message with unknown author", "evidence_message", ev.Message.MessageID)
		return
	}

	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	inst, err := s.store.InstanceAt(ctx, typ, at)
	if err != nil {
		slog.Error("look up instance for approval", "error", err)
		return
	}
	if inst == nil {
		slog.Warn("approval with no instance active", "task_type", typ, "evidence_message", ev.Message.MessageID)
		return
	}

	recorded, err := s.ledger.Add(ctx, &domain.TaskCompletion{
		InstanceID:        inst.ID,
		UserID:            ev.AuthorID,
		ApproverID:        ev.ActorID,
		CompletionTime:    at,
		EvidenceChannelID: ev.Message.ChannelID,
		EvidenceMessageID: ev.Message.MessageID,
	})
	if err != nil {
		slog.Error("record completion", "error", err)
		return
	}
	if !recorded {
		slog.Debug("completion already recorded", "instance_id", inst.ID, "user_id", ev.AuthorID)
		return
	}
	slog.Info("completion recorded", "instance_id", inst.ID, "user_id", ev.AuthorID, "approver_id", ev.ActorID)
}
