package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clanhall/taskwheel/internal/catalog"
	"github.com/clanhall/taskwheel/internal/config"
	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/messenger"
	"github.com/clanhall/taskwheel/internal/repository"
	"github.com/clanhall/taskwheel/internal/template"
)

// VoteLifecycle manages the single open ballot that decides the next
// standard task.
type VoteLifecycle struct {
	store   repository.Store
	catalog *catalog.Service
	gateway messenger.Gateway
	cfg     *config.Config
}

func NewVoteLifecycle(store repository.Store, cat *catalog.Service, gateway messenger.Gateway, cfg *config.Config) *VoteLifecycle {
	return &VoteLifecycle{store: store, catalog: cat, gateway: gateway, cfg: cfg}
}

// Open samples distinct candidate tasks, freezes each option's wording with
// one template evaluation, persists the vote and posts the ballot with one
// seeding reaction per option. The deadline is rounded to the minute.
func (v *VoteLifecycle) Open(ctx context.Context) (*domain.TaskVote, error) {
	existing, err := v.store.UncompletedVote(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrVoteOpen
	}

	tasks, err := v.catalog.RandomTasks(ctx, v.cfg.VotingTaskCount)
	if err != nil {
		return nil, err
	}

	options := make([]domain.TaskVoteOption, len(tasks))
	for i := range tasks {
		evaluated, err := template.Evaluate(tasks[i].Description)
		if err != nil {
			return nil, fmt.Errorf("evaluate option %d: %w", i, err)
		}
		taskID := tasks[i].ID
		options[i] = domain.TaskVoteOption{
			OptionIndex:   i,
			TaskID:        &taskID,
			EvaluatedTask: evaluated,
		}
	}

	now := time.Now()
	vote := &domain.TaskVote{
		StartTime: now,
		EndTime:   roundToMinute(now.Add(v.cfg.VotingWindow)),
	}
	if err := v.store.OpenVote(ctx, vote, options); err != nil {
		return nil, fmt.Errorf("open vote: %w", err)
	}

	ref, err := v.gateway.Send(ctx, v.cfg.VoteChannelID, ballotText(vote, options))
	if err != nil {
		slog.Error("announce vote", "vote_id", vote.ID, "error", err)
		return vote, nil
	}
	vote.ChannelID = ref.ChannelID
	vote.MessageID = ref.MessageID
	if err := v.store.SetVoteMessage(ctx, vote.ID, ref.ChannelID, ref.MessageID); err != nil {
		return nil, fmt.Errorf("store ballot location: %w", err)
	}
	for i := range options {
		if err := v.gateway.AddReaction(ctx, ref, config.BallotSymbols[i]); err != nil {
			slog.Warn("seed ballot reaction", "vote_id", vote.ID, "option", i, "error", err)
		}
	}
	return vote, nil
}

// Tally closes the vote and returns the winning option, or nil when nobody
// voted. The highest count wins; a tie goes to the lowest option index. The
// bot's own seeding reactions are not ballots.
func (v *VoteLifecycle) Tally(ctx context.Context, vote *domain.TaskVote) (*domain.TaskVoteOption, error) {
	options, err := v.store.VoteOptions(ctx, vote.ID)
	if err != nil {
		return nil, err
	}

	counts := make([]int, len(options))
	total := 0
	if vote.MessageID != "" {
		ref := messenger.MessageRef{ChannelID: vote.ChannelID, MessageID: vote.MessageID}
		reactions, err := v.gateway.Reactions(ctx, ref)
		if err != nil && !errors.Is(err, messenger.ErrNotFound) {
			return nil, fmt.Errorf("enumerate ballot reactions: %w", err)
		}
		for _, r := range reactions {
			idx := config.BallotIndex(r.Symbol)
			if idx < 0 || idx >= len(options) {
				continue
			}
			n := r.Count
			if r.Me {
				n--
			}
			if n < 0 {
				n = 0
			}
			counts[idx] = n
			total += n
		}
	}

	if total == 0 {
		// No ballots at all: an explicit no-winner outcome, not an error.
		if err := v.store.CompleteVote(ctx, vote.ID, nil); err != nil {
			return nil, err
		}
		v.editBallot(ctx, vote, "🗳 Voting closed. Nobody voted, so no task was chosen.")
		return nil, nil
	}

	best := 0
	for i := range counts {
		if counts[i] > counts[best] {
			best = i
		}
	}
	winner := options[best]
	if err := v.store.CompleteVote(ctx, vote.ID, &winner.ID); err != nil {
		return nil, err
	}
	v.editBallot(ctx, vote, fmt.Sprintf("🗳 Voting closed. Next task (%d votes):\n\n%s", counts[best], winner.EvaluatedTask))
	return &winner, nil
}

// Cancel deletes an open vote and its ballot message. The vote leaves no
// trace; no task instance ever results from it.
func (v *VoteLifecycle) Cancel(ctx context.Context, vote *domain.TaskVote) error {
	if vote.MessageID != "" {
		ref := messenger.MessageRef{ChannelID: vote.ChannelID, MessageID: vote.MessageID}
		if err := v.gateway.Delete(ctx, ref); err != nil && !errors.Is(err, messenger.ErrNotFound) {
			slog.Warn("delete ballot message", "vote_id", vote.ID, "error", err)
		}
	}
	return v.store.DeleteVote(ctx, vote.ID)
}

// CancelOpen cancels whichever vote is currently open, or reports
// domain.ErrNoActiveVote when none is.
func (v *VoteLifecycle) CancelOpen(ctx context.Context) error {
	open, err := v.store.UncompletedVote(ctx)
	if err != nil {
		return err
	}
	if open == nil {
		return domain.ErrNoActiveVote
	}
	return v.Cancel(ctx, open)
}

func (v *VoteLifecycle) Uncompleted(ctx context.Context) (*domain.TaskVote, error) {
	return v.store.UncompletedVote(ctx)
}

func (v *VoteLifecycle) editBallot(ctx context.Context, vote *domain.TaskVote, text string) {
	if vote.MessageID == "" {
		return
	}
	ref := messenger.MessageRef{ChannelID: vote.ChannelID, MessageID: vote.MessageID}
	if err := v.gateway.Edit(ctx, ref, text); err != nil && !errors.Is(err, messenger.ErrNotFound) {
		slog.Warn("edit ballot message", "vote_id", vote.ID, "error", err)
	}
}

func ballotText(vote *domain.TaskVote, options []domain.TaskVoteOption) string {
	var b strings.Builder
	b.WriteString("🗳 Vote for the next task!\n\n")
	for i, o := range options {
		b.WriteString(fmt.Sprintf("%s %s\n", config.BallotSymbols[i], o.EvaluatedTask))
	}
	b.WriteString(fmt.Sprintf("\nVoting ends %s.", vote.EndTime.UTC().Format("Mon 2 Jan 15:04 MST")))
	return b.String()
}

// roundToMinute rounds to the nearest whole minute, 30 seconds rounding up.
func roundToMinute(t time.Time) time.Time {
	rounded := t.Truncate(time.Minute)
	if t.Sub(rounded) >= 30*time.Second {
		rounded = rounded.Add(time.Minute)
	}
	return rounded
}
