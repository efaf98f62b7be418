package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/clanhall/taskwheel/internal/domain"
)

// handleStartVote opens a vote immediately. An already-open vote is cancelled
// first; its options are discarded, not reused.
func (h *Handler) handleStartVote(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireAdmin(ctx, update) {
		return
	}

	open, err := h.votes.Uncompleted(ctx)
	if err != nil {
		slog.Error("get open vote", "error", err)
		h.reply(ctx, update, "Could not start a vote.")
		return
	}
	if open != nil {
		if err := h.votes.Cancel(ctx, open); err != nil {
			slog.Error("cancel open vote", "vote_id", open.ID, "error", err)
			h.reply(ctx, update, "Could not cancel the running vote.")
			return
		}
	}

	vote, err := h.votes.Open(ctx)
	if err != nil {
		h.reply(ctx, update, fmt.Sprintf("Could not start a vote: %v", err))
		return
	}
	h.reply(ctx, update, fmt.Sprintf("Vote started, closes %s.", vote.EndTime.UTC().Format("Mon 2 Jan 15:04 MST")))
}

func (h *Handler) handleCancelVote(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireAdmin(ctx, update) {
		return
	}

	err := h.votes.CancelOpen(ctx)
	if errors.Is(err, domain.ErrNoActiveVote) {
		h.reply(ctx, update, "No vote is running.")
		return
	}
	if err != nil {
		slog.Error("cancel vote", "error", err)
		h.reply(ctx, update, "Could not cancel the vote.")
		return
	}
	h.reply(ctx, update, "Vote cancelled.")
}
