package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/messenger"
)

func (h *Handler) handleCompletions(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	var sb strings.Builder
	for _, typ := range []domain.TaskType{domain.TaskStandard, domain.TaskBonus} {
		inst, err := h.instances.Active(ctx, typ)
		if err != nil {
			slog.Error("get active instance", "task_type", typ, "error", err)
			continue
		}
		if inst == nil {
			continue
		}
		completions, err := h.ledger.ForInstance(ctx, inst.ID)
		if err != nil {
			slog.Error("list completions", "instance_id", inst.ID, "error", err)
			continue
		}
		sb.WriteString(fmt.Sprintf("%s — %d completions\n", inst.EvaluatedTask, len(completions)))
		for _, c := range completions {
			sb.WriteString(fmt.Sprintf("• %s\n", h.displayName(ctx, c.UserID)))
		}
		sb.WriteString("\n")
	}

	if sb.Len() == 0 {
		h.reply(ctx, update, "No task is running right now.")
		return
	}
	h.reply(ctx, update, strings.TrimSpace(sb.String()))
}

func (h *Handler) displayName(ctx context.Context, userID string) string {
	profile, err := h.gateway.ResolveUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, messenger.ErrNotFound) {
			slog.Warn("resolve user", "user_id", userID, "error", err)
		}
		return userID
	}
	return profile.DisplayName
}
