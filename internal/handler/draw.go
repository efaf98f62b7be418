package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/clanhall/taskwheel/internal/draw"
)

// handleDraw draws a winner over every unclaimed instance and marks them
// claimed.
func (h *Handler) handleDraw(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireAdmin(ctx, update) {
		return
	}

	report, err := h.draw.Draw(ctx, draw.Options{UpdateTasks: true})
	if err != nil {
		slog.Error("prize draw", "error", err)
		h.reply(ctx, update, "The draw failed.")
		return
	}
	h.reply(ctx, update, formatReport(report))
}

// handleRedraw re-runs a draw over a historical window. The unclaimed flags
// are left untouched unless "mark" is appended, so correcting a mistaken
// announcement never consumes a second window.
func (h *Handler) handleRedraw(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireAdmin(ctx, update) {
		return
	}

	parts := strings.Fields(update.Message.Text)
	// /redraw <from> <to> [mark], times in RFC 3339
	if len(parts) < 3 {
		h.reply(ctx, update, "Usage: /redraw <from> <to> [mark] (RFC 3339 times)")
		return
	}
	from, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		h.reply(ctx, update, fmt.Sprintf("Bad start time: %v", err))
		return
	}
	to, err := time.Parse(time.RFC3339, parts[2])
	if err != nil {
		h.reply(ctx, update, fmt.Sprintf("Bad end time: %v", err))
		return
	}
	mark := len(parts) > 3 && parts[3] == "mark"

	report, err := h.draw.Draw(ctx, draw.Options{From: from, To: to, UpdateTasks: mark})
	if err != nil {
		slog.Error("prize redraw", "error", err)
		h.reply(ctx, update, "The draw failed.")
		return
	}
	h.reply(ctx, update, formatReport(report))
}

func formatReport(r *draw.Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎲 Draw %s\n", r.ID))
	sb.WriteString(fmt.Sprintf("%d completions (%d standard, %d bonus) from %d participants.\n",
		r.TotalCompletions, r.StandardCount, r.BonusCount, r.UniqueParticipants))
	if r.Winner == nil {
		sb.WriteString("No winners this time.")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("🏆 %s wins %s gp!", r.Winner.DisplayName, r.Prize.String()))
	return sb.String()
}
