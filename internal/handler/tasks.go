package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/template"
)

func (h *Handler) handleTask(ctx context.Context, b *bot.Bot, update *models.Update) {
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
		if typ == domain.TaskBonus {
			sb.WriteString("🎖 Bonus task:\n")
		} else {
			sb.WriteString("📋 Current task:\n")
		}
		sb.WriteString(inst.EvaluatedTask)
		sb.WriteString(fmt.Sprintf("\nEnds in %s.\n\n", time.Until(inst.EndTime).Round(time.Minute)))
	}

	if sb.Len() == 0 {
		h.reply(ctx, update, "No task is running right now.")
		return
	}
	h.reply(ctx, update, strings.TrimSpace(sb.String()))
}

// parseTaskSpec splits "description;instruction" the same way the bulk file
// loader does.
func parseTaskSpec(spec string) (description, instruction string, ok bool) {
	fields := strings.Split(spec, ";")
	if len(fields) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), true
}

func (h *Handler) handleAddTask(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireAdmin(ctx, update) {
		return
	}

	parts := strings.SplitN(update.Message.Text, " ", 3)
	// /addtask <weight> <description>;<instruction>
	if len(parts) < 3 {
		h.reply(ctx, update, "Usage: /addtask <weight> <description>;<instruction>")
		return
	}
	weight, err := strconv.Atoi(parts[1])
	if err != nil || weight < 0 {
		h.reply(ctx, update, "Weight must be a non-negative integer.")
		return
	}
	description, instruction, ok := parseTaskSpec(parts[2])
	if !ok {
		h.reply(ctx, update, "Expected exactly one ';' between description and instruction.")
		return
	}

	id, err := h.catalog.NextID(ctx)
	if err != nil {
		slog.Error("next task id", "error", err)
		h.reply(ctx, update, "Could not add the task.")
		return
	}
	task := domain.Task{ID: id, Description: description, Instruction: instruction, Weight: weight}
	if err := h.catalog.Upsert(ctx, task); err != nil {
		h.reply(ctx, update, fmt.Sprintf("Could not add the task: %v", err))
		return
	}
	h.reply(ctx, update, fmt.Sprintf("Task %d added.", id))
}

func (h *Handler) handleEditTask(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireAdmin(ctx, update) {
		return
	}

	parts := strings.SplitN(update.Message.Text, " ", 4)
	// /edittask <id> <weight> <description>;<instruction>
	if len(parts) < 4 {
		h.reply(ctx, update, "Usage: /edittask <id> <weight> <description>;<instruction>")
		return
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		h.reply(ctx, update, "Task id must be an integer.")
		return
	}
	weight, err := strconv.Atoi(parts[2])
	if err != nil || weight < 0 {
		h.reply(ctx, update, "Weight must be a non-negative integer.")
		return
	}
	if _, err := h.catalog.Get(ctx, id); err != nil {
		h.reply(ctx, update, fmt.Sprintf("Task %d does not exist.", id))
		return
	}
	description, instruction, ok := parseTaskSpec(parts[3])
	if !ok {
		h.reply(ctx, update, "Expected exactly one ';' between description and instruction.")
		return
	}

	task := domain.Task{ID: id, Description: description, Instruction: instruction, Weight: weight}
	if err := h.catalog.Upsert(ctx, task); err != nil {
		h.reply(ctx, update, fmt.Sprintf("Could not edit the task: %v", err))
		return
	}
	h.reply(ctx, update, fmt.Sprintf("Task %d updated.", id))
}

func (h *Handler) handleReloadTasks(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireAdmin(ctx, update) {
		return
	}
	if h.cfg.TasksFile == "" {
		h.reply(ctx, update, "No task file is configured.")
		return
	}
	n, err := h.catalog.Reload(ctx, h.cfg.TasksFile)
	if err != nil {
		slog.Error("reload tasks", "error", err)
		h.reply(ctx, update, fmt.Sprintf("Reload failed: %v", err))
		return
	}
	h.reply(ctx, update, fmt.Sprintf("Catalog reloaded, %d tasks.", n))
}

func (h *Handler) handleBonusTask(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireAdmin(ctx, update) {
		return
	}

	parts := strings.Fields(update.Message.Text)
	// /bonustask <task_id> [hours]
	if len(parts) < 2 {
		h.reply(ctx, update, "Usage: /bonustask <task_id> [hours]")
		return
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		h.reply(ctx, update, "Task id must be an integer.")
		return
	}
	duration := h.cfg.BonusDuration
	if len(parts) > 2 {
		hours, err := strconv.Atoi(parts[2])
		if err != nil || hours <= 0 {
			h.reply(ctx, update, "Hours must be a positive integer.")
			return
		}
		duration = time.Duration(hours) * time.Hour
	}

	task, err := h.catalog.Get(ctx, id)
	if err != nil {
		h.reply(ctx, update, fmt.Sprintf("Task %d does not exist.", id))
		return
	}
	evaluated, err := template.Evaluate(task.Description)
	if err != nil {
		h.reply(ctx, update, fmt.Sprintf("Task %d has a broken description: %v", id, err))
		return
	}
	inst, err := h.instances.Create(ctx, &task.ID, domain.TaskBonus, evaluated, duration)
	if err != nil {
		slog.Error("create bonus instance", "task_id", id, "error", err)
		h.reply(ctx, update, "Could not start the bonus task.")
		return
	}
	h.reply(ctx, update, fmt.Sprintf("Bonus task started, ends %s.", inst.EndTime.UTC().Format("Mon 2 Jan 15:04 MST")))
}
