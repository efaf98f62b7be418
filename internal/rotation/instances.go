// Package rotation drives the task/vote rotation: instance lifecycle, vote
// lifecycle and the timed watchers that trigger both from persisted state.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clanhall/taskwheel/internal/config"
	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/messenger"
	"github.com/clanhall/taskwheel/internal/repository"
)

// InstanceLifecycle manages the single active task instance per task type.
type InstanceLifecycle struct {
	store   repository.Store
	gateway messenger.Gateway
	cfg     *config.Config
}

func NewInstanceLifecycle(store repository.Store, gateway messenger.Gateway, cfg *config.Config) *InstanceLifecycle {
	return &InstanceLifecycle{store: store, gateway: gateway, cfg: cfg}
}

// Create starts a new instance with frozen evaluated text. Any instance of
// the same type that is still active is retired in the same store
// transaction, so at most one instance per type ever has end_time in the
// future. The announcement is posted best-effort after the state change.
func (l *InstanceLifecycle) Create(ctx context.Context, taskID *int, typ domain.TaskType, evaluated string, duration time.Duration) (*domain.TaskInstance, error) {
	now := time.Now()
	inst := &domain.TaskInstance{
		TaskID:        taskID,
		Type:          typ,
		EvaluatedTask: evaluated,
		StartTime:     now,
		EndTime:       now.Add(duration),
	}

	retired, err := l.store.RotateInstance(ctx, inst, now)
	if err != nil {
		return nil, fmt.Errorf("rotate instance: %w", err)
	}
	if retired != nil {
		l.clearAnnouncement(ctx, retired)
	}

	ref, err := l.gateway.Send(ctx, l.cfg.TaskChannelID, l.announcement(ctx, inst))
	if err != nil {
		slog.Error("announce task instance", "instance_id", inst.ID, "error", err)
		return inst, nil
	}
	inst.ChannelID = ref.ChannelID
	inst.MessageID = ref.MessageID
	if err := l.store.SetInstanceMessage(ctx, inst.ID, ref.ChannelID, ref.MessageID); err != nil {
		return nil, fmt.Errorf("store announcement location: %w", err)
	}
	return inst, nil
}

// End retires the instance now. Ending an already-ended instance is a no-op;
// the announcement, if one exists, is re-rendered as ended either way, which
// is harmless to repeat.
func (l *InstanceLifecycle) End(ctx context.Context, inst *domain.TaskInstance) error {
	retired, err := l.store.EndInstance(ctx, inst.ID, time.Now())
	if err != nil {
		return err
	}
	if retired || !inst.EndTime.After(time.Now()) {
		l.clearAnnouncement(ctx, inst)
	}
	return nil
}

func (l *InstanceLifecycle) Active(ctx context.Context, typ domain.TaskType) (*domain.TaskInstance, error) {
	return l.store.ActiveInstance(ctx, typ, time.Now())
}

func (l *InstanceLifecycle) Latest(ctx context.Context, typ domain.TaskType) (*domain.TaskInstance, error) {
	return l.store.LatestInstance(ctx, typ)
}

func (l *InstanceLifecycle) At(ctx context.Context, typ domain.TaskType, at time.Time) (*domain.TaskInstance, error) {
	return l.store.InstanceAt(ctx, typ, at)
}

func (l *InstanceLifecycle) announcement(ctx context.Context, inst *domain.TaskInstance) string {
	var b strings.Builder
	switch inst.Type {
	case domain.TaskBonus:
		b.WriteString("🎖 Bonus task!\n\n")
	default:
		b.WriteString("📋 New task!\n\n")
	}
	b.WriteString(inst.EvaluatedTask)
	if inst.TaskID != nil {
		if task, err := l.store.TaskByID(ctx, *inst.TaskID); err == nil && task != nil && task.Instruction != "" {
			b.WriteString("\n\n")
			b.WriteString(task.Instruction)
		}
	}
	b.WriteString(fmt.Sprintf("\n\nEnds %s.", inst.EndTime.UTC().Format("Mon 2 Jan 15:04 MST")))
	return b.String()
}

// clearAnnouncement re-renders a retired instance's announcement as ended.
// A message that is already gone counts as done.
func (l *InstanceLifecycle) clearAnnouncement(ctx context.Context, inst *domain.TaskInstance) {
	if inst.ChannelID == "" || inst.MessageID == "" {
		return
	}
	ref := messenger.MessageRef{ChannelID: inst.ChannelID, MessageID: inst.MessageID}
	err := l.gateway.Edit(ctx, ref, fmt.Sprintf("⏹ Task ended.\n\n%s", inst.EvaluatedTask))
	if err != nil && !errors.Is(err, messenger.ErrNotFound) {
		slog.Warn("clear instance announcement", "instance_id", inst.ID, "error", err)
	}
}
