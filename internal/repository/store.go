package repository

import (
	"context"
	"time"

	"github.com/clanhall/taskwheel/internal/domain"
)

// Store is the narrow query/command surface every component goes through.
// The store is the single source of truth: components re-read state through
// it before every decision and hold no authoritative copies in between.
//
// Single-row lookups return (nil, nil) when no row matches.
type Store interface {
	// Tasks
	Tasks(ctx context.Context) ([]domain.Task, error)
	TaskByID(ctx context.Context, id int) (*domain.Task, error)
	MaxTaskID(ctx context.Context) (int, error)
	UpsertTask(ctx context.Context, task domain.Task) error
	DeleteAllTasks(ctx context.Context) error

	// Task instances
	ActiveInstance(ctx context.Context, typ domain.TaskType, now time.Time) (*domain.TaskInstance, error)
	LatestInstance(ctx context.Context, typ domain.TaskType) (*domain.TaskInstance, error)
	InstanceAt(ctx context.Context, typ domain.TaskType, at time.Time) (*domain.TaskInstance, error)
	UndrawnInstances(ctx context.Context) ([]domain.TaskInstance, error)
	InstancesInRange(ctx context.Context, from, to time.Time) ([]domain.TaskInstance, error)
	// RotateInstance retires the active instance of inst's type (end_time set
	// to now) and inserts inst in one transaction, filling inst.ID. The
	// retired instance, if any, is returned for announcement cleanup.
	RotateInstance(ctx context.Context, inst *domain.TaskInstance, now time.Time) (*domain.TaskInstance, error)
	// EndInstance sets end_time to now only while the instance is still
	// active; ending an ended instance changes nothing. Reports whether the
	// call retired the instance.
	EndInstance(ctx context.Context, id int64, now time.Time) (bool, error)
	SetInstanceMessage(ctx context.Context, id int64, channelID, messageID string) error
	MarkInstancesDrawn(ctx context.Context, ids []int64) error

	// Votes
	// OpenVote inserts the vote and its options in one transaction, filling
	// vote.ID and every option's ID and VoteID. The insert itself enforces the
	// single-open-vote rule: when an uncompleted vote already exists the call
	// fails with domain.ErrVoteOpen, so two racing writers cannot both open.
	OpenVote(ctx context.Context, vote *domain.TaskVote, options []domain.TaskVoteOption) error
	UncompletedVote(ctx context.Context) (*domain.TaskVote, error)
	LatestVote(ctx context.Context) (*domain.TaskVote, error)
	VoteOptions(ctx context.Context, voteID int64) ([]domain.TaskVoteOption, error)
	CompleteVote(ctx context.Context, voteID int64, selectedOptionID *int64) error
	DeleteVote(ctx context.Context, voteID int64) error
	SetVoteMessage(ctx context.Context, voteID int64, channelID, messageID string) error

	// Completions
	// AddCompletion reports false without error when the participant already
	// has a completion for the instance.
	AddCompletion(ctx context.Context, c *domain.TaskCompletion) (bool, error)
	CompletionsForInstance(ctx context.Context, instanceID int64) ([]domain.TaskCompletion, error)
	CompletionsForInstances(ctx context.Context, ids []int64) ([]domain.TaskCompletion, error)
	RemoveCompletionsByEvidence(ctx context.Context, evidenceMessageID string) ([]domain.TaskCompletion, error)

	// Reaction tallies
	// AdjustReaction applies a signed delta to one symbol's count on one
	// message; counts never go below zero. me marks deltas caused by the bot's
	// own reaction.
	AdjustReaction(ctx context.Context, channelID, messageID, symbol string, delta int, me bool) error
	ReactionTallies(ctx context.Context, channelID, messageID string) ([]domain.ReactionTally, error)
}
