package domain

import "time"

type TaskType string

const (
	TaskStandard TaskType = "standard"
	TaskBonus    TaskType = "bonus"
)

// TaskInstance is one time-boxed occurrence of a task. EvaluatedTask is
// frozen at creation so later catalog edits never change a running challenge.
type TaskInstance struct {
	ID            int64
	TaskID        *int
	Type          TaskType
	EvaluatedTask string
	StartTime     time.Time
	EndTime       time.Time

	// Announcement location; empty when the announcement could not be posted.
	ChannelID string
	MessageID string

	DrawnPrize bool
}

// ActiveAt reports whether the instance covers the given moment.
func (i *TaskInstance) ActiveAt(t time.Time) bool {
	return !i.StartTime.After(t) && i.EndTime.After(t)
}
