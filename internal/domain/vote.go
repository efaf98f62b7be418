package domain

import "time"

// TaskVote is the currently running or most recently run ballot. At most one
// vote has Completed=false at any time.
type TaskVote struct {
	ID        int64
	StartTime time.Time
	EndTime   time.Time
	Completed bool

	ChannelID string
	MessageID string

	// SelectedOptionID is nil while the vote is open, and stays nil for a
	// tally that received no ballots.
	SelectedOptionID *int64
}

// TaskVoteOption is one ballot choice. Options are written in a batch with
// their parent vote and are read-only afterwards.
type TaskVoteOption struct {
	ID            int64
	VoteID        int64
	OptionIndex   int
	TaskID        *int
	EvaluatedTask string
}
