package domain

import "time"

// TaskCompletion is one attested submission against a task instance.
// (InstanceID, UserID) is unique: a participant completes an instance at most
// once. External identifiers are kept as opaque strings.
type TaskCompletion struct {
	ID                int64
	InstanceID        int64
	UserID            string
	ApproverID        string
	CompletionTime    time.Time
	EvidenceChannelID string
	EvidenceMessageID string
}
