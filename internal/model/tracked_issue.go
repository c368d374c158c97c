package model

import "time"

// TrackedIssue is the watermark row for one issue under observation.
type TrackedIssue struct {
	Key        IssueKey   `json:"key"`
	ChatID     int64      `json:"chat_id"`
	Notified   bool       `json:"notified"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`

	// CommentWatermark is the highest comment id already surfaced to chat.
	// It never decreases.
	CommentWatermark int64             `json:"comment_watermark"`
	Assignee         AssigneeWatermark `json:"assignee"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssigneeWatermark separates "never looked" from "looked and nobody was
// assigned". Observed=false means the assignee was never observed; Observed
// with a nil ID means the issue was seen unassigned.
type AssigneeWatermark struct {
	Observed bool   `json:"observed"`
	ID       *int64 `json:"id,omitempty"`
}

// AssigneeChange is the outcome of comparing a watermark with a fresh snapshot.
type AssigneeChange int

const (
	AssigneeUnchanged AssigneeChange = iota
	// AssigneeRecorded: the watermark must be updated but nobody is told
	// (first observation of an unassigned issue, or an unassignment).
	AssigneeRecorded
	// AssigneeSet: a user was assigned where nobody was known before.
	AssigneeSet
	// AssigneeChanged: a different user replaced a known assignee.
	AssigneeChanged
)

// Compare classifies the current primary assignee against the watermark.
func (w AssigneeWatermark) Compare(current *int64) AssigneeChange {
	switch {
	case current == nil && w.Observed && w.ID == nil:
		return AssigneeUnchanged
	case current == nil:
		return AssigneeRecorded
	case w.ID != nil && *w.ID == *current:
		return AssigneeUnchanged
	case w.ID == nil:
		return AssigneeSet
	default:
		return AssigneeChanged
	}
}

// Subscription opts a chat user into comment notifications for an issue.
type Subscription struct {
	ID           int64     `json:"id"`
	SubscriberID int64     `json:"subscriber_id"`
	Key          IssueKey  `json:"key"`
	CreatedAt    time.Time `json:"created_at"`
}
