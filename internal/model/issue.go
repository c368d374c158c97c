package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	IssueStateOpened = "opened"
	IssueStateClosed = "closed"

	IssueTypeIncident = "incident"
)

// IssueKey identifies a GitLab issue across projects.
type IssueKey struct {
	ProjectID int64 `json:"project_id"`
	IssueIID  int64 `json:"issue_iid"`
}

func (k IssueKey) String() string {
	return fmt.Sprintf("%d#%d", k.ProjectID, k.IssueIID)
}

type Person struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// DisplayName prefers the full name and falls back to the username.
func (p Person) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.Username
}

// Issue is a point-in-time snapshot of a GitLab issue.
type Issue struct {
	Key         IssueKey   `json:"key"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	WebURL      string     `json:"web_url"`
	Author      Person     `json:"author"`
	Assignee    *Person    `json:"assignee,omitempty"` // primary assignee
	Labels      []string   `json:"labels,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (i *Issue) IsClosed() bool {
	return i.State == IssueStateClosed
}

// AssigneeID returns the primary assignee's id, or nil when unassigned.
func (i *Issue) AssigneeID() *int64 {
	if i.Assignee == nil {
		return nil
	}
	id := i.Assignee.ID
	return &id
}

// Comment is a GitLab note on an issue. System notes are generated by GitLab
// itself (label changes, state changes) and never surface to chat.
type Comment struct {
	ID        int64     `json:"id"`
	Author    Person    `json:"author"`
	Body      string    `json:"body"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
}

// NewIssue is the payload for creating a GitLab issue.
type NewIssue struct {
	Title       string
	Description string
	IssueType   string
	Labels      []string
}

// IssueUpdate changes labels and/or state. A nil Labels leaves labels as they
// are, an empty slice removes all labels.
type IssueUpdate struct {
	StateEvent string
	Labels     *[]string
}

const (
	StateEventReopen = "reopen"
	StateEventClose  = "close"
)

// Upload is a file stored in a GitLab project's uploads.
type Upload struct {
	Alt      string `json:"alt"`
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

// File is a fully downloaded attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f File) IsImage() bool {
	return strings.HasPrefix(f.ContentType, "image/")
}
