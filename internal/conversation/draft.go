package conversation

import (
	"errors"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

var (
	ErrTooManyAttachments = errors.New("too many attachments")
	ErrAttachmentTooLarge = errors.New("attachment too large")
)

// Draft is the in-progress input of one chat. Attachments are held in full
// until submission.
type Draft struct {
	State   State
	History []State

	// Issue creation.
	Title       string
	Description string

	// Comment, rework and attach flows target an existing issue and act as
	// the chat user's tracker account.
	Key           model.IssueKey
	TrackerUserID int64
	Text          string

	Files []model.File

	// Progress of a submission that failed partway; a retry resumes after it.
	uploaded      int
	refs          []string
	commentPosted bool

	maxFiles int
	maxSize  int64
}

func newDraft(state State, maxFiles int, maxSize int64) *Draft {
	return &Draft{State: state, maxFiles: maxFiles, maxSize: maxSize}
}

// Full reports whether another attachment would exceed the count limit.
func (d *Draft) Full() bool {
	return len(d.Files) >= d.maxFiles
}

// AddAttachment enforces the count limit before the size limit.
func (d *Draft) AddAttachment(file model.File) error {
	if d.Full() {
		return ErrTooManyAttachments
	}
	if int64(len(file.Data)) > d.maxSize {
		return ErrAttachmentTooLarge
	}
	d.Files = append(d.Files, file)
	return nil
}

// advance moves forward and remembers where it came from.
func (d *Draft) advance(next State) {
	d.History = append(d.History, d.State)
	d.State = next
}

// retreat returns to the previous state, clearing what the state being left
// collected. It reports false when there is nowhere to go back to.
func (d *Draft) retreat() bool {
	if len(d.History) == 0 {
		return false
	}
	switch d.State {
	case StateSelectDescription:
		d.Description = ""
	case StateAddFiles, StateCommentFiles, StateReworkFiles:
		d.Files = nil
	}
	d.uploaded, d.refs, d.commentPosted = 0, nil, false
	d.State = d.History[len(d.History)-1]
	d.History = d.History[:len(d.History)-1]
	return true
}
