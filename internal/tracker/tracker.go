package tracker

import (
	"context"
	"errors"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

var ErrUserNotFound = errors.New("tracker user not found")

// Client is the subset of the issue tracker the notifier talks to.
// Every call is bounded by the client's network timeout.
type Client interface {
	GetIssue(ctx context.Context, key model.IssueKey) (*model.Issue, error)

	// ListComments returns all comments of the issue ordered by ascending id.
	ListComments(ctx context.Context, key model.IssueKey) ([]model.Comment, error)

	CreateIssue(ctx context.Context, projectID int64, issue model.NewIssue) (*model.Issue, error)
	UpdateIssue(ctx context.Context, key model.IssueKey, update model.IssueUpdate) error
	CreateComment(ctx context.Context, key model.IssueKey, body string) (*model.Comment, error)

	// UploadFile stores a file in the project and returns the markdown
	// reference to embed in an issue or comment body.
	UploadFile(ctx context.Context, projectID int64, file model.File) (*model.Upload, error)

	// DownloadUpload fetches a file referenced by an "/uploads/<secret>/<name>" path.
	DownloadUpload(ctx context.Context, projectID int64, path string, maxBytes int64) (*model.File, error)

	// As returns a client acting on behalf of the given tracker user.
	As(trackerUserID int64) Client
}

type Directory interface {
	FindUser(ctx context.Context, username string) (*model.Person, error)
}
