// Package trackertest provides an in-memory tracker.Client for tests.
package trackertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker"
)

// Note is a comment posted through the fake, with the user it was posted as.
type Note struct {
	Key  model.IssueKey
	Body string
	As   int64
}

type Update struct {
	Key    model.IssueKey
	Update model.IssueUpdate
	As     int64
}

type state struct {
	mu       sync.Mutex
	issues   map[model.IssueKey]*model.Issue
	comments map[model.IssueKey][]model.Comment
	uploads  map[string]*model.File
	users    map[string]model.Person

	created  []model.NewIssue
	notes    []Note
	updates  []Update
	uploaded []string
	nextIID  int64
	nextNote int64

	errGetIssue     error
	errListComments error
	errCreateIssue  error
	errComment      error
	errUpdate       error
	failUploads     map[string]bool
	getIssueCalls   int
}

// Fake implements tracker.Client and tracker.Directory.
type Fake struct {
	s  *state
	as int64
}

func NewFake() *Fake {
	return &Fake{s: &state{
		issues:      make(map[model.IssueKey]*model.Issue),
		comments:    make(map[model.IssueKey][]model.Comment),
		uploads:     make(map[string]*model.File),
		users:       make(map[string]model.Person),
		failUploads: make(map[string]bool),
		nextIID:     100,
		nextNote:    1000,
	}}
}

func (f *Fake) As(trackerUserID int64) tracker.Client {
	return &Fake{s: f.s, as: trackerUserID}
}

// PutIssue stores a snapshot returned by GetIssue.
func (f *Fake) PutIssue(issue model.Issue) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	copied := issue
	f.s.issues[issue.Key] = &copied
}

func (f *Fake) PutComments(key model.IssueKey, comments ...model.Comment) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.comments[key] = append([]model.Comment(nil), comments...)
}

func (f *Fake) PutUpload(path string, file model.File) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	copied := file
	f.s.uploads[path] = &copied
}

func (f *Fake) PutUser(person model.Person) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.users[strings.ToLower(person.Username)] = person
}

func (f *Fake) FailGetIssue(err error)     { f.setErr(&f.s.errGetIssue, err) }
func (f *Fake) FailListComments(err error) { f.setErr(&f.s.errListComments, err) }
func (f *Fake) FailCreateIssue(err error)  { f.setErr(&f.s.errCreateIssue, err) }
func (f *Fake) FailComment(err error)      { f.setErr(&f.s.errComment, err) }
func (f *Fake) FailUpdate(err error)       { f.setErr(&f.s.errUpdate, err) }

// FailUpload makes uploads of the named file fail.
func (f *Fake) FailUpload(name string) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.failUploads[name] = true
}

func (f *Fake) setErr(dst *error, err error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	*dst = err
}

func (f *Fake) Created() []model.NewIssue {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]model.NewIssue(nil), f.s.created...)
}

func (f *Fake) Notes() []Note {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]Note(nil), f.s.notes...)
}

func (f *Fake) Updates() []Update {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]Update(nil), f.s.updates...)
}

func (f *Fake) Uploaded() []string {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]string(nil), f.s.uploaded...)
}

func (f *Fake) GetIssueCalls() int {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.getIssueCalls
}

func (f *Fake) GetIssue(ctx context.Context, key model.IssueKey) (*model.Issue, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.getIssueCalls++
	if f.s.errGetIssue != nil {
		return nil, f.s.errGetIssue
	}
	issue, ok := f.s.issues[key]
	if !ok {
		return nil, fmt.Errorf("issue %s: 404 not found", key)
	}
	copied := *issue
	return &copied, nil
}

func (f *Fake) ListComments(ctx context.Context, key model.IssueKey) ([]model.Comment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.errListComments != nil {
		return nil, f.s.errListComments
	}
	comments := append([]model.Comment(nil), f.s.comments[key]...)
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	return comments, nil
}

func (f *Fake) CreateIssue(ctx context.Context, projectID int64, issue model.NewIssue) (*model.Issue, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.errCreateIssue != nil {
		return nil, f.s.errCreateIssue
	}
	f.s.nextIID++
	f.s.created = append(f.s.created, issue)
	created := &model.Issue{
		Key:         model.IssueKey{ProjectID: projectID, IssueIID: f.s.nextIID},
		Title:       issue.Title,
		Description: issue.Description,
		State:       model.IssueStateOpened,
		WebURL:      fmt.Sprintf("https://gitlab.example/p/-/issues/%d", f.s.nextIID),
		Labels:      issue.Labels,
		CreatedAt:   time.Now(),
	}
	stored := *created
	f.s.issues[created.Key] = &stored
	return created, nil
}

func (f *Fake) UpdateIssue(ctx context.Context, key model.IssueKey, update model.IssueUpdate) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.errUpdate != nil {
		return f.s.errUpdate
	}
	f.s.updates = append(f.s.updates, Update{Key: key, Update: update, As: f.as})
	if issue, ok := f.s.issues[key]; ok {
		if update.Labels != nil {
			issue.Labels = append([]string(nil), (*update.Labels)...)
		}
		switch update.StateEvent {
		case model.StateEventReopen:
			issue.State = model.IssueStateOpened
			issue.ClosedAt = nil
		case model.StateEventClose:
			issue.State = model.IssueStateClosed
			now := time.Now()
			issue.ClosedAt = &now
		}
	}
	return nil
}

func (f *Fake) CreateComment(ctx context.Context, key model.IssueKey, body string) (*model.Comment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.errComment != nil {
		return nil, f.s.errComment
	}
	f.s.nextNote++
	f.s.notes = append(f.s.notes, Note{Key: key, Body: body, As: f.as})
	comment := model.Comment{
		ID:        f.s.nextNote,
		Author:    model.Person{ID: f.as},
		Body:      body,
		CreatedAt: time.Now(),
	}
	f.s.comments[key] = append(f.s.comments[key], comment)
	return &comment, nil
}

func (f *Fake) UploadFile(ctx context.Context, projectID int64, file model.File) (*model.Upload, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failUploads[file.Name] {
		return nil, fmt.Errorf("uploading %s: 500 internal error", file.Name)
	}
	f.s.uploaded = append(f.s.uploaded, file.Name)
	path := fmt.Sprintf("/uploads/%032d/%s", len(f.s.uploaded), file.Name)
	copied := file
	f.s.uploads[path] = &copied
	return &model.Upload{
		Alt:      file.Name,
		URL:      path,
		Markdown: fmt.Sprintf("[%s](%s)", file.Name, path),
	}, nil
}

func (f *Fake) DownloadUpload(ctx context.Context, projectID int64, path string, maxBytes int64) (*model.File, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	file, ok := f.s.uploads[path]
	if !ok {
		return nil, fmt.Errorf("downloading %s: 404 not found", path)
	}
	if maxBytes > 0 && int64(len(file.Data)) > maxBytes {
		return nil, tracker.ErrUploadTooLarge
	}
	copied := *file
	return &copied, nil
}

func (f *Fake) FindUser(ctx context.Context, username string) (*model.Person, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	person, ok := f.s.users[strings.ToLower(strings.TrimPrefix(username, "@"))]
	if !ok {
		return nil, tracker.ErrUserNotFound
	}
	return &person, nil
}
