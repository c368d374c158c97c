package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

var ErrUploadTooLarge = errors.New("upload exceeds size limit")

type GitLabConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// GitLab implements Client and Directory on top of the GitLab REST API.
type GitLab struct {
	client  *gitlab.Client
	timeout time.Duration
	sudo    []gitlab.RequestOptionFunc
}

func NewGitLab(cfg GitLabConfig) (*GitLab, error) {
	client, err := newClient(cfg.BaseURL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GitLab{client: client, timeout: timeout}, nil
}

func newClient(baseURL, token string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

func (g *GitLab) As(trackerUserID int64) Client {
	return &GitLab{
		client:  g.client,
		timeout: g.timeout,
		sudo:    []gitlab.RequestOptionFunc{gitlab.WithSudo(trackerUserID)},
	}
}

func (g *GitLab) options(ctx context.Context) []gitlab.RequestOptionFunc {
	opts := make([]gitlab.RequestOptionFunc, 0, len(g.sudo)+1)
	opts = append(opts, gitlab.WithContext(ctx))
	return append(opts, g.sudo...)
}

func (g *GitLab) GetIssue(ctx context.Context, key model.IssueKey) (*model.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	issue, _, err := g.client.Issues.GetIssue(key.ProjectID, key.IssueIID, g.options(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("fetching issue %s from gitlab: %w", key, err)
	}

	return mapIssue(issue), nil
}

func (g *GitLab) ListComments(ctx context.Context, key model.IssueKey) ([]model.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	opts := &gitlab.ListIssueNotesOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: 100},
		OrderBy:     gitlab.Ptr("created_at"),
		Sort:        gitlab.Ptr("asc"),
	}

	var comments []model.Comment
	for {
		notes, resp, err := g.client.Notes.ListIssueNotes(key.ProjectID, key.IssueIID, opts, g.options(ctx)...)
		if err != nil {
			return nil, fmt.Errorf("listing notes of issue %s: %w", key, err)
		}

		for _, n := range notes {
			if n == nil {
				continue
			}
			comments = append(comments, mapNote(n))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	return comments, nil
}

func (g *GitLab) CreateIssue(ctx context.Context, projectID int64, issue model.NewIssue) (*model.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	opts := &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(issue.Title),
		Description: gitlab.Ptr(issue.Description),
	}
	if issue.IssueType != "" {
		opts.IssueType = gitlab.Ptr(issue.IssueType)
	}
	if len(issue.Labels) > 0 {
		labels := gitlab.LabelOptions(issue.Labels)
		opts.Labels = &labels
	}

	created, _, err := g.client.Issues.CreateIssue(projectID, opts, g.options(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab issue: %w", err)
	}

	return mapIssue(created), nil
}

func (g *GitLab) UpdateIssue(ctx context.Context, key model.IssueKey, update model.IssueUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	opts := &gitlab.UpdateIssueOptions{}
	if update.StateEvent != "" {
		opts.StateEvent = gitlab.Ptr(update.StateEvent)
	}
	if update.Labels != nil {
		labels := gitlab.LabelOptions(*update.Labels)
		opts.Labels = &labels
	}

	if _, _, err := g.client.Issues.UpdateIssue(key.ProjectID, key.IssueIID, opts, g.options(ctx)...); err != nil {
		return fmt.Errorf("updating issue %s: %w", key, err)
	}
	return nil
}

func (g *GitLab) CreateComment(ctx context.Context, key model.IssueKey, body string) (*model.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	note, _, err := g.client.Notes.CreateIssueNote(key.ProjectID, key.IssueIID, &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, g.options(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("commenting on issue %s: %w", key, err)
	}

	comment := mapNote(note)
	return &comment, nil
}

func (g *GitLab) UploadFile(ctx context.Context, projectID int64, file model.File) (*model.Upload, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	uploaded, _, err := g.client.ProjectMarkdownUploads.UploadProjectMarkdown(
		projectID,
		bytes.NewReader(file.Data),
		file.Name,
		g.options(ctx)...,
	)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", file.Name, err)
	}

	return &model.Upload{
		Alt:      uploaded.Alt,
		URL:      uploaded.URL,
		Markdown: uploaded.Markdown,
	}, nil
}

func (g *GitLab) DownloadUpload(ctx context.Context, projectID int64, path string, maxBytes int64) (*model.File, error) {
	secret, filename, err := splitUploadPath(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := g.client.NewRequest(
		http.MethodGet,
		fmt.Sprintf("projects/%d/uploads/%s/%s", projectID, url.PathEscape(secret), url.PathEscape(filename)),
		nil,
		g.options(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("building download request for %s: %w", filename, err)
	}

	buf := &cappedBuffer{max: maxBytes}
	resp, err := g.client.Do(req, buf)
	if err != nil {
		if errors.Is(err, ErrUploadTooLarge) {
			return nil, fmt.Errorf("downloading %s: %w", filename, ErrUploadTooLarge)
		}
		return nil, fmt.Errorf("downloading %s: %w", filename, err)
	}

	contentType := ""
	if resp != nil {
		contentType = resp.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = http.DetectContentType(buf.Bytes())
	}

	return &model.File{
		Name:        filename,
		ContentType: contentType,
		Data:        buf.Bytes(),
	}, nil
}

func (g *GitLab) FindUser(ctx context.Context, username string) (*model.Person, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	users, _, err := g.client.Users.ListUsers(&gitlab.ListUsersOptions{
		Username: gitlab.Ptr(username),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("looking up gitlab user %s: %w", username, err)
	}

	for _, u := range users {
		if u != nil && strings.EqualFold(u.Username, username) {
			return &model.Person{ID: int64(u.ID), Username: u.Username, Name: u.Name}, nil
		}
	}

	return nil, ErrUserNotFound
}

// splitUploadPath turns "/uploads/<secret>/<name>" into its parts.
func splitUploadPath(path string) (string, string, error) {
	rest, ok := strings.CutPrefix(path, "/uploads/")
	if !ok {
		return "", "", fmt.Errorf("not an upload path: %q", path)
	}
	secret, name, ok := strings.Cut(rest, "/")
	if !ok || secret == "" || name == "" {
		return "", "", fmt.Errorf("not an upload path: %q", path)
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return secret, name, nil
}

// cappedBuffer fails the copy once more than max bytes were written.
// The buffer is not embedded so io.Copy cannot bypass Write via ReadFrom.
type cappedBuffer struct {
	buf bytes.Buffer
	max int64
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && int64(b.buf.Len()+len(p)) > b.max {
		return 0, ErrUploadTooLarge
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

func mapIssue(gi *gitlab.Issue) *model.Issue {
	issue := &model.Issue{
		Key:         model.IssueKey{ProjectID: int64(gi.ProjectID), IssueIID: int64(gi.IID)},
		Title:       gi.Title,
		Description: gi.Description,
		State:       gi.State,
		WebURL:      gi.WebURL,
		ClosedAt:    gi.ClosedAt,
	}

	for _, l := range gi.Labels {
		issue.Labels = append(issue.Labels, l)
	}

	if gi.Author != nil {
		issue.Author = model.Person{ID: int64(gi.Author.ID), Username: gi.Author.Username, Name: gi.Author.Name}
	}

	// The first entry of Assignees is the primary assignee; the legacy
	// single Assignee field covers instances without multiple assignees.
	switch {
	case len(gi.Assignees) > 0 && gi.Assignees[0] != nil:
		a := gi.Assignees[0]
		issue.Assignee = &model.Person{ID: int64(a.ID), Username: a.Username, Name: a.Name}
	case gi.Assignee != nil:
		issue.Assignee = &model.Person{ID: int64(gi.Assignee.ID), Username: gi.Assignee.Username, Name: gi.Assignee.Name}
	}

	if gi.CreatedAt != nil {
		issue.CreatedAt = *gi.CreatedAt
	}

	return issue
}

func mapNote(n *gitlab.Note) model.Comment {
	comment := model.Comment{
		ID:     int64(n.ID),
		Author: model.Person{ID: int64(n.Author.ID), Username: n.Author.Username, Name: n.Author.Name},
		Body:   n.Body,
		System: n.System,
	}

	createdAt := n.CreatedAt
	if createdAt == nil {
		createdAt = n.UpdatedAt
	}
	if createdAt != nil {
		comment.CreatedAt = *createdAt
	}

	return comment
}
