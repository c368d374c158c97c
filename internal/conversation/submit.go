package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Larin-Sergei/telegram-notify-bot/common/id"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/reconcile"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker"
)

// upload stores each file in the project. Failed files are reported by name
// and skipped; the markdown references of the rest are returned.
func (e *Engine) upload(ctx context.Context, t *turn, client tracker.Client, projectID int64, files []model.File) []string {
	refs := make([]string, 0, len(files))
	for _, f := range files {
		up, err := client.UploadFile(ctx, projectID, f)
		if err != nil {
			slog.WarnContext(ctx, "failed to upload attachment",
				"error", err,
				"file_name", f.Name)
			e.tell(ctx, t, notify.UploadFailed(f.Name))
			continue
		}
		refs = append(refs, up.Markdown)
	}
	return refs
}

// uploadOnce uploads the draft files not yet tried by an earlier submit
// attempt and returns the references of every uploaded file.
func (e *Engine) uploadOnce(ctx context.Context, t *turn, client tracker.Client) []string {
	d := t.draft()
	if d.uploaded < len(d.Files) {
		d.refs = append(d.refs, e.upload(ctx, t, client, d.Key.ProjectID, d.Files[d.uploaded:])...)
		d.uploaded = len(d.Files)
	}
	return d.refs
}

func withAttachments(body string, refs []string) string {
	if len(refs) == 0 {
		return body
	}
	return strings.TrimSpace(body + "\n\n" + notify.AttachedFilesSection(refs))
}

// submitIssue files the drafted issue and starts tracking it. A failed create
// keeps the draft so the user can press Send again.
func (e *Engine) submitIssue(ctx context.Context, t *turn) error {
	d := t.draft()
	who := t.in.User

	refs := e.upload(ctx, t, e.tracker, e.cfg.ProjectID, d.Files)
	description := notify.SubmitterHeader(who.Name, who.Username, who.UserID) + "\n\n" + d.Description

	issue, err := e.tracker.CreateIssue(ctx, e.cfg.ProjectID, model.NewIssue{
		Title:       d.Title,
		Description: withAttachments(description, refs),
		IssueType:   model.IssueTypeIncident,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create issue", "error", err)
		return e.reply(ctx, t, notify.IssueCreateFailed(), nil)
	}

	err = e.tx.WithTx(ctx, func(stores store.StoreProvider) error {
		if _, err := stores.TrackedIssues().Create(ctx, &model.TrackedIssue{Key: issue.Key, ChatID: t.in.ChatID}); err != nil {
			return err
		}
		return stores.Subscriptions().Add(ctx, &model.Subscription{
			ID:           id.New(),
			SubscriberID: who.UserID,
			Key:          issue.Key,
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "issue created but not tracked",
			"error", err,
			"project_id", issue.Key.ProjectID,
			"issue_iid", issue.Key.IssueIID)
	} else {
		slog.InfoContext(ctx, "issue created",
			"project_id", issue.Key.ProjectID,
			"issue_iid", issue.Key.IssueIID,
			"attachments", len(refs))
	}

	if err := e.finish(ctx, t, notify.IssueCreated(issue)); err != nil {
		slog.WarnContext(ctx, "failed to confirm issue creation", "error", err)
	}

	if e.cfg.GroupChatID != 0 {
		if err := e.chat.SendText(ctx, e.cfg.GroupChatID, notify.GroupAnnouncement(issue), nil); err != nil {
			slog.WarnContext(ctx, "failed to announce issue to group", "error", err)
		}
	}
	return nil
}

// submitComment posts the user's comment. A failed post keeps the draft so
// the user can press Done again.
func (e *Engine) submitComment(ctx context.Context, t *turn) error {
	d := t.draft()
	client := e.tracker.As(d.TrackerUserID)

	refs := e.uploadOnce(ctx, t, client)
	if _, err := client.CreateComment(ctx, d.Key, withAttachments(d.Text, refs)); err != nil {
		slog.WarnContext(ctx, "failed to post comment", "error", err)
		return e.reply(ctx, t, notify.CommentFailed(), nil)
	}
	return e.finish(ctx, t, notify.CommentAdded())
}

// submitRework posts the user's objection, reopens the issue with the rework
// label and re-arms the closed notification. Either remote step failing keeps
// the draft; a retry after a failed reopen does not post the comment again.
func (e *Engine) submitRework(ctx context.Context, t *turn) error {
	d := t.draft()
	client := e.tracker.As(d.TrackerUserID)

	refs := e.uploadOnce(ctx, t, client)
	if !d.commentPosted {
		if _, err := client.CreateComment(ctx, d.Key, withAttachments(d.Text, refs)); err != nil {
			slog.WarnContext(ctx, "failed to post rework comment", "error", err)
			return e.reply(ctx, t, notify.CommentFailed(), nil)
		}
		d.commentPosted = true
	}

	labels := []string{e.cfg.ReworkLabel}
	update := model.IssueUpdate{StateEvent: model.StateEventReopen, Labels: &labels}
	if e.cfg.ReworkLabel == "" {
		update.Labels = nil
	}
	if err := client.UpdateIssue(ctx, d.Key, update); err != nil {
		slog.WarnContext(ctx, "failed to reopen issue", "error", err)
		return e.reply(ctx, t, notify.ReworkFailed(), nil)
	}

	if err := e.issues.ClearNotified(ctx, d.Key); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.ErrorContext(ctx, "issue reopened but closed notification not re-armed", "error", err)
	}

	slog.InfoContext(ctx, "issue returned to rework", "attachments", len(refs))
	return e.finish(ctx, t, notify.ReworkDone())
}

func (e *Engine) submitAttach(ctx context.Context, t *turn) error {
	d := t.draft()
	if len(d.Files) == 0 {
		return e.finish(ctx, t, notify.NoFiles())
	}

	client := e.tracker.As(d.TrackerUserID)
	refs := e.uploadOnce(ctx, t, client)
	if len(refs) == 0 {
		return e.finish(ctx, t, notify.FilesAttachFailed())
	}

	if _, err := client.CreateComment(ctx, d.Key, notify.AttachedFilesSection(refs)); err != nil {
		slog.WarnContext(ctx, "failed to post attachments", "error", err)
		return e.reply(ctx, t, notify.FilesAttachFailed(), nil)
	}
	return e.finish(ctx, t, notify.FilesAttached())
}

// accept closes the loop on finished work: labels are cleared and the issue
// is no longer tracked. Only the caller that removes the row confirms.
func (e *Engine) accept(ctx context.Context, t *turn, key model.IssueKey) error {
	t.s.draft = nil

	if _, err := e.issues.Get(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.reply(ctx, t, notify.AlreadyClosed(key), nil)
		}
		slog.WarnContext(ctx, "failed to load tracked issue", "error", err)
		return e.reply(ctx, t, notify.AcceptFailed(key), nil)
	}

	cleared := []string{}
	if err := e.tracker.UpdateIssue(ctx, key, model.IssueUpdate{Labels: &cleared}); err != nil {
		slog.WarnContext(ctx, "failed to clear labels", "error", err)
		return e.reply(ctx, t, notify.AcceptFailed(key), nil)
	}

	deleted, err := e.issues.Delete(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "failed to stop tracking issue", "error", err)
		return e.reply(ctx, t, notify.AcceptFailed(key), nil)
	}
	if !deleted {
		return e.reply(ctx, t, notify.AlreadyClosed(key), nil)
	}

	slog.InfoContext(ctx, "issue accepted")
	return e.reply(ctx, t, notify.Accepted(), nil)
}

// showStatus lists the chat's tracked issues; with none it starts a new one.
func (e *Engine) showStatus(ctx context.Context, t *turn) error {
	t.s.draft = nil

	rows, err := e.issues.ListByChat(ctx, t.in.ChatID)
	if err != nil {
		slog.WarnContext(ctx, "failed to list tracked issues", "error", err)
	}
	if len(rows) == 0 {
		return e.startIssue(ctx, t)
	}

	for _, row := range rows {
		issue, err := e.tracker.GetIssue(ctx, row.Key)
		if err != nil {
			slog.WarnContext(ctx, "failed to fetch issue for status",
				"error", err,
				"project_id", row.Key.ProjectID,
				"issue_iid", row.Key.IssueIID)
			e.tell(ctx, t, notify.IssueUnavailable(row.Key))
			continue
		}

		comments, err := e.tracker.ListComments(ctx, row.Key)
		if err != nil {
			slog.WarnContext(ctx, "failed to fetch comments for status", "error", err)
		}

		if issue.IsClosed() {
			text, kb := notify.ClosedCard(issue, reconcile.ClosingComment(issue, comments))
			if err := e.reply(ctx, t, text, kb); err != nil {
				return err
			}
			continue
		}

		text, kb := notify.OpenIssueSummary(issue, comments)
		if err := e.reply(ctx, t, text, kb); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) showIssue(ctx context.Context, t *turn, key model.IssueKey) error {
	issue, err := e.tracker.GetIssue(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch issue", "error", err)
		return e.reply(ctx, t, notify.IssueUnavailable(key), nil)
	}

	var latest *model.Comment
	comments, err := e.tracker.ListComments(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch comments", "error", err)
	}
	for i := len(comments) - 1; i >= 0; i-- {
		if !comments[i].System {
			latest = &comments[i]
			break
		}
	}

	text, kb := notify.IssueDetail(issue, latest)
	return e.reply(ctx, t, text, kb)
}
