package store

import (
	"context"
	"errors"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/core/db/sqlc"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type trackedIssueStore struct {
	queries *sqlc.Queries
}

func newTrackedIssueStore(queries *sqlc.Queries) TrackedIssueStore {
	return &trackedIssueStore{queries: queries}
}

func (s *trackedIssueStore) Create(ctx context.Context, issue *model.TrackedIssue) (bool, error) {
	n, err := s.queries.CreateTrackedIssue(ctx, sqlc.CreateTrackedIssueParams{
		ProjectID: issue.Key.ProjectID,
		IssueIid:  issue.Key.IssueIID,
		ChatID:    issue.ChatID,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *trackedIssueStore) Get(ctx context.Context, key model.IssueKey) (*model.TrackedIssue, error) {
	row, err := s.queries.GetTrackedIssue(ctx, sqlc.GetTrackedIssueParams{
		ProjectID: key.ProjectID,
		IssueIid:  key.IssueIID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toTrackedIssueModel(row), nil
}

func (s *trackedIssueStore) Delete(ctx context.Context, key model.IssueKey) (bool, error) {
	n, err := s.queries.DeleteTrackedIssue(ctx, sqlc.DeleteTrackedIssueParams{
		ProjectID: key.ProjectID,
		IssueIid:  key.IssueIID,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *trackedIssueStore) List(ctx context.Context) ([]model.TrackedIssue, error) {
	rows, err := s.queries.ListTrackedIssues(ctx)
	if err != nil {
		return nil, err
	}
	return toTrackedIssueModels(rows), nil
}

func (s *trackedIssueStore) ListByChat(ctx context.Context, chatID int64) ([]model.TrackedIssue, error) {
	rows, err := s.queries.ListTrackedIssuesByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return toTrackedIssueModels(rows), nil
}

func (s *trackedIssueStore) RaiseCommentWatermark(ctx context.Context, key model.IssueKey, commentID int64) error {
	n, err := s.queries.RaiseCommentWatermark(ctx, sqlc.RaiseCommentWatermarkParams{
		ProjectID: key.ProjectID,
		IssueIid:  key.IssueIID,
		CommentID: commentID,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *trackedIssueStore) SetAssigneeWatermark(ctx context.Context, key model.IssueKey, assigneeID *int64) error {
	n, err := s.queries.SetAssigneeWatermark(ctx, sqlc.SetAssigneeWatermarkParams{
		ProjectID:  key.ProjectID,
		IssueIid:   key.IssueIID,
		AssigneeID: assigneeID,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *trackedIssueStore) MarkNotified(ctx context.Context, key model.IssueKey, at time.Time, closingCommentID *int64) (bool, error) {
	n, err := s.queries.MarkNotified(ctx, sqlc.MarkNotifiedParams{
		ProjectID:        key.ProjectID,
		IssueIid:         key.IssueIID,
		NotifiedAt:       pgtype.Timestamptz{Time: at, Valid: true},
		ClosingCommentID: closingCommentID,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *trackedIssueStore) ClearNotified(ctx context.Context, key model.IssueKey) error {
	n, err := s.queries.ClearNotified(ctx, sqlc.ClearNotifiedParams{
		ProjectID: key.ProjectID,
		IssueIid:  key.IssueIID,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *trackedIssueStore) ListNotifiedBefore(ctx context.Context, cutoff time.Time) ([]model.TrackedIssue, error) {
	rows, err := s.queries.ListNotifiedBefore(ctx, pgtype.Timestamptz{Time: cutoff, Valid: true})
	if err != nil {
		return nil, err
	}
	return toTrackedIssueModels(rows), nil
}

func toTrackedIssueModels(rows []sqlc.TrackedIssue) []model.TrackedIssue {
	issues := make([]model.TrackedIssue, 0, len(rows))
	for _, row := range rows {
		issues = append(issues, *toTrackedIssueModel(row))
	}
	return issues
}

func toTrackedIssueModel(row sqlc.TrackedIssue) *model.TrackedIssue {
	issue := &model.TrackedIssue{
		Key: model.IssueKey{
			ProjectID: row.ProjectID,
			IssueIID:  row.IssueIid,
		},
		ChatID:           row.ChatID,
		Notified:         row.Notified,
		CommentWatermark: row.LastCommentID,
		Assignee: model.AssigneeWatermark{
			Observed: row.AssigneeObserved,
			ID:       row.LastAssigneeID,
		},
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
	if row.NotifiedAt.Valid {
		t := row.NotifiedAt.Time
		issue.NotifiedAt = &t
	}
	return issue
}
