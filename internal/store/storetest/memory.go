// Package storetest provides an in-memory implementation of the store
// interfaces for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store"
)

// Memory implements every store interface and TxRunner. The Err fields make
// the matching operation fail while set.
type Memory struct {
	mu       sync.Mutex
	issues   map[model.IssueKey]model.TrackedIssue
	subs     map[model.IssueKey][]model.Subscription
	accounts map[int64]model.Account
	nextID   int64

	ErrList                  error
	ErrCreate                error
	ErrAddSubscription       error
	ErrRaiseCommentWatermark error
	ErrSetAssigneeWatermark  error
	ErrMarkNotified          error
	ErrDelete                error
	ErrListSubscribers       error
	ErrAccounts              error
}

func NewMemory() *Memory {
	return &Memory{
		issues:   make(map[model.IssueKey]model.TrackedIssue),
		subs:     make(map[model.IssueKey][]model.Subscription),
		accounts: make(map[int64]model.Account),
	}
}

func (m *Memory) TrackedIssues() store.TrackedIssueStore { return trackedIssues{m} }
func (m *Memory) Subscriptions() store.SubscriptionStore { return subscriptions{m} }
func (m *Memory) Accounts() store.AccountStore           { return accounts{m} }

// WithTx runs fn against the same maps. A failing fn rolls back all writes.
func (m *Memory) WithTx(ctx context.Context, fn func(stores store.StoreProvider) error) error {
	m.mu.Lock()
	issues := make(map[model.IssueKey]model.TrackedIssue, len(m.issues))
	for k, v := range m.issues {
		issues[k] = v
	}
	subs := make(map[model.IssueKey][]model.Subscription, len(m.subs))
	for k, v := range m.subs {
		subs[k] = append([]model.Subscription(nil), v...)
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.issues = issues
		m.subs = subs
		m.mu.Unlock()
		return err
	}
	return nil
}

// Put stores a row as-is.
func (m *Memory) Put(issue model.TrackedIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.Key] = issue
}

// Row returns a copy of the row and whether it exists.
func (m *Memory) Row(key model.IssueKey) (model.TrackedIssue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.issues[key]
	return row, ok
}

func (m *Memory) Rows() []model.TrackedIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedRows(func(model.TrackedIssue) bool { return true })
}

func (m *Memory) SubscriptionsFor(key model.IssueKey) []model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription(nil), m.subs[key]...)
}

func (m *Memory) PutAccount(account model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ChatUserID] = account
}

func (m *Memory) sortedRows(keep func(model.TrackedIssue) bool) []model.TrackedIssue {
	rows := make([]model.TrackedIssue, 0, len(m.issues))
	for _, row := range m.issues {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Key.ProjectID != rows[j].Key.ProjectID {
			return rows[i].Key.ProjectID < rows[j].Key.ProjectID
		}
		return rows[i].Key.IssueIID < rows[j].Key.IssueIID
	})
	return rows
}

type trackedIssues struct{ m *Memory }

func (s trackedIssues) Create(ctx context.Context, issue *model.TrackedIssue) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrCreate != nil {
		return false, s.m.ErrCreate
	}
	if _, ok := s.m.issues[issue.Key]; ok {
		return false, nil
	}
	now := time.Now()
	s.m.issues[issue.Key] = model.TrackedIssue{
		Key:       issue.Key,
		ChatID:    issue.ChatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (s trackedIssues) Get(ctx context.Context, key model.IssueKey) (*model.TrackedIssue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	row, ok := s.m.issues[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &row, nil
}

func (s trackedIssues) Delete(ctx context.Context, key model.IssueKey) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrDelete != nil {
		return false, s.m.ErrDelete
	}
	if _, ok := s.m.issues[key]; !ok {
		return false, nil
	}
	delete(s.m.issues, key)
	return true, nil
}

func (s trackedIssues) List(ctx context.Context) ([]model.TrackedIssue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrList != nil {
		return nil, s.m.ErrList
	}
	return s.m.sortedRows(func(model.TrackedIssue) bool { return true }), nil
}

func (s trackedIssues) ListByChat(ctx context.Context, chatID int64) ([]model.TrackedIssue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrList != nil {
		return nil, s.m.ErrList
	}
	return s.m.sortedRows(func(r model.TrackedIssue) bool { return r.ChatID == chatID }), nil
}

func (s trackedIssues) RaiseCommentWatermark(ctx context.Context, key model.IssueKey, commentID int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrRaiseCommentWatermark != nil {
		return s.m.ErrRaiseCommentWatermark
	}
	row, ok := s.m.issues[key]
	if !ok {
		return store.ErrNotFound
	}
	row.CommentWatermark = max(row.CommentWatermark, commentID)
	row.UpdatedAt = time.Now()
	s.m.issues[key] = row
	return nil
}

func (s trackedIssues) SetAssigneeWatermark(ctx context.Context, key model.IssueKey, assigneeID *int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrSetAssigneeWatermark != nil {
		return s.m.ErrSetAssigneeWatermark
	}
	row, ok := s.m.issues[key]
	if !ok {
		return store.ErrNotFound
	}
	row.Assignee = model.AssigneeWatermark{Observed: true}
	if assigneeID != nil {
		id := *assigneeID
		row.Assignee.ID = &id
	}
	row.UpdatedAt = time.Now()
	s.m.issues[key] = row
	return nil
}

func (s trackedIssues) MarkNotified(ctx context.Context, key model.IssueKey, at time.Time, closingCommentID *int64) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrMarkNotified != nil {
		return false, s.m.ErrMarkNotified
	}
	row, ok := s.m.issues[key]
	if !ok || row.Notified {
		return false, nil
	}
	row.Notified = true
	row.NotifiedAt = &at
	if closingCommentID != nil {
		row.CommentWatermark = max(row.CommentWatermark, *closingCommentID)
	}
	row.UpdatedAt = time.Now()
	s.m.issues[key] = row
	return true, nil
}

func (s trackedIssues) ClearNotified(ctx context.Context, key model.IssueKey) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	row, ok := s.m.issues[key]
	if !ok {
		return store.ErrNotFound
	}
	row.Notified = false
	row.NotifiedAt = nil
	row.UpdatedAt = time.Now()
	s.m.issues[key] = row
	return nil
}

func (s trackedIssues) ListNotifiedBefore(ctx context.Context, cutoff time.Time) ([]model.TrackedIssue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrList != nil {
		return nil, s.m.ErrList
	}
	return s.m.sortedRows(func(r model.TrackedIssue) bool {
		return r.Notified && r.NotifiedAt != nil && r.NotifiedAt.Before(cutoff)
	}), nil
}

type subscriptions struct{ m *Memory }

func (s subscriptions) Add(ctx context.Context, sub *model.Subscription) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrAddSubscription != nil {
		return s.m.ErrAddSubscription
	}
	for _, existing := range s.m.subs[sub.Key] {
		if existing.SubscriberID == sub.SubscriberID {
			return nil
		}
	}
	s.m.nextID++
	added := *sub
	if added.ID == 0 {
		added.ID = s.m.nextID
	}
	added.CreatedAt = time.Now()
	s.m.subs[sub.Key] = append(s.m.subs[sub.Key], added)
	return nil
}

func (s subscriptions) ListSubscribers(ctx context.Context, key model.IssueKey) ([]int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrListSubscribers != nil {
		return nil, s.m.ErrListSubscribers
	}
	ids := make([]int64, 0, len(s.m.subs[key]))
	for _, sub := range s.m.subs[key] {
		ids = append(ids, sub.SubscriberID)
	}
	return ids, nil
}

type accounts struct{ m *Memory }

func (s accounts) GetByChatUser(ctx context.Context, chatUserID int64) (*model.Account, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrAccounts != nil {
		return nil, s.m.ErrAccounts
	}
	account, ok := s.m.accounts[chatUserID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &account, nil
}

func (s accounts) GetByTrackerUser(ctx context.Context, trackerUserID int64) (*model.Account, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrAccounts != nil {
		return nil, s.m.ErrAccounts
	}
	for _, account := range s.m.accounts {
		if account.TrackerUserID == trackerUserID {
			return &account, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s accounts) Upsert(ctx context.Context, account *model.Account) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.ErrAccounts != nil {
		return s.m.ErrAccounts
	}
	stored := *account
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.m.accounts[account.ChatUserID] = stored
	account.CreatedAt = stored.CreatedAt
	return nil
}
