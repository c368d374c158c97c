package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/account"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker"
)

// Inbound is one chat message or button press. An album arrives as several
// Inbound values handled together.
type Inbound struct {
	ChatID   int64
	User     account.Identity
	Text     string
	Callback *Callback
	Files    []FileRef
}

type Callback struct {
	ID   string
	Data string
}

// FileRef points at a file still held by the chat service.
type FileRef struct {
	FileID      string
	Name        string
	ContentType string
	Size        int64
}

type AccountResolver interface {
	Resolve(ctx context.Context, who account.Identity) (*model.Account, error)
}

type Config struct {
	// ProjectID is where new issues are filed.
	ProjectID   int64
	MaxFiles    int
	MaxFileSize int64
	// GroupChatID receives an announcement per new issue when non-zero.
	GroupChatID int64
	ReworkLabel string
}

type Dependencies struct {
	Chat          chat.Client
	Tracker       tracker.Client
	Accounts      AccountResolver
	Issues        store.TrackedIssueStore
	Subscriptions store.SubscriptionStore
	Tx            store.TxRunner
}

type session struct {
	mu    sync.Mutex
	draft *Draft
	refs  int
}

// turn is one Handle call for one session.
type turn struct {
	in Inbound
	s  *session
}

func (t *turn) draft() *Draft { return t.s.draft }

// Engine runs the chat dialogs: filing issues, commenting, returning issues
// to rework and accepting finished work.
type Engine struct {
	chat          chat.Client
	tracker       tracker.Client
	accounts      AccountResolver
	issues        store.TrackedIssueStore
	subscriptions store.SubscriptionStore
	tx            store.TxRunner
	cfg           Config

	mu       sync.Mutex
	sessions map[int64]*session
}

func New(deps Dependencies, cfg Config) *Engine {
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	return &Engine{
		chat:          deps.Chat,
		tracker:       deps.Tracker,
		accounts:      deps.Accounts,
		issues:        deps.Issues,
		subscriptions: deps.Subscriptions,
		tx:            deps.Tx,
		cfg:           cfg,
		sessions:      make(map[int64]*session),
	}
}

// Handle processes one message, button press or album. Calls for the same
// chat are serialised.
func (e *Engine) Handle(ctx context.Context, batch []Inbound) {
	if len(batch) == 0 {
		return
	}
	in := merge(batch)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ChatID:    logger.Ptr(in.ChatID),
		Component: "notifier.conversation",
	})

	s, release := e.acquire(in.ChatID)
	defer release()

	t := &turn{in: in, s: s}

	var err error
	switch {
	case in.Callback != nil:
		err = e.handleCallback(ctx, t)
	case isCommand(in.Text):
		err = e.handleCommand(ctx, t)
	default:
		err = e.dispatch(ctx, t)
	}
	if err != nil {
		slog.WarnContext(ctx, "conversation turn failed", "error", err)
	}
}

// Draft returns a copy of the chat's current draft, or nil when idle.
func (e *Engine) Draft(chatID int64) *Draft {
	s, release := e.acquire(chatID)
	defer release()
	if s.draft == nil {
		return nil
	}
	copied := *s.draft
	copied.History = append([]State(nil), s.draft.History...)
	copied.Files = append([]model.File(nil), s.draft.Files...)
	return &copied
}

// acquire locks the chat's session. The release func drops the session once
// nobody holds or waits for it and it has no draft.
func (e *Engine) acquire(chatID int64) (*session, func()) {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok {
		s = &session{}
		e.sessions[chatID] = s
	}
	s.refs++
	e.mu.Unlock()

	s.mu.Lock()

	return s, func() {
		s.mu.Unlock()

		e.mu.Lock()
		s.refs--
		if s.refs == 0 && s.draft == nil {
			delete(e.sessions, chatID)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) dispatch(ctx context.Context, t *turn) error {
	d := t.draft()
	if d == nil {
		return e.reply(ctx, t, notify.UnexpectedInput(), nil)
	}

	class := classify(t.in)
	h, ok := transitions[transition{d.State, class}]
	if !ok {
		slog.DebugContext(ctx, "unexpected input",
			"state", d.State.String(),
			"input", class.String())
		return e.reply(ctx, t, notify.UnexpectedInput(), nil)
	}
	return h(e, ctx, t)
}

func (e *Engine) reply(ctx context.Context, t *turn, text string, keyboard *chat.Keyboard) error {
	return e.chat.SendText(ctx, t.in.ChatID, text, keyboard)
}

// merge folds an album into one Inbound: the first message's identity and
// caption with every message's files.
func merge(batch []Inbound) Inbound {
	in := batch[0]
	if len(batch) == 1 {
		return in
	}
	in.Files = nil
	for _, b := range batch {
		if in.Text == "" {
			in.Text = b.Text
		}
		in.Files = append(in.Files, b.Files...)
	}
	return in
}

func isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

// command returns "/start" for "/start@notify_bot payload".
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name)
}

func (e *Engine) handleCommand(ctx context.Context, t *turn) error {
	switch command(t.in.Text) {
	case "/start":
		return e.showStatus(ctx, t)
	case "/new":
		return e.startIssue(ctx, t)
	case "/cancel":
		return e.cancel(ctx, t)
	}
	return e.reply(ctx, t, notify.UnexpectedInput(), nil)
}

func (e *Engine) handleCallback(ctx context.Context, t *turn) error {
	if err := e.chat.AnswerCallback(ctx, t.in.Callback.ID, ""); err != nil {
		slog.WarnContext(ctx, "failed to answer callback", "error", err)
	}

	action, key, ok := notify.ParseCallback(t.in.Callback.Data)
	if !ok {
		return e.reply(ctx, t, notify.UnexpectedInput(), nil)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: logger.Ptr(key.ProjectID),
		IssueIID:  logger.Ptr(key.IssueIID),
	})

	switch action {
	case notify.ActionAccept:
		return e.accept(ctx, t, key)
	case notify.ActionRework:
		return e.startFlow(ctx, t, StateEnterRework, key)
	case notify.ActionComment:
		return e.startFlow(ctx, t, StateEnterComment, key)
	case notify.ActionAttach:
		return e.startFlow(ctx, t, StateAttachFiles, key)
	case notify.ActionView:
		return e.showIssue(ctx, t, key)
	}
	return e.reply(ctx, t, notify.UnexpectedInput(), nil)
}

func (e *Engine) startIssue(ctx context.Context, t *turn) error {
	t.s.draft = newDraft(StateSelectTitle, e.cfg.MaxFiles, e.cfg.MaxFileSize)
	return e.prompt(ctx, t)
}

// startFlow begins a dialog on an existing issue on behalf of the chat
// user's tracker account. The user follows the issue from here on.
func (e *Engine) startFlow(ctx context.Context, t *turn, state State, key model.IssueKey) error {
	acc, err := e.accounts.Resolve(ctx, t.in.User)
	if err != nil {
		t.s.draft = nil
		if !errors.Is(err, account.ErrAccountUnavailable) {
			slog.WarnContext(ctx, "failed to resolve account", "error", err)
		}
		return e.reply(ctx, t, notify.AccountUnavailable(), chat.RemoveKeyboard())
	}

	d := newDraft(state, e.cfg.MaxFiles, e.cfg.MaxFileSize)
	d.Key = key
	d.TrackerUserID = acc.TrackerUserID
	t.s.draft = d

	if state != StateAttachFiles {
		e.subscribe(ctx, t.in.User.UserID, key)
	}
	return e.prompt(ctx, t)
}

func (e *Engine) subscribe(ctx context.Context, subscriberID int64, key model.IssueKey) {
	sub := &model.Subscription{SubscriberID: subscriberID, Key: key}
	if err := e.subscriptions.Add(ctx, sub); err != nil {
		slog.WarnContext(ctx, "failed to subscribe user to issue", "error", err)
	}
}

// prompt asks for the input the current state expects.
func (e *Engine) prompt(ctx context.Context, t *turn) error {
	d := t.draft()
	switch d.State {
	case StateSelectTitle:
		return e.reply(ctx, t, notify.AskTitle(), chat.ReplyRows(notify.LabelCancel))
	case StateSelectDescription:
		return e.reply(ctx, t, notify.AskDescription(), chat.ReplyRows(notify.LabelBack, notify.LabelCancel))
	case StateAddFiles:
		return e.reply(ctx, t, notify.AskFiles(), chat.ReplyRows(notify.LabelContinue, notify.LabelBack, notify.LabelCancel))
	case StateSendIssue:
		return e.reply(ctx, t, notify.DraftSummary(d.Title, d.Description, len(d.Files)),
			chat.ReplyRows(notify.LabelSend, notify.LabelBack, notify.LabelCancel))
	case StateEnterComment:
		return e.reply(ctx, t, notify.AskComment(), chat.ReplyRows(notify.LabelCancel))
	case StateEnterRework:
		return e.reply(ctx, t, notify.AskReworkComment(), chat.ReplyRows(notify.LabelCancel))
	case StateCommentFiles, StateReworkFiles:
		return e.reply(ctx, t, notify.AskCommentFiles(), chat.ReplyRows(notify.LabelDone, notify.LabelBack, notify.LabelCancel))
	case StateAttachFiles:
		return e.reply(ctx, t, notify.AskAttachFiles(), chat.ReplyRows(notify.LabelDone, notify.LabelCancel))
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, t *turn, text string) error {
	t.s.draft = nil
	return e.reply(ctx, t, text, chat.RemoveKeyboard())
}

func (e *Engine) cancel(ctx context.Context, t *turn) error {
	return e.finish(ctx, t, notify.Cancelled())
}

func (e *Engine) back(ctx context.Context, t *turn) error {
	t.draft().retreat()
	return e.prompt(ctx, t)
}

func (e *Engine) setTitle(ctx context.Context, t *turn) error {
	title := strings.TrimSpace(t.in.Text)
	if title == "" {
		return e.reply(ctx, t, notify.EmptyText(), nil)
	}
	d := t.draft()
	d.Title = title
	d.advance(StateSelectDescription)
	return e.prompt(ctx, t)
}

func (e *Engine) setDescription(ctx context.Context, t *turn) error {
	description := strings.TrimSpace(t.in.Text)
	if description == "" {
		return e.reply(ctx, t, notify.EmptyText(), nil)
	}
	d := t.draft()
	d.Description = description
	d.advance(StateAddFiles)
	return e.prompt(ctx, t)
}

func (e *Engine) showSummary(ctx context.Context, t *turn) error {
	t.draft().advance(StateSendIssue)
	return e.prompt(ctx, t)
}

func (e *Engine) setComment(ctx context.Context, t *turn) error {
	text := strings.TrimSpace(t.in.Text)
	if text == "" {
		return e.reply(ctx, t, notify.EmptyText(), nil)
	}
	d := t.draft()
	d.Text = text
	if d.State == StateEnterRework {
		d.advance(StateReworkFiles)
	} else {
		d.advance(StateCommentFiles)
	}
	return e.prompt(ctx, t)
}
