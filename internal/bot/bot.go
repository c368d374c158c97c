package bot

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/account"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/album"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/conversation"
)

// Updates is the long-poll side of the chat API.
type Updates interface {
	GetUpdates(ctx context.Context, offset int64, pollTimeout time.Duration) ([]chat.Update, int64, error)
}

// Handler consumes one message, button press or album.
type Handler interface {
	Handle(ctx context.Context, batch []conversation.Inbound)
}

type Config struct {
	PollTimeout  time.Duration
	AlbumLatency time.Duration
	// RetryDelay is the pause after a failed poll.
	RetryDelay time.Duration
}

type item struct {
	in    conversation.Inbound
	group string
}

// Poller feeds chat updates to the conversation engine, grouping albums.
type Poller struct {
	updates Updates
	albums  *album.Aggregator[item]
	chats   *mailboxes
	cfg     Config
}

func NewPoller(updates Updates, handler Handler, cfg Config) *Poller {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	chats := newMailboxes(handler)
	key := func(it item) (string, string) {
		return it.group, strconv.FormatInt(it.in.ChatID, 10)
	}
	handle := func(ctx context.Context, items []item) {
		batch := make([]conversation.Inbound, len(items))
		for i, it := range items {
			batch[i] = it.in
		}
		chats.post(ctx, batch)
	}

	return &Poller{
		updates: updates,
		albums:  album.New(key, handle, cfg.AlbumLatency),
		chats:   chats,
		cfg:     cfg,
	}
}

// Run polls until ctx is cancelled, then waits for pending albums and turns.
// Turns of different chats run concurrently; one chat's turns run in order.
func (p *Poller) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notifier.bot"})
	defer p.chats.wait()
	defer p.albums.Wait()

	slog.InfoContext(ctx, "chat poller started", "poll_timeout", p.cfg.PollTimeout)

	var offset int64
	for {
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "chat poller stopping")
			return nil
		}

		updates, next, err := p.updates.GetUpdates(ctx, offset, p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if chat.IsPollTimeout(err) {
				continue
			}
			slog.WarnContext(ctx, "failed to poll chat updates", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.RetryDelay):
			}
			continue
		}
		offset = next

		for _, u := range updates {
			it, ok := toItem(u)
			if !ok {
				continue
			}
			p.albums.Add(ctx, it)
		}
	}
}

// toItem converts a private-chat update. Group chats only receive
// announcements and are ignored.
func toItem(u chat.Update) (item, bool) {
	if cq := u.CallbackQuery; cq != nil {
		if cq.From == nil {
			return item{}, false
		}
		chatID := cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		return item{in: conversation.Inbound{
			ChatID:   chatID,
			User:     identity(cq.From, chatID),
			Callback: &conversation.Callback{ID: cq.ID, Data: cq.Data},
		}}, true
	}

	m := u.Message
	if m == nil || m.Chat == nil || m.From == nil || m.From.IsBot {
		return item{}, false
	}
	if m.Chat.Type != "" && m.Chat.Type != "private" {
		return item{}, false
	}

	in := conversation.Inbound{
		ChatID: m.Chat.ID,
		User:   identity(m.From, m.Chat.ID),
		Text:   m.Text,
	}
	if in.Text == "" {
		in.Text = m.Caption
	}

	if d := m.Document; d != nil {
		name := d.FileName
		if name == "" {
			name = "file_" + d.FileID
		}
		in.Files = append(in.Files, conversation.FileRef{
			FileID:      d.FileID,
			Name:        name,
			ContentType: d.MimeType,
			Size:        d.FileSize,
		})
	}
	if len(m.Photo) > 0 {
		// Sizes are ascending; the last one is the original.
		largest := m.Photo[len(m.Photo)-1]
		in.Files = append(in.Files, conversation.FileRef{
			FileID:      largest.FileID,
			Name:        "photo_" + largest.FileID + ".jpg",
			ContentType: "image/jpeg",
			Size:        largest.FileSize,
		})
	}

	return item{in: in, group: m.MediaGroupID}, true
}

func identity(u *chat.User, chatID int64) account.Identity {
	name := ""
	if u.FirstName != "" || u.LastName != "" {
		name = u.DisplayName()
	}
	return account.Identity{
		UserID:   u.ID,
		ChatID:   chatID,
		Username: u.Username,
		Name:     name,
	}
}
