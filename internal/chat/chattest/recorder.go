// Package chattest provides a recording chat.Client for tests.
package chattest

import (
	"context"
	"sync"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

// Sent is one delivered message. Media is nil for text messages.
type Sent struct {
	ChatID   int64
	Text     string
	Keyboard *chat.Keyboard
	Media    []chat.MediaItem
}

// Recorder implements chat.Client. Sends to chats listed in Fail return
// the mapped error and are not recorded.
type Recorder struct {
	mu      sync.Mutex
	sent    []Sent
	answers []string

	Fail  map[int64]error
	Files map[string]*model.File
	// DownloadErr fails Download for the given file ids.
	DownloadErr map[string]error
}

func NewRecorder() *Recorder {
	return &Recorder{
		Fail:        make(map[int64]error),
		Files:       make(map[string]*model.File),
		DownloadErr: make(map[string]error),
	}
}

func (r *Recorder) SendText(ctx context.Context, chatID int64, text string, keyboard *chat.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[chatID]; err != nil {
		return err
	}
	r.sent = append(r.sent, Sent{ChatID: chatID, Text: text, Keyboard: keyboard})
	return nil
}

func (r *Recorder) SendMedia(ctx context.Context, chatID int64, items []chat.MediaItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[chatID]; err != nil {
		return err
	}
	text := ""
	if len(items) > 0 {
		text = items[0].Caption
	}
	r.sent = append(r.sent, Sent{ChatID: chatID, Text: text, Media: append([]chat.MediaItem(nil), items...)})
	return nil
}

func (r *Recorder) Download(ctx context.Context, fileID string, maxBytes int64) (*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.DownloadErr[fileID]; err != nil {
		return nil, err
	}
	file, ok := r.Files[fileID]
	if !ok {
		return &model.File{Name: fileID, ContentType: "application/octet-stream", Data: []byte(fileID)}, nil
	}
	if maxBytes > 0 && int64(len(file.Data)) > maxBytes {
		return nil, chat.ErrFileTooLarge
	}
	copied := *file
	return &copied, nil
}

func (r *Recorder) AnswerCallback(ctx context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, callbackID)
	return nil
}

// Sent returns every recorded message in order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// SentTo returns the messages delivered to one chat.
func (r *Recorder) SentTo(chatID int64) []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sent
	for _, s := range r.sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the newest message, or the zero value when nothing was sent.
func (r *Recorder) Last() Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Sent{}
	}
	return r.sent[len(r.sent)-1]
}

func (r *Recorder) Answers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.answers...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.answers = nil
}
