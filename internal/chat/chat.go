package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

var ErrFileTooLarge = errors.New("file too large")

// Client delivers messages to chat users. Text is HTML formatted.
type Client interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard *Keyboard) error

	// SendMedia sends files as one album. A single item goes out as a photo
	// or document; albums mixing images and other files are sent as documents.
	SendMedia(ctx context.Context, chatID int64, items []MediaItem) error

	// Download fetches an uploaded chat file, failing with ErrFileTooLarge
	// past maxBytes.
	Download(ctx context.Context, fileID string, maxBytes int64) (*model.File, error)

	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Keyboard is either an inline keyboard attached to the message, a reply
// keyboard replacing the user's input keyboard, or a request to remove it.
type Keyboard struct {
	Inline [][]Button
	Reply  [][]string
	Remove bool
}

type Button struct {
	Text string
	Data string
}

func InlineRow(buttons ...Button) *Keyboard {
	return &Keyboard{Inline: [][]Button{buttons}}
}

// ReplyRows lays out the labels two per row.
func ReplyRows(labels ...string) *Keyboard {
	kb := &Keyboard{}
	for i := 0; i < len(labels); i += 2 {
		end := min(i+2, len(labels))
		kb.Reply = append(kb.Reply, labels[i:end])
	}
	return kb
}

func RemoveKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

type MediaItem struct {
	File    model.File
	Caption string
}

// RequestError is a failed Bot API call.
type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = strings.TrimSpace(e.Body)
	}
	if e.StatusCode > 0 {
		if desc != "" {
			return fmt.Sprintf("telegram %s http %d: %s", e.Method, e.StatusCode, desc)
		}
		return fmt.Sprintf("telegram %s http %d", e.Method, e.StatusCode)
	}
	if desc != "" {
		return fmt.Sprintf("telegram %s: %s", e.Method, desc)
	}
	return fmt.Sprintf("telegram %s failed", e.Method)
}
