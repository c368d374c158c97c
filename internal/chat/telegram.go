package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

const (
	maxTextRunes    = 4096
	maxCaptionRunes = 1024
	maxAlbumSize    = 10
)

type TelegramConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// SendRate caps outgoing messages per second across all chats.
	SendRate int
}

// Telegram is a Bot API client.
type Telegram struct {
	http    *http.Client
	baseURL string
	token   string
	timeout time.Duration
	limiter *rate.Limiter
}

func NewTelegram(httpClient *http.Client, cfg TelegramConfig) *Telegram {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Telegram{
		http:    httpClient,
		baseURL: baseURL,
		token:   cfg.Token,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID    int64       `json:"message_id"`
	Date         int64       `json:"date,omitempty"`
	Chat         *Chat       `json:"chat,omitempty"`
	From         *User       `json:"from,omitempty"`
	Text         string      `json:"text,omitempty"`
	Caption      string      `json:"caption,omitempty"`
	MediaGroupID string      `json:"media_group_id,omitempty"`
	Document     *Document   `json:"document,omitempty"`
	Photo        []PhotoSize `json:"photo,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case u.Username != "":
		return "@" + u.Username
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

type telegramFile struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// GetUpdates long-polls for updates after offset and returns the next offset.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, pollTimeout time.Duration) ([]Update, int64, error) {
	secs := int(pollTimeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	query := url.Values{}
	query.Set("timeout", strconv.Itoa(secs))
	query.Set("allowed_updates", `["message","callback_query"]`)
	if offset > 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}

	reqCtx, cancel := context.WithTimeout(ctx, pollTimeout+t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.methodURL("getUpdates")+"?"+query.Encode(), nil)
	if err != nil {
		return nil, offset, err
	}

	var updates []Update
	if err := t.do(req, "getUpdates", &updates); err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

// IsPollTimeout reports whether err is a long poll that simply ran out of time.
func IsPollTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           any    `json:"reply_markup,omitempty"`
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string, keyboard *Keyboard) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	return t.postJSON(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  truncateRunes(text, maxTextRunes),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyMarkup:           keyboard.markup(),
	})
}

func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	body := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		body["text"] = text
	}
	return t.postJSON(ctx, "answerCallbackQuery", body)
}

func (t *Telegram) SendMedia(ctx context.Context, chatID int64, items []MediaItem) error {
	if len(items) == 0 {
		return nil
	}

	asDocuments := false
	for _, it := range items {
		if !it.File.IsImage() {
			asDocuments = true
			break
		}
	}

	for start := 0; start < len(items); start += maxAlbumSize {
		chunk := items[start:min(start+maxAlbumSize, len(items))]
		var err error
		if len(chunk) == 1 {
			err = t.sendSingle(ctx, chatID, chunk[0])
		} else {
			err = t.sendMediaGroup(ctx, chatID, chunk, asDocuments)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendSingle(ctx context.Context, chatID int64, item MediaItem) error {
	method, field := "sendDocument", "document"
	if item.File.IsImage() {
		method, field = "sendPhoto", "photo"
	}

	return t.postMultipart(ctx, method, func(mw *multipart.Writer) error {
		if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
			return err
		}
		if item.Caption != "" {
			if err := mw.WriteField("caption", truncateRunes(item.Caption, maxCaptionRunes)); err != nil {
				return err
			}
			if err := mw.WriteField("parse_mode", "HTML"); err != nil {
				return err
			}
		}
		return writeFilePart(mw, field, item.File)
	})
}

type inputMedia struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

func (t *Telegram) sendMediaGroup(ctx context.Context, chatID int64, items []MediaItem, asDocuments bool) error {
	media := make([]inputMedia, len(items))
	for i, it := range items {
		kind := "photo"
		if asDocuments {
			kind = "document"
		}
		media[i] = inputMedia{
			Type:  kind,
			Media: "attach://file" + strconv.Itoa(i),
		}
		if it.Caption != "" {
			media[i].Caption = truncateRunes(it.Caption, maxCaptionRunes)
			media[i].ParseMode = "HTML"
		}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return err
	}

	return t.postMultipart(ctx, "sendMediaGroup", func(mw *multipart.Writer) error {
		if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
			return err
		}
		if err := mw.WriteField("media", string(mediaJSON)); err != nil {
			return err
		}
		for i, it := range items {
			if err := writeFilePart(mw, "file"+strconv.Itoa(i), it.File); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeFilePart(mw *multipart.Writer, field string, file model.File) error {
	name := file.Name
	if name == "" {
		name = "file"
	}
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	_, err = part.Write(file.Data)
	return err
}

func (t *Telegram) Download(ctx context.Context, fileID string, maxBytes int64) (*model.File, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, fmt.Errorf("missing file_id")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.methodURL("getFile")+"?file_id="+url.QueryEscape(fileID), nil)
	if err != nil {
		return nil, err
	}
	var info telegramFile
	if err := t.do(req, "getFile", &info); err != nil {
		return nil, err
	}
	if strings.TrimSpace(info.FilePath) == "" {
		return nil, fmt.Errorf("telegram getFile: missing file_path")
	}
	if maxBytes > 0 && info.FileSize > maxBytes {
		return nil, ErrFileTooLarge
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", t.baseURL, t.token, strings.TrimLeft(info.FilePath, "/"))
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RequestError{Method: "download", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, ErrFileTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	return &model.File{
		Name:        path.Base(info.FilePath),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (t *Telegram) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
}

func (t *Telegram) postJSON(ctx context.Context, method string, body any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL(method), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, method, nil)
}

func (t *Telegram) postMultipart(ctx context.Context, method string, write func(*multipart.Writer) error) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := write(mw); err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL(method), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return t.do(req, method, nil)
}

func (t *Telegram) do(req *http.Request, method string, result any) error {
	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var out apiResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		return &RequestError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   out.ErrorCode,
			Description: out.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}

	if result != nil && len(out.Result) > 0 {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("decoding telegram %s result: %w", method, err)
		}
	}
	return nil
}

func (k *Keyboard) markup() any {
	if k == nil {
		return nil
	}
	switch {
	case k.Remove:
		return map[string]any{"remove_keyboard": true}
	case len(k.Inline) > 0:
		rows := make([][]map[string]string, len(k.Inline))
		for i, row := range k.Inline {
			for _, b := range row {
				rows[i] = append(rows[i], map[string]string{"text": b.Text, "callback_data": b.Data})
			}
		}
		return map[string]any{"inline_keyboard": rows}
	case len(k.Reply) > 0:
		rows := make([][]map[string]string, len(k.Reply))
		for i, row := range k.Reply {
			for _, label := range row {
				rows[i] = append(rows[i], map[string]string{"text": label})
			}
		}
		return map[string]any{"keyboard": rows, "resize_keyboard": true}
	default:
		return nil
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
