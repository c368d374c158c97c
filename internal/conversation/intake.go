package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Larin-Sergei/telegram-notify-bot/common"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
)

// collectFiles downloads each referenced file into the draft. The count
// limit is checked first, then the declared size, then the actual size.
// Every rejected file is named in a reply.
func (e *Engine) collectFiles(ctx context.Context, t *turn) error {
	d := t.draft()

	var accepted []string
	for _, ref := range t.in.Files {
		name := ref.Name
		if name == "" {
			name = ref.FileID
		}

		if d.Full() {
			e.tell(ctx, t, notify.TooManyFiles(name, e.cfg.MaxFiles))
			continue
		}
		if ref.Size > e.cfg.MaxFileSize {
			e.tell(ctx, t, notify.FileTooLarge(name, e.cfg.MaxFileSize))
			continue
		}

		file, err := e.chat.Download(ctx, ref.FileID, e.cfg.MaxFileSize)
		if err != nil {
			if errors.Is(err, chat.ErrFileTooLarge) {
				e.tell(ctx, t, notify.FileTooLarge(name, e.cfg.MaxFileSize))
				continue
			}
			slog.WarnContext(ctx, "failed to download chat file",
				"error", err,
				"file_name", name)
			e.tell(ctx, t, notify.FileDownloadFailed(name))
			continue
		}

		safeName, err := common.SafeFileName(name, ref.FileID)
		if err != nil {
			safeName = "file_" + ref.FileID
		}
		attachment := model.File{Name: safeName, ContentType: ref.ContentType, Data: file.Data}
		if attachment.ContentType == "" {
			attachment.ContentType = file.ContentType
		}

		switch err := d.AddAttachment(attachment); {
		case errors.Is(err, ErrTooManyAttachments):
			e.tell(ctx, t, notify.TooManyFiles(name, e.cfg.MaxFiles))
		case errors.Is(err, ErrAttachmentTooLarge):
			e.tell(ctx, t, notify.FileTooLarge(name, e.cfg.MaxFileSize))
		case err == nil:
			accepted = append(accepted, name)
		}
	}

	switch {
	case len(accepted) == 1:
		return e.reply(ctx, t, notify.FileAccepted(accepted[0]), nil)
	case len(accepted) > 1:
		return e.reply(ctx, t, notify.AlbumAccepted(len(accepted)), nil)
	}
	return nil
}

// tell sends an informational reply whose failure does not end the turn.
func (e *Engine) tell(ctx context.Context, t *turn, text string) {
	if err := e.reply(ctx, t, text, nil); err != nil {
		slog.WarnContext(ctx, "failed to send reply", "error", err)
	}
}
