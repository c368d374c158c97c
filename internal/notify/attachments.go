package notify

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker"
)

// uploadRef matches GitLab markdown links and images pointing at project uploads.
var uploadRef = regexp.MustCompile(`(!?)\[([^\]]*)\]\((/uploads/[^)\s]+)\)`)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// UploadRef is one file referenced from a markdown body.
type UploadRef struct {
	Label string
	Path  string
}

// ParseUploads extracts upload references in order of appearance, one per path.
func ParseUploads(body string) []UploadRef {
	matches := uploadRef.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	refs := make([]UploadRef, 0, len(matches))
	for _, m := range matches {
		p := m[3]
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		label := strings.TrimSpace(m[2])
		if label == "" || label == "image" {
			label = strings.TrimLeft(path.Base(p), "_")
		}
		refs = append(refs, UploadRef{Label: label, Path: p})
	}
	return refs
}

// StripUploads removes upload references from a markdown body.
func StripUploads(body string) string {
	body = uploadRef.ReplaceAllString(body, "")
	body = blankRuns.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

// FetchUploads downloads every reference it can. Failed downloads are logged
// and returned so callers can tell the user which files are missing.
func FetchUploads(ctx context.Context, client tracker.Client, projectID int64, refs []UploadRef, maxBytes int64) ([]chat.MediaItem, []UploadRef) {
	var (
		items  []chat.MediaItem
		failed []UploadRef
	)
	for _, ref := range refs {
		file, err := client.DownloadUpload(ctx, projectID, ref.Path, maxBytes)
		if err != nil {
			slog.WarnContext(ctx, "failed to download upload",
				"error", err,
				"path", ref.Path)
			failed = append(failed, ref)
			continue
		}
		items = append(items, chat.MediaItem{File: *file, Caption: esc(ref.Label)})
	}
	return items, failed
}
