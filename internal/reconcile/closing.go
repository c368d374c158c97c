package reconcile

import (
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

// closingWindow is how close a comment must be to closed_at to count as the
// comment posted together with the close.
const closingWindow = time.Second

// ClosingComment picks the comment explaining why the issue was closed: the
// newest comment posted within closingWindow of the close, else the newest
// comment by the current assignee. System notes never qualify.
func ClosingComment(issue *model.Issue, comments []model.Comment) *model.Comment {
	if issue.ClosedAt != nil {
		var best *model.Comment
		for i := range comments {
			c := &comments[i]
			if c.System {
				continue
			}
			delta := c.CreatedAt.Sub(*issue.ClosedAt)
			if delta < 0 {
				delta = -delta
			}
			if delta >= closingWindow {
				continue
			}
			if best == nil || newer(c, best) {
				best = c
			}
		}
		if best != nil {
			return best
		}
	}

	assignee := issue.AssigneeID()
	if assignee == nil {
		return nil
	}

	var best *model.Comment
	for i := range comments {
		c := &comments[i]
		if c.System || c.Author.ID != *assignee {
			continue
		}
		if best == nil || newer(c, best) {
			best = c
		}
	}
	return best
}

func newer(a, b *model.Comment) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}
