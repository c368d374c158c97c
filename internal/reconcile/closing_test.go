package reconcile_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/reconcile"
)

var _ = Describe("ClosingComment", func() {
	closedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	assignee := model.Person{ID: 7, Username: "bob"}
	other := model.Person{ID: 9, Username: "carol"}

	issue := func() *model.Issue {
		at := closedAt
		a := assignee
		return &model.Issue{State: model.IssueStateClosed, ClosedAt: &at, Assignee: &a}
	}

	It("picks a comment posted half a second after the close", func() {
		comments := []model.Comment{
			{ID: 1, Author: assignee, Body: "older", CreatedAt: closedAt.Add(-time.Hour)},
			{ID: 2, Author: other, Body: "fixed", CreatedAt: closedAt.Add(500 * time.Millisecond)},
		}
		Expect(reconcile.ClosingComment(issue(), comments).ID).To(Equal(int64(2)))
	})

	It("picks a comment posted half a second before the close", func() {
		comments := []model.Comment{
			{ID: 1, Author: assignee, Body: "older", CreatedAt: closedAt.Add(-time.Hour)},
			{ID: 2, Author: other, Body: "fixed", CreatedAt: closedAt.Add(-500 * time.Millisecond)},
		}
		Expect(reconcile.ClosingComment(issue(), comments).ID).To(Equal(int64(2)))
	})

	It("ignores system notes inside the window", func() {
		comments := []model.Comment{
			{ID: 1, Author: assignee, Body: "done", CreatedAt: closedAt.Add(-time.Hour)},
			{ID: 2, Author: other, Body: "closed", System: true, CreatedAt: closedAt},
		}
		Expect(reconcile.ClosingComment(issue(), comments).ID).To(Equal(int64(1)))
	})

	It("falls back to the newest comment by the assignee", func() {
		comments := []model.Comment{
			{ID: 1, Author: assignee, Body: "first", CreatedAt: closedAt.Add(-2 * time.Hour)},
			{ID: 2, Author: assignee, Body: "second", CreatedAt: closedAt.Add(-time.Hour)},
			{ID: 3, Author: other, Body: "late", CreatedAt: closedAt.Add(-time.Minute)},
		}
		Expect(reconcile.ClosingComment(issue(), comments).ID).To(Equal(int64(2)))
	})

	It("returns nil without a match or assignee", func() {
		i := issue()
		i.Assignee = nil
		comments := []model.Comment{
			{ID: 1, Author: other, Body: "late", CreatedAt: closedAt.Add(-time.Minute)},
		}
		Expect(reconcile.ClosingComment(i, comments)).To(BeNil())
	})
})
