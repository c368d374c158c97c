package notify_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
)

var _ = Describe("Messages", func() {
	key := model.IssueKey{ProjectID: 1, IssueIID: 42}

	Describe("ClosedCard", func() {
		issue := &model.Issue{Key: key, Title: "Printer", State: model.IssueStateClosed}

		It("shows the closing comment without upload markdown", func() {
			text, _ := notify.ClosedCard(issue, &model.Comment{
				Body: "Replaced the roller.\n\n![after](/uploads/abc/after.png)\n[log.txt](/uploads/def/log.txt)",
			})

			Expect(text).To(ContainSubstring("Replaced the roller."))
			Expect(text).NotTo(ContainSubstring("/uploads/"))
			Expect(text).NotTo(ContainSubstring("!["))
		})

		It("omits the comment section when the comment only carries uploads", func() {
			text, _ := notify.ClosedCard(issue, &model.Comment{Body: "![](/uploads/abc/after.png)"})
			Expect(text).NotTo(ContainSubstring("Комментарий исполнителя"))
		})
	})

	Describe("AutoAcked", func() {
		DescribeTable("renders the cutoff",
			func(cutoff time.Duration, want string) {
				Expect(notify.AutoAcked(key, cutoff)).To(ContainSubstring("в течение " + want + ","))
			},
			Entry("a day", 24*time.Hour, "24 часов"),
			Entry("one hour", time.Hour, "1 часа"),
			Entry("twenty one hours", 21*time.Hour, "21 часа"),
			Entry("eleven hours", 11*time.Hour, "11 часов"),
			Entry("minutes", 90*time.Minute, "90 минут"),
			Entry("one minute", time.Minute, "1 минуты"),
		)
	})
})
