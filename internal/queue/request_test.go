package queue_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
)

var _ = Describe("ParseEntry", func() {
	It("parses a reconcile request as Redis returns it", func() {
		req, err := queue.ParseEntry(redis.XMessage{
			ID: "1-0",
			Values: map[string]any{
				"project_id": "5",
				"issue_iid":  "42",
				"event_type": "note",
				"attempt":    "2",
				"trace_id":   "abc",
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(req.ID()).To(Equal("1-0"))
		Expect(req.EntryIDs).To(Equal([]string{"1-0"}))
		Expect(req.Key).To(Equal(model.IssueKey{ProjectID: 5, IssueIID: 42}))
		Expect(req.EventTypes).To(Equal([]string{"note"}))
		Expect(req.Attempt).To(Equal(2))
		Expect(req.TraceID).To(Equal("abc"))
	})

	It("splits event types joined by an earlier retry", func() {
		req, err := queue.ParseEntry(redis.XMessage{Values: map[string]any{"project_id": "5", "issue_iid": "42", "event_type": "issue.close,note"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(req.EventTypes).To(Equal([]string{"issue.close", "note"}))
	})

	It("defaults the attempt to one", func() {
		req, err := queue.ParseEntry(redis.XMessage{Values: map[string]any{"project_id": "5", "issue_iid": "42"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Attempt).To(Equal(1))
		Expect(req.EventTypes).To(BeEmpty())
	})

	It("rejects entries without an issue", func() {
		_, err := queue.ParseEntry(redis.XMessage{Values: map[string]any{"project_id": "5"}})
		Expect(err).To(MatchError(ContainSubstring("issue_iid")))
	})

	It("rejects non-numeric ids", func() {
		_, err := queue.ParseEntry(redis.XMessage{Values: map[string]any{"project_id": "x", "issue_iid": "1"}})
		Expect(err).To(HaveOccurred())
	})

	It("rejects zero ids", func() {
		_, err := queue.ParseEntry(redis.XMessage{Values: map[string]any{"project_id": "0", "issue_iid": "1"}})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Coalesce", func() {
	a := model.IssueKey{ProjectID: 1, IssueIID: 10}
	b := model.IssueKey{ProjectID: 1, IssueIID: 11}

	entry := func(id string, key model.IssueKey, event string, attempt int, trace string) queue.Request {
		return queue.Request{Key: key, EntryIDs: []string{id}, EventTypes: []string{event}, Attempt: attempt, TraceID: trace}
	}

	It("folds a burst of hooks for one issue into one request", func() {
		out := queue.Coalesce([]queue.Request{
			entry("1-0", a, "note", 1, ""),
			entry("2-0", b, "issue.update", 1, "t-b"),
			entry("3-0", a, "note", 2, "t-a"),
			entry("4-0", a, "issue.close", 1, "t-late"),
		})

		Expect(out).To(HaveLen(2))
		Expect(out[0].Key).To(Equal(a))
		Expect(out[0].EntryIDs).To(Equal([]string{"1-0", "3-0", "4-0"}))
		Expect(out[0].EventTypes).To(Equal([]string{"note", "issue.close"}))
		Expect(out[0].Attempt).To(Equal(2))
		Expect(out[0].TraceID).To(Equal("t-a"))

		Expect(out[1].Key).To(Equal(b))
		Expect(out[1].EntryIDs).To(Equal([]string{"2-0"}))
	})

	It("leaves distinct issues alone", func() {
		in := []queue.Request{entry("1-0", a, "note", 1, ""), entry("2-0", b, "note", 1, "")}
		Expect(queue.Coalesce(in)).To(Equal(in))
	})
})
