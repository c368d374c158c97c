package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat/chattest"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/reconcile"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store/storetest"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker/trackertest"
)

var _ = Describe("Reconciler", func() {
	const (
		ownerChat  = int64(500)
		subscriber = int64(600)
	)

	var (
		ctx        context.Context
		mem        *storetest.Memory
		fake       *trackertest.Fake
		rec        *chattest.Recorder
		reconciler *reconcile.Reconciler
	)

	key := model.IssueKey{ProjectID: 1, IssueIID: 42}
	author := model.Person{ID: 1, Username: "bot", Name: "Service Desk"}
	engineer := model.Person{ID: 7, Username: "bob", Name: "Bob"}
	other := model.Person{ID: 8, Username: "carol", Name: "Carol"}

	openIssue := func() model.Issue {
		return model.Issue{Key: key, Title: "Printer", State: model.IssueStateOpened, Author: author}
	}

	track := func(watermark int64) {
		mem.Put(model.TrackedIssue{Key: key, ChatID: ownerChat, CommentWatermark: watermark})
	}

	row := func() model.TrackedIssue {
		r, ok := mem.Row(key)
		Expect(ok).To(BeTrue())
		return r
	}

	BeforeEach(func() {
		ctx = context.Background()
		mem = storetest.NewMemory()
		fake = trackertest.NewFake()
		rec = chattest.NewRecorder()
		fanout := notify.NewFanout(mem.Subscriptions(), mem.Accounts(), rec)
		reconciler = reconcile.New(mem.TrackedIssues(), fake, fanout, reconcile.Config{
			Concurrency: 2,
			ReviewLabel: "review",
			MaxFileSize: 1024,
		})

		Expect(mem.Subscriptions().Add(ctx, &model.Subscription{SubscriberID: subscriber, Key: key})).To(Succeed())
	})

	Describe("new comments", func() {
		It("raises the watermark to the newest id and notifies once per non-author comment", func() {
			track(3)
			fake.PutIssue(openIssue())
			fake.PutComments(key,
				model.Comment{ID: 2, Author: engineer, Body: "old"},
				model.Comment{ID: 5, Author: engineer, Body: "on it"},
				model.Comment{ID: 7, Author: author, Body: "thanks"},
			)

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Comments).To(Equal(1))
			Expect(row().CommentWatermark).To(Equal(int64(7)))

			sent := rec.SentTo(subscriber)
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Text).To(ContainSubstring("on it"))
		})

		It("never lowers the watermark and does not renotify", func() {
			track(7)
			fake.PutIssue(openIssue())
			fake.PutComments(key,
				model.Comment{ID: 5, Author: engineer, Body: "old"},
				model.Comment{ID: 7, Author: engineer, Body: "old too"},
			)

			Expect(reconciler.Tick(ctx)).To(Succeed())
			Expect(reconciler.Tick(ctx)).To(Succeed())
			Expect(row().CommentWatermark).To(Equal(int64(7)))
			Expect(rec.Sent()).To(BeEmpty())

			fake.PutComments(key,
				model.Comment{ID: 5, Author: engineer, Body: "old"},
				model.Comment{ID: 9, Author: other, Body: "new"},
			)
			Expect(reconciler.Tick(ctx)).To(Succeed())
			Expect(row().CommentWatermark).To(Equal(int64(9)))
			Expect(rec.SentTo(subscriber)).To(HaveLen(1))
		})

		It("skips system notes", func() {
			track(0)
			fake.PutIssue(openIssue())
			fake.PutComments(key, model.Comment{ID: 4, Author: engineer, Body: "added label", System: true})

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Comments).To(BeZero())
			Expect(row().CommentWatermark).To(BeZero())
		})

		It("does not notify when the watermark write fails and retries next pass", func() {
			track(3)
			fake.PutIssue(openIssue())
			fake.PutComments(key, model.Comment{ID: 5, Author: engineer, Body: "on it"})
			mem.ErrRaiseCommentWatermark = errors.New("connection reset")

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Comments).To(BeZero())
			Expect(rec.Sent()).To(BeEmpty())
			Expect(row().CommentWatermark).To(Equal(int64(3)))

			mem.ErrRaiseCommentWatermark = nil
			out, err = reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Comments).To(Equal(1))
		})

		It("forwards comment attachments as media without the markdown", func() {
			track(0)
			fake.PutIssue(openIssue())
			fake.PutUpload("/uploads/abc/screen.png", model.File{Name: "screen.png", ContentType: "image/png", Data: []byte("png")})
			fake.PutComments(key, model.Comment{ID: 5, Author: engineer, Body: "see ![screen](/uploads/abc/screen.png)"})

			_, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())

			sent := rec.SentTo(subscriber)
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Media).To(HaveLen(1))
			Expect(sent[0].Media[0].File.Name).To(Equal("screen.png"))
			Expect(sent[0].Text).NotTo(ContainSubstring("/uploads/"))
		})

		It("falls back to text when no attachment can be fetched", func() {
			track(0)
			fake.PutIssue(openIssue())
			fake.PutComments(key, model.Comment{ID: 5, Author: engineer, Body: "see [log](/uploads/missing/log.txt)"})

			_, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())

			sent := rec.SentTo(subscriber)
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Media).To(BeEmpty())
		})

		It("leaves the row untouched when the tracker is unreachable", func() {
			track(3)
			fake.FailGetIssue(errors.New("503 service unavailable"))

			_, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).To(HaveOccurred())
			Expect(row().CommentWatermark).To(Equal(int64(3)))
			Expect(row().Assignee.Observed).To(BeFalse())
			Expect(rec.Sent()).To(BeEmpty())
		})
	})

	Describe("closed issues", func() {
		closedIssue := func() model.Issue {
			i := openIssue()
			at := time.Now().Add(-time.Minute)
			i.State = model.IssueStateClosed
			i.ClosedAt = &at
			a := engineer
			i.Assignee = &a
			return i
		}

		It("sends one acceptance card and applies the review label", func() {
			track(0)
			issue := closedIssue()
			fake.PutIssue(issue)
			fake.PutComments(key, model.Comment{ID: 11, Author: engineer, Body: "replaced toner", CreatedAt: *issue.ClosedAt})

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Closed).To(BeTrue())

			r := row()
			Expect(r.Notified).To(BeTrue())
			Expect(r.NotifiedAt).NotTo(BeNil())
			Expect(r.CommentWatermark).To(Equal(int64(11)))

			cards := rec.SentTo(ownerChat)
			Expect(cards).To(HaveLen(2))
			Expect(cards[0].Text).To(ContainSubstring("replaced toner"))
			Expect(cards[0].Keyboard.Inline[0][0].Data).To(Equal("ack:1:42"))
			Expect(cards[0].Keyboard.Inline[0][1].Data).To(Equal("reopen:1:42"))

			updates := fake.Updates()
			Expect(updates).To(HaveLen(1))
			Expect(*updates[0].Update.Labels).To(Equal([]string{"review"}))
		})

		It("shows the closing comment on the card without upload markdown", func() {
			track(0)
			issue := closedIssue()
			fake.PutIssue(issue)
			fake.PutComments(key, model.Comment{ID: 11, Author: engineer, Body: "replaced toner\n\n![after](/uploads/abc/after.png)", CreatedAt: *issue.ClosedAt})

			_, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())

			cards := rec.SentTo(ownerChat)
			Expect(cards).NotTo(BeEmpty())
			Expect(cards[0].Keyboard).NotTo(BeNil())
			Expect(cards[0].Text).To(ContainSubstring("replaced toner"))
			Expect(cards[0].Text).NotTo(ContainSubstring("/uploads/"))
		})

		It("flips notified at most once until it is cleared", func() {
			track(0)
			fake.PutIssue(closedIssue())

			for range 3 {
				Expect(reconciler.Tick(ctx)).To(Succeed())
			}
			cards := 0
			for _, s := range rec.SentTo(ownerChat) {
				if s.Keyboard != nil {
					cards++
				}
			}
			Expect(cards).To(Equal(1))

			Expect(mem.TrackedIssues().ClearNotified(ctx, key)).To(Succeed())
			Expect(reconciler.Tick(ctx)).To(Succeed())

			cards = 0
			for _, s := range rec.SentTo(ownerChat) {
				if s.Keyboard != nil {
					cards++
				}
			}
			Expect(cards).To(Equal(2))
		})

		It("sends a single card under concurrent passes", func() {
			track(0)
			fake.PutIssue(closedIssue())

			var wg sync.WaitGroup
			for range 5 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := reconciler.ReconcileIssue(ctx, key)
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			cards := 0
			for _, s := range rec.SentTo(ownerChat) {
				if s.Keyboard != nil {
					cards++
				}
			}
			Expect(cards).To(Equal(1))
		})

		It("does not forward comments while closed", func() {
			track(0)
			fake.PutIssue(closedIssue())
			fake.PutComments(key, model.Comment{ID: 3, Author: other, Body: "late remark", CreatedAt: time.Now().Add(-time.Hour)})

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Comments).To(BeZero())
			Expect(rec.SentTo(subscriber)).To(BeEmpty())
		})
	})

	Describe("assignee changes", func() {
		withAssignee := func(p *model.Person) model.Issue {
			i := openIssue()
			i.Assignee = p
			return i
		}

		It("records a first unassigned observation silently", func() {
			track(0)
			fake.PutIssue(withAssignee(nil))

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Assignee).To(BeFalse())
			Expect(row().Assignee).To(Equal(model.AssigneeWatermark{Observed: true}))
			Expect(rec.Sent()).To(BeEmpty())
		})

		It("notifies a first assignment and then a change", func() {
			track(0)
			fake.PutIssue(withAssignee(&engineer))

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Assignee).To(BeTrue())
			Expect(rec.Last().Text).To(ContainSubstring("назначен исполнитель"))

			out, err = reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Assignee).To(BeFalse())

			fake.PutIssue(withAssignee(&other))
			out, err = reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Assignee).To(BeTrue())
			Expect(rec.Last().Text).To(ContainSubstring("новый исполнитель"))
			Expect(rec.SentTo(ownerChat)).To(HaveLen(2))
		})

		It("records an unassignment silently and treats the next assignee as a change", func() {
			id := engineer.ID
			mem.Put(model.TrackedIssue{Key: key, ChatID: ownerChat, Assignee: model.AssigneeWatermark{Observed: true, ID: &id}})
			fake.PutIssue(withAssignee(nil))

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Assignee).To(BeFalse())
			Expect(row().Assignee.ID).To(BeNil())

			fake.PutIssue(withAssignee(&engineer))
			out, err = reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Assignee).To(BeTrue())
		})

		It("does not notify when the watermark cannot be stored", func() {
			track(0)
			fake.PutIssue(withAssignee(&engineer))
			mem.ErrSetAssigneeWatermark = errors.New("connection reset")

			out, err := reconciler.ReconcileIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Assignee).To(BeFalse())
			Expect(rec.Sent()).To(BeEmpty())
		})
	})

	Describe("ReconcileIssue", func() {
		It("returns ErrNotTracked for unknown issues", func() {
			_, err := reconciler.ReconcileIssue(ctx, model.IssueKey{ProjectID: 9, IssueIID: 9})
			Expect(err).To(MatchError(reconcile.ErrNotTracked))
		})
	})

	Describe("Tick", func() {
		It("fails when rows cannot be listed", func() {
			mem.ErrList = errors.New("connection refused")
			Expect(reconciler.Tick(ctx)).To(HaveOccurred())
		})

		It("keeps going when one issue fails", func() {
			track(0)
			other := model.IssueKey{ProjectID: 1, IssueIID: 43}
			mem.Put(model.TrackedIssue{Key: other, ChatID: ownerChat})
			fake.PutIssue(openIssue())
			fake.PutComments(key, model.Comment{ID: 5, Author: engineer, Body: "on it"})

			Expect(reconciler.Tick(ctx)).To(Succeed())
			Expect(row().CommentWatermark).To(Equal(int64(5)))
		})
	})
})
