package notify_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat/chattest"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store/storetest"
)

var _ = Describe("Fanout", func() {
	var (
		ctx    context.Context
		mem    *storetest.Memory
		rec    *chattest.Recorder
		fanout *notify.Fanout
	)

	key := model.IssueKey{ProjectID: 1, IssueIID: 42}

	BeforeEach(func() {
		ctx = context.Background()
		mem = storetest.NewMemory()
		rec = chattest.NewRecorder()
		fanout = notify.NewFanout(mem.Subscriptions(), mem.Accounts(), rec)

		Expect(mem.Subscriptions().Add(ctx, &model.Subscription{SubscriberID: 10, Key: key})).To(Succeed())
		Expect(mem.Subscriptions().Add(ctx, &model.Subscription{SubscriberID: 20, Key: key})).To(Succeed())
	})

	Describe("Recipients", func() {
		It("adds the author's home chat after subscribers", func() {
			mem.PutAccount(model.Account{ChatUserID: 30, ChatID: 30, TrackerUserID: 5})
			Expect(fanout.Recipients(ctx, key, 5)).To(Equal([]int64{10, 20, 30}))
		})

		It("deduplicates an author who is also subscribed", func() {
			mem.PutAccount(model.Account{ChatUserID: 20, ChatID: 20, TrackerUserID: 5})
			Expect(fanout.Recipients(ctx, key, 5)).To(Equal([]int64{10, 20}))
		})

		It("ignores an author without an account", func() {
			Expect(fanout.Recipients(ctx, key, 99)).To(Equal([]int64{10, 20}))
		})

		It("proceeds with the author when subscribers cannot be listed", func() {
			mem.PutAccount(model.Account{ChatUserID: 30, ChatID: 30, TrackerUserID: 5})
			mem.ErrListSubscribers = errors.New("connection refused")
			Expect(fanout.Recipients(ctx, key, 5)).To(Equal([]int64{30}))
		})
	})

	Describe("Deliver", func() {
		It("keeps delivering after one recipient fails", func() {
			rec.Fail[10] = errors.New("bot was blocked by the user")

			report := fanout.Deliver(ctx, key, 0, notify.Message{Text: "hello"})
			Expect(report).To(Equal(notify.Report{Delivered: 1, Failed: 1}))
			Expect(rec.SentTo(20)).To(HaveLen(1))
		})

		It("skips the chat of the user who caused the notification", func() {
			mem.PutAccount(model.Account{ChatUserID: 20, ChatID: 20, TrackerUserID: 7})

			report := fanout.Deliver(ctx, key, 0, notify.Message{Text: "my own comment", SkipTrackerUser: 7})
			Expect(report.Delivered).To(Equal(1))
			Expect(rec.SentTo(10)).To(HaveLen(1))
			Expect(rec.SentTo(20)).To(BeEmpty())
		})

		It("uses the text as caption of the first media item", func() {
			media := []chat.MediaItem{
				{File: model.File{Name: "a.png", ContentType: "image/png"}, Caption: "a.png"},
				{File: model.File{Name: "b.png", ContentType: "image/png"}, Caption: "b.png"},
			}
			fanout.Deliver(ctx, key, 0, notify.Message{Text: "new comment", Media: media})

			sent := rec.SentTo(10)
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Media).To(HaveLen(2))
			Expect(sent[0].Media[0].Caption).To(Equal("new comment"))
			Expect(sent[0].Media[1].Caption).To(Equal("b.png"))
			Expect(media[0].Caption).To(Equal("a.png"))
		})

		It("sends long text separately from the media", func() {
			media := []chat.MediaItem{{File: model.File{Name: "a.png", ContentType: "image/png"}}}
			fanout.Deliver(ctx, key, 0, notify.Message{Text: strings.Repeat("x", 2000), Media: media})

			sent := rec.SentTo(10)
			Expect(sent).To(HaveLen(2))
			Expect(sent[0].Media).To(BeEmpty())
			Expect(sent[1].Media).To(HaveLen(1))
		})
	})
})
