package logger_test

import (
	"bytes"
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/core/config"
)

var _ = Describe("LogFields", func() {
	It("merges newer non-empty values over older ones", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			ProjectID: logger.Ptr(int64(7)),
			Component: "notifier.reconcile",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			IssueIID:  logger.Ptr(int64(42)),
			Component: "notifier.notify",
		})

		fields := logger.GetLogFields(ctx)
		Expect(*fields.ProjectID).To(Equal(int64(7)))
		Expect(*fields.IssueIID).To(Equal(int64(42)))
		Expect(fields.Component).To(Equal("notifier.notify"))
		Expect(fields.ChatID).To(BeNil())
	})

	It("returns empty fields for a bare context", func() {
		Expect(logger.GetLogFields(context.Background())).To(Equal(logger.LogFields{}))
	})

	It("truncates long strings", func() {
		Expect(logger.Truncate("abcdef", 3)).To(Equal("abc..."))
		Expect(logger.Truncate("abc", 3)).To(Equal("abc"))
	})
})

var _ = Describe("TraceHandler", func() {
	It("adds context fields to every record", func() {
		buf := &bytes.Buffer{}
		log := slog.New(logger.NewHandler(config.Config{Env: "production"}, buf))

		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			ProjectID: logger.Ptr(int64(3)),
			IssueIID:  logger.Ptr(int64(15)),
			ChatID:    logger.Ptr(int64(-100)),
			Component: "notifier.autoack",
		})
		log.InfoContext(ctx, "row swept")

		out := buf.String()
		Expect(out).To(ContainSubstring(`"msg":"row swept"`))
		Expect(out).To(ContainSubstring(`"project_id":3`))
		Expect(out).To(ContainSubstring(`"issue_iid":15`))
		Expect(out).To(ContainSubstring(`"chat_id":-100`))
		Expect(out).To(ContainSubstring(`"component":"notifier.autoack"`))
	})

	It("logs debug records in development", func() {
		buf := &bytes.Buffer{}
		log := slog.New(logger.NewHandler(config.Config{Env: "development"}, buf))

		log.Debug("tick skipped")

		Expect(buf.String()).To(ContainSubstring("tick skipped"))
	})
})
