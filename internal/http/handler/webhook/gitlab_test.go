package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/http/handler/webhook"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
)

type fakeProducer struct {
	requests []queue.ReconcileRequest
	err      error
}

func (f *fakeProducer) Enqueue(ctx context.Context, req queue.ReconcileRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

var _ = Describe("GitLabWebhookHandler", func() {
	var (
		router   *gin.Engine
		producer *fakeProducer
		buf      *bytes.Buffer
	)

	issueHook := map[string]any{
		"object_kind": "issue",
		"event_type":  "issue",
		"project":     map[string]any{"id": 7},
		"object_attributes": map[string]any{
			"id":     1001,
			"iid":    42,
			"title":  "Printer on fire",
			"action": "close",
		},
	}

	noteHook := map[string]any{
		"object_kind": "note",
		"event_type":  "note",
		"project_id":  7,
		"project":     map[string]any{"id": 7},
		"object_attributes": map[string]any{
			"id":            555,
			"note":          "Checked the toner",
			"noteable_type": "Issue",
		},
		"issue": map[string]any{"id": 1001, "iid": 42},
	}

	post := func(event string, token string, body any, headers ...string) *httptest.ResponseRecorder {
		payload, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", bytes.NewBuffer(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Gitlab-Event", event)
		if token != "" {
			req.Header.Set("X-Gitlab-Token", token)
		}
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		buf = &bytes.Buffer{}
		slog.SetDefault(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

		producer = &fakeProducer{}
		h := webhook.NewGitLabWebhookHandler(producer, webhook.Config{
			Secret:      "secret",
			ProjectID:   7,
			TraceHeader: "X-Trace-Id",
		})
		router.POST("/webhooks/gitlab", h.HandleEvent)
	})

	It("queues a reconcile request for an issue hook", func() {
		w := post("Issue Hook", "secret", issueHook, "X-Trace-Id", "abc123")

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(producer.requests).To(HaveLen(1))
		req := producer.requests[0]
		Expect(req.ProjectID).To(Equal(int64(7)))
		Expect(req.IssueIID).To(Equal(int64(42)))
		Expect(req.EventType).To(Equal("issue.close"))
		Expect(req.TraceID).NotTo(BeNil())
		Expect(*req.TraceID).To(Equal("abc123"))
		Expect(buf.String()).To(ContainSubstring("gitlab webhook queued"))
	})

	It("queues a reconcile request for a comment on an issue", func() {
		w := post("Note Hook", "secret", noteHook)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(producer.requests).To(HaveLen(1))
		Expect(producer.requests[0].IssueIID).To(Equal(int64(42)))
		Expect(producer.requests[0].EventType).To(Equal("note"))
		Expect(producer.requests[0].TraceID).To(BeNil())
	})

	It("rejects a missing token", func() {
		w := post("Issue Hook", "", issueHook)

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(producer.requests).To(BeEmpty())
	})

	It("rejects an invalid token", func() {
		w := post("Issue Hook", "wrong", issueHook)

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(producer.requests).To(BeEmpty())
	})

	It("ignores hooks it does not reconcile on", func() {
		w := post("Push Hook", "secret", map[string]any{"object_kind": "push"})

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(producer.requests).To(BeEmpty())
	})

	It("ignores events from other projects", func() {
		foreign := map[string]any{
			"object_kind":       "issue",
			"project":           map[string]any{"id": 99},
			"object_attributes": map[string]any{"iid": 1, "action": "open"},
		}

		w := post("Issue Hook", "secret", foreign)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(producer.requests).To(BeEmpty())
	})

	It("reports a queue failure", func() {
		producer.err = errors.New("redis down")

		w := post("Issue Hook", "secret", issueHook)

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(buf.String()).To(ContainSubstring("failed to enqueue reconcile request"))
	})
})
