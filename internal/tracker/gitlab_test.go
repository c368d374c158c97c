package tracker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker"
)

var _ = Describe("GitLab", func() {
	var (
		ctx    context.Context
		mux    *http.ServeMux
		server *httptest.Server
		client *tracker.GitLab

		mu       sync.Mutex
		sudoSeen []string
		lastBody string
		lastReq  *http.Request
	)

	key := model.IssueKey{ProjectID: 1, IssueIID: 2}

	BeforeEach(func() {
		ctx = context.Background()
		mux = http.NewServeMux()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			sudoSeen = append(sudoSeen, r.Header.Get("Sudo"))
			lastReq = r
			if r.Body != nil {
				b, _ := io.ReadAll(r.Body)
				lastBody = string(b)
			}
			mu.Unlock()
			mux.ServeHTTP(w, r)
		}))
		sudoSeen = nil
		lastBody = ""
		lastReq = nil

		var err error
		client, err = tracker.NewGitLab(tracker.GitLabConfig{
			BaseURL: server.URL,
			Token:   "token",
			Timeout: 5 * time.Second,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("GetIssue", func() {
		It("maps the snapshot with the primary assignee", func() {
			mux.HandleFunc("/api/v4/projects/1/issues/2", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{
					"id": 100, "iid": 2, "project_id": 1,
					"title": "Printer is down", "description": "desc",
					"state": "closed", "web_url": "https://gitlab.example/p/-/issues/2",
					"closed_at": "2025-03-01T10:00:00Z",
					"labels": ["bug"],
					"author": {"id": 5, "username": "alice", "name": "Alice"},
					"assignees": [{"id": 7, "username": "bob", "name": "Bob"}, {"id": 8, "username": "carol"}]
				}`)
			})

			issue, err := client.GetIssue(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(issue.Key).To(Equal(key))
			Expect(issue.IsClosed()).To(BeTrue())
			Expect(issue.ClosedAt).NotTo(BeNil())
			Expect(issue.Author.Username).To(Equal("alice"))
			Expect(*issue.AssigneeID()).To(Equal(int64(7)))
			Expect(issue.Labels).To(ConsistOf("bug"))
		})

		It("wraps API errors", func() {
			mux.HandleFunc("/api/v4/projects/1/issues/2", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message": "404 Not found"}`)
			})

			_, err := client.GetIssue(ctx, key)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("1#2"))
		})
	})

	Describe("ListComments", func() {
		It("follows pagination and orders by id", func() {
			mux.HandleFunc("/api/v4/projects/1/issues/2/notes", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if r.URL.Query().Get("page") == "2" {
					fmt.Fprint(w, `[{"id": 3, "body": "third", "author": {"id": 5}}]`)
					return
				}
				w.Header().Set("X-Next-Page", "2")
				fmt.Fprint(w, `[
					{"id": 9, "body": "ninth", "author": {"id": 7}, "system": false},
					{"id": 4, "body": "changed the description", "author": {"id": 7}, "system": true}
				]`)
			})

			comments, err := client.ListComments(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(comments).To(HaveLen(3))
			Expect(comments[0].ID).To(Equal(int64(3)))
			Expect(comments[1].System).To(BeTrue())
			Expect(comments[2].Body).To(Equal("ninth"))
		})
	})

	Describe("As", func() {
		It("sends the sudo header for the impersonated user", func() {
			mux.HandleFunc("/api/v4/projects/1/issues/2/notes", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, `{"id": 11, "body": "hello", "author": {"id": 42, "username": "dave"}}`)
			})

			comment, err := client.As(42).CreateComment(ctx, key, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(comment.ID).To(Equal(int64(11)))

			mu.Lock()
			defer mu.Unlock()
			Expect(sudoSeen).To(ContainElement("42"))
			Expect(lastReq.Method).To(Equal(http.MethodPost))
			Expect(lastBody).To(ContainSubstring("hello"))
		})
	})

	Describe("UpdateIssue", func() {
		It("sends an empty label list to clear labels", func() {
			mux.HandleFunc("/api/v4/projects/1/issues/2", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"id": 100, "iid": 2, "project_id": 1}`)
			})

			empty := []string{}
			err := client.UpdateIssue(ctx, key, model.IssueUpdate{Labels: &empty})
			Expect(err).NotTo(HaveOccurred())

			mu.Lock()
			defer mu.Unlock()
			Expect(lastReq.Method).To(Equal(http.MethodPut))
			Expect(lastBody).To(ContainSubstring(`"labels"`))
		})
	})

	Describe("DownloadUpload", func() {
		BeforeEach(func() {
			mux.HandleFunc("/api/v4/projects/1/uploads/abc123/report.txt", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, strings.Repeat("x", 64))
			})
		})

		It("returns the file with its content type", func() {
			file, err := client.DownloadUpload(ctx, 1, "/uploads/abc123/report.txt", 1024)
			Expect(err).NotTo(HaveOccurred())
			Expect(file.Name).To(Equal("report.txt"))
			Expect(file.ContentType).To(HavePrefix("text/plain"))
			Expect(file.Data).To(HaveLen(64))
		})

		It("rejects files over the cap", func() {
			_, err := client.DownloadUpload(ctx, 1, "/uploads/abc123/report.txt", 16)
			Expect(errors.Is(err, tracker.ErrUploadTooLarge)).To(BeTrue())
		})

		It("rejects paths outside uploads", func() {
			_, err := client.DownloadUpload(ctx, 1, "/etc/passwd", 16)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("FindUser", func() {
		It("matches the username case-insensitively", func() {
			mux.HandleFunc("/api/v4/users", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `[{"id": 5, "username": "alice", "name": "Alice A."}]`)
			})

			person, err := client.FindUser(ctx, "@Alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(person.ID).To(Equal(int64(5)))

			mu.Lock()
			defer mu.Unlock()
			Expect(lastReq.URL.Query().Get("username")).To(Equal("Alice"))
		})

		It("returns ErrUserNotFound for an empty result", func() {
			mux.HandleFunc("/api/v4/users", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `[]`)
			})

			_, err := client.FindUser(ctx, "ghost")
			Expect(err).To(MatchError(tracker.ErrUserNotFound))
		})
	})
})
