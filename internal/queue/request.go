package queue

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

// Stream entry fields.
const (
	fieldProjectID = "project_id"
	fieldIssueIID  = "issue_iid"
	fieldEventType = "event_type"
	fieldAttempt   = "attempt"
	fieldTraceID   = "trace_id"
	fieldLastError = "last_error"
	fieldError     = "error"
)

// Request asks for one issue to be reconciled. Stream entries naming the same
// issue within one read are folded into a single Request that owns all of
// their ids.
type Request struct {
	Key model.IssueKey
	// EntryIDs lists the stream entries this request answers, oldest first.
	EntryIDs   []string
	EventTypes []string
	// Attempt is the highest attempt among the folded entries.
	Attempt int
	TraceID string
}

// ID is the oldest stream entry of the request.
func (r Request) ID() string {
	if len(r.EntryIDs) == 0 {
		return ""
	}
	return r.EntryIDs[0]
}

// ParseEntry reads a reconcile request written by the webhook producer.
func ParseEntry(msg redis.XMessage) (Request, error) {
	projectID, err := entryInt(msg.Values, fieldProjectID, true)
	if err != nil {
		return Request{}, err
	}
	issueIID, err := entryInt(msg.Values, fieldIssueIID, true)
	if err != nil {
		return Request{}, err
	}
	if projectID <= 0 || issueIID <= 0 {
		return Request{}, fmt.Errorf("invalid issue %d#%d", projectID, issueIID)
	}
	attempt, err := entryInt(msg.Values, fieldAttempt, false)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		Key:      model.IssueKey{ProjectID: projectID, IssueIID: issueIID},
		EntryIDs: []string{msg.ID},
		Attempt:  max(int(attempt), 1),
		TraceID:  entryString(msg.Values, fieldTraceID),
	}
	if ev := entryString(msg.Values, fieldEventType); ev != "" {
		req.EventTypes = strings.Split(ev, ",")
	}
	return req, nil
}

// Coalesce folds requests for the same issue into the first one seen,
// keeping first-seen order across issues.
func Coalesce(reqs []Request) []Request {
	if len(reqs) < 2 {
		return reqs
	}

	index := make(map[model.IssueKey]int, len(reqs))
	out := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		i, ok := index[r.Key]
		if !ok {
			index[r.Key] = len(out)
			r.EntryIDs = slices.Clone(r.EntryIDs)
			r.EventTypes = slices.Clone(r.EventTypes)
			out = append(out, r)
			continue
		}

		m := &out[i]
		m.EntryIDs = append(m.EntryIDs, r.EntryIDs...)
		for _, ev := range r.EventTypes {
			if !slices.Contains(m.EventTypes, ev) {
				m.EventTypes = append(m.EventTypes, ev)
			}
		}
		m.Attempt = max(m.Attempt, r.Attempt)
		if m.TraceID == "" {
			m.TraceID = r.TraceID
		}
	}
	return out
}

func entryValues(key model.IssueKey, eventType string, attempt int, traceID string) map[string]any {
	values := map[string]any{
		fieldProjectID: key.ProjectID,
		fieldIssueIID:  key.IssueIID,
		fieldAttempt:   max(attempt, 1),
	}
	if eventType != "" {
		values[fieldEventType] = eventType
	}
	if traceID != "" {
		values[fieldTraceID] = traceID
	}
	return values
}

// values is the stream entry re-adding r at attempt. Folded event types are
// joined so the entry still says what triggered it.
func (r Request) values(attempt int) map[string]any {
	return entryValues(r.Key, strings.Join(r.EventTypes, ","), attempt, r.TraceID)
}

func entryInt(values map[string]any, key string, required bool) (int64, error) {
	raw, ok := values[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing %s", key)
		}
		return 0, nil
	}
	n, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func entryString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
