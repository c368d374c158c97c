package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Components enrich the context once at their boundary (a tick, a stream message,
// a chat update) and every log statement below inherits the fields.
type LogFields struct {
	ProjectID *int64  // GitLab project ID
	IssueIID  *int64  // GitLab issue IID within the project
	ChatID    *int64  // Telegram chat the work is for
	TickID    *int64  // Reconciliation or auto-ack tick
	MessageID *string // Redis stream message ID
	EventType *string // Webhook event kind (e.g., "issue", "note")
	Component string  // Component name (e.g., "notifier.reconcile")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ProjectID != nil {
		result.ProjectID = new.ProjectID
	}
	if new.IssueIID != nil {
		result.IssueIID = new.IssueIID
	}
	if new.ChatID != nil {
		result.ChatID = new.ChatID
	}
	if new.TickID != nil {
		result.TickID = new.TickID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ChatID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
