package model

import "time"

// Account links a Telegram user to the GitLab user acting on their behalf.
type Account struct {
	ChatUserID      int64     `json:"chat_user_id"`
	ChatID          int64     `json:"chat_id"`
	TrackerUserID   int64     `json:"tracker_user_id"`
	TrackerUsername string    `json:"tracker_username"`
	CreatedAt       time.Time `json:"created_at"`
}
