package conversation_test

import "time"

func mustTime() time.Time {
	return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
}
