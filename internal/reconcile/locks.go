package reconcile

import (
	"sync"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

// keyLocks hands out one mutex per issue. Entries are dropped once nobody
// holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[model.IssueKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[model.IssueKey]*keyLock)}
}

func (l *keyLocks) lock(key model.IssueKey) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
