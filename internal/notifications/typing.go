package notifications

import (
	"sync"
	"time"
)

// typingExpiry is the server-side inactivity window after which a typing
// entry is dropped and a stop signal is relayed on the typist's behalf.
// Clients expire indicators on their own after 3s; this is the backstop for
// a dropped stop event.
const typingExpiry = 5 * time.Second

type typingEntry struct {
	username   string
	lastSignal time.Time
}

// TypingTracker holds the transient conversation -> typist state. Nothing
// here is persisted; a reconnecting client misses at most one expiry window
// of typing signals.
type TypingTracker struct {
	mu      sync.Mutex
	typists map[uint]map[uint]*typingEntry

	expiry   time.Duration
	onExpire func(conversationID, userID uint, username string)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTypingTracker creates a tracker and starts its expiry janitor.
// onExpire fires when an entry times out without an explicit stop signal.
func NewTypingTracker(onExpire func(conversationID, userID uint, username string)) *TypingTracker {
	t := &TypingTracker{
		typists:  make(map[uint]map[uint]*typingEntry),
		expiry:   typingExpiry,
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
	}
	go t.janitor()
	return t
}

// Signal records a typing start/refresh or removes the entry on stop.
func (t *TypingTracker) Signal(conversationID, userID uint, username string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isTyping {
		t.removeLocked(conversationID, userID)
		return
	}

	if t.typists[conversationID] == nil {
		t.typists[conversationID] = make(map[uint]*typingEntry)
	}
	t.typists[conversationID][userID] = &typingEntry{
		username:   username,
		lastSignal: time.Now(),
	}
}

// Remove drops every entry for the user, used on disconnect.
func (t *TypingTracker) Remove(userID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for convID := range t.typists {
		t.removeLocked(convID, userID)
	}
}

// ActiveTypists returns the user ids currently typing in a conversation.
func (t *TypingTracker) ActiveTypists(conversationID uint) []uint {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.typists[conversationID]
	out := make([]uint, 0, len(entries))
	for userID := range entries {
		out = append(out, userID)
	}
	return out
}

// Stop terminates the janitor goroutine.
func (t *TypingTracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *TypingTracker) removeLocked(conversationID, userID uint) {
	if entries, ok := t.typists[conversationID]; ok {
		delete(entries, userID)
		if len(entries) == 0 {
			delete(t.typists, conversationID)
		}
	}
}

func (t *TypingTracker) janitor() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

func (t *TypingTracker) sweep(now time.Time) {
	type expired struct {
		conversationID uint
		userID         uint
		username       string
	}
	var fired []expired

	t.mu.Lock()
	for convID, entries := range t.typists {
		for userID, entry := range entries {
			if now.Sub(entry.lastSignal) > t.expiry {
				fired = append(fired, expired{convID, userID, entry.username})
				delete(entries, userID)
			}
		}
		if len(entries) == 0 {
			delete(t.typists, convID)
		}
	}
	t.mu.Unlock()

	// Callbacks run outside the lock; they broadcast into the hub.
	if t.onExpire != nil {
		for _, e := range fired {
			t.onExpire(e.conversationID, e.userID, e.username)
		}
	}
}
