// Package buffer accumulates incoming photos per chat so that a burst of
// pictures of the same box is processed as one batch.
package buffer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Item is one pending photo reference inside a chat buffer.
type Item struct {
	FileID    string `json:"file_id"`
	MessageID int    `json:"message_id"`
}

// FlushFunc receives the exclusive hand-off of a flushed buffer.
type FlushFunc func(chatID int64, items []Item)

// StartedFunc is invoked once when the first photo of a new window arrives.
type StartedFunc func(chatID int64)

type chatBuffer struct {
	items       []Item
	windowStart time.Time
}

// Manager owns the per-chat buffers. A chat has at most one active buffer;
// flushing removes it atomically so a later photo starts a fresh window.
// Hand-off callbacks run outside the lock so one chat's flush never blocks
// another chat's add.
type Manager struct {
	mu      sync.Mutex
	buffers map[int64]*chatBuffer

	timeout time.Duration
	max     int
	flush   FlushFunc
	started StartedFunc
	log     zerolog.Logger
}

// NewManager constructs a Manager. flush must not be nil; started may be.
func NewManager(timeout time.Duration, max int, flush FlushFunc, started StartedFunc, log zerolog.Logger) *Manager {
	return &Manager{
		buffers: make(map[int64]*chatBuffer),
		timeout: timeout,
		max:     max,
		flush:   flush,
		started: started,
		log:     log,
	}
}

// Add appends a photo to the chat's buffer, creating the buffer on the first
// photo of a new window. Reaching the configured maximum flushes immediately
// before returning.
func (m *Manager) Add(chatID int64, item Item) {
	m.mu.Lock()
	buf, ok := m.buffers[chatID]
	if !ok {
		buf = &chatBuffer{windowStart: time.Now()}
		m.buffers[chatID] = buf
	}
	buf.items = append(buf.items, item)
	count := len(buf.items)

	var full []Item
	if count >= m.max {
		full = buf.items
		delete(m.buffers, chatID)
	}
	m.mu.Unlock()

	if !ok && m.started != nil {
		m.started(chatID)
	}
	m.log.Info().Int64("chat_id", chatID).Int("count", count).Msg("photo buffered")
	if full != nil {
		m.flush(chatID, full)
	}
}

// SweepExpired flushes every buffer whose window is at least the configured
// timeout old. Expired buffers are detached under the lock from a stable
// snapshot, then handed off.
func (m *Manager) SweepExpired(now time.Time) {
	type flushed struct {
		chatID int64
		items  []Item
	}
	var expired []flushed

	m.mu.Lock()
	for chatID, buf := range m.buffers {
		if now.Sub(buf.windowStart) >= m.timeout {
			expired = append(expired, flushed{chatID: chatID, items: buf.items})
			delete(m.buffers, chatID)
		}
	}
	m.mu.Unlock()

	for _, f := range expired {
		if len(f.items) == 0 {
			continue
		}
		m.flush(f.chatID, f.items)
	}
}

// Flush detaches and hands off the chat's buffer. It is a no-op when the
// chat has no pending photos.
func (m *Manager) Flush(chatID int64) {
	m.mu.Lock()
	buf, ok := m.buffers[chatID]
	if ok {
		delete(m.buffers, chatID)
	}
	m.mu.Unlock()

	if !ok || len(buf.items) == 0 {
		return
	}
	m.flush(chatID, buf.items)
}

// Pending reports the buffered photo count for a chat.
func (m *Manager) Pending(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, ok := m.buffers[chatID]; ok {
		return len(buf.items)
	}
	return 0
}
