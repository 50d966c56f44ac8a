// Package memory is the bounded conversation context store. It owns the
// ordered turn history, the open-session flag with its absolute expiry, and
// the JSONL persistence of turns.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Roles of a conversation turn.
const (
	RoleUser   = "user"
	RoleSystem = "system"
)

// Turn is one utterance or reply. Immutable once appended.
type Turn struct {
	Timestamp time.Time `json:"ts"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Intent    string    `json:"intent,omitempty"`
}

// Memory holds the N most recent turns (oldest evicted first) plus the
// session state. Appends always succeed; persistence happens off the hot
// path on a flush cadence, so a crash loses at most one flush interval.
//
// All methods are safe for concurrent use.
type Memory struct {
	fs    afero.Fs
	path  string
	bound int

	mu           sync.Mutex
	turns        []Turn
	pending      []Turn // appended since the last flush
	sessionUntil time.Time
	appended     uint64 // total appends this process, for status reports
}

// New creates a memory bounded to bound turns, loading any persisted history
// from path first.
func New(fs afero.Fs, path string, bound int) (*Memory, error) {
	if bound < 1 {
		bound = 1
	}
	m := &Memory{fs: fs, path: path, bound: bound}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	return m, nil
}

// Append records a turn, evicting the oldest when the bound is exceeded.
func (m *Memory) Append(t Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, t)
	m.pending = append(m.pending, t)
	m.appended++
	m.evict()
}

// Snapshot returns an immutable copy of the current turns, oldest first.
// Safe to read while appends continue.
func (m *Memory) Snapshot() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Recent returns up to k most recent turns, oldest first.
func (m *Memory) Recent(k int) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := len(m.turns) - k
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(m.turns)-start)
	copy(out, m.turns[start:])
	return out
}

// TurnCount reports total appends this process lifetime.
func (m *Memory) TurnCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appended
}

// OpenSession marks the follow-up window open until the given deadline.
func (m *Memory) OpenSession(until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionUntil = until
}

// CloseSession closes the follow-up window immediately.
func (m *Memory) CloseSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionUntil = time.Time{}
}

// SessionOpenAt reports whether the follow-up window is open at now.
func (m *Memory) SessionOpenAt(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Before(m.sessionUntil)
}

// Flush appends pending turns to the store. Cheap no-op when nothing is
// pending.
func (m *Memory) Flush() error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	if dir := filepath.Dir(m.path); dir != "." {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}

	f, err := m.fs.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		m.requeue(pending)
		return fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, t := range pending {
		line, err := json.Marshal(t)
		if err != nil {
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		m.requeue(pending)
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}

// RunFlusher flushes on the given cadence until ctx is cancelled, then makes
// a final flush so shutdown never loses turns.
func (m *Memory) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Flush(); err != nil {
				slog.Warn("conversation flush failed", "err", err)
			}
		case <-ctx.Done():
			if err := m.Flush(); err != nil {
				slog.Warn("final conversation flush failed", "err", err)
			}
			return
		}
	}
}

func (m *Memory) requeue(pending []Turn) {
	m.mu.Lock()
	m.pending = append(pending, m.pending...)
	m.mu.Unlock()
}

// evict keeps the most recent bound turns. Survivors move to a fresh backing
// array so evicted turns do not pin memory. Must hold m.mu.
func (m *Memory) evict() {
	if len(m.turns) <= m.bound {
		return
	}
	keep := m.turns[len(m.turns)-m.bound:]
	fresh := make([]Turn, len(keep), m.bound+1)
	copy(fresh, keep)
	m.turns = fresh
}

func (m *Memory) load() error {
	f, err := m.fs.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var t Turn
		if err := json.Unmarshal(sc.Bytes(), &t); err != nil {
			slog.Warn("skipping malformed history line", "err", err)
			continue
		}
		m.turns = append(m.turns, t)
		m.evict()
	}
	return sc.Err()
}
