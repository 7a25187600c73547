package store

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultHistoryLimit is the number of messages kept in memory.
const DefaultHistoryLimit = 15

// History is a fixed-capacity FIFO of recent messages backed by an append-only file.
// The file keeps every message; only the newest Limit entries are held in memory.
type History struct {
	mu      sync.Mutex
	entries []string
	limit   int
	file    *os.File
	path    string
}

// LoadHistory opens (creating if needed) the message file at path and keeps its last
// limit non-empty lines. Lines longer than MaxEntrySize are skipped. A non-positive
// limit uses DefaultHistoryLimit.
func LoadHistory(path string, limit int) (*History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open history %s", path)
	}

	h := &History{
		entries: make([]string, 0, limit),
		limit:   limit,
		file:    file,
		path:    path,
	}

	total := 0
	oversized, err := readLines(file, MaxEntrySize, func(line string) {
		if line == "" {
			return
		}
		total++
		h.push(line)
	})
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "read history %s", path)
	}

	logger.WithFields(logrus.Fields{
		"path":     path,
		"messages": total,
		"kept":     len(h.entries),
		"skipped":  oversized,
	}).Info("loaded message history")
	return h, nil
}

// push evicts the oldest entry when full, then appends. Callers hold mu or own h exclusively.
func (h *History) push(entry string) {
	if len(h.entries) == h.limit {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.limit-1]
	}
	h.entries = append(h.entries, entry)
}

// Append adds entry to the tail of the history and to the backing file.
// The in-memory view is updated even when the file write fails; that error is returned.
func (h *History) Append(entry string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.push(entry)
	if err := appendLine(h.file, entry); err != nil {
		return errors.Wrapf(err, "append message to %s", h.path)
	}
	return nil
}

// Snapshot returns a copy of the entries, oldest first.
func (h *History) Snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries held in memory.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Limit returns the in-memory capacity.
func (h *History) Limit() int {
	return h.limit
}

// Close releases the backing file.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}
