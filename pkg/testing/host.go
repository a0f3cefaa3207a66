package testing

import "sync"

// Host records every committed content in order.
type Host struct {
	mu      sync.Mutex
	commits []any
	// OnCommit, when set, runs after each commit is recorded.
	OnCommit func(content any)
}

// Commit implements mount.Host.
func (h *Host) Commit(content any) {
	h.mu.Lock()
	h.commits = append(h.commits, content)
	h.mu.Unlock()
	if h.OnCommit != nil {
		h.OnCommit(content)
	}
}

// Commits returns a copy of every committed content.
func (h *Host) Commits() []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]any(nil), h.commits...)
}

// Len returns the number of commits.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.commits)
}

// Last returns the most recent content, or nil.
func (h *Host) Last() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.commits) == 0 {
		return nil
	}
	return h.commits[len(h.commits)-1]
}

// Reset drops the recorded commits.
func (h *Host) Reset() {
	h.mu.Lock()
	h.commits = nil
	h.mu.Unlock()
}
