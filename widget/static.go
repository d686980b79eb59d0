// Package widget provides an in-memory part selection widget.
package widget

import (
	"context"
	"strings"
	"sync"
)

// Static is a multi-select held in memory. Every mutation sends a change
// signal; signals that arrive while one is pending are merged.
type Static struct {
	mu       sync.Mutex
	selected []string
	changes  chan struct{}
}

func NewStatic(ids ...string) *Static {
	s := &Static{changes: make(chan struct{}, 1)}
	s.selected = dedupe(ids)
	return s
}

func (s *Static) SelectedPartIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selected...), nil
}

func (s *Static) Changes() <-chan struct{} {
	return s.changes
}

// Select appends ids that are not selected yet.
func (s *Static) Select(ids ...string) {
	s.mu.Lock()
	s.selected = dedupe(append(s.selected, ids...))
	s.mu.Unlock()
	s.notify()
}

func (s *Static) Deselect(ids ...string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	s.mu.Lock()
	kept := s.selected[:0]
	for _, id := range s.selected {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.selected = kept
	s.mu.Unlock()
	s.notify()
}

// Set replaces the whole selection.
func (s *Static) Set(ids ...string) {
	s.mu.Lock()
	s.selected = dedupe(ids)
	s.mu.Unlock()
	s.notify()
}

func (s *Static) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
