// Package view holds the text readouts a dashboard writes into.
package view

import (
	"sort"
	"sync"
)

const (
	AvgProcessingTime = "avg-processing-time"
	TotalProcessed    = "total-processed"
	SuccessRate       = "success-rate"
	ServerVersion     = "server-version"
)

// CounterID names the element holding the count for a queue state.
func CounterID(state string) string {
	return state + "-count"
}

// Document is anything the updaters write text into. SetText reports false
// when the element does not exist; that is not an error.
type Document interface {
	SetText(id, text string) bool
}

// Board is an in-memory Document with a fixed set of elements.
type Board struct {
	mu     sync.RWMutex
	values map[string]string
	writes int
}

func NewBoard(ids ...string) *Board {
	b := &Board{values: make(map[string]string, len(ids))}
	for _, id := range ids {
		b.values[id] = ""
	}
	return b
}

func (b *Board) SetText(id, text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[id]; !ok {
		return false
	}
	b.values[id] = text
	b.writes++
	return true
}

func (b *Board) Text(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[id]
	return v, ok
}

// Writes counts successful SetText calls.
func (b *Board) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}

func (b *Board) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.values))
	for id := range b.values {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (b *Board) Snapshot() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}
