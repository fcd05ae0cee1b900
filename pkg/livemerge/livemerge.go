// Package livemerge combines several independently-ordered live query result
// sets into one time-ordered, deduplicated, visibility-filtered view.
//
// The document store only supports conjunctive equality filters, so a view
// like "messages I sent OR messages sent to me" has to be assembled
// client-side from one subscription per disjunct. This package is that
// assembly, written once instead of per consumer: sources are swapped
// wholesale on every emission and the merged view is recomputed from scratch,
// which makes it safe against emissions arriving in any order or interleaving.
package livemerge

import (
	"sort"
	"sync"
	"time"
)

// Options parameterizes a Merger over the element type.
type Options[T any] struct {
	// ID extracts the element's unique identity, used for deduplication.
	ID func(T) string
	// Timestamp extracts the ordering instant. A zero time means the
	// element is still awaiting its server-assigned timestamp; the merger
	// substitutes the local arrival clock so the element sorts into a sane
	// position until the confirmed value arrives.
	Timestamp func(T) time.Time
	// Visible, when non-nil, filters the merged and sorted view as the
	// final step. Filtering last keeps ordering consistent regardless of
	// which source an element arrived from.
	Visible func(T) bool
	// Resolve, when non-nil, writes the resolved ordering instant back
	// into elements whose Timestamp was zero, so downstream grouping sees
	// the same pinned instant the sort used instead of re-reading a clock.
	Resolve func(T, time.Time) T
}

// Merger merges a fixed number of live sources. Safe for concurrent use;
// merge and delivery are serialized, so onChange receives views in merge
// order and the last delivered view is always the current merged state.
type Merger[T any] struct {
	opts     Options[T]
	onChange func([]T)

	// deliverMu is held across merge+callback. Without it two concurrent
	// Set calls could deliver their views in the opposite order, leaving
	// a stale merge as the consumer's final view.
	deliverMu sync.Mutex

	mu      sync.Mutex
	sources [][]T
	arrived map[string]time.Time
	now     func() time.Time
}

// New creates a Merger with numSources independent sources, all initially
// empty. onChange may be nil when only Snapshot is used.
func New[T any](numSources int, opts Options[T], onChange func([]T)) *Merger[T] {
	return &Merger[T]{
		opts:     opts,
		onChange: onChange,
		sources:  make([][]T, numSources),
		arrived:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// Set replaces source i's buffer wholesale and recomputes the merged view.
// Each emission from an underlying live query carries the full current result
// set, so last-write-wins per source is sufficient.
func (m *Merger[T]) Set(source int, items []T) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	m.sources[source] = items
	merged := m.mergeLocked()
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(merged)
	}
}

// Snapshot returns the current merged view.
func (m *Merger[T]) Snapshot() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeLocked()
}

func (m *Merger[T]) mergeLocked() []T {
	// Concatenate, then deduplicate by id. Later sources win, but any
	// representative is acceptable: duplicates describe the same document
	// (e.g. a self-conversation satisfying both subscribed queries).
	index := make(map[string]int)
	var out []T
	for _, src := range m.sources {
		for _, item := range src {
			id := m.opts.ID(item)
			if at, ok := index[id]; ok {
				out[at] = item
				continue
			}
			index[id] = len(out)
			out = append(out, item)
		}
	}

	for id := range m.arrived {
		if _, ok := index[id]; !ok {
			delete(m.arrived, id)
		}
	}

	resolved := make(map[string]time.Time, len(out))
	for _, item := range out {
		id := m.opts.ID(item)
		ts := m.opts.Timestamp(item)
		if ts.IsZero() {
			// Pin the arrival instant so re-merges don't reshuffle
			// elements still waiting on their server timestamp.
			at, ok := m.arrived[id]
			if !ok {
				at = m.now()
				m.arrived[id] = at
			}
			ts = at
		} else {
			delete(m.arrived, id)
		}
		resolved[id] = ts
	}

	if m.opts.Resolve != nil {
		for i, item := range out {
			if m.opts.Timestamp(item).IsZero() {
				out[i] = m.opts.Resolve(item, resolved[m.opts.ID(item)])
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti := resolved[m.opts.ID(out[i])]
		tj := resolved[m.opts.ID(out[j])]
		if ti.Equal(tj) {
			return m.opts.ID(out[i]) < m.opts.ID(out[j])
		}
		return ti.Before(tj)
	})

	if m.opts.Visible == nil {
		return out
	}
	filtered := out[:0:0]
	for _, item := range out {
		if m.opts.Visible(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Merge performs a one-shot merge of static result sets with the same
// semantics as a live Merger. Used for non-live reads such as history
// endpoints.
func Merge[T any](opts Options[T], sets ...[]T) []T {
	m := New(len(sets), opts, nil)
	for i, s := range sets {
		m.sources[i] = s
	}
	return m.Snapshot()
}
