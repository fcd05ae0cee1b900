package store

import (
	"context"
	"log"
	"reflect"
	"sync"
)

// liveQuery is the subscription implementation shared by the Mongo-backed and
// in-memory stores. Change notification transports differ per store; both end
// up calling refresh, which re-runs the query, diffs against the previous
// snapshot, and delivers the result latest-wins.
type liveQuery struct {
	query  func(ctx context.Context) ([]Document, error)
	detach func()

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	prev        []Document
	initialized bool
	out         chan Emission
	closed      bool
}

func newLiveQuery(parent context.Context, query func(ctx context.Context) ([]Document, error)) *liveQuery {
	ctx, cancel := context.WithCancel(parent)
	return &liveQuery{
		query:  query,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan Emission, 1),
	}
}

func (s *liveQuery) Updates() <-chan Emission { return s.out }

func (s *liveQuery) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if s.detach != nil {
		s.detach()
	}
	close(s.out)
}

// refresh re-runs the query and emits the full current result set. If the
// consumer has not drained the previous pending emission, it is replaced and
// its change records are folded into the new one, so consumers that lag see
// a coalesced but complete picture.
func (s *liveQuery) refresh() {
	docs, err := s.query(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			log.Printf("store: live query refresh failed: %v", err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	first := !s.initialized
	s.initialized = true
	changes := diffSnapshots(s.prev, docs)
	s.prev = docs
	if !first && len(changes) == 0 {
		return
	}

	emission := Emission{Docs: docs, Changes: changes}
	select {
	case stale := <-s.out:
		emission.Changes = append(stale.Changes, emission.Changes...)
	default:
	}
	s.out <- emission
}

// diffSnapshots computes added/modified/removed records between two full
// result sets, matching documents by id.
func diffSnapshots(prev, next []Document) []Change {
	prevByID := make(map[string]Document, len(prev))
	for _, d := range prev {
		prevByID[d.ID] = d
	}

	var changes []Change
	seen := make(map[string]bool, len(next))
	for _, d := range next {
		seen[d.ID] = true
		old, ok := prevByID[d.ID]
		if !ok {
			changes = append(changes, Change{Kind: ChangeAdded, Doc: d})
			continue
		}
		if !fieldsEqual(old.Fields, d.Fields) {
			changes = append(changes, Change{Kind: ChangeModified, Doc: d})
		}
	}
	for _, d := range prev {
		if !seen[d.ID] {
			changes = append(changes, Change{Kind: ChangeRemoved, Doc: d})
		}
	}
	return changes
}

// fieldsEqual compares two canonical field maps. Map marshaling order is not
// stable, so a byte-level comparison would misreport; deep equality on the
// decoded values is.
func fieldsEqual(a, b Fields) bool {
	return reflect.DeepEqual(a, b)
}
