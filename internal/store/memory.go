package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore implements Store entirely in memory with the same semantics as
// the Mongo-backed store: canonical BSON field values, server-assigned
// monotonic timestamps, and live subscriptions notified on every mutation.
// It backs the test suite and local development without a MongoDB instance.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Fields
	subs        map[string][]*liveQuery
	lastStamp   time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Fields),
		subs:        make(map[string][]*liveQuery),
	}
}

func (s *MemoryStore) Create(ctx context.Context, collection string, fields Fields) (Document, error) {
	norm, err := normalizeFields(fields)
	if err != nil {
		return Document{}, fmt.Errorf("store: create in %s: %w", collection, err)
	}

	s.mu.Lock()
	if _, ok := norm["timestamp"]; !ok {
		norm["timestamp"] = primitive.NewDateTimeFromTime(s.nextStampLocked())
	}
	id := uuid.NewString()
	col := s.collections[collection]
	if col == nil {
		col = make(map[string]Fields)
		s.collections[collection] = col
	}
	col[id] = norm
	s.mu.Unlock()

	s.notify(collection)
	return Document{ID: id, Fields: cloneFields(norm)}, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields, when Filter) error {
	norm, err := normalizeFields(fields)
	if err != nil {
		return fmt.Errorf("store: update %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if when != nil && !matches(doc, when) {
		s.mu.Unlock()
		return ErrPreconditionFailed
	}
	for k, v := range norm {
		doc[k] = v
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: cloneFields(fields)}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	if _, ok := s.collections[collection][id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *MemoryStore) BatchUpdate(ctx context.Context, collection string, writes []BatchWrite) error {
	if len(writes) == 0 {
		return nil
	}

	s.mu.Lock()
	// All-or-nothing: validate every target before touching any of them.
	normed := make([]Fields, len(writes))
	for i, w := range writes {
		if _, ok := s.collections[collection][w.ID]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("store: batch update in %s: %s: %w", collection, w.ID, ErrNotFound)
		}
		norm, err := normalizeFields(w.Fields)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("store: batch update in %s: %w", collection, err)
		}
		normed[i] = norm
	}
	for i, w := range writes {
		doc := s.collections[collection][w.ID]
		for k, v := range normed[i] {
			doc[k] = v
		}
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	norm, err := normalizeFields(Fields(filter))
	if err != nil {
		return nil, fmt.Errorf("store: find in %s: %w", collection, err)
	}

	s.mu.RLock()
	var docs []Document
	for id, fields := range s.collections[collection] {
		if matches(fields, Filter(norm)) {
			docs = append(docs, Document{ID: id, Fields: cloneFields(fields)})
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		ti, tj := timestampOf(docs[i].Fields), timestampOf(docs[j].Fields)
		if ti.Equal(tj) {
			return docs[i].ID < docs[j].ID
		}
		return ti.Before(tj)
	})
	return docs, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error) {
	sub := newLiveQuery(ctx, func(ctx context.Context) ([]Document, error) {
		return s.Find(ctx, collection, filter)
	})

	s.mu.Lock()
	s.subs[collection] = append(s.subs[collection], sub)
	s.mu.Unlock()

	sub.detach = func() {
		s.mu.Lock()
		list := s.subs[collection]
		for i, candidate := range list {
			if candidate == sub {
				s.subs[collection] = append(list[:i], list[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}

	sub.refresh()
	return sub, nil
}

func (s *MemoryStore) notify(collection string) {
	s.mu.RLock()
	subs := make([]*liveQuery, len(s.subs[collection]))
	copy(subs, s.subs[collection])
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.refresh()
	}
}

// nextStampLocked assigns a strictly increasing creation timestamp, mirroring
// the server-assigned monotonic write timestamp of the real store.
func (s *MemoryStore) nextStampLocked() time.Time {
	now := time.Now().UTC()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = now
	return now
}

// normalizeFields round-trips values through BSON so the in-memory store
// holds the same canonical types the Mongo driver would return.
func normalizeFields(fields Fields) (Fields, error) {
	if fields == nil {
		return Fields{}, nil
	}
	raw, err := bson.Marshal(bson.M(fields))
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return Fields(m), nil
}

func cloneFields(fields Fields) Fields {
	out, err := normalizeFields(fields)
	if err != nil {
		out = Fields{}
		for k, v := range fields {
			out[k] = v
		}
	}
	return out
}

func matches(fields Fields, filter Filter) bool {
	for k, want := range filter {
		if !reflect.DeepEqual(fields[k], want) {
			return false
		}
	}
	return true
}

func timestampOf(fields Fields) time.Time {
	switch v := fields["timestamp"].(type) {
	case primitive.DateTime:
		return v.Time()
	case time.Time:
		return v
	}
	return time.Time{}
}
