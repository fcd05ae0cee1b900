package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
)

// Debounce delays before the viewer's presence in the conversation is turned
// into a delivery-state write. Delivered fires quickly; seen waits longer,
// approximating "the conversation has been open long enough to have been
// read". This is a heuristic, not a viewport check.
const (
	DefaultDeliveredDelay = 500 * time.Millisecond
	DefaultSeenDelay      = 1000 * time.Millisecond
)

// DeliveryTracker observes the merged conversation view and schedules
// sent -> delivered -> seen transitions for inbound messages, debounced per
// message so re-renders never cause write storms. All writes are best-effort:
// failures are logged and never retried, and rendering never waits on them.
type DeliveryTracker struct {
	repo           *MessageRepository
	viewer         models.Actor
	deliveredDelay time.Duration
	seenDelay      time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	acked  map[string]bool
	closed bool
}

func NewDeliveryTracker(repo *MessageRepository, viewer models.Actor) *DeliveryTracker {
	return &DeliveryTracker{
		repo:           repo,
		viewer:         viewer,
		deliveredDelay: DefaultDeliveredDelay,
		seenDelay:      DefaultSeenDelay,
		timers:         make(map[string]*time.Timer),
		acked:          make(map[string]bool),
	}
}

// SetDelays overrides the debounce delays. Must be called before Observe.
func (t *DeliveryTracker) SetDelays(delivered, seen time.Duration) {
	t.deliveredDelay = delivered
	t.seenDelay = seen
}

// Observe inspects the current merged view and schedules any missing
// delivered/seen writes for messages from the counterpart. Observing the
// same message again before its timer fires does not reschedule it.
func (t *DeliveryTracker) Observe(msgs []models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	for _, m := range msgs {
		if m.SenderRole != t.viewer.Role.Counterpart() || m.SenderID == t.viewer.ID {
			continue
		}
		if t.acked[m.ID] {
			continue
		}
		if !m.DeliveredToActor(t.viewer.ID) && m.Status != models.MessageStatusSeen {
			t.scheduleLocked(m.ID, "delivered", t.deliveredDelay)
		}
		if !m.Read || !m.ReadByActor(t.viewer.ID) {
			t.scheduleLocked(m.ID, "seen", t.seenDelay)
		}
	}
}

// Suppress cancels pending timers for the given messages and stops future
// scheduling for them. Called after the batch mark-all path already covered
// those messages, so the per-message debounced writes never duplicate it.
func (t *DeliveryTracker) Suppress(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.acked[id] = true
		t.cancelLocked(id + "/delivered")
		t.cancelLocked(id + "/seen")
	}
}

// Close cancels every pending timer. No writes fire after Close returns.
func (t *DeliveryTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}

func (t *DeliveryTracker) scheduleLocked(id, kind string, delay time.Duration) {
	key := id + "/" + kind
	if _, pending := t.timers[key]; pending {
		return
	}
	t.timers[key] = time.AfterFunc(delay, func() { t.fire(id, kind) })
}

func (t *DeliveryTracker) cancelLocked(key string) {
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

func (t *DeliveryTracker) fire(id, kind string) {
	t.mu.Lock()
	delete(t.timers, id+"/"+kind)
	if t.closed || t.acked[id] {
		t.mu.Unlock()
		return
	}
	if kind == "seen" {
		t.acked[id] = true
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if kind == "delivered" {
		err = t.repo.MarkDelivered(ctx, id, t.viewer.ID)
	} else {
		err = t.repo.MarkSeen(ctx, id, t.viewer.ID)
	}
	if err != nil {
		log.Printf("delivery: mark %s for %s failed: %v", kind, id, err)
	}
}
