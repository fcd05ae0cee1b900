package services

import (
	"context"
	"sync"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/store"
	"github.com/faiza-ijaz0/jambeautylounge-backend/pkg/livemerge"
)

// ConversationKey identifies one branch/head-office conversation from a
// viewer's perspective: which branch, seen from which role.
type ConversationKey struct {
	BranchID   string
	ViewerRole models.Role
}

// conversationFilters builds the two equality queries whose union is the
// conversation. The store cannot express the OR directly, so the inbound and
// outbound legs are subscribed independently and merged client-side.
func conversationFilters(key ConversationKey) (inbound, outbound store.Filter) {
	viewerRole := string(key.ViewerRole)
	counterpartRole := string(key.ViewerRole.Counterpart())

	if key.ViewerRole == models.RoleBranchAdmin {
		inbound = store.Filter{"recipientBranchId": key.BranchID, "senderRole": counterpartRole}
		outbound = store.Filter{"senderBranchId": key.BranchID, "senderRole": viewerRole}
		return inbound, outbound
	}
	// Super admin view of a branch: inbound is what the branch sent toward
	// head office, outbound is what head office sent to the branch.
	inbound = store.Filter{"senderBranchId": key.BranchID, "senderRole": counterpartRole}
	outbound = store.Filter{"recipientBranchId": key.BranchID, "senderRole": viewerRole}
	return inbound, outbound
}

// DayGroup is one calendar date's slice of the merged conversation, in
// chronological order.
type DayGroup struct {
	Date     string           `json:"date"`
	Messages []models.Message `json:"messages"`
}

// GroupByDay buckets an already-ordered message sequence by local calendar
// date, preserving order across and within buckets.
func GroupByDay(msgs []models.Message) []DayGroup {
	var groups []DayGroup
	for _, m := range msgs {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		date := ts.Local().Format("2006-01-02")
		if n := len(groups); n > 0 && groups[n-1].Date == date {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{Date: date, Messages: []models.Message{m}})
	}
	return groups
}

// Conversation is an open, live conversation view: two subscriptions (the
// inbound and outbound legs) merged into one ordered, deduplicated,
// visibility-filtered sequence that is re-delivered to onUpdate on every
// change. Close is synchronous: after it returns, no further onUpdate calls
// are made and no delivery-state timers remain pending, so a late emission
// from a closed conversation can never leak into the next one.
type Conversation struct {
	viewer   models.Actor
	key      ConversationKey
	merger   *livemerge.Merger[models.Message]
	subs     []store.Subscription
	tracker  *DeliveryTracker
	onUpdate func([]DayGroup)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

// OpenConversation subscribes both legs of the conversation and starts
// delivering merged views. The tracker, when non-nil, observes every merged
// view to drive delivered/seen transitions; it is closed together with the
// conversation.
func OpenConversation(ctx context.Context, st store.Store, viewer models.Actor, branchID string, tracker *DeliveryTracker, onUpdate func([]DayGroup)) (*Conversation, error) {
	key := ConversationKey{BranchID: branchID, ViewerRole: viewer.Role}

	c := &Conversation{
		viewer:   viewer,
		key:      key,
		tracker:  tracker,
		onUpdate: onUpdate,
	}
	c.merger = livemerge.New(2, mergeOptions(viewer.ID), c.deliver)

	inboundFilter, outboundFilter := conversationFilters(key)
	for i, filter := range []store.Filter{inboundFilter, outboundFilter} {
		sub, err := st.Subscribe(ctx, MessagesCollection, filter)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.subs = append(c.subs, sub)

		c.wg.Add(1)
		go func(source int, sub store.Subscription) {
			defer c.wg.Done()
			for emission := range sub.Updates() {
				c.merger.Set(source, decodeMessages(emission.Docs))
			}
		}(i, sub)
	}

	return c, nil
}

// Key returns the conversation's key.
func (c *Conversation) Key() ConversationKey { return c.key }

// Snapshot returns the current merged view grouped by day.
func (c *Conversation) Snapshot() []DayGroup {
	return GroupByDay(c.merger.Snapshot())
}

func (c *Conversation) deliver(merged []models.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	groups := GroupByDay(merged)
	update := c.onUpdate
	c.mu.Unlock()

	if update != nil {
		update(groups)
	}
	if c.tracker != nil {
		c.tracker.Observe(merged)
	}
}

// Close unsubscribes both legs and cancels pending delivery-state timers.
// Callers must Close before opening a different conversation.
func (c *Conversation) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		for _, sub := range c.subs {
			sub.Close()
		}
		c.wg.Wait()
		if c.tracker != nil {
			c.tracker.Close()
		}
	})
}
