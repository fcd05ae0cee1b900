package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/store"
	"github.com/faiza-ijaz0/jambeautylounge-backend/pkg/livemerge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// viewCollector records every merged view a conversation delivers.
type viewCollector struct {
	mu    sync.Mutex
	views [][]DayGroup
}

func (c *viewCollector) record(groups []DayGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views = append(c.views, groups)
}

func (c *viewCollector) waitFor(t *testing.T, ok func([]DayGroup) bool) []DayGroup {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for i := len(c.views) - 1; i >= 0; i-- {
			if ok(c.views[i]) {
				view := c.views[i]
				c.mu.Unlock()
				return view
			}
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for conversation view")
	return nil
}

func flatten(groups []DayGroup) []models.Message {
	var out []models.Message
	for _, g := range groups {
		out = append(out, g.Messages...)
	}
	return out
}

func messageCount(n int) func([]DayGroup) bool {
	return func(groups []DayGroup) bool { return len(flatten(groups)) == n }
}

func TestOpenConversationStreamsBothDirections(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	repo := NewMessageRepository(st)

	viewer := models.Actor{ID: "super-1", Name: "Faiza", Role: models.RoleSuperAdmin, BranchID: models.HeadOfficeBranchID}
	var collector viewCollector

	conv, err := OpenConversation(ctx, st, viewer, "gulberg", nil, collector.record)
	require.NoError(t, err)
	defer conv.Close()

	fromBranch, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)
	fromHQ, err := repo.Send(ctx, headOfficeSender())
	require.NoError(t, err)

	view := collector.waitFor(t, messageCount(2))
	msgs := flatten(view)
	assert.Equal(t, fromBranch.ID, msgs[0].ID)
	assert.Equal(t, fromHQ.ID, msgs[1].ID)
}

func TestOpenConversationReflectsEditsAndDeletes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	repo := NewMessageRepository(st)

	viewer := models.Actor{ID: "super-1", Role: models.RoleSuperAdmin, BranchID: models.HeadOfficeBranchID}
	var collector viewCollector

	conv, err := OpenConversation(ctx, st, viewer, "gulberg", nil, collector.record)
	require.NoError(t, err)
	defer conv.Close()

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)
	collector.waitFor(t, messageCount(1))

	require.NoError(t, repo.Edit(ctx, msg.ID, "hello, edited"))
	collector.waitFor(t, func(groups []DayGroup) bool {
		msgs := flatten(groups)
		return len(msgs) == 1 && msgs[0].Content == "hello, edited" && msgs[0].Edited
	})

	// Hiding the message for this viewer empties their view, while the
	// document itself survives for the other party.
	require.NoError(t, repo.DeleteForMe(ctx, msg.ID, viewer.ID))
	collector.waitFor(t, messageCount(0))

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.VisibleTo("admin-1"))
}

func TestOpenConversationIsolatesBranches(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	repo := NewMessageRepository(st)

	viewer := models.Actor{ID: "super-1", Role: models.RoleSuperAdmin, BranchID: models.HeadOfficeBranchID}
	var collector viewCollector

	conv, err := OpenConversation(ctx, st, viewer, "gulberg", nil, collector.record)
	require.NoError(t, err)
	defer conv.Close()

	// A message in a different branch's conversation must not appear.
	other := branchSender()
	other.SenderBranchID = "model-town"
	other.SenderBranchName = "Model Town"
	_, err = repo.Send(ctx, other)
	require.NoError(t, err)

	_, err = repo.Send(ctx, branchSender())
	require.NoError(t, err)

	view := collector.waitFor(t, messageCount(1))
	assert.Equal(t, "gulberg", flatten(view)[0].SenderBranchID)
}

func TestConversationCloseStopsUpdates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	repo := NewMessageRepository(st)

	viewer := models.Actor{ID: "super-1", Role: models.RoleSuperAdmin, BranchID: models.HeadOfficeBranchID}
	var collector viewCollector

	conv, err := OpenConversation(ctx, st, viewer, "gulberg", nil, collector.record)
	require.NoError(t, err)
	conv.Close()

	collector.mu.Lock()
	views := len(collector.views)
	collector.mu.Unlock()

	_, err = repo.Send(ctx, branchSender())
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Equal(t, views, len(collector.views), "no views may be delivered after Close")
}

func TestGroupByDayBucketsByLocalDate(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 22, 15, 0, 0, time.Local)
	day2 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)

	groups := GroupByDay([]models.Message{
		{ID: "m1", Timestamp: day1},
		{ID: "m2", Timestamp: day1.Add(time.Minute)},
		{ID: "m3", Timestamp: day2},
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "2026-03-01", groups[0].Date)
	assert.Len(t, groups[0].Messages, 2)
	assert.Equal(t, "2026-03-02", groups[1].Date)
	assert.Equal(t, "m3", groups[1].Messages[0].ID)
}

func TestGroupByDayEmpty(t *testing.T) {
	assert.Empty(t, GroupByDay(nil))
}

func TestPendingMessagesKeepTheirArrivalDate(t *testing.T) {
	// A message echoed before the server assigns its timestamp groups under
	// the instant it first appeared and stays in that bucket on re-merges.
	m := livemerge.New(1, mergeOptions("super-1"), nil)

	m.Set(0, []models.Message{{ID: "m1", Content: "optimistic"}})
	first := m.Snapshot()
	require.Len(t, first, 1)
	require.False(t, first[0].Timestamp.IsZero(), "merged views never carry a zero timestamp")
	date := GroupByDay(first)[0].Date

	m.Set(0, []models.Message{{ID: "m1", Content: "optimistic"}})
	assert.Equal(t, date, GroupByDay(m.Snapshot())[0].Date)
}

func TestConversationFiltersMirrorRoles(t *testing.T) {
	branchIn, branchOut := conversationFilters(ConversationKey{BranchID: "gulberg", ViewerRole: models.RoleBranchAdmin})
	assert.Equal(t, store.Filter{"recipientBranchId": "gulberg", "senderRole": "super_admin"}, branchIn)
	assert.Equal(t, store.Filter{"senderBranchId": "gulberg", "senderRole": "branch_admin"}, branchOut)

	hqIn, hqOut := conversationFilters(ConversationKey{BranchID: "gulberg", ViewerRole: models.RoleSuperAdmin})
	assert.Equal(t, store.Filter{"senderBranchId": "gulberg", "senderRole": "branch_admin"}, hqIn)
	assert.Equal(t, store.Filter{"recipientBranchId": "gulberg", "senderRole": "super_admin"}, hqOut)
}
