package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a Store and counts mutating calls, so tests can assert
// that rejected inputs never reach the store.
type countingStore struct {
	store.Store
	creates int
	updates int
	deletes int
}

func (c *countingStore) Create(ctx context.Context, collection string, fields store.Fields) (store.Document, error) {
	c.creates++
	return c.Store.Create(ctx, collection, fields)
}

func (c *countingStore) Update(ctx context.Context, collection, id string, fields store.Fields, when store.Filter) error {
	c.updates++
	return c.Store.Update(ctx, collection, id, fields, when)
}

func (c *countingStore) Delete(ctx context.Context, collection, id string) error {
	c.deletes++
	return c.Store.Delete(ctx, collection, id)
}

// failingGetStore fails every Get with err, simulating a transient store
// outage while writes would still succeed.
type failingGetStore struct {
	store.Store
	err error
}

func (f *failingGetStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	return store.Document{}, f.err
}

func branchSender() SendInput {
	return SendInput{
		SenderID:            "admin-1",
		SenderName:          "Maha",
		SenderRole:          models.RoleBranchAdmin,
		SenderBranchID:      "gulberg",
		SenderBranchName:    "Gulberg",
		RecipientBranchID:   models.HeadOfficeBranchID,
		RecipientBranchName: "Head Office",
		Content:             "hello",
	}
}

func headOfficeSender() SendInput {
	return SendInput{
		SenderID:            "super-1",
		SenderName:          "Faiza",
		SenderRole:          models.RoleSuperAdmin,
		SenderBranchID:      models.HeadOfficeBranchID,
		SenderBranchName:    "Head Office",
		RecipientBranchID:   "gulberg",
		RecipientBranchName: "Gulberg",
		Content:             "hi back",
	}
}

func pngDataURI(size int) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, size))
}

func TestSendRejectsInvalidInputBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*SendInput)
		wantErr error
	}{
		{
			name:    "empty content and no image",
			mutate:  func(in *SendInput) { in.Content = "   " },
			wantErr: ErrEmptyMessage,
		},
		{
			name: "oversized image",
			mutate: func(in *SendInput) {
				in.Image = "data:image/png;base64," + strings.Repeat("A", models.MaxAttachmentBytes*2)
			},
			wantErr: models.ErrImageTooLarge,
		},
		{
			name:    "image not a data URI",
			mutate:  func(in *SendInput) { in.Image = "https://example.com/cat.png" },
			wantErr: models.ErrInvalidImageFormat,
		},
		{
			name:    "missing sender id",
			mutate:  func(in *SendInput) { in.SenderID = "" },
			wantErr: ErrMissingIdentity,
		},
		{
			name:    "unknown role",
			mutate:  func(in *SendInput) { in.SenderRole = "intern" },
			wantErr: ErrMissingIdentity,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cs := &countingStore{Store: store.NewMemoryStore()}
			repo := NewMessageRepository(cs)

			in := branchSender()
			tc.mutate(&in)

			_, err := repo.Send(ctx, in)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, cs.creates, "validation failures must not reach the store")
		})
	}
}

func TestSendAssignsServerSideState(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero(), "creation timestamp is store-assigned")
	assert.Equal(t, models.MessageStatusSent, msg.Status)
	assert.False(t, msg.Read)
	assert.False(t, msg.Edited)
}

func TestSendWithImageOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	in := branchSender()
	in.Content = ""
	in.Image = pngDataURI(128)
	in.ImageName = "receipt.png"

	msg, err := repo.Send(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
	assert.Equal(t, in.Image, msg.Image)
	assert.Equal(t, "receipt.png", msg.ImageName)
}

func TestEditReplacesContentInPlace(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	require.NoError(t, repo.Edit(ctx, msg.ID, "hello, edited"))

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello, edited", got.Content)
	assert.True(t, got.Edited)
	require.NotNil(t, got.EditedAt)
	assert.Equal(t, msg.ID, got.ID, "edit keeps the same document")
	assert.Equal(t, msg.Timestamp.UTC(), got.Timestamp.UTC(), "edit keeps the original position")
	assert.Equal(t, msg.Status, got.Status)
}

func TestEditRejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: store.NewMemoryStore()}
	repo := NewMessageRepository(cs)

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Edit(ctx, msg.ID, "   "), ErrEmptyEdit)
	assert.Zero(t, cs.updates)

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
}

func TestDeleteForMeHidesForOneViewerOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	require.NoError(t, repo.DeleteForMe(ctx, msg.ID, "super-1"))

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, got.VisibleTo("super-1"))
	assert.True(t, got.VisibleTo("admin-1"), "the other party still sees the message")
}

func TestDeleteForMeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: store.NewMemoryStore()}
	repo := NewMessageRepository(cs)

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	require.NoError(t, repo.DeleteForMe(ctx, msg.ID, "super-1"))
	updatesAfterFirst := cs.updates
	require.NoError(t, repo.DeleteForMe(ctx, msg.ID, "super-1"))
	assert.Equal(t, updatesAfterFirst, cs.updates, "repeat delete must not write")

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"super-1"}, got.DeletedFor)

	// Deleting a message that is already gone resolves silently.
	require.NoError(t, repo.DeleteForMe(ctx, "vanished", "super-1"))
}

func TestDeleteForEveryoneRemovesTheDocument(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	require.NoError(t, repo.DeleteForEveryone(ctx, msg.ID))
	_, err = repo.Get(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Double delete is benign.
	require.NoError(t, repo.DeleteForEveryone(ctx, msg.ID))
}

func TestDeleteForEveryoneBySenderRejectsOtherActors(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	// The recipient cannot remove the message for both parties.
	assert.ErrorIs(t, repo.DeleteForEveryoneBySender(ctx, msg.ID, "super-1"), ErrNotMessageSender)
	_, err = repo.Get(ctx, msg.ID)
	require.NoError(t, err, "a rejected delete must leave the message in place")

	// The sender can.
	require.NoError(t, repo.DeleteForEveryoneBySender(ctx, msg.ID, "admin-1"))
	_, err = repo.Get(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A message already gone is resolved for anyone.
	require.NoError(t, repo.DeleteForEveryoneBySender(ctx, msg.ID, "super-1"))
}

func TestDeleteForEveryoneBySenderStopsWhenOwnershipReadFails(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	repo := NewMessageRepository(mem)

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	readsDown := errors.New("store: reads unavailable")
	flaky := NewMessageRepository(&failingGetStore{Store: mem, err: readsDown})

	// A failed ownership read must surface the error, not fall through to
	// the delete.
	assert.ErrorIs(t, flaky.DeleteForEveryoneBySender(ctx, msg.ID, "super-1"), readsDown)

	_, err = repo.Get(ctx, msg.ID)
	require.NoError(t, err, "an unverifiable delete must not remove the message")
}

func TestMarkDeliveredAdvancesStatusOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	require.NoError(t, repo.MarkDelivered(ctx, msg.ID, "super-1"))
	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusDelivered, got.Status)
	assert.Equal(t, []string{"super-1"}, got.DeliveredTo)

	// Repeat acknowledgment is a no-op.
	require.NoError(t, repo.MarkDelivered(ctx, msg.ID, "super-1"))
	got, err = repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"super-1"}, got.DeliveredTo)
}

func TestMarkDeliveredNeverDowngradesSeen(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	require.NoError(t, repo.MarkSeen(ctx, msg.ID, "super-1"))
	require.NoError(t, repo.MarkDelivered(ctx, msg.ID, "super-1"))

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSeen, got.Status, "a late delivered ack must not regress seen")
}

func TestMarkSeenImpliesDelivered(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	msg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	require.NoError(t, repo.MarkSeen(ctx, msg.ID, "super-1"))

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSeen, got.Status)
	assert.True(t, got.Read)
	assert.Equal(t, []string{"super-1"}, got.ReadBy)
	assert.Equal(t, []string{"super-1"}, got.DeliveredTo)

	// Marking a vanished message is benign.
	require.NoError(t, repo.MarkSeen(ctx, "vanished", "super-1"))
}

func TestReplySnapshotSurvivesEditAndDeleteOfOriginal(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	original, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	replyIn := headOfficeSender()
	replyIn.ReplyTo = &original
	reply, err := repo.Send(ctx, replyIn)
	require.NoError(t, err)

	assert.Equal(t, original.ID, reply.ReplyToID)
	assert.Equal(t, "hello", reply.ReplyToContent)
	assert.Equal(t, "Maha", reply.ReplyToSender)

	require.NoError(t, repo.Edit(ctx, original.ID, "rewritten"))
	require.NoError(t, repo.DeleteForEveryone(ctx, original.ID))

	got, err := repo.Get(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.ReplyToContent, "the quoted preview is a point-in-time snapshot")
}

func TestMarkAllSeenForConversation(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	var inbound []models.Message
	for i := 0; i < 3; i++ {
		msg, err := repo.Send(ctx, branchSender())
		require.NoError(t, err)
		inbound = append(inbound, msg)
	}
	// An outbound message must not be touched by the batch.
	outbound, err := repo.Send(ctx, headOfficeSender())
	require.NoError(t, err)

	viewer := models.Actor{ID: "super-1", Role: models.RoleSuperAdmin, BranchID: models.HeadOfficeBranchID}
	ids, err := repo.MarkAllSeenForConversation(ctx, viewer, "gulberg")
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	for _, m := range inbound {
		got, err := repo.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSeen, got.Status)
		assert.True(t, got.Read)
		assert.Equal(t, []string{"super-1"}, got.ReadBy)
	}
	got, err := repo.Get(ctx, outbound.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSent, got.Status)

	// Second pass finds nothing left to cover.
	ids, err = repo.MarkAllSeenForConversation(ctx, viewer, "gulberg")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMarkAllSeenForConversationIsScopedToTheOpenBranch(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	fromGulberg, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	other := branchSender()
	other.SenderID = "admin-2"
	other.SenderName = "Sana"
	other.SenderBranchID = "model-town"
	other.SenderBranchName = "Model Town"
	fromModelTown, err := repo.Send(ctx, other)
	require.NoError(t, err)

	// A super admin with Gulberg open covers only Gulberg's messages.
	viewer := models.Actor{ID: "super-1", Role: models.RoleSuperAdmin, BranchID: models.HeadOfficeBranchID}
	ids, err := repo.MarkAllSeenForConversation(ctx, viewer, "gulberg")
	require.NoError(t, err)
	assert.Equal(t, []string{fromGulberg.ID}, ids)

	got, err := repo.Get(ctx, fromModelTown.ID)
	require.NoError(t, err)
	assert.False(t, got.Read, "the other branch's conversation stays unread")
	assert.Equal(t, models.MessageStatusSent, got.Status)
}

func TestCountUnread(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	first, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)
	second, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)

	ids, err := repo.CountUnread(ctx, models.HeadOfficeBranchID, models.RoleBranchAdmin)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	require.NoError(t, repo.MarkSeen(ctx, first.ID, "super-1"))
	ids, err = repo.CountUnread(ctx, models.HeadOfficeBranchID, models.RoleBranchAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, ids)
}

func TestHistoryMergesBothDirections(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(store.NewMemoryStore())

	fromBranch, err := repo.Send(ctx, branchSender())
	require.NoError(t, err)
	fromHQ, err := repo.Send(ctx, headOfficeSender())
	require.NoError(t, err)

	viewer := models.Actor{ID: "super-1", Role: models.RoleSuperAdmin, BranchID: models.HeadOfficeBranchID}
	msgs, err := repo.History(ctx, viewer, "gulberg")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, fromBranch.ID, msgs[0].ID)
	assert.Equal(t, fromHQ.ID, msgs[1].ID)

	// Hidden messages drop out of the viewer's history only.
	require.NoError(t, repo.DeleteForMe(ctx, fromBranch.ID, "super-1"))
	msgs, err = repo.History(ctx, viewer, "gulberg")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, fromHQ.ID, msgs[0].ID)

	branchViewer := models.Actor{ID: "admin-1", Role: models.RoleBranchAdmin, BranchID: "gulberg"}
	msgs, err = repo.History(ctx, branchViewer, "gulberg")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
