package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/database"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/store"
	"github.com/faiza-ijaz0/jambeautylounge-backend/pkg/livemerge"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessagesCollection is the document store collection holding chat messages.
const MessagesCollection = "messages"

var (
	ErrEmptyMessage     = errors.New("message needs text or an image")
	ErrMissingIdentity  = errors.New("sender and recipient identity are required")
	ErrEmptyEdit        = errors.New("edited content cannot be empty; delete the message instead")
	ErrNotMessageSender = errors.New("only the sender can delete a message for everyone")
)

// SendInput is everything needed to create one message.
type SendInput struct {
	SenderID            string
	SenderName          string
	SenderRole          models.Role
	SenderBranchID      string
	SenderBranchName    string
	RecipientBranchID   string
	RecipientBranchName string
	Content             string
	Image               string
	ImageName           string
	ReplyTo             *models.Message
}

// SendError wraps a store-level send failure together with the original
// input, so the transport layer can hand the typed draft back to the caller
// instead of losing it.
type SendError struct {
	Input SendInput
	Err   error
}

func (e *SendError) Error() string { return fmt.Sprintf("send message: %v", e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

// MessageRepository owns all mutations and queries against the message
// partition of the document store.
type MessageRepository struct {
	store store.Store
}

func NewMessageRepository(st store.Store) *MessageRepository {
	return &MessageRepository{store: st}
}

// Send validates and writes a new message. Validation failures are returned
// before any store call; store failures come back as a *SendError carrying
// the draft. One message is one document, so the write is all-or-nothing.
func (r *MessageRepository) Send(ctx context.Context, in SendInput) (models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Image == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if err := models.ValidateAttachment(in.Image); err != nil {
		return models.Message{}, err
	}
	if in.SenderID == "" || in.SenderBranchID == "" || in.RecipientBranchID == "" || !in.SenderRole.Valid() {
		return models.Message{}, ErrMissingIdentity
	}

	msg := models.Message{
		SenderBranchID:      in.SenderBranchID,
		RecipientBranchID:   in.RecipientBranchID,
		SenderID:            in.SenderID,
		SenderName:          in.SenderName,
		SenderRole:          in.SenderRole,
		SenderBranchName:    in.SenderBranchName,
		RecipientBranchName: in.RecipientBranchName,
		Content:             content,
		Image:               in.Image,
		ImageName:           in.ImageName,
		Status:              models.MessageStatusSent,
	}
	if in.ReplyTo != nil {
		// Point-in-time snapshot: the quoted preview must survive later
		// edits or deletion of the original.
		msg.ReplyToID = in.ReplyTo.ID
		msg.ReplyToContent = in.ReplyTo.Content
		msg.ReplyToSender = in.ReplyTo.SenderName
		msg.ReplyToImage = in.ReplyTo.Image
	}

	fields, err := store.EncodeFields(&msg)
	if err != nil {
		return models.Message{}, &SendError{Input: in, Err: err}
	}
	// Leave the timestamp to the store so creation time is server-assigned.
	delete(fields, "timestamp")

	doc, err := r.store.Create(ctx, MessagesCollection, fields)
	if err != nil {
		return models.Message{}, &SendError{Input: in, Err: err}
	}

	var created models.Message
	if err := doc.Decode(&created); err != nil {
		return models.Message{}, &SendError{Input: in, Err: err}
	}
	created.ID = doc.ID
	return created, nil
}

// Get returns one message by id.
func (r *MessageRepository) Get(ctx context.Context, id string) (models.Message, error) {
	doc, err := r.store.Get(ctx, MessagesCollection, id)
	if err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	if err := doc.Decode(&msg); err != nil {
		return models.Message{}, err
	}
	msg.ID = doc.ID
	return msg, nil
}

// Edit replaces the message body in place. The original content is not
// retained. Editing to empty is not supported.
func (r *MessageRepository) Edit(ctx context.Context, id, newContent string) error {
	content := strings.TrimSpace(newContent)
	if content == "" {
		return ErrEmptyEdit
	}
	now := time.Now().UTC()
	return r.store.Update(ctx, MessagesCollection, id, store.Fields{
		"content":  content,
		"edited":   true,
		"editedAt": now,
	}, nil)
}

// DeleteForMe hides the message for one viewer only. Idempotent; a message
// already gone is treated as resolved.
func (r *MessageRepository) DeleteForMe(ctx context.Context, id, viewerID string) error {
	msg, err := r.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("messages: delete-for-me target %s already gone", id)
		return nil
	}
	if err != nil {
		return err
	}
	deleted := models.AppendID(msg.DeletedFor, viewerID)
	if len(deleted) == len(msg.DeletedFor) {
		return nil
	}
	err = r.store.Update(ctx, MessagesCollection, id, store.Fields{"deletedFor": deleted}, nil)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteForEveryone physically removes the message for all parties. No
// tombstone is kept; the removal is logged for operator visibility.
func (r *MessageRepository) DeleteForEveryone(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, MessagesCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("messages: delete-for-everyone target %s already gone", id)
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("messages: %s deleted for everyone", id)
	return nil
}

// DeleteForEveryoneBySender verifies ownership before the physical removal:
// only the original sender may delete for everyone. If the ownership read
// fails for any reason other than the message already being gone, the
// delete does not proceed.
func (r *MessageRepository) DeleteForEveryoneBySender(ctx context.Context, id, actorID string) error {
	msg, err := r.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("messages: delete-for-everyone target %s already gone", id)
		return nil
	}
	if err != nil {
		return err
	}
	if msg.SenderID != actorID {
		return ErrNotMessageSender
	}
	return r.DeleteForEveryone(ctx, id)
}

// MarkDelivered records that actorID received the message. The status only
// advances: a message already seen keeps seen even if this write races.
func (r *MessageRepository) MarkDelivered(ctx context.Context, id, actorID string) error {
	msg, err := r.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	delivered := models.AppendID(msg.DeliveredTo, actorID)
	alreadyInSet := len(delivered) == len(msg.DeliveredTo)
	if alreadyInSet && msg.Status.Rank() >= models.MessageStatusDelivered.Rank() {
		return nil
	}

	if msg.Status == models.MessageStatusSent {
		err := r.store.Update(ctx, MessagesCollection, id, store.Fields{
			"status":      models.MessageStatusDelivered,
			"deliveredTo": delivered,
		}, store.Filter{"status": string(models.MessageStatusSent)})
		if !errors.Is(err, store.ErrPreconditionFailed) {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		// Lost the race to a higher status; only the acknowledgment
		// set still needs the write.
	}
	if alreadyInSet {
		return nil
	}
	err = r.store.Update(ctx, MessagesCollection, id, store.Fields{"deliveredTo": delivered}, nil)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// MarkSeen records that actorID read the message. Seen implies delivered.
func (r *MessageRepository) MarkSeen(ctx context.Context, id, actorID string) error {
	msg, err := r.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	readBy := models.AppendID(msg.ReadBy, actorID)
	delivered := models.AppendID(msg.DeliveredTo, actorID)
	if msg.Status == models.MessageStatusSeen && msg.Read &&
		len(readBy) == len(msg.ReadBy) && len(delivered) == len(msg.DeliveredTo) {
		return nil
	}

	err = r.store.Update(ctx, MessagesCollection, id, store.Fields{
		"status":      models.MessageStatusSeen,
		"read":        true,
		"readBy":      readBy,
		"deliveredTo": delivered,
	}, nil)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// MarkAllSeenForConversation marks every unread inbound message of the
// viewer's open conversation with branchID as seen, in one batch write. The
// filter is the conversation's own inbound leg, so a super admin opening one
// branch never converges another branch's unread messages. Returns the ids
// it covered so callers can suppress per-message timers and notification
// badges for the same messages.
func (r *MessageRepository) MarkAllSeenForConversation(ctx context.Context, viewer models.Actor, branchID string) ([]string, error) {
	inbound, _ := conversationFilters(ConversationKey{BranchID: branchID, ViewerRole: viewer.Role})
	filter := store.Filter{"read": false}
	for k, v := range inbound {
		filter[k] = v
	}

	docs, err := r.store.Find(ctx, MessagesCollection, filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(docs))
	writes := make([]store.BatchWrite, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
		writes = append(writes, store.BatchWrite{
			ID: d.ID,
			Fields: store.Fields{
				"read":        true,
				"status":      models.MessageStatusSeen,
				"readBy":      []string{viewer.ID},
				"deliveredTo": []string{viewer.ID},
			},
		})
	}
	if err := r.store.BatchUpdate(ctx, MessagesCollection, writes); err != nil {
		return nil, err
	}
	return ids, nil
}

// CountUnread returns the unread inbound message ids for a recipient branch.
func (r *MessageRepository) CountUnread(ctx context.Context, recipientBranchID string, counterpartRole models.Role) ([]string, error) {
	docs, err := r.store.Find(ctx, MessagesCollection, store.Filter{
		"recipientBranchId": recipientBranchID,
		"senderRole":        string(counterpartRole),
		"read":              false,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// History returns the merged, visibility-filtered conversation for a viewer
// as a one-shot read, using the same merge semantics as the live engine.
func (r *MessageRepository) History(ctx context.Context, viewer models.Actor, branchID string) ([]models.Message, error) {
	inboundFilter, outboundFilter := conversationFilters(ConversationKey{
		BranchID:   branchID,
		ViewerRole: viewer.Role,
	})

	inbound, err := r.findMessages(ctx, inboundFilter)
	if err != nil {
		return nil, err
	}
	outbound, err := r.findMessages(ctx, outboundFilter)
	if err != nil {
		return nil, err
	}

	return livemerge.Merge(mergeOptions(viewer.ID), inbound, outbound), nil
}

func (r *MessageRepository) findMessages(ctx context.Context, filter store.Filter) ([]models.Message, error) {
	docs, err := r.store.Find(ctx, MessagesCollection, filter)
	if err != nil {
		return nil, err
	}
	return decodeMessages(docs), nil
}

func decodeMessages(docs []store.Document) []models.Message {
	msgs := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		var m models.Message
		if err := d.Decode(&m); err != nil {
			log.Printf("messages: skipping undecodable document %s: %v", d.ID, err)
			continue
		}
		m.ID = d.ID
		msgs = append(msgs, m)
	}
	return msgs
}

func mergeOptions(viewerID string) livemerge.Options[models.Message] {
	return livemerge.Options[models.Message]{
		ID:        func(m models.Message) string { return m.ID },
		Timestamp: func(m models.Message) time.Time { return m.Timestamp },
		Visible:   func(m models.Message) bool { return m.VisibleTo(viewerID) },
		Resolve: func(m models.Message, ts time.Time) models.Message {
			m.Timestamp = ts
			return m
		},
	}
}

// EnsureMessageIndexes configures indexes for the messages collection.
// Called on startup from main after Mongo has connected.
func EnsureMessageIndexes(ctx context.Context) error {
	col := database.DB.Collection(MessagesCollection)

	idx := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "recipientBranchId", Value: 1},
				{Key: "senderRole", Value: 1},
				{Key: "timestamp", Value: 1},
			},
			Options: options.Index().SetName("idx_recipient_role_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "senderBranchId", Value: 1},
				{Key: "senderRole", Value: 1},
				{Key: "timestamp", Value: 1},
			},
			Options: options.Index().SetName("idx_sender_role_timestamp"),
		},
	}

	for _, m := range idx {
		if _, err := col.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
