package models

import (
	"strings"
	"time"
)

// Role identifies which side of a branch/head-office conversation an actor is on.
type Role string

const (
	RoleBranchAdmin Role = "branch_admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Counterpart returns the role on the other side of the conversation.
func (r Role) Counterpart() Role {
	if r == RoleBranchAdmin {
		return RoleSuperAdmin
	}
	return RoleBranchAdmin
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleBranchAdmin || r == RoleSuperAdmin
}

// MessageStatus is the sender-side delivery state of a message.
// It only ever advances: sent -> delivered -> seen.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusSeen      MessageStatus = "seen"
)

// Rank maps a status to its position in the sent -> delivered -> seen
// progression. Unknown statuses rank below sent.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusSeen:
		return 3
	}
	return 0
}

// Message is a single branch/head-office chat message, stored as one document.
// Branch and recipient names are denormalized so the conversation view never
// needs a join against the branch registry.
type Message struct {
	ID                  string        `bson:"_id,omitempty" json:"id"`
	SenderBranchID      string        `bson:"senderBranchId" json:"sender_branch_id"`
	RecipientBranchID   string        `bson:"recipientBranchId" json:"recipient_branch_id"`
	SenderID            string        `bson:"senderId" json:"sender_id"`
	SenderName          string        `bson:"senderName" json:"sender_name"`
	SenderRole          Role          `bson:"senderRole" json:"sender_role"`
	SenderBranchName    string        `bson:"senderBranchName,omitempty" json:"sender_branch_name,omitempty"`
	RecipientBranchName string        `bson:"recipientBranchName,omitempty" json:"recipient_branch_name,omitempty"`
	Content             string        `bson:"content,omitempty" json:"content,omitempty"`
	Image               string        `bson:"image,omitempty" json:"image,omitempty"`
	ImageName           string        `bson:"imageName,omitempty" json:"image_name,omitempty"`
	Timestamp           time.Time     `bson:"timestamp" json:"timestamp"`
	Edited              bool          `bson:"edited" json:"edited"`
	EditedAt            *time.Time    `bson:"editedAt,omitempty" json:"edited_at,omitempty"`
	Status              MessageStatus `bson:"status" json:"status"`
	Read                bool          `bson:"read" json:"read"`
	ReadBy              []string      `bson:"readBy,omitempty" json:"read_by,omitempty"`
	DeliveredTo         []string      `bson:"deliveredTo,omitempty" json:"delivered_to,omitempty"`
	DeletedFor          []string      `bson:"deletedFor,omitempty" json:"deleted_for,omitempty"`
	DeletedForEveryone  bool          `bson:"deletedForEveryone" json:"deleted_for_everyone"`
	ReplyToID           string        `bson:"replyToId,omitempty" json:"reply_to_id,omitempty"`
	ReplyToContent      string        `bson:"replyToContent,omitempty" json:"reply_to_content,omitempty"`
	ReplyToSender       string        `bson:"replyToSender,omitempty" json:"reply_to_sender,omitempty"`
	ReplyToImage        string        `bson:"replyToImage,omitempty" json:"reply_to_image,omitempty"`
}

// VisibleTo reports whether the message should appear in viewerID's
// conversation view. A message hard-deleted for everyone is hidden for all
// parties; a soft delete only hides it for the viewers listed in DeletedFor.
func (m *Message) VisibleTo(viewerID string) bool {
	if m.DeletedForEveryone {
		return false
	}
	for _, id := range m.DeletedFor {
		if id == viewerID {
			return false
		}
	}
	return true
}

// DeliveredToActor reports whether actorID already acknowledged delivery.
func (m *Message) DeliveredToActor(actorID string) bool {
	return containsID(m.DeliveredTo, actorID)
}

// ReadByActor reports whether actorID already acknowledged reading.
func (m *Message) ReadByActor(actorID string) bool {
	return containsID(m.ReadBy, actorID)
}

// HasContent reports whether the message carries a non-empty body or an image.
// A message with neither is invalid and must be rejected before any write.
func (m *Message) HasContent() bool {
	return strings.TrimSpace(m.Content) != "" || m.Image != ""
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// AppendID returns ids with id appended, or ids unchanged when already present.
func AppendID(ids []string, id string) []string {
	if containsID(ids, id) {
		return ids
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id)
}
