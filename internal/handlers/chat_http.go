package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/services"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/store"
	"github.com/go-chi/chi/v5"
)

var (
	docStore    store.Store
	messageRepo *services.MessageRepository
	ackCache    services.AckCache
)

// InitChatServices wires the chat handlers to the document store and the
// acknowledged-notification cache. Called once from main.
func InitChatServices(st store.Store, cache services.AckCache) {
	docStore = st
	messageRepo = services.NewMessageRepository(st)
	ackCache = cache
}

// conversationBranchID resolves which branch's conversation the actor is
// addressing: branch admins always converse with head office, super admins
// pick a branch.
func conversationBranchID(actor models.Actor, requested string) (string, bool) {
	if actor.Role == models.RoleBranchAdmin {
		return actor.BranchID, true
	}
	if requested == "" {
		return "", false
	}
	return requested, true
}

// LoadConversation returns the merged, date-grouped conversation history.
// Query params: branch_id (super admins only).
func LoadConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	branchID, ok := conversationBranchID(actor, r.URL.Query().Get("branch_id"))
	if !ok {
		respondError(w, http.StatusBadRequest, "branch_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	msgs, err := messageRepo.History(ctx, actor, branchID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"groups":  services.GroupByDay(msgs),
	})
}

// SendMessageRequest represents a message send over HTTP.
type SendMessageRequest struct {
	BranchID  string `json:"branch_id,omitempty"` // super admins: target branch
	Content   string `json:"content"`
	Image     string `json:"image,omitempty"`
	ImageName string `json:"image_name,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// SendMessage validates and persists a new message. On a store failure the
// response carries the draft back so the client can restore the input field.
func SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	branchID, ok := conversationBranchID(actor, req.BranchID)
	if !ok {
		respondError(w, http.StatusBadRequest, "branch_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	msg, err := sendForActor(ctx, actor, branchID, req)
	if err != nil {
		var sendErr *services.SendError
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			respondError(w, http.StatusBadRequest, "Message needs text or an image")
		case errors.Is(err, models.ErrImageTooLarge):
			respondError(w, http.StatusRequestEntityTooLarge, "Image exceeds the 1MB limit")
		case errors.Is(err, models.ErrInvalidImageFormat):
			respondError(w, http.StatusBadRequest, "Image must be a base64 data URI")
		case errors.As(err, &sendErr):
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"message": "Failed to send message",
				"draft": map[string]string{
					"content":    sendErr.Input.Content,
					"image":      sendErr.Input.Image,
					"image_name": sendErr.Input.ImageName,
				},
			})
		default:
			respondError(w, http.StatusInternalServerError, "Failed to send message")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": msg,
	})
}

// sendForActor assembles the SendInput for the actor's side of the
// conversation (branch -> head office or head office -> branch) and sends.
func sendForActor(ctx context.Context, actor models.Actor, branchID string, req SendMessageRequest) (models.Message, error) {
	in := services.SendInput{
		SenderID:   actor.ID,
		SenderName: actor.Name,
		SenderRole: actor.Role,
		Content:    req.Content,
		Image:      req.Image,
		ImageName:  req.ImageName,
	}

	if actor.Role == models.RoleBranchAdmin {
		in.SenderBranchID = actor.BranchID
		in.SenderBranchName = actor.BranchName
		in.RecipientBranchID = models.HeadOfficeBranchID
		in.RecipientBranchName = "Head Office"
	} else {
		branch, err := services.GetBranch(branchID)
		if err != nil {
			return models.Message{}, err
		}
		in.SenderBranchID = models.HeadOfficeBranchID
		in.SenderBranchName = actor.BranchName
		in.RecipientBranchID = branch.ID
		in.RecipientBranchName = branch.Name
	}

	if req.ReplyToID != "" {
		original, err := messageRepo.Get(ctx, req.ReplyToID)
		if err == nil {
			in.ReplyTo = &original
		}
		// A vanished reply target is not an error: the message sends
		// without the quoted preview.
	}

	return messageRepo.Send(ctx, in)
}

// EditMessageRequest represents an in-place content edit.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage replaces a message's content. Only the sender may edit.
func EditMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	id := chi.URLParam(r, "id")

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	msg, err := messageRepo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Message no longer exists")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to edit message")
		return
	}
	if msg.SenderID != actor.ID {
		respondError(w, http.StatusForbidden, "Only the sender can edit a message")
		return
	}

	if err := messageRepo.Edit(ctx, id, req.Content); err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyEdit):
			respondError(w, http.StatusBadRequest, "Edited content cannot be empty")
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "Message no longer exists")
		default:
			respondError(w, http.StatusInternalServerError, "Failed to edit message")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Message edited",
	})
}

// DeleteMessage handles both delete modes. Query param mode: "me" (default)
// hides the message for the caller only; "everyone" removes it for all
// parties and is restricted to the sender.
func DeleteMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	id := chi.URLParam(r, "id")
	mode := r.URL.Query().Get("mode")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if mode == "everyone" {
		if err := messageRepo.DeleteForEveryoneBySender(ctx, id, actor.ID); err != nil {
			if errors.Is(err, services.ErrNotMessageSender) {
				respondError(w, http.StatusForbidden, "Only the sender can delete for everyone")
				return
			}
			respondError(w, http.StatusInternalServerError, "Failed to delete message")
			return
		}
	} else {
		if err := messageRepo.DeleteForMe(ctx, id, actor.ID); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to delete message")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Message deleted",
	})
}

// MarkConversationRead marks every unread inbound message in the open
// conversation as seen in one batch write and acknowledges the covered ids
// in the notification cache. Query params: branch_id (super admins only).
func MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	branchID, ok := conversationBranchID(actor, r.URL.Query().Get("branch_id"))
	if !ok {
		respondError(w, http.StatusBadRequest, "branch_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ids, err := messageRepo.MarkAllSeenForConversation(ctx, actor, branchID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to mark conversation read")
		return
	}
	if len(ids) > 0 {
		if err := ackCache.Acknowledge(ctx, actor.ID, ids...); err != nil {
			// Best-effort: a lost acknowledgment only re-surfaces a badge.
			log.Printf("Failed to acknowledge notifications for %s: %v", actor.ID, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(ids),
	})
}

// UnreadSummary returns the ids of unread inbound messages the actor has not
// been notified about yet, for dashboard badges.
func UnreadSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	recipientBranchID := actor.BranchID
	if actor.Role == models.RoleSuperAdmin {
		recipientBranchID = models.HeadOfficeBranchID
	}

	ids, err := messageRepo.CountUnread(ctx, recipientBranchID, actor.Role.Counterpart())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load unread summary")
		return
	}
	fresh, err := services.FilterUnacknowledged(ctx, ackCache, actor.ID, ids)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load unread summary")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"unread":      len(ids),
		"unnotified":  len(fresh),
		"message_ids": fresh,
	})
}
