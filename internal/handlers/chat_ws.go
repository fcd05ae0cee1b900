package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/services"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the router level
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	// Large enough for a 1MB inline image after base64 and JSON framing.
	wsMaxMessageSize = 2 << 20
)

// clientIntent is one inbound frame from the browser.
type clientIntent struct {
	Type      string `json:"type"` // send, edit, delete_for_me, delete_for_everyone, ping
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Image     string `json:"image,omitempty"`
	ImageName string `json:"image_name,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// serverEvent is one outbound frame. Exactly one payload field is set per
// type: conversation updates carry Groups, errors carry Message and, for a
// failed send, the Draft to restore.
type serverEvent struct {
	Type    string              `json:"type"` // conversation, error, pong
	Groups  []services.DayGroup `json:"groups,omitempty"`
	Message string              `json:"message,omitempty"`
	Draft   *draftEcho          `json:"draft,omitempty"`
}

type draftEcho struct {
	Content   string `json:"content"`
	Image     string `json:"image,omitempty"`
	ImageName string `json:"image_name,omitempty"`
}

// ChatSocket upgrades to a WebSocket and streams the live conversation for
// the authenticated admin. Super admins select a branch with ?branch_id=.
// The socket owns one open Conversation and one DeliveryTracker; both are
// closed synchronously when the socket drops so no stale timers or updates
// outlive the connection.
func ChatSocket(w http.ResponseWriter, r *http.Request) {
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
	if actor.Role == models.RoleSuperAdmin {
		if _, err := services.GetBranch(branchID); err != nil {
			respondError(w, http.StatusNotFound, "Branch not found")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &chatClient{
		conn:   conn,
		actor:  actor,
		branch: branchID,
		events: make(chan serverEvent, 16),
		done:   make(chan struct{}),
	}
	c.run(r.Context())
}

type chatClient struct {
	conn   *websocket.Conn
	actor  models.Actor
	branch string
	events chan serverEvent
	done   chan struct{}
}

func (c *chatClient) run(ctx context.Context) {
	defer c.conn.Close()

	tracker := services.NewDeliveryTracker(messageRepo, c.actor)
	conv, err := services.OpenConversation(ctx, docStore, c.actor, c.branch, tracker, func(groups []services.DayGroup) {
		c.send(serverEvent{Type: "conversation", Groups: groups})
	})
	if err != nil {
		log.Printf("Failed to open conversation for %s: %v", c.actor.ID, err)
		return
	}
	defer conv.Close()

	// Opening the conversation implies the viewer is looking at it: mark
	// everything unread as seen in one batch and suppress the per-message
	// timers that would otherwise duplicate the writes.
	go c.markAllSeen(tracker)

	go c.writeLoop()
	c.readLoop(ctx)
	close(c.done)
}

func (c *chatClient) markAllSeen(tracker *services.DeliveryTracker) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids, err := messageRepo.MarkAllSeenForConversation(ctx, c.actor, c.branch)
	if err != nil {
		log.Printf("Failed to mark conversation seen for %s: %v", c.actor.ID, err)
		return
	}
	if len(ids) == 0 {
		return
	}
	tracker.Suppress(ids)
	if err := ackCache.Acknowledge(ctx, c.actor.ID, ids...); err != nil {
		log.Printf("Failed to acknowledge notifications for %s: %v", c.actor.ID, err)
	}
}

// send queues an event for the single writer goroutine, dropping it if the
// socket is already shutting down.
func (c *chatClient) send(ev serverEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *chatClient) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *chatClient) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var intent clientIntent
		if err := c.conn.ReadJSON(&intent); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket closed unexpectedly for %s: %v", c.actor.ID, err)
			}
			return
		}
		c.handleIntent(ctx, intent)
	}
}

func (c *chatClient) handleIntent(ctx context.Context, intent clientIntent) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch intent.Type {
	case "send":
		req := SendMessageRequest{
			BranchID:  c.branch,
			Content:   intent.Content,
			Image:     intent.Image,
			ImageName: intent.ImageName,
			ReplyToID: intent.ReplyToID,
		}
		if _, err := sendForActor(opCtx, c.actor, c.branch, req); err != nil {
			c.sendError(err, intent)
		}
	case "edit":
		c.editMessage(opCtx, intent)
	case "delete_for_me":
		if err := messageRepo.DeleteForMe(opCtx, intent.MessageID, c.actor.ID); err != nil {
			c.send(serverEvent{Type: "error", Message: "Failed to delete message"})
		}
	case "delete_for_everyone":
		if err := messageRepo.DeleteForEveryoneBySender(opCtx, intent.MessageID, c.actor.ID); err != nil {
			if errors.Is(err, services.ErrNotMessageSender) {
				c.send(serverEvent{Type: "error", Message: "Only the sender can delete for everyone"})
				return
			}
			c.send(serverEvent{Type: "error", Message: "Failed to delete message"})
		}
	case "ping":
		c.send(serverEvent{Type: "pong"})
	default:
		c.send(serverEvent{Type: "error", Message: "Unknown intent: " + intent.Type})
	}
}

func (c *chatClient) editMessage(ctx context.Context, intent clientIntent) {
	msg, err := messageRepo.Get(ctx, intent.MessageID)
	if err != nil {
		c.send(serverEvent{Type: "error", Message: "Message no longer exists"})
		return
	}
	if msg.SenderID != c.actor.ID {
		c.send(serverEvent{Type: "error", Message: "Only the sender can edit a message"})
		return
	}
	if err := messageRepo.Edit(ctx, intent.MessageID, intent.Content); err != nil {
		if errors.Is(err, services.ErrEmptyEdit) {
			c.send(serverEvent{Type: "error", Message: "Edited content cannot be empty"})
			return
		}
		c.send(serverEvent{Type: "error", Message: "Failed to edit message"})
	}
}

// sendError maps a send failure to an error frame. Store failures echo the
// draft so the client can restore the composer.
func (c *chatClient) sendError(err error, intent clientIntent) {
	var sendErr *services.SendError
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		c.send(serverEvent{Type: "error", Message: "Message needs text or an image"})
	case errors.Is(err, models.ErrImageTooLarge):
		c.send(serverEvent{Type: "error", Message: "Image exceeds the 1MB limit"})
	case errors.Is(err, models.ErrInvalidImageFormat):
		c.send(serverEvent{Type: "error", Message: "Image must be a base64 data URI"})
	case errors.As(err, &sendErr):
		c.send(serverEvent{
			Type:    "error",
			Message: "Failed to send message",
			Draft: &draftEcho{
				Content:   sendErr.Input.Content,
				Image:     sendErr.Input.Image,
				ImageName: sendErr.Input.ImageName,
			},
		})
	default:
		c.send(serverEvent{Type: "error", Message: "Failed to send message", Draft: &draftEcho{
			Content:   intent.Content,
			Image:     intent.Image,
			ImageName: intent.ImageName,
		}})
	}
}
