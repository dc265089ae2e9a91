package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const streamHeartbeatInterval = 25 * time.Second

type streamEventPayload struct {
	Event     string   `json:"event"`
	NoteIDs   []string `json:"note_ids,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// handleEventStream pushes session and note change events for the
// authenticated user over server-sent events until the client
// disconnects. Heartbeats keep intermediaries from timing the
// connection out.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "events_unavailable"})
		return
	}
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	stream, cancel := h.events.Subscribe(c.Request.Context(), userID)
	defer cancel()

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, streamEventPayload{
				Event:     message.EventType,
				NoteIDs:   message.NoteIDs,
				Timestamp: message.Timestamp.Unix(),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", streamEventPayload{
				Event:     "heartbeat",
				Timestamp: time.Now().Unix(),
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
