package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"marketanalytics/webclient/internal/middleware"
)

// Stream sends Server-Sent Events for a workspace: one "state" event with
// the current snapshot, then a "transition" or "navigation" event for every
// change, until the client disconnects.
func (h *Handler) Stream(c *gin.Context) {
	st := middleware.Store(c)
	ctx := c.Request.Context()

	// Subscribe before taking the snapshot so nothing between the two is
	// lost; events already covered by the snapshot are skipped by Seq.
	events, cancel := st.Events().Subscribe()
	defer cancel()
	snap := st.Snapshot()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	h.sendSSE(c, "state", snap)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Seq <= snap.Seq {
				continue
			}
			h.sendSSE(c, e.Kind, e)
		case <-ticker.C:
			// Keep the connection alive through proxies.
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

// sendSSE writes a single SSE event.
func (h *Handler) sendSSE(c *gin.Context, eventName string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("sse marshal error", zap.String("event", eventName), zap.Error(err))
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\n", eventName)
	fmt.Fprintf(c.Writer, "data: %s\n\n", jsonData)
	c.Writer.Flush()
}
