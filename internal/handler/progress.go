package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// GetProgress godoc
// @Summary      Current run progress
// @Tags         progress
// @Produce      json
// @Success      200  {object}  domain.ProgressState
// @Router       /api/progress [get]
func (h *Handler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.predictions.Progress())
}

// StreamProgress godoc
// @Summary      Progress stream
// @Description  Upgrades to a WebSocket and pushes every progress update as JSON
// @Tags         progress
// @Success      101
// @Router       /api/progress/stream [get]
func (h *Handler) StreamProgress(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("progress stream upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.predictions.SubscribeProgress(32)
	defer cancel()

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(state); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
