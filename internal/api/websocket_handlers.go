package api

import (
	"net/http"

	"picshare/internal/websocket"

	"go.uber.org/zap"
)

// @Summary      Live feed
// @Description  Upgrades to a websocket that receives image_uploaded and image_deleted events.
// @Tags         images
// @Router       /images/live [get]
func (s *Server) LiveFeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(s.wsHub, conn)
	if !s.wsHub.Attach(client) {
		conn.Close()
		return
	}

	go client.ReadPump()
	go client.WritePump()
}
