package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonlog "portal_server/server/common/log"
	"portal_server/server/common/middleware"
	"portal_server/server/common/transport/httpresp"
	"portal_server/server/portal/domain"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type wsEnvelope struct {
	Type    string         `json:"type"`
	Payload *domain.Change `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// handleWS streams committed changes to a browser. Clients refetch whatever
// the change names; the stream itself carries no entity bodies. project_id
// narrows the stream to one project.
func (h *Handler) handleWS(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrMissingBearerToken))
		return
	}
	role, err := h.auth.ParseRole(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
		return
	}
	projectID := strings.TrimSpace(c.Query("project_id"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := h.feed.Subscribe(ctx, projectID)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		commonlog.Warnf("event=live_feed action=upgrade status=failed role=%s error=%v", role, err)
		return
	}
	defer conn.Close()
	commonlog.Infof("event=live_feed action=connect status=ok role=%s project_id=%s", role, projectID)

	// Inbound frames are ignored; reading is how a closed socket is noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			commonlog.Infof("event=live_feed action=disconnect status=ok role=%s project_id=%s", role, projectID)
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := writeWS(conn, wsEnvelope{Type: "change", Payload: &change}); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, env wsEnvelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
