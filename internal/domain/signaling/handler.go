package signaling

import (
	"context"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/websocket"
)

// Handler upgrades authenticated requests into signaling connections.
type Handler struct {
	relay    *Relay
	upgrader *gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(relay *Relay, upgrader *gorillawebsocket.Upgrader, logger zerolog.Logger) *Handler {
	return &Handler{relay: relay, upgrader: upgrader, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/signaling", h.Connect, auth.RequireSession())
}

func (h *Handler) Connect(c echo.Context) error {
	id, _ := auth.IdentityFromContext(c.Request().Context())

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := websocket.NewClient(id.UserID, id.Role)
	peer := NewPeer(client.ID, id.UserID, id.Role, client.Enqueue)

	// The request context ends when this handler returns.
	go func() {
		defer h.relay.Disconnect(peer)
		websocket.Serve(ws, client, h.logger, func(raw []byte) {
			h.relay.Handle(context.Background(), peer, raw)
		})
	}()
	return nil
}
