package chat

import (
	"log"
	"net/http"

	"github.com/fennwick/sotto/internal/domain"
	"github.com/fennwick/sotto/internal/infrastructure/ws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

func NewHandler(hub *ws.Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the relay carries client-encrypted payloads; origin
			// enforcement belongs to the fronting proxy
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the connection and hands the session to the hub. A
// returning client passes its previous token to keep its identity
// across reconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = uuid.NewString()
	}
	name := domain.NormalizeName(r.URL.Query().Get("name"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := ws.NewClient(conn, token, name)
	h.hub.Register() <- client

	go client.WritePump()
	go client.ReadPump(h.hub)
}
