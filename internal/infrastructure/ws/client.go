package ws

import (
	"encoding/json"
	"log"

	"github.com/gorilla/websocket"
)

// Client is the per-connection session: a stable token, a display name
// and at most one room membership. RoomID is owned by the hub loop and
// must not be touched elsewhere.
type Client struct {
	conn    *connWrapper
	Message chan *Message

	Token  string `json:"token"`
	Name   string `json:"name"`
	RoomID string `json:"roomId,omitempty"`
}

func NewClient(conn *websocket.Conn, token, name string) *Client {
	return &Client{
		conn:    newConnWrapper(conn),
		Message: make(chan *Message, 64), // buffered to avoid dead-locks on slow clients
		Token:   token,
		Name:    name,
	}
}

func (c *Client) ReadPump(hub *Hub) {
	defer func() {
		hub.Unregister() <- c
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read error (client %s): %v", c.Token, err)
			}
			break
		}

		var frame Envelope
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.trySend(NewSystemMessage("Malformed event."))
			continue
		}

		hub.Dispatch(c, &frame)
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for msg := range c.Message {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error (client %s): %v", c.Token, err)
			break
		}
	}
}

// trySend queues a message without blocking. Delivery is best-effort; a
// full buffer means the client is too slow and the frame is dropped.
func (c *Client) trySend(msg *Message) {
	select {
	case c.Message <- msg:
	default:
		log.Printf("client %s buffer full, dropping message", c.Token)
	}
}
