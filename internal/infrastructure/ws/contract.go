package ws

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame for every event in either direction. Data
// stays raw on the way in so each handler decodes its own payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame. Payloads are opaque to the relay; the
// server never inspects message content beyond requiring it non-empty.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Payload structs
type JoinRequest struct {
	Passcode string `json:"passcode,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	Name     string `json:"name,omitempty"`
}

type SendRequest struct {
	Message string `json:"message"`
}

type SessionPayload struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

type RoomCredentials struct {
	RoomID   string    `json:"roomId"`
	Passcode string    `json:"passcode"`
	ExpireAt time.Time `json:"expireAt"`
}

type SystemPayload struct {
	Text string `json:"text"`
}

type ChatPayload struct {
	Message string `json:"message"`
	From    string `json:"from"`
}

type TypingPayload struct {
	From string `json:"from"`
}

func NewSessionReady(token, name string) *Message {
	return &Message{
		Type: SessionReady,
		Data: SessionPayload{
			Token: token,
			Name:  name,
		},
	}
}

func NewRoomCreated(roomID, passcode string, expireAt time.Time) *Message {
	return &Message{
		Type: RoomCreated,
		Data: RoomCredentials{
			RoomID:   roomID,
			Passcode: passcode,
			ExpireAt: expireAt,
		},
	}
}

func NewJoinSuccess(roomID, passcode string, expireAt time.Time) *Message {
	return &Message{
		Type: JoinSuccess,
		Data: RoomCredentials{
			RoomID:   roomID,
			Passcode: passcode,
			ExpireAt: expireAt,
		},
	}
}

func NewSystemMessage(text string) *Message {
	return &Message{
		Type: SystemMessage,
		Data: SystemPayload{Text: text},
	}
}

func NewChatMessage(message, from string) *Message {
	return &Message{
		Type: NewMessage,
		Data: ChatPayload{
			Message: message,
			From:    from,
		},
	}
}

func NewShowTyping(from string) *Message {
	return &Message{
		Type: ShowTyping,
		Data: TypingPayload{From: from},
	}
}

func NewHideTyping(from string) *Message {
	return &Message{
		Type: HideTyping,
		Data: TypingPayload{From: from},
	}
}
