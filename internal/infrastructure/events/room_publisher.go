package events

import (
	"context"
	"time"

	"github.com/fennwick/sotto/internal/infrastructure/messaging"
)

// Room lifecycle routing keys.
const (
	RoomCreated  = "room.created"
	RoomDeleted  = "room.deleted"
	MemberJoined = "member.joined"
	MemberLeft   = "member.left"
)

// RoomEvent carries no message content; only lifecycle facts leave the
// process.
type RoomEvent struct {
	RoomID    string    `json:"roomId"`
	Passcode  string    `json:"passcode"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RoomPublisher struct {
	rabbitmq *messaging.RabbitMQ
}

func NewRoomPublisher(rabbitmq *messaging.RabbitMQ) *RoomPublisher {
	return &RoomPublisher{
		rabbitmq: rabbitmq,
	}
}

func (p *RoomPublisher) Publish(ctx context.Context, event string, data RoomEvent) error {
	return p.rabbitmq.Publish(ctx, event, data)
}
