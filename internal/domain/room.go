package domain

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// MaxOccupants is the hard cap on concurrent members per room.
const MaxOccupants = 2

// Passcodes are drawn from a fixed-width numeric space so they stay
// human-shareable. The room ID is the internal routing identifier and
// lives in a separate, high-entropy space.
const (
	passcodeMin  = 100000
	passcodeSpan = 900000
)

type Room struct {
	ID        string    `json:"id"`
	Passcode  string    `json:"passcode"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Members   []*Member `json:"members"`
}

type RoomRepository interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id string) (*Room, error)
	GetByPasscode(ctx context.Context, passcode string) (*Room, error)
	Delete(ctx context.Context, room *Room) (*Room, error)
	Expired(ctx context.Context, now time.Time) []*Room
	Len(ctx context.Context) int
}

// NewRoom allocates a candidate room with a fresh ID and passcode. The
// passcode is only guaranteed unique once the repository accepts it; on
// ErrRoomAlreadyExists the caller regenerates and retries.
func NewRoom(ttl time.Duration) (*Room, error) {
	if ttl <= 0 {
		return nil, ErrInvalidInput
	}

	passcode, err := newPasscode()
	if err != nil {
		return nil, err
	}

	now := time.Now()

	return &Room{
		ID:        uuid.NewString(),
		Passcode:  passcode,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Members:   make([]*Member, 0, MaxOccupants),
	}, nil
}

func newPasscode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(passcodeSpan))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(passcodeMin+n.Int64(), 10), nil
}

// AddMember admits a member if a slot is free. A token already present
// is a reconnect, reported as ErrAlreadyInRoom so the caller can skip
// the join announcement.
func (r *Room) AddMember(m *Member) error {
	if m == nil || m.Token == "" {
		return ErrInvalidInput
	}

	if existing := r.FindMemberByToken(m.Token); existing != nil {
		existing.Name = m.Name
		return ErrAlreadyInRoom
	}

	if len(r.Members) >= MaxOccupants {
		return ErrRoomFull
	}

	r.Members = append(r.Members, m)
	return nil
}

func (r *Room) FindMemberByToken(token string) *Member {
	for _, m := range r.Members {
		if m.Token == token {
			return m
		}
	}
	return nil
}

// RemoveMember drops the member with the given token, returning it, or
// nil if the token was never a member (idempotent).
func (r *Room) RemoveMember(token string) *Member {
	for i, m := range r.Members {
		if m.Token == token {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return m
		}
	}
	return nil
}

func (r *Room) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
