package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fennwick/sotto/internal/domain"
)

// roomRepository is the authoritative registry of live rooms. It keeps a
// forward map by room ID and a reverse index by passcode; every mutation
// touches both under one lock so no caller can observe one mapping
// without the other.
type roomRepository struct {
	rooms     map[string]*domain.Room // ID -> Room
	passcodes map[string]*domain.Room // Passcode -> Room
	capacity  uint
	mu        *sync.RWMutex
}

func NewRoomRepository(capacity uint) domain.RoomRepository {
	if capacity == 0 {
		capacity = 1000
	}

	return &roomRepository{
		rooms:     make(map[string]*domain.Room),
		passcodes: make(map[string]*domain.Room),
		capacity:  capacity,
		mu:        &sync.RWMutex{},
	}
}

// Create adds a room if ID and passcode are unique and capacity allows.
// A passcode collision comes back as ErrRoomAlreadyExists; the caller
// regenerates and retries.
func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	if room == nil || room.ID == "" || room.Passcode == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if uint(len(r.rooms)) >= r.capacity {
		return domain.ErrRoomLimitReached
	}

	if _, exists := r.rooms[room.ID]; exists {
		return domain.ErrRoomAlreadyExists
	}
	if _, exists := r.passcodes[room.Passcode]; exists {
		return domain.ErrRoomAlreadyExists
	}

	r.rooms[room.ID] = room
	r.passcodes[room.Passcode] = room

	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	if id == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[id]
	if !exists || room.Expired(time.Now()) {
		return nil, domain.ErrRoomNotFound
	}

	return room, nil
}

func (r *roomRepository) GetByPasscode(ctx context.Context, passcode string) (*domain.Room, error) {
	if passcode == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.passcodes[passcode]
	if !exists || room.Expired(time.Now()) {
		return nil, domain.ErrRoomNotFound
	}

	return room, nil
}

// Delete removes both mappings (idempotent from the caller's view: a
// second delete reports ErrRoomNotFound, never partial state).
func (r *roomRepository) Delete(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	if room == nil || room.ID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	storedRoom, exists := r.rooms[room.ID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	delete(r.rooms, storedRoom.ID)
	delete(r.passcodes, storedRoom.Passcode)

	return storedRoom, nil
}

// Expired snapshots all rooms whose deadline has passed, for the sweep.
func (r *roomRepository) Expired(ctx context.Context, now time.Time) []*domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []*domain.Room
	for _, room := range r.rooms {
		if room.Expired(now) {
			expired = append(expired, room)
		}
	}

	return expired
}

func (r *roomRepository) Len(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}
