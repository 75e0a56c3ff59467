package expiry

import (
	"context"
	"sync"
	"time"

	"github.com/fennwick/sotto/internal/domain"
)

// Scheduler enforces room TTLs. Each room gets a one-shot timer armed at
// creation; a periodic sweep over the registry backstops timer drift or
// missed firings. Both paths call the same onExpire hook, which must be
// idempotent (the hub re-checks the registry before acting).
type Scheduler struct {
	repo     domain.RoomRepository
	interval time.Duration
	onExpire func(roomID string)

	mu     sync.Mutex
	timers map[string]*time.Timer

	sweepTick *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

func NewScheduler(repo domain.RoomRepository, sweepInterval time.Duration, onExpire func(roomID string)) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	return &Scheduler{
		repo:      repo,
		interval:  sweepInterval,
		onExpire:  onExpire,
		timers:    make(map[string]*time.Timer),
		sweepTick: time.NewTicker(sweepInterval),
		done:      make(chan struct{}),
	}
}

// Arm schedules the one-shot expiry timer for a room. Re-arming the same
// room replaces the previous timer.
func (s *Scheduler) Arm(room *domain.Room) {
	if room == nil || room.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, exists := s.timers[room.ID]; exists {
		t.Stop()
	}

	roomID := room.ID
	s.timers[roomID] = time.AfterFunc(time.Until(room.ExpiresAt), func() {
		s.mu.Lock()
		delete(s.timers, roomID)
		s.mu.Unlock()

		s.onExpire(roomID)
	})
}

// Cancel invalidates a pending timer, typically because the room was
// already torn down. Cancelling an unknown room is a no-op.
func (s *Scheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, exists := s.timers[roomID]; exists {
		t.Stop()
		delete(s.timers, roomID)
	}
}

// Run drives the periodic sweep until Close is called.
func (s *Scheduler) Run() {
	for {
		select {
		case <-s.sweepTick.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) sweep() {
	now := time.Now()
	for _, room := range s.repo.Expired(context.Background(), now) {
		s.Cancel(room.ID)
		s.onExpire(room.ID)
	}
}

func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.sweepTick.Stop()

		s.mu.Lock()
		for id, t := range s.timers {
			t.Stop()
			delete(s.timers, id)
		}
		s.mu.Unlock()
	})
}
