package expiry_test

import (
	"context"
	"testing"
	"time"

	"github.com/fennwick/sotto/internal/domain"
	"github.com/fennwick/sotto/internal/infrastructure/expiry"
	"github.com/fennwick/sotto/internal/infrastructure/repository"
	"github.com/stretchr/testify/require"
)

func TestTimerFires(t *testing.T) {
	repo := repository.NewRoomRepository(0)
	fired := make(chan string, 8)

	sched := expiry.NewScheduler(repo, time.Hour, func(roomID string) {
		fired <- roomID
	})
	defer sched.Close()

	room, err := domain.NewRoom(50 * time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), room))

	sched.Arm(room)

	select {
	case roomID := <-fired:
		require.Equal(t, room.ID, roomID)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry timer never fired")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	repo := repository.NewRoomRepository(0)
	fired := make(chan string, 8)

	sched := expiry.NewScheduler(repo, time.Hour, func(roomID string) {
		fired <- roomID
	})
	defer sched.Close()

	room, err := domain.NewRoom(50 * time.Millisecond)
	require.NoError(t, err)

	sched.Arm(room)
	sched.Cancel(room.ID)

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSweepCatchesMissedExpiry(t *testing.T) {
	repo := repository.NewRoomRepository(0)
	fired := make(chan string, 8)

	sched := expiry.NewScheduler(repo, 50*time.Millisecond, func(roomID string) {
		fired <- roomID
	})
	defer sched.Close()
	go sched.Run()

	// room in the registry with no armed timer, as if a firing was missed
	room, err := domain.NewRoom(10 * time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), room))

	select {
	case roomID := <-fired:
		require.Equal(t, room.ID, roomID)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never picked up the expired room")
	}
}

func TestCancelUnknownRoomIsNoop(t *testing.T) {
	repo := repository.NewRoomRepository(0)
	sched := expiry.NewScheduler(repo, time.Hour, func(string) {})
	defer sched.Close()

	sched.Cancel("no-such-room")
}
