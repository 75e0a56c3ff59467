package ws_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fennwick/sotto/internal/domain"
	"github.com/fennwick/sotto/internal/infrastructure/repository"
	"github.com/fennwick/sotto/internal/infrastructure/ws"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const recvTimeout = 2 * time.Second

func newHub(t *testing.T, opts ws.Options) (*ws.Hub, domain.RoomRepository) {
	t.Helper()

	repo := repository.NewRoomRepository(0)
	h := ws.NewHub(repo, nil, zap.NewNop().Sugar(), opts)
	go h.Run()
	t.Cleanup(h.Close)

	return h, repo
}

func quietOpts() ws.Options {
	return ws.Options{
		TTL:             time.Minute,
		DisconnectGrace: 300 * time.Millisecond,
		SweepInterval:   time.Hour,
	}
}

func connect(t *testing.T, h *ws.Hub, token, name string) *ws.Client {
	t.Helper()

	c := ws.NewClient(nil, token, name)
	h.Register() <- c

	msg := recv(t, c)
	require.Equal(t, ws.SessionReady, msg.Type)

	return c
}

func recv(t *testing.T, c *ws.Client) *ws.Message {
	t.Helper()

	select {
	case msg, ok := <-c.Message:
		require.True(t, ok, "message channel closed")
		return msg
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func recvSystem(t *testing.T, c *ws.Client) string {
	t.Helper()

	msg := recv(t, c)
	require.Equal(t, ws.SystemMessage, msg.Type)
	payload, ok := msg.Data.(ws.SystemPayload)
	require.True(t, ok)
	return payload.Text
}

func expectNothing(t *testing.T, c *ws.Client, d time.Duration) {
	t.Helper()

	select {
	case msg, ok := <-c.Message:
		require.True(t, ok, "message channel closed")
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(d):
	}
}

func rawPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func createRoom(t *testing.T, h *ws.Hub, c *ws.Client) ws.RoomCredentials {
	t.Helper()

	h.Dispatch(c, &ws.Envelope{Type: ws.CreateRoomEvent})

	msg := recv(t, c)
	require.Equal(t, ws.RoomCreated, msg.Type)
	creds, ok := msg.Data.(ws.RoomCredentials)
	require.True(t, ok)
	return creds
}

func joinRoom(t *testing.T, h *ws.Hub, c *ws.Client, req ws.JoinRequest) {
	t.Helper()

	h.Dispatch(c, &ws.Envelope{Type: ws.JoinRoomEvent, Data: rawPayload(t, req)})
}

func sendMessage(t *testing.T, h *ws.Hub, c *ws.Client, text string) {
	t.Helper()

	h.Dispatch(c, &ws.Envelope{Type: ws.SendMessageEvent, Data: rawPayload(t, ws.SendRequest{Message: text})})
}

func TestCreateRoom(t *testing.T) {
	h, repo := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	require.NotEmpty(t, creds.RoomID)
	require.Regexp(t, `^[1-9]\d{5}$`, creds.Passcode)
	require.True(t, creds.ExpireAt.After(time.Now()))

	// the creator is immediately a member
	room, err := repo.GetByID(context.Background(), creds.RoomID)
	require.NoError(t, err)
	require.NotNil(t, room.FindMemberByToken("tok-x"))
}

func TestJoinWithPasscode(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: creds.Passcode, Name: "Bob"})

	msg := recv(t, y)
	require.Equal(t, ws.JoinSuccess, msg.Type)
	joined, ok := msg.Data.(ws.RoomCredentials)
	require.True(t, ok)
	require.Equal(t, creds.RoomID, joined.RoomID)
	require.Equal(t, creds.Passcode, joined.Passcode)

	require.Equal(t, "Bob joined the room.", recvSystem(t, x))
}

func TestJoinWithRoomID(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{RoomID: creds.RoomID})

	require.Equal(t, ws.JoinSuccess, recv(t, y).Type)
}

func TestThirdJoinerRejected(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: creds.Passcode})
	require.Equal(t, ws.JoinSuccess, recv(t, y).Type)
	recvSystem(t, x) // join notice

	z := connect(t, h, "tok-z", "Carol")
	joinRoom(t, h, z, ws.JoinRequest{Passcode: creds.Passcode})
	require.Equal(t, "Room is full.", recvSystem(t, z))

	expectNothing(t, x, 100*time.Millisecond)
	expectNothing(t, y, 100*time.Millisecond)
}

func TestRelayOnlyToPeer(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: creds.Passcode, Name: "Bob"})
	require.Equal(t, ws.JoinSuccess, recv(t, y).Type)
	recvSystem(t, x) // join notice

	sendMessage(t, h, y, "hi")

	msg := recv(t, x)
	require.Equal(t, ws.NewMessage, msg.Type)
	chat, ok := msg.Data.(ws.ChatPayload)
	require.True(t, ok)
	require.Equal(t, "hi", chat.Message)
	require.Equal(t, "Bob", chat.From)

	// the sender never gets its own message echoed back
	expectNothing(t, y, 100*time.Millisecond)
}

func TestEmptyMessageRejected(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: creds.Passcode})
	require.Equal(t, ws.JoinSuccess, recv(t, y).Type)
	recvSystem(t, x) // join notice

	sendMessage(t, h, y, "")
	require.Equal(t, "Message cannot be empty.", recvSystem(t, y))
	expectNothing(t, x, 100*time.Millisecond)
}

func TestSendWithoutRoomSilentlyDropped(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	y := connect(t, h, "tok-y", "Bob")
	sendMessage(t, h, y, "hello?")

	expectNothing(t, y, 100*time.Millisecond)
}

func TestTypingIndicators(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: creds.Passcode})
	require.Equal(t, ws.JoinSuccess, recv(t, y).Type)
	recvSystem(t, x) // join notice

	h.Dispatch(y, &ws.Envelope{Type: ws.StartTypingEvent})
	msg := recv(t, x)
	require.Equal(t, ws.ShowTyping, msg.Type)
	require.Equal(t, ws.TypingPayload{From: "Bob"}, msg.Data)

	h.Dispatch(y, &ws.Envelope{Type: ws.StopTypingEvent})
	msg = recv(t, x)
	require.Equal(t, ws.HideTyping, msg.Type)

	// typing is addressed like messages: never back at the sender
	expectNothing(t, y, 100*time.Millisecond)
}

func TestQuitRoom(t *testing.T) {
	h, repo := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: creds.Passcode})
	require.Equal(t, ws.JoinSuccess, recv(t, y).Type)
	recvSystem(t, x) // join notice

	h.Dispatch(y, &ws.Envelope{Type: ws.QuitRoomEvent})
	require.Equal(t, "Bob left the room.", recvSystem(t, x))

	// last occupant leaving tears the room down
	h.Dispatch(x, &ws.Envelope{Type: ws.QuitRoomEvent})
	require.Eventually(t, func() bool {
		_, err := repo.GetByID(context.Background(), creds.RoomID)
		return err != nil
	}, recvTimeout, 10*time.Millisecond)

	_, err := repo.GetByPasscode(context.Background(), creds.Passcode)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestQuitWithoutRoom(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	y := connect(t, h, "tok-y", "Bob")
	h.Dispatch(y, &ws.Envelope{Type: ws.QuitRoomEvent})
	require.Equal(t, "You are not in a room.", recvSystem(t, y))
}

func TestJoinRequiresKey(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{})
	require.Equal(t, "A passcode or room id is required.", recvSystem(t, y))
}

func TestJoinUnknownPasscode(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: "123456"})
	require.Equal(t, "Room not found or expired.", recvSystem(t, y))
}

func TestCreateWhileInRoom(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	createRoom(t, h, x)

	h.Dispatch(x, &ws.Envelope{Type: ws.CreateRoomEvent})
	require.Equal(t, "You are already in a room.", recvSystem(t, x))
}

func TestReconnectWithinGraceSuppressesOffline(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: creds.Passcode})
	require.Equal(t, ws.JoinSuccess, recv(t, y).Type)
	recvSystem(t, x) // join notice

	// X's connection drops and comes back with the same token
	h.Unregister() <- x

	x2 := connect(t, h, "tok-x", "Alice")
	joinRoom(t, h, x2, ws.JoinRequest{RoomID: creds.RoomID})
	require.Equal(t, ws.JoinSuccess, recv(t, x2).Type)

	// no offline notice and no duplicate join announcement
	expectNothing(t, y, 600*time.Millisecond)
}

func TestOfflineAfterGrace(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	y := connect(t, h, "tok-y", "Bob")
	joinRoom(t, h, y, ws.JoinRequest{Passcode: creds.Passcode})
	require.Equal(t, ws.JoinSuccess, recv(t, y).Type)
	recvSystem(t, x) // join notice

	h.Unregister() <- x

	require.Equal(t, "Alice went offline.", recvSystem(t, y))
}

func TestRoomExpiry(t *testing.T) {
	opts := quietOpts()
	opts.TTL = 150 * time.Millisecond
	h, repo := newHub(t, opts)

	x := connect(t, h, "tok-x", "Alice")
	creds := createRoom(t, h, x)

	require.Equal(t, "This room has expired.", recvSystem(t, x))

	_, err := repo.GetByID(context.Background(), creds.RoomID)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = repo.GetByPasscode(context.Background(), creds.Passcode)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	// the forced removal cleared X's membership, so a fresh create works
	creds2 := createRoom(t, h, x)
	require.NotEqual(t, creds.RoomID, creds2.RoomID)
}

func TestCommandAfterDisconnectIgnored(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	x := connect(t, h, "tok-x", "Alice")
	h.Unregister() <- x

	// the frame was queued before the disconnect was processed; handling
	// it must not write to the closed channel
	h.Dispatch(x, &ws.Envelope{Type: ws.CreateRoomEvent})
	h.Dispatch(x, &ws.Envelope{Type: "room.destroy"})

	// the loop survived and still serves new sessions
	y := connect(t, h, "tok-y", "Bob")
	createRoom(t, h, y)
}

func TestUnknownEvent(t *testing.T) {
	h, _ := newHub(t, quietOpts())

	y := connect(t, h, "tok-y", "Bob")
	h.Dispatch(y, &ws.Envelope{Type: "room.destroy"})
	require.Equal(t, "Unknown event: room.destroy", recvSystem(t, y))
}
