package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fennwick/sotto/internal/domain"
	"github.com/fennwick/sotto/internal/infrastructure/events"
	"github.com/fennwick/sotto/internal/infrastructure/expiry"
	"github.com/fennwick/sotto/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// maxPasscodeAttempts bounds regeneration on passcode collisions. The
// numeric space is 900k wide so hitting this means something is wrong.
const maxPasscodeAttempts = 32

type Options struct {
	TTL             time.Duration
	DisconnectGrace time.Duration
	SweepInterval   time.Duration
}

type command struct {
	client *Client
	frame  *Envelope
}

type graceKey struct {
	roomID string
	token  string
}

type graceEvent struct {
	key  graceKey
	name string
}

// Hub owns all room and membership state. A single run loop consumes
// connection events, client frames, expiry firings and grace timeouts,
// so every membership transition is serialized; nothing else mutates
// client.RoomID or the occupant set.
type Hub struct {
	repo      domain.RoomRepository
	scheduler *expiry.Scheduler
	publisher *events.RoomPublisher
	logger    *zap.SugaredLogger
	opts      Options

	register    chan *Client
	unregister  chan *Client
	commands    chan command
	expirations chan string
	graceFired  chan graceEvent

	clients     map[*Client]struct{}
	occupants   *occupantSet
	graceTimers map[graceKey]*time.Timer

	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(repo domain.RoomRepository, publisher *events.RoomPublisher, logger *zap.SugaredLogger, opts Options) *Hub {
	if opts.TTL <= 0 {
		opts.TTL = 20 * time.Minute
	}
	if opts.DisconnectGrace <= 0 {
		opts.DisconnectGrace = 6 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}

	h := &Hub{
		repo:        repo,
		publisher:   publisher,
		logger:      logger,
		opts:        opts,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		commands:    make(chan command, 256),
		expirations: make(chan string),
		graceFired:  make(chan graceEvent),
		clients:     make(map[*Client]struct{}),
		occupants:   newOccupantSet(),
		graceTimers: make(map[graceKey]*time.Timer),
		done:        make(chan struct{}),
	}

	h.scheduler = expiry.NewScheduler(repo, opts.SweepInterval, h.enqueueExpiry)

	return h
}

func (h *Hub) Run() {
	go h.scheduler.Run()

	for {
		select {
		case cl := <-h.register:
			h.handleRegister(cl)
		case cl := <-h.unregister:
			h.handleUnregister(cl)
		case cmd := <-h.commands:
			h.handleCommand(cmd.client, cmd.frame)
		case roomID := <-h.expirations:
			h.expireRoom(roomID)
		case ev := <-h.graceFired:
			h.handleGraceExpired(ev)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.scheduler.Close()
	})
}

func (h *Hub) Register() chan<- *Client {
	return h.register
}

func (h *Hub) Unregister() chan<- *Client {
	return h.unregister
}

// Dispatch hands a decoded frame to the run loop.
func (h *Hub) Dispatch(c *Client, frame *Envelope) {
	select {
	case h.commands <- command{client: c, frame: frame}:
	case <-h.done:
	}
}

// enqueueExpiry is the scheduler's callback; it runs on timer
// goroutines and only touches the channel.
func (h *Hub) enqueueExpiry(roomID string) {
	select {
	case h.expirations <- roomID:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.clients[c] = struct{}{}
	metrics.ConnectedClients.Inc()

	c.trySend(NewSessionReady(c.Token, c.Name))
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	metrics.ConnectedClients.Dec()

	if c.RoomID != "" {
		h.beginGrace(c)
	}

	close(c.Message)
}

// beginGrace starts the offline-announcement countdown for a member
// whose connection dropped. A rejoin before the timer fires suppresses
// the announcement.
func (h *Hub) beginGrace(c *Client) {
	roomID, token, name := c.RoomID, c.Token, c.Name

	cur, live := h.occupants.get(roomID, token)
	if live && cur != c {
		// a newer connection already took over this identity
		return
	}
	if live {
		h.occupants.remove(roomID, token)
	}

	key := graceKey{roomID: roomID, token: token}
	if t, exists := h.graceTimers[key]; exists {
		t.Stop()
	}
	h.graceTimers[key] = time.AfterFunc(h.opts.DisconnectGrace, func() {
		select {
		case h.graceFired <- graceEvent{key: key, name: name}:
		case <-h.done:
		}
	})
}

func (h *Hub) handleGraceExpired(ev graceEvent) {
	delete(h.graceTimers, ev.key)

	room, err := h.repo.GetByID(context.Background(), ev.key.roomID)
	if err != nil {
		// room already torn down
		return
	}

	if _, live := h.occupants.get(ev.key.roomID, ev.key.token); live {
		// reconnected within the grace window
		return
	}

	member := room.RemoveMember(ev.key.token)
	if member == nil {
		return
	}

	h.occupants.broadcastExcept(room.ID, ev.key.token, NewSystemMessage(member.Name+" went offline."))
	h.publishRoomEvent(events.MemberLeft, room)

	if len(room.Members) == 0 {
		h.teardown(room)
	}
}

func (h *Hub) handleCommand(c *Client, frame *Envelope) {
	// a frame can sit in the command queue while the unregister for the
	// same client is processed; its Message channel is closed by then
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch frame.Type {
	case CreateRoomEvent:
		h.createRoom(c)

	case JoinRoomEvent:
		var req JoinRequest
		if !h.decode(c, frame.Data, &req) {
			return
		}
		h.joinRoom(c, &req)

	case QuitRoomEvent:
		h.quitRoom(c)

	case SendMessageEvent:
		var req SendRequest
		if !h.decode(c, frame.Data, &req) {
			return
		}
		h.relayMessage(c, &req)

	case StartTypingEvent:
		h.relayTyping(c, true)

	case StopTypingEvent:
		h.relayTyping(c, false)

	default:
		c.trySend(NewSystemMessage("Unknown event: " + frame.Type))
	}
}

func (h *Hub) decode(c *Client, raw json.RawMessage, v any) bool {
	if raw == nil {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.trySend(NewSystemMessage("Malformed event."))
		return false
	}
	return true
}

func (h *Hub) createRoom(c *Client) {
	if c.RoomID != "" {
		c.trySend(NewSystemMessage("You are already in a room."))
		return
	}

	ctx := context.Background()

	var room *domain.Room
	for attempt := 0; attempt < maxPasscodeAttempts; attempt++ {
		candidate, err := domain.NewRoom(h.opts.TTL)
		if err != nil {
			h.logger.Errorw("failed to generate room", "error", err)
			c.trySend(NewSystemMessage("Could not create a room."))
			return
		}

		err = h.repo.Create(ctx, candidate)
		if err == nil {
			room = candidate
			break
		}

		switch {
		case errors.Is(err, domain.ErrRoomLimitReached):
			c.trySend(NewSystemMessage("Server is at capacity. Try again later."))
			return
		case errors.Is(err, domain.ErrRoomAlreadyExists):
			// passcode collision, regenerate
		default:
			h.logger.Errorw("failed to store room", "error", err)
			c.trySend(NewSystemMessage("Could not create a room."))
			return
		}
	}

	if room == nil {
		h.logger.Errorw("passcode space exhausted", "attempts", maxPasscodeAttempts)
		c.trySend(NewSystemMessage("Could not create a room."))
		return
	}

	member, err := domain.NewMember(c.Token, c.Name)
	if err != nil {
		c.trySend(NewSystemMessage("Could not create a room."))
		return
	}
	_ = room.AddMember(member)

	h.scheduler.Arm(room)
	h.occupants.add(room.ID, c)
	c.RoomID = room.ID

	c.trySend(NewRoomCreated(room.ID, room.Passcode, room.ExpiresAt))

	metrics.RoomsCreated.Inc()
	metrics.ActiveRooms.Set(float64(h.repo.Len(ctx)))
	h.publishRoomEvent(events.RoomCreated, room)

	h.logger.Infow("room created", "room", room.ID, "expiresAt", room.ExpiresAt)
}

func (h *Hub) joinRoom(c *Client, req *JoinRequest) {
	if c.RoomID != "" {
		c.trySend(NewSystemMessage("You are already in a room."))
		return
	}
	if req.Passcode == "" && req.RoomID == "" {
		c.trySend(NewSystemMessage("A passcode or room id is required."))
		return
	}
	if req.Name != "" {
		c.Name = domain.NormalizeName(req.Name)
	}

	ctx := context.Background()

	var (
		room *domain.Room
		err  error
	)
	if req.RoomID != "" {
		room, err = h.repo.GetByID(ctx, req.RoomID)
	} else {
		room, err = h.repo.GetByPasscode(ctx, req.Passcode)
	}
	if err != nil {
		c.trySend(NewSystemMessage("Room not found or expired."))
		return
	}

	member, err := domain.NewMember(c.Token, c.Name)
	if err != nil {
		c.trySend(NewSystemMessage("Cannot join room."))
		return
	}

	rejoined := false
	switch err := room.AddMember(member); {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyInRoom):
		rejoined = true
	case errors.Is(err, domain.ErrRoomFull):
		c.trySend(NewSystemMessage("Room is full."))
		return
	default:
		c.trySend(NewSystemMessage("Cannot join room."))
		return
	}

	// a rejoin cancels any pending offline announcement
	key := graceKey{roomID: room.ID, token: c.Token}
	if t, exists := h.graceTimers[key]; exists {
		t.Stop()
		delete(h.graceTimers, key)
	}

	// replace a stale connection holding the same identity
	if prev, exists := h.occupants.get(room.ID, c.Token); exists && prev != c {
		prev.RoomID = ""
	}

	h.occupants.add(room.ID, c)
	c.RoomID = room.ID

	c.trySend(NewJoinSuccess(room.ID, room.Passcode, room.ExpiresAt))

	if !rejoined {
		h.occupants.broadcastExcept(room.ID, c.Token, NewSystemMessage(member.Name+" joined the room."))
		h.publishRoomEvent(events.MemberJoined, room)
	}

	h.logger.Infow("member joined", "room", room.ID, "rejoined", rejoined)
}

func (h *Hub) quitRoom(c *Client) {
	if c.RoomID == "" {
		c.trySend(NewSystemMessage("You are not in a room."))
		return
	}

	roomID := c.RoomID
	c.RoomID = ""
	h.occupants.remove(roomID, c.Token)

	room, err := h.repo.GetByID(context.Background(), roomID)
	if err != nil {
		return
	}

	name := c.Name
	if member := room.RemoveMember(c.Token); member != nil {
		name = member.Name
	}

	h.occupants.broadcastExcept(roomID, c.Token, NewSystemMessage(name+" left the room."))
	h.publishRoomEvent(events.MemberLeft, room)

	if len(room.Members) == 0 {
		h.teardown(room)
	}
}

func (h *Hub) relayMessage(c *Client, req *SendRequest) {
	if c.RoomID == "" {
		// an unjoined sender has no valid target
		return
	}
	if req.Message == "" {
		c.trySend(NewSystemMessage("Message cannot be empty."))
		return
	}

	h.occupants.broadcastExcept(c.RoomID, c.Token, NewChatMessage(req.Message, c.Name))
	metrics.MessagesRelayed.Inc()
}

func (h *Hub) relayTyping(c *Client, typing bool) {
	if c.RoomID == "" {
		return
	}

	msg := NewHideTyping(c.Name)
	if typing {
		msg = NewShowTyping(c.Name)
	}
	h.occupants.broadcastExcept(c.RoomID, c.Token, msg)
}

// expireRoom is the shared deletion routine for both the one-shot timer
// and the sweep. Deleting an already-absent room is a no-op.
func (h *Hub) expireRoom(roomID string) {
	ctx := context.Background()

	room, err := h.repo.Delete(ctx, &domain.Room{ID: roomID})
	if err != nil {
		return
	}
	h.scheduler.Cancel(roomID)

	h.occupants.broadcastExcept(roomID, "", NewSystemMessage("This room has expired."))
	for _, cl := range h.occupants.room(roomID) {
		cl.RoomID = ""
	}
	h.occupants.drop(roomID)
	h.cancelGraceForRoom(roomID)

	metrics.RoomsExpired.Inc()
	metrics.ActiveRooms.Set(float64(h.repo.Len(ctx)))
	h.publishRoomEvent(events.RoomDeleted, room)

	h.logger.Infow("room expired", "room", roomID)
}

// teardown deletes a room that emptied out before its TTL.
func (h *Hub) teardown(room *domain.Room) {
	ctx := context.Background()

	if _, err := h.repo.Delete(ctx, room); err != nil {
		return
	}
	h.scheduler.Cancel(room.ID)
	h.occupants.drop(room.ID)
	h.cancelGraceForRoom(room.ID)

	metrics.ActiveRooms.Set(float64(h.repo.Len(ctx)))
	h.publishRoomEvent(events.RoomDeleted, room)

	h.logger.Infow("room closed", "room", room.ID)
}

func (h *Hub) cancelGraceForRoom(roomID string) {
	for key, t := range h.graceTimers {
		if key.roomID == roomID {
			t.Stop()
			delete(h.graceTimers, key)
		}
	}
}

// publishRoomEvent fires the lifecycle event off the run loop; broker
// I/O must never block membership handling.
func (h *Hub) publishRoomEvent(event string, room *domain.Room) {
	if h.publisher == nil {
		return
	}

	data := events.RoomEvent{
		RoomID:    room.ID,
		Passcode:  room.Passcode,
		ExpiresAt: room.ExpiresAt,
	}

	go func() {
		if err := h.publisher.Publish(context.Background(), event, data); err != nil {
			h.logger.Warnw("failed to publish room event", "event", event, "error", err)
		}
	}()
}
