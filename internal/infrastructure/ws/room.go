package ws

// occupantSet tracks which live connections hold membership in which
// room, keyed by session token. It is owned by the hub run loop and
// must only be touched from there; that single-owner discipline is what
// makes check-then-join atomic.
type occupantSet struct {
	rooms map[string]map[string]*Client // roomID -> token -> client
}

func newOccupantSet() *occupantSet {
	return &occupantSet{
		rooms: make(map[string]map[string]*Client),
	}
}

func (o *occupantSet) add(roomID string, c *Client) {
	room, ok := o.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		o.rooms[roomID] = room
	}
	room[c.Token] = c
}

func (o *occupantSet) get(roomID, token string) (*Client, bool) {
	c, ok := o.rooms[roomID][token]
	return c, ok
}

func (o *occupantSet) remove(roomID, token string) {
	room, ok := o.rooms[roomID]
	if !ok {
		return
	}

	delete(room, token)
	if len(room) == 0 {
		delete(o.rooms, roomID)
	}
}

func (o *occupantSet) room(roomID string) map[string]*Client {
	return o.rooms[roomID]
}

func (o *occupantSet) drop(roomID string) {
	delete(o.rooms, roomID)
}

// broadcastExcept queues a message to every occupant of a room except
// the given token. An empty token addresses the whole room.
func (o *occupantSet) broadcastExcept(roomID, exceptToken string, msg *Message) {
	for token, cl := range o.rooms[roomID] {
		if exceptToken != "" && token == exceptToken {
			continue
		}
		cl.trySend(msg)
	}
}
