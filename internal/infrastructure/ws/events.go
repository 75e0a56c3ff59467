package ws

// Client -> server events.
const (
	CreateRoomEvent  = "room.create"
	JoinRoomEvent    = "room.join"
	QuitRoomEvent    = "room.quit"
	SendMessageEvent = "message.send"
	StartTypingEvent = "typing.start"
	StopTypingEvent  = "typing.stop"
)

// Server -> client events.
const (
	SessionReady  = "session.ready"
	RoomCreated   = "room.created"
	JoinSuccess   = "room.join_success"
	SystemMessage = "system.message"
	NewMessage    = "message.new"
	ShowTyping    = "typing.show"
	HideTyping    = "typing.hide"
)
