package types

// Change-feed tables.
const (
	TableMessages = "messages"
	TableMembers  = "room_members"
)

// Change-feed actions.
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Event is a row-level change notification scoped to one room. Exactly one
// of Message and Member is set, matching Table.
type Event struct {
	Table   string   `json:"table"`
	Action  string   `json:"action"`
	RoomId  string   `json:"room_id"`
	Message *Message `json:"message,omitempty"`
	Member  *Member  `json:"member,omitempty"`
}

// RoomSnapshot is the payload returned on joining a room: the room with its
// member list and the caller's own role. A caller with no membership row
// gets the zero Role.
type RoomSnapshot struct {
	Room Room `json:"room"`
	Role Role `json:"role,omitempty"`
}
