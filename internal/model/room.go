package model

// RoomKind discriminates multi-member channels from two-party direct
// conversations.
type RoomKind int

const (
	RoomKindChannel RoomKind = iota
	RoomKindDirect
)

// Room identifies a conversation target. The kind is carried explicitly;
// callers at the routing boundary decide it once instead of sniffing id
// strings downstream.
type Room struct {
	Kind RoomKind
	ID   string
}

func ChannelRoom(channelID string) Room {
	return Room{Kind: RoomKindChannel, ID: channelID}
}

func DirectRoom(userID string) Room {
	return Room{Kind: RoomKindDirect, ID: userID}
}

func (r Room) IsDirect() bool {
	return r.Kind == RoomKindDirect
}

func (r Room) String() string {
	if r.IsDirect() {
		return "direct:" + r.ID
	}
	return "channel:" + r.ID
}
