package realtime

import "fmt"

type channelKind int

const (
	kindGroup channelKind = iota
	kindUser
)

// ChannelKey identifies one logical broadcast topic: either a group's chat
// room or a single user's notification stream. It is comparable and safe to
// use as a map key.
type ChannelKey struct {
	kind channelKind
	id   int64
}

// GroupChannel is the chat channel of one group.
func GroupChannel(groupID int64) ChannelKey {
	return ChannelKey{kind: kindGroup, id: groupID}
}

// UserChannel is the private notification stream of one user.
func UserChannel(userID int64) ChannelKey {
	return ChannelKey{kind: kindUser, id: userID}
}

// Topic derives the broker topic name. Every process derives the same string
// for the same key; this is the whole cross-process contract.
func (k ChannelKey) Topic() string {
	switch k.kind {
	case kindUser:
		return fmt.Sprintf("notifications:%d", k.id)
	default:
		return fmt.Sprintf("chat:%d", k.id)
	}
}

func (k ChannelKey) String() string { return k.Topic() }
