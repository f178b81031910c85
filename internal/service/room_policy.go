package service

import "strings"

const (
	// directRoomPrefix marks rooms restricted to the two participants
	// whose usernames are encoded in the room identifier.
	directRoomPrefix = "dm_"

	// roomFiller replaces characters that are not usable in a room key.
	roomFiller = "_"
)

// NormalizeRoomName trims a raw room name and replaces spaces with
// underscores so it can be used as a broadcast group key.
func NormalizeRoomName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", roomFiller)
}

// IsDirectRoom reports whether a room identifier names a direct-message
// room (two-participant, access-restricted).
func IsDirectRoom(roomID string) bool {
	return strings.HasPrefix(roomID, directRoomPrefix)
}

// DirectRoomParticipants returns the participant usernames encoded in a
// direct-message room identifier. For a non-DM room it returns nil.
//
// NOTE: the identifier convention joins participants with "_", the same
// character used as the room-name filler. A username that itself contains
// an underscore splits into multiple tokens here and cannot be matched.
// Registration rejects underscores in new usernames (see AuthService), but
// identifiers built from legacy names remain ambiguous.
func DirectRoomParticipants(roomID string) []string {
	if !IsDirectRoom(roomID) {
		return nil
	}
	return strings.Split(strings.TrimPrefix(roomID, directRoomPrefix), roomFiller)
}

// CanJoin decides whether the named principal may join a room. Public
// rooms are open to any authenticated principal; direct-message rooms
// only to the two encoded participants. Pure function of its inputs,
// called on every join.
func CanJoin(roomID, username string) bool {
	if username == "" {
		return false
	}
	if !IsDirectRoom(roomID) {
		return true
	}
	for _, participant := range DirectRoomParticipants(roomID) {
		if participant == username {
			return true
		}
	}
	return false
}

// RoomDisplayName returns the human-facing name for a room from the
// viewer's perspective: the other participant's username for a DM room,
// the room identifier itself otherwise.
func RoomDisplayName(roomID, viewer string) string {
	if !IsDirectRoom(roomID) {
		return roomID
	}
	for _, participant := range DirectRoomParticipants(roomID) {
		if participant != viewer {
			return participant
		}
	}
	return roomID
}
