package presence

import "fmt"

// Key layout:
// - roomKey(instance, room): Set<participantId> of one relay process
// - roomsKey(instance):      Set<room> with at least one member

const (
	keyRoomFmt  = "presence:%s:room:%s"
	keyRoomsFmt = "presence:%s:rooms"
)

func roomKey(instance, room string) string { return fmt.Sprintf(keyRoomFmt, instance, room) }
func roomsKey(instance string) string      { return fmt.Sprintf(keyRoomsFmt, instance) }
