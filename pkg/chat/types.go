// Package chat implements the room chat relay: a reconnecting websocket
// client plus a parser that normalizes the room's JSON {method, payload}
// frames into ChatEvents (any other frame becomes an "other" event carrying
// the raw bytes), mirroring the teacher's TTS client's connection-management
// idiom (pkg/providers/tts/lokutor.go) for a consumption rather than a
// request/response protocol.
package chat

import (
	"strconv"
	"time"
)

// EventType enumerates every normalized chat-room event kind this
// package parses, plus "other" for forward-compatible unknown frames.
type EventType string

const (
	EventChat             EventType = "chat"
	EventGift             EventType = "gift"
	EventLike             EventType = "like"
	EventMember           EventType = "member"
	EventFollow           EventType = "follow"
	EventFansclub         EventType = "fansclub"
	EventEmojiChat        EventType = "emoji_chat"
	EventRoomInfo         EventType = "room_info"
	EventRoomStats        EventType = "room_stats"
	EventRoomUserStats    EventType = "room_user_stats"
	EventRoomRank         EventType = "room_rank"
	EventRoomControl      EventType = "room_control"
	EventStreamAdaptation EventType = "stream_adaptation"
	EventStatus           EventType = "status"
	EventError            EventType = "error"
	EventOther            EventType = "other"
)

// Event is the normalized shape every parsed frame is reduced to. Payload
// carries the event-specific fields as a flat key-value map rather than a
// per-type struct, since the room protocol's field set varies and is only
// ever consumed downstream as display/log data.
type Event struct {
	Type      EventType         `json:"type"`
	Payload   map[string]string `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
}

func newEvent(t EventType, payload map[string]string) Event {
	if payload == nil {
		payload = map[string]string{}
	}
	return Event{Type: t, Payload: payload, Timestamp: time.Now()}
}

func statusEvent(stage string, attempt int) Event {
	payload := map[string]string{"stage": stage}
	if attempt > 0 {
		payload["attempt"] = strconv.Itoa(attempt)
	}
	return newEvent(EventStatus, payload)
}

func errorEvent(reason string) Event {
	return newEvent(EventError, map[string]string{"reason": reason})
}
