package chat

import (
	"encoding/base64"
	"encoding/json"
)

// rawFrame is the heterogeneous envelope every inbound frame is first
// decoded into; downstream fields vary per Method, so they are only
// pulled out on demand rather than modeled as one giant struct.
type rawFrame struct {
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload"`
}

// parseFrame normalizes one inbound websocket message into an Event.
// Frames whose method is not recognized become EventOther, carrying the
// original bytes base64-encoded so nothing is silently lost.
func parseFrame(raw []byte) Event {
	var frame rawFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return newEvent(EventOther, map[string]string{"raw": base64.StdEncoding.EncodeToString(raw)})
	}

	t, ok := methodToEventType[frame.Method]
	if !ok {
		return newEvent(EventOther, map[string]string{"raw": base64.StdEncoding.EncodeToString(raw)})
	}

	var fields map[string]interface{}
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &fields); err != nil {
			return newEvent(EventOther, map[string]string{"raw": base64.StdEncoding.EncodeToString(raw)})
		}
	}

	return newEvent(t, flattenToStrings(fields))
}

var methodToEventType = map[string]EventType{
	"WebcastChatMessage":           EventChat,
	"WebcastGiftMessage":           EventGift,
	"WebcastLikeMessage":           EventLike,
	"WebcastMemberMessage":         EventMember,
	"WebcastSocialMessage":         EventFollow,
	"WebcastFansclubMessage":       EventFansclub,
	"WebcastEmojiChatMessage":      EventEmojiChat,
	"WebcastRoomUserSeqMessage":    EventRoomUserStats,
	"WebcastRoomStatsMessage":      EventRoomStats,
	"WebcastRoomMessage":           EventRoomInfo,
	"WebcastRoomRankMessage":       EventRoomRank,
	"WebcastControlMessage":        EventRoomControl,
	"WebcastStreamAdaptationMsg":   EventStreamAdaptation,
}

// roomControlStatusClosed is the value WebcastControlMessage.Status
// carries when the room ends the broadcast.
const roomControlStatusClosed = "3"

func isRoomClosed(payload map[string]string) bool {
	return payload["status"] == roomControlStatusClosed
}

func flattenToStrings(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
