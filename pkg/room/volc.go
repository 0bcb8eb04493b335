package room

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// VolcResolver resolves a Douyin-style live room reference (a numeric
// room ID or a full live URL) into a playable FLV/HLS media URL plus the
// cookies and headers the chat relay needs to join the same room,
// following the GET-room-info-then-extract-stream-url shape common to
// browser-facing live platforms. The endpoint is operator-configurable;
// the response must carry the fixed JSON field names of
// volcRoomInfoResponse.
type VolcResolver struct {
	infoEndpoint string
	userAgent    string
	client       *http.Client
}

func NewVolcResolver(infoEndpoint string) *VolcResolver {
	return &VolcResolver{
		infoEndpoint: infoEndpoint,
		userAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		client:       http.DefaultClient,
	}
}

type volcRoomInfoResponse struct {
	RoomID     string            `json:"room_id"`
	MediaURL   string            `json:"media_url"`
	AnchorName string            `json:"anchor_name"`
	ChatToken  string            `json:"chat_token"`
	Cookie     string            `json:"cookie"`
	Headers    map[string]string `json:"headers"`
}

func (r *VolcResolver) Resolve(ctx context.Context, roomRef string) (pipeline.RoomInfo, error) {
	roomID := extractRoomID(roomRef)
	if roomID == "" {
		return pipeline.RoomInfo{}, fmt.Errorf("room: could not extract room id from %q", roomRef)
	}

	u, err := url.Parse(r.infoEndpoint)
	if err != nil {
		return pipeline.RoomInfo{}, fmt.Errorf("room: invalid info endpoint: %w", err)
	}
	q := u.Query()
	q.Set("room_id", roomID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return pipeline.RoomInfo{}, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return pipeline.RoomInfo{}, fmt.Errorf("room: resolve request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pipeline.RoomInfo{}, fmt.Errorf("room: resolve status %d", resp.StatusCode)
	}

	var out volcRoomInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pipeline.RoomInfo{}, fmt.Errorf("room: decode response: %w", err)
	}
	if out.MediaURL == "" {
		return pipeline.RoomInfo{}, fmt.Errorf("room: no media url for room %q", roomID)
	}

	headers := map[string]string{"User-Agent": r.userAgent}
	for k, v := range out.Headers {
		headers[k] = v
	}
	if out.Cookie != "" {
		headers["Cookie"] = out.Cookie
	}

	return pipeline.RoomInfo{
		RoomID:      out.RoomID,
		MediaURL:    out.MediaURL,
		AnchorName:  out.AnchorName,
		ChatHeaders: headers,
		ChatToken:   out.ChatToken,
	}, nil
}

// extractRoomID accepts either a bare numeric/alphanumeric room ID or a
// full live URL and returns just the trailing path segment.
func extractRoomID(roomRef string) string {
	roomRef = strings.TrimSpace(roomRef)
	if !strings.Contains(roomRef, "/") {
		return roomRef
	}
	roomRef = strings.TrimRight(roomRef, "/")
	parts := strings.Split(roomRef, "/")
	return parts[len(parts)-1]
}
