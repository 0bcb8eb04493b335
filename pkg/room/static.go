// Package room implements pipeline.RoomResolver: turning an opaque room
// reference (a live URL or short room ID) into a playable media URL plus
// the headers and token the chat relay needs to join the same room.
package room

import (
	"context"
	"fmt"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// StaticResolver returns a fixed RoomInfo regardless of the roomRef
// passed in, keyed only by a presence check. Useful for local testing
// and for golden-path exercises where a media URL is supplied directly
// instead of a live room identifier.
type StaticResolver struct {
	Info pipeline.RoomInfo
}

func NewStaticResolver(info pipeline.RoomInfo) *StaticResolver {
	return &StaticResolver{Info: info}
}

func (r *StaticResolver) Resolve(ctx context.Context, roomRef string) (pipeline.RoomInfo, error) {
	if roomRef == "" {
		return pipeline.RoomInfo{}, fmt.Errorf("room: empty roomRef")
	}
	return r.Info, nil
}
