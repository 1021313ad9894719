package ports

import (
	"context"

	"github.com/pion/webrtc/v3"
)

// LocalTrack is one capture track. Enabled mirrors the mute/video toggles;
// a disabled track keeps its slot in the peer connection but stops producing.
type LocalTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(enabled bool)
	RTPTrack() webrtc.TrackLocal
	Close() error
}

// LocalStream groups the tracks of one capture session (camera+mic, or a
// display capture).
type LocalStream interface {
	ID() string
	AudioTracks() []LocalTrack
	VideoTracks() []LocalTrack
	Tracks() []LocalTrack
	Close()
}

// MediaProvider acquires capture streams. Both operations are permission
// gated and may be denied or delayed arbitrarily; callers must treat
// failure as a normal outcome.
type MediaProvider interface {
	GetUserMedia(ctx context.Context, audio, video bool) (LocalStream, error)
	GetDisplayMedia(ctx context.Context) (LocalStream, error)
}
