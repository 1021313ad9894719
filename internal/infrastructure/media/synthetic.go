// Package media provides local capture streams. Real device capture and
// encoding belong to the platform media stack; this provider generates
// synthetic RTP so calls can be driven end to end without hardware.
package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"safespace/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 33 * time.Millisecond
	audioClockRate     = 48000
	videoClockRate     = 90000
)

// SyntheticProvider implements ports.MediaProvider with generated tracks.
type SyntheticProvider struct {
	logger *zap.SugaredLogger
}

func NewSyntheticProvider(logger *zap.Logger) *SyntheticProvider {
	return &SyntheticProvider{logger: logger.Sugar()}
}

func (p *SyntheticProvider) GetUserMedia(ctx context.Context, audio, video bool) (ports.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !audio && !video {
		return nil, fmt.Errorf("user media: no tracks requested")
	}

	stream := newStream("camera")
	if audio {
		track, err := newSyntheticTrack(webrtc.RTPCodecTypeAudio, stream.id)
		if err != nil {
			stream.Close()
			return nil, err
		}
		stream.add(track)
	}
	if video {
		track, err := newSyntheticTrack(webrtc.RTPCodecTypeVideo, stream.id)
		if err != nil {
			stream.Close()
			return nil, err
		}
		stream.add(track)
	}

	p.logger.Infow("local media acquired", "stream_id", stream.id, "audio", audio, "video", video)
	return stream, nil
}

func (p *SyntheticProvider) GetDisplayMedia(ctx context.Context) (ports.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := newStream("display")
	track, err := newSyntheticTrack(webrtc.RTPCodecTypeVideo, stream.id)
	if err != nil {
		stream.Close()
		return nil, err
	}
	stream.add(track)

	p.logger.Infow("display media acquired", "stream_id", stream.id)
	return stream, nil
}

type stream struct {
	id     string
	mu     sync.Mutex
	tracks []ports.LocalTrack
}

func newStream(label string) *stream {
	return &stream{id: fmt.Sprintf("%s-%s", label, uuid.NewString())}
}

func (s *stream) add(t ports.LocalTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *stream) ID() string { return s.id }

func (s *stream) Tracks() []ports.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.LocalTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *stream) AudioTracks() []ports.LocalTrack { return s.kind(webrtc.RTPCodecTypeAudio) }
func (s *stream) VideoTracks() []ports.LocalTrack { return s.kind(webrtc.RTPCodecTypeVideo) }

func (s *stream) kind(k webrtc.RTPCodecType) []ports.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.LocalTrack
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

func (s *stream) Close() {
	s.mu.Lock()
	tracks := s.tracks
	s.tracks = nil
	s.mu.Unlock()
	for _, t := range tracks {
		t.Close()
	}
}

// syntheticTrack pushes silence/black RTP frames into a static RTP track.
// The enabled flag mirrors the mute/video toggles: a disabled track keeps
// its slot but stops producing packets.
type syntheticTrack struct {
	id   string
	kind webrtc.RTPCodecType
	rtpT *webrtc.TrackLocalStaticRTP

	mu      sync.Mutex
	enabled bool
	closed  bool

	stop      chan struct{}
	closeOnce sync.Once
}

func newSyntheticTrack(kind webrtc.RTPCodecType, streamID string) (*syntheticTrack, error) {
	var capability webrtc.RTPCodecCapability
	var id string
	if kind == webrtc.RTPCodecTypeAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioClockRate, Channels: 2}
		id = "audio-" + uuid.NewString()
	} else {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClockRate}
		id = "video-" + uuid.NewString()
	}

	rtpTrack, err := webrtc.NewTrackLocalStaticRTP(capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	t := &syntheticTrack{
		id:      id,
		kind:    kind,
		rtpT:    rtpTrack,
		enabled: true,
		stop:    make(chan struct{}),
	}
	go t.produce()
	return t, nil
}

func (t *syntheticTrack) ID() string                  { return t.id }
func (t *syntheticTrack) Kind() webrtc.RTPCodecType   { return t.kind }
func (t *syntheticTrack) RTPTrack() webrtc.TrackLocal { return t.rtpT }

func (t *syntheticTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *syntheticTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *syntheticTrack) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.stop)
	})
	return nil
}

func (t *syntheticTrack) produce() {
	interval := videoFrameInterval
	clockStep := uint32(videoClockRate / 30)
	payload := make([]byte, 128)
	if t.kind == webrtc.RTPCodecTypeAudio {
		interval = audioFrameInterval
		clockStep = audioClockRate / 50
		payload = make([]byte, 32)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version: 2,
			SSRC:    uuid.New().ID(),
		},
		Payload: payload,
	}

	for {
		select {
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			packet.Header.SequenceNumber++
			packet.Header.Timestamp += clockStep
			// WriteRTP is a no-op until the track is bound to a peer
			// connection; errors here are not actionable.
			_ = t.rtpT.WriteRTP(packet)
		case <-t.stop:
			return
		}
	}
}
