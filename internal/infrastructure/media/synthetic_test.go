package media

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProvider() *SyntheticProvider {
	return NewSyntheticProvider(zap.NewNop())
}

func TestGetUserMedia_AudioAndVideo(t *testing.T) {
	stream, err := newProvider().GetUserMedia(context.Background(), true, true)
	require.NoError(t, err)
	defer stream.Close()

	assert.Len(t, stream.Tracks(), 2)
	assert.Len(t, stream.AudioTracks(), 1)
	assert.Len(t, stream.VideoTracks(), 1)
	assert.Equal(t, webrtc.RTPCodecTypeAudio, stream.AudioTracks()[0].Kind())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, stream.VideoTracks()[0].Kind())
}

func TestGetUserMedia_AudioOnly(t *testing.T) {
	stream, err := newProvider().GetUserMedia(context.Background(), true, false)
	require.NoError(t, err)
	defer stream.Close()

	assert.Len(t, stream.Tracks(), 1)
	assert.Empty(t, stream.VideoTracks())
}

func TestGetUserMedia_NothingRequested(t *testing.T) {
	_, err := newProvider().GetUserMedia(context.Background(), false, false)
	assert.Error(t, err)
}

func TestGetUserMedia_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newProvider().GetUserMedia(ctx, true, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetDisplayMedia(t *testing.T) {
	stream, err := newProvider().GetDisplayMedia(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.Len(t, stream.Tracks(), 1)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, stream.Tracks()[0].Kind())
}

func TestTrack_EnableToggle(t *testing.T) {
	stream, err := newProvider().GetUserMedia(context.Background(), true, false)
	require.NoError(t, err)
	defer stream.Close()

	track := stream.AudioTracks()[0]
	assert.True(t, track.Enabled())

	track.SetEnabled(false)
	assert.False(t, track.Enabled())

	track.SetEnabled(true)
	assert.True(t, track.Enabled())
}

func TestTrack_RTPTrackBindable(t *testing.T) {
	stream, err := newProvider().GetUserMedia(context.Background(), false, true)
	require.NoError(t, err)
	defer stream.Close()

	rtpTrack := stream.VideoTracks()[0].RTPTrack()
	require.NotNil(t, rtpTrack)
	assert.Equal(t, stream.ID(), rtpTrack.StreamID())
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	stream, err := newProvider().GetUserMedia(context.Background(), true, true)
	require.NoError(t, err)

	stream.Close()
	stream.Close()
	assert.Empty(t, stream.Tracks())
}
