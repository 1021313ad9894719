package ports

import (
	"context"
	"time"

	"safespace/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// LinkCallbacks are wired into a peer link at construction time. All of
// them fire from pion's event goroutines.
type LinkCallbacks struct {
	OnLocalCandidate func(candidate webrtc.ICECandidateInit)
	OnRemoteTrack    func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	OnStateChange    func(state webrtc.PeerConnectionState)
}

// PeerLink wraps one negotiated peer connection for a single remote
// participant. At most one link exists per participant id.
type PeerLink interface {
	ParticipantID() domain.UserID
	// HandleOffer applies a remote offer and returns the local answer.
	HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	HandleAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	// Negotiate creates and applies a local offer, starting a fresh
	// offer/answer round (initial connect or track replacement).
	Negotiate() (webrtc.SessionDescription, error)
	ReplaceVideoTrack(track webrtc.TrackLocal) error
	Diagnostics() domain.LinkDiagnostics
	Close() error
}

// PeerLinkFactory builds links; injected so the coordinator can be tested
// without opening real peer connections.
type PeerLinkFactory func(participantID domain.UserID, stream LocalStream, callbacks LinkCallbacks) (PeerLink, error)

// CallService drives the call state machine. It is the only component the
// UI layer talks to.
type CallService interface {
	StartCall(ctx context.Context, participants []domain.Participant, roomID domain.RoomID) error
	AcceptCall(ctx context.Context) error
	RejectCall() error
	EndCall() error
	ToggleMute() bool
	ToggleVideo() bool
	StartScreenShare(ctx context.Context) error
	StopScreenShare() error
	RemovePeer(id domain.UserID) error
	State() domain.CallSnapshot
	LocalStream() LocalStream
}

// PeerLinkSource exposes live links to read-only consumers (diagnostics).
type PeerLinkSource interface {
	Links() map[domain.UserID]PeerLink
	RoomID() domain.RoomID
}

// DiagnosticsService produces connection-health snapshots. Purely advisory,
// never mutates coordinator state.
type DiagnosticsService interface {
	Report() domain.DiagnosticsReport
}

// MetricsRecorder decouples core components from the monitoring backend.
type MetricsRecorder interface {
	RecordConnectionOpened()
	RecordConnectionClosed()
	RecordEviction()
	RecordReconnectAttempt()
	RecordMessage(direction string)
	RecordCallStarted()
	RecordCallEnded(duration time.Duration)
	RecordPeerLinkOpened()
	RecordPeerLinkClosed()
}
