package ports

import (
	"context"
	"time"

	"safespace/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// ConnectionParams describes a channel the registry should open. Callbacks
// are invoked from the connection's read loop; handlers must not block.
type ConnectionParams struct {
	ID  string
	URL string

	OnMessage   func(payload []byte)
	OnClose     func(id string)
	OnError     func(id string, err error)
	OnReconnect func(id string, attempt int)

	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
}

// Conn is one pooled duplex channel handed out by the registry.
type Conn interface {
	ID() string
	Send(data []byte) error
	IsOpen() bool
	Info() domain.ConnectionInfo
}

// ConnectionRegistry owns the bounded pool of named persistent channels.
type ConnectionRegistry interface {
	CreateConnection(params ConnectionParams) (Conn, error)
	CloseConnection(id string, code int, reason string) error
	CloseAllConnections(reason string)
	Stats() domain.RegistryStats
}

// Signaling payloads. SDP and candidate bodies ride the wire exactly as
// pion produces them.

type CallRequest struct {
	From         domain.Participant   `json:"from"`
	Participants []domain.Participant `json:"participants"`
	RoomID       domain.RoomID        `json:"roomId"`
}

type CallAnswer struct {
	From   domain.UserID `json:"from"`
	RoomID domain.RoomID `json:"roomId"`
}

type CallEnd struct {
	From   domain.UserID `json:"from"`
	RoomID domain.RoomID `json:"roomId"`
}

type SDPMessage struct {
	From domain.UserID             `json:"from"`
	To   domain.UserID             `json:"to"`
	SDP  webrtc.SessionDescription `json:"sdp"`
}

type CandidateMessage struct {
	From      domain.UserID           `json:"from"`
	To        domain.UserID           `json:"to"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type RoomJoined struct {
	RoomID domain.RoomID        `json:"roomId"`
	Users  []domain.Participant `json:"users"`
}

type UserJoined struct {
	User domain.Participant `json:"user"`
}

type UserLeft struct {
	UserID domain.UserID `json:"userId"`
}

// SignalingConsumer receives inbound room traffic. The coordinator is the
// only implementation outside tests.
type SignalingConsumer interface {
	OnRoomJoined(RoomJoined)
	OnUserJoined(UserJoined)
	OnUserLeft(UserLeft)
	OnCallRequest(CallRequest)
	OnCallAccepted(CallAnswer)
	OnCallRejected(CallAnswer)
	OnCallEnd(CallEnd)
	OnOffer(SDPMessage)
	OnAnswer(SDPMessage)
	OnICECandidate(CandidateMessage)
}

// SignalingChannel binds one registry connection to a room and presents a
// typed message API. Send methods never fail: a send on a non-open channel
// is dropped and logged.
type SignalingChannel interface {
	Connect(ctx context.Context, roomID domain.RoomID, userID domain.UserID, authToken string) error
	Bind(consumer SignalingConsumer)
	SendCallRequest(CallRequest)
	SendCallAccepted(CallAnswer)
	SendCallRejected(CallAnswer)
	SendCallEnd(CallEnd)
	SendOffer(SDPMessage)
	SendAnswer(SDPMessage)
	SendICECandidate(CandidateMessage)
	IsOpen() bool
	Close() error
}
