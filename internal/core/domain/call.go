package domain

import "time"

type UserID string
type RoomID string

// CallState is the coordinator's lifecycle state. A coordinator holds at
// most one call at a time.
type CallState string

const (
	CallStateIdle     CallState = "idle"
	CallStateOutgoing CallState = "outgoing"
	CallStateIncoming CallState = "incoming"
	CallStateActive   CallState = "active"
)

// Participant describes one call member. The remote media stream itself is
// owned by the media layer; the participant only carries metadata.
type Participant struct {
	ID             UserID `json:"id"`
	Name           string `json:"name"`
	Avatar         string `json:"avatar,omitempty"`
	IsTherapist    bool   `json:"isTherapist"`
	IsMuted        bool   `json:"isMuted"`
	IsVideoEnabled bool   `json:"isVideoEnabled"`
}

// IncomingCall holds the caller metadata stored while a call request is
// awaiting accept/reject.
type IncomingCall struct {
	From       Participant
	RoomID     RoomID
	ReceivedAt time.Time
}

// CallSnapshot is an immutable view of the coordinator state, safe to hand
// to the UI layer.
type CallSnapshot struct {
	State           CallState     `json:"state"`
	RoomID          RoomID        `json:"roomId"`
	IsMuted         bool          `json:"isMuted"`
	IsVideoEnabled  bool          `json:"isVideoEnabled"`
	IsScreenSharing bool          `json:"isScreenSharing"`
	IsRecording     bool          `json:"isRecording"`
	Duration        time.Duration `json:"duration"`
	Participants    []Participant `json:"participants"`
}
