package domain

import "time"

// CandidateType classifies an ICE candidate by how it was discovered.
type CandidateType string

const (
	CandidateTypeHost      CandidateType = "host"
	CandidateTypeReflexive CandidateType = "reflexive"
	CandidateTypeRelay     CandidateType = "relay"
	CandidateTypeUnknown   CandidateType = "unknown"
)

// ConnectivityKind is the inferred path between two peers.
type ConnectivityKind string

const (
	ConnectivityDirect  ConnectivityKind = "direct"
	ConnectivityRelayed ConnectivityKind = "relayed"
	ConnectivityUnknown ConnectivityKind = "unknown"
)

// LinkDiagnostics samples the sub-states of one peer link. Derived on
// demand, never persisted.
type LinkDiagnostics struct {
	ParticipantID       UserID           `json:"participantId"`
	ConnectionState     string           `json:"connectionState"`
	ICEConnectionState  string           `json:"iceConnectionState"`
	ICEGatheringState   string           `json:"iceGatheringState"`
	SignalingState      string           `json:"signalingState"`
	LocalCandidates     int              `json:"localCandidates"`
	RemoteCandidates    int              `json:"remoteCandidates"`
	LocalCandidateType  CandidateType    `json:"localCandidateType"`
	RemoteCandidateType CandidateType    `json:"remoteCandidateType"`
	Connectivity        ConnectivityKind `json:"connectivity"`
	ICEServers          []string         `json:"iceServers"`
	PacketLoss          float64          `json:"packetLoss"`
	Jitter              time.Duration    `json:"jitter"`
	Hints               []string         `json:"hints,omitempty"`
}

// DiagnosticsReport is the aggregate snapshot over every live peer link.
type DiagnosticsReport struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	RoomID      RoomID            `json:"roomId"`
	Links       []LinkDiagnostics `json:"links"`
}
