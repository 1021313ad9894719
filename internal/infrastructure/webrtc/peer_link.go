// Package webrtc wraps pion peer connections as per-participant peer
// links: one negotiated connection, its local/remote media and its
// ICE/signaling sub-states.
package webrtc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// Link is the concrete ports.PeerLink. One per remote participant.
type Link struct {
	participantID domain.UserID
	pc            *webrtc.PeerConnection
	callbacks     ports.LinkCallbacks
	iceServers    []string

	mu               sync.Mutex
	audioSender      *webrtc.RTPSender
	videoSender      *webrtc.RTPSender
	localCandidates  map[domain.CandidateType]int
	remoteCandidates map[domain.CandidateType]int
	packetLoss       float64
	jitter           time.Duration
	closed           bool

	logger *zap.SugaredLogger
}

// NewFactory returns a ports.PeerLinkFactory backed by real pion peer
// connections.
func NewFactory(cfg Config, logger *zap.Logger) ports.PeerLinkFactory {
	sugar := logger.Sugar()
	return func(participantID domain.UserID, stream ports.LocalStream, callbacks ports.LinkCallbacks) (ports.PeerLink, error) {
		return NewLink(cfg, participantID, stream, callbacks, sugar)
	}
}

func NewLink(cfg Config, participantID domain.UserID, stream ports.LocalStream, callbacks ports.LinkCallbacks, logger *zap.SugaredLogger) (*Link, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	l := &Link{
		participantID:    participantID,
		pc:               pc,
		callbacks:        callbacks,
		iceServers:       flattenICEServers(cfg.ICEServers),
		localCandidates:  make(map[domain.CandidateType]int),
		remoteCandidates: make(map[domain.CandidateType]int),
		logger:           logger,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		l.recordLocalCandidate(c)
		if callbacks.OnLocalCandidate != nil {
			callbacks.OnLocalCandidate(c.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		l.logger.Infow("remote track received",
			"participant_id", participantID,
			"track_id", track.ID(),
			"codec", track.Codec().MimeType,
		)
		go l.sampleRTCP(receiver)
		if callbacks.OnRemoteTrack != nil {
			callbacks.OnRemoteTrack(track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l.logger.Infow("peer connection state changed",
			"participant_id", participantID,
			"connection_state", state,
		)
		if callbacks.OnStateChange != nil {
			callbacks.OnStateChange(state)
		}
	})

	if stream != nil {
		if err := l.addLocalTracks(stream); err != nil {
			pc.Close()
			return nil, err
		}
	}

	return l, nil
}

func newPeerConnection(cfg Config) (*webrtc.PeerConnection, error) {
	pcConfig := webrtc.Configuration{
		ICEServers:   cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(pcConfig)
}

func (l *Link) addLocalTracks(stream ports.LocalStream) error {
	for _, track := range stream.Tracks() {
		sender, err := l.pc.AddTrack(track.RTPTrack())
		if err != nil {
			return fmt.Errorf("add local track %s: %w", track.ID(), err)
		}
		l.mu.Lock()
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			l.audioSender = sender
		} else {
			l.videoSender = sender
		}
		l.mu.Unlock()
	}
	return nil
}

func (l *Link) ParticipantID() domain.UserID { return l.participantID }

// HandleOffer applies a remote offer and produces the local answer. Used
// both for the initial inbound negotiation and for renegotiation rounds.
func (l *Link) HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return answer, nil
}

func (l *Link) HandleAnswer(answer webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (l *Link) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	l.mu.Lock()
	l.remoteCandidates[classifyCandidate(candidate.Candidate)]++
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// Negotiate starts a fresh offer/answer round from this side.
func (l *Link) Negotiate() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return offer, nil
}

// ReplaceVideoTrack swaps the outgoing video track. The caller is expected
// to follow up with Negotiate so the remote side learns about the change.
func (l *Link) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	l.mu.Lock()
	sender := l.videoSender
	l.mu.Unlock()

	if sender == nil {
		var err error
		sender, err = l.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
		l.mu.Lock()
		l.videoSender = sender
		l.mu.Unlock()
		return nil
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace video track: %w", err)
	}
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.pc.Close()
}

// Diagnostics samples the link's sub-states. Read-only; safe to call from
// any goroutine.
func (l *Link) Diagnostics() domain.LinkDiagnostics {
	l.mu.Lock()
	localCount, localType := summarizeCandidates(l.localCandidates)
	remoteCount, remoteType := summarizeCandidates(l.remoteCandidates)
	packetLoss := l.packetLoss
	jitter := l.jitter
	l.mu.Unlock()

	return domain.LinkDiagnostics{
		ParticipantID:       l.participantID,
		ConnectionState:     l.pc.ConnectionState().String(),
		ICEConnectionState:  l.pc.ICEConnectionState().String(),
		ICEGatheringState:   l.pc.ICEGatheringState().String(),
		SignalingState:      l.pc.SignalingState().String(),
		LocalCandidates:     localCount,
		RemoteCandidates:    remoteCount,
		LocalCandidateType:  localType,
		RemoteCandidateType: remoteType,
		Connectivity:        domain.ConnectivityUnknown,
		ICEServers:          l.iceServers,
		PacketLoss:          packetLoss,
		Jitter:              jitter,
	}
}

func (l *Link) recordLocalCandidate(c *webrtc.ICECandidate) {
	var t domain.CandidateType
	switch c.Typ {
	case webrtc.ICECandidateTypeHost:
		t = domain.CandidateTypeHost
	case webrtc.ICECandidateTypeSrflx, webrtc.ICECandidateTypePrflx:
		t = domain.CandidateTypeReflexive
	case webrtc.ICECandidateTypeRelay:
		t = domain.CandidateTypeRelay
	default:
		t = domain.CandidateTypeUnknown
	}
	l.mu.Lock()
	l.localCandidates[t]++
	l.mu.Unlock()
}

// sampleRTCP reads receiver reports off one RTP receiver and keeps the
// latest loss/jitter figures for diagnostics.
func (l *Link) sampleRTCP(receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}

		var totalLoss float64
		var totalJitter uint32
		count := 0
		for _, packet := range packets {
			rr, ok := packet.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, report := range rr.Reports {
				totalLoss += float64(report.FractionLost) / 255.0
				totalJitter += report.Jitter
				count++
			}
		}
		if count == 0 {
			continue
		}

		l.mu.Lock()
		l.packetLoss = totalLoss / float64(count)
		l.jitter = time.Duration(totalJitter/uint32(count)) * time.Millisecond
		l.mu.Unlock()
	}
}

// classifyCandidate parses the "typ" token of a raw candidate line.
func classifyCandidate(raw string) domain.CandidateType {
	fields := strings.Fields(raw)
	for i, f := range fields {
		if f == "typ" && i+1 < len(fields) {
			switch fields[i+1] {
			case "host":
				return domain.CandidateTypeHost
			case "srflx", "prflx":
				return domain.CandidateTypeReflexive
			case "relay":
				return domain.CandidateTypeRelay
			}
			return domain.CandidateTypeUnknown
		}
	}
	return domain.CandidateTypeUnknown
}

// summarizeCandidates collapses per-type counts into a total and the type
// that dominates path selection (relay wins over reflexive over host).
func summarizeCandidates(counts map[domain.CandidateType]int) (int, domain.CandidateType) {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return 0, domain.CandidateTypeUnknown
	}
	for _, t := range []domain.CandidateType{domain.CandidateTypeRelay, domain.CandidateTypeReflexive, domain.CandidateTypeHost} {
		if counts[t] > 0 {
			return total, t
		}
	}
	return total, domain.CandidateTypeUnknown
}

func flattenICEServers(servers []webrtc.ICEServer) []string {
	var urls []string
	for _, s := range servers {
		urls = append(urls, s.URLs...)
	}
	return urls
}
