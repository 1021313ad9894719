package services

import (
	"sort"
	"time"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"

	"go.uber.org/zap"
)

// DiagnosticsAggregator samples live peer links and produces a read-only
// health report. It never mutates call state; a failed sample for one link
// must not disturb the call it describes.
type DiagnosticsAggregator struct {
	source ports.PeerLinkSource
	logger *zap.SugaredLogger
}

func NewDiagnosticsAggregator(source ports.PeerLinkSource, logger *zap.Logger) *DiagnosticsAggregator {
	return &DiagnosticsAggregator{
		source: source,
		logger: logger.Sugar(),
	}
}

// Report samples every live link. Links are ordered by participant id so
// consecutive reports line up.
func (d *DiagnosticsAggregator) Report() domain.DiagnosticsReport {
	links := d.source.Links()

	report := domain.DiagnosticsReport{
		GeneratedAt: time.Now(),
		RoomID:      d.source.RoomID(),
		Links:       make([]domain.LinkDiagnostics, 0, len(links)),
	}

	for _, link := range links {
		diag := link.Diagnostics()
		diag.Connectivity = inferConnectivity(diag)
		diag.Hints = troubleshootingHints(diag)
		report.Links = append(report.Links, diag)
	}
	sort.Slice(report.Links, func(i, j int) bool {
		return report.Links[i].ParticipantID < report.Links[j].ParticipantID
	})

	return report
}

// inferConnectivity decides whether media flows directly or through a TURN
// relay. A relay candidate on either side means the path is relayed.
func inferConnectivity(diag domain.LinkDiagnostics) domain.ConnectivityKind {
	if diag.LocalCandidates == 0 && diag.RemoteCandidates == 0 {
		return domain.ConnectivityUnknown
	}
	if diag.LocalCandidateType == domain.CandidateTypeRelay || diag.RemoteCandidateType == domain.CandidateTypeRelay {
		return domain.ConnectivityRelayed
	}
	if diag.LocalCandidateType == domain.CandidateTypeUnknown && diag.RemoteCandidateType == domain.CandidateTypeUnknown {
		return domain.ConnectivityUnknown
	}
	return domain.ConnectivityDirect
}

// troubleshootingHints maps observed sub-states to operator-facing advice.
// Ordered from most to least specific.
func troubleshootingHints(diag domain.LinkDiagnostics) []string {
	var hints []string

	switch diag.ICEConnectionState {
	case "failed":
		hints = append(hints, "ICE negotiation failed: check that the configured STUN/TURN servers are reachable")
		if diag.LocalCandidateType != domain.CandidateTypeRelay && diag.RemoteCandidateType != domain.CandidateTypeRelay {
			hints = append(hints, "no relay candidates gathered: a TURN server may be required behind this NAT")
		}
	case "disconnected":
		hints = append(hints, "ICE temporarily disconnected: the link may recover on its own, otherwise expect a reconnect")
	}

	if diag.ConnectionState == "failed" {
		hints = append(hints, "peer connection failed: renegotiation or a new call is required")
	}

	if diag.LocalCandidates == 0 {
		hints = append(hints, "no local candidates gathered: check network interfaces and ICE server configuration")
	}
	if diag.RemoteCandidates == 0 {
		hints = append(hints, "no remote candidates received: the remote side may not be sending, check signaling")
	}

	if diag.Connectivity == domain.ConnectivityRelayed {
		hints = append(hints, "media is relayed through TURN: expect higher latency than a direct path")
	}
	if diag.PacketLoss > 0.05 {
		hints = append(hints, "packet loss above 5%: audio and video quality will degrade")
	}

	return hints
}
