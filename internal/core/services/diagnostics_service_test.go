package services

import (
	"strings"
	"testing"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubLink returns a fixed diagnostics sample.
type stubLink struct {
	fakeLink
	diag domain.LinkDiagnostics
}

func (s *stubLink) Diagnostics() domain.LinkDiagnostics { return s.diag }

type stubSource struct {
	roomID domain.RoomID
	links  map[domain.UserID]ports.PeerLink
}

func (s *stubSource) Links() map[domain.UserID]ports.PeerLink { return s.links }
func (s *stubSource) RoomID() domain.RoomID                   { return s.roomID }

func reportFor(diags ...domain.LinkDiagnostics) domain.DiagnosticsReport {
	links := make(map[domain.UserID]ports.PeerLink, len(diags))
	for _, d := range diags {
		links[d.ParticipantID] = &stubLink{diag: d}
	}
	agg := NewDiagnosticsAggregator(&stubSource{roomID: "room-7", links: links}, zap.NewNop())
	return agg.Report()
}

func TestReport_EmptyCall(t *testing.T) {
	report := reportFor()
	assert.Equal(t, domain.RoomID("room-7"), report.RoomID)
	assert.Empty(t, report.Links)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestReport_OrderedByParticipant(t *testing.T) {
	report := reportFor(
		domain.LinkDiagnostics{ParticipantID: "zoe"},
		domain.LinkDiagnostics{ParticipantID: "adam"},
		domain.LinkDiagnostics{ParticipantID: "mona"},
	)

	require.Len(t, report.Links, 3)
	assert.Equal(t, domain.UserID("adam"), report.Links[0].ParticipantID)
	assert.Equal(t, domain.UserID("mona"), report.Links[1].ParticipantID)
	assert.Equal(t, domain.UserID("zoe"), report.Links[2].ParticipantID)
}

func TestInferConnectivity(t *testing.T) {
	tests := []struct {
		name string
		diag domain.LinkDiagnostics
		want domain.ConnectivityKind
	}{
		{
			name: "no candidates yet",
			diag: domain.LinkDiagnostics{},
			want: domain.ConnectivityUnknown,
		},
		{
			name: "host both sides",
			diag: domain.LinkDiagnostics{
				LocalCandidates: 2, RemoteCandidates: 2,
				LocalCandidateType:  domain.CandidateTypeHost,
				RemoteCandidateType: domain.CandidateTypeHost,
			},
			want: domain.ConnectivityDirect,
		},
		{
			name: "reflexive counts as direct",
			diag: domain.LinkDiagnostics{
				LocalCandidates: 1, RemoteCandidates: 1,
				LocalCandidateType:  domain.CandidateTypeReflexive,
				RemoteCandidateType: domain.CandidateTypeHost,
			},
			want: domain.ConnectivityDirect,
		},
		{
			name: "local relay",
			diag: domain.LinkDiagnostics{
				LocalCandidates: 1, RemoteCandidates: 1,
				LocalCandidateType:  domain.CandidateTypeRelay,
				RemoteCandidateType: domain.CandidateTypeHost,
			},
			want: domain.ConnectivityRelayed,
		},
		{
			name: "remote relay",
			diag: domain.LinkDiagnostics{
				LocalCandidates: 1, RemoteCandidates: 1,
				LocalCandidateType:  domain.CandidateTypeHost,
				RemoteCandidateType: domain.CandidateTypeRelay,
			},
			want: domain.ConnectivityRelayed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferConnectivity(tt.diag))
		})
	}
}

func TestReport_HintsForFailedICE(t *testing.T) {
	report := reportFor(domain.LinkDiagnostics{
		ParticipantID:       "bob",
		ICEConnectionState:  "failed",
		LocalCandidates:     2,
		RemoteCandidates:    2,
		LocalCandidateType:  domain.CandidateTypeHost,
		RemoteCandidateType: domain.CandidateTypeHost,
	})

	require.Len(t, report.Links, 1)
	hints := report.Links[0].Hints
	require.NotEmpty(t, hints)
	assert.Contains(t, hints[0], "ICE negotiation failed")
	assert.Contains(t, hints[1], "TURN server may be required")
}

func TestReport_HintsForMissingCandidates(t *testing.T) {
	report := reportFor(domain.LinkDiagnostics{
		ParticipantID:      "bob",
		ICEConnectionState: "checking",
	})

	hints := report.Links[0].Hints
	assert.Contains(t, hints[0], "no local candidates")
	assert.Contains(t, hints[1], "no remote candidates")
}

func TestReport_RelayedPathGetsLatencyHint(t *testing.T) {
	report := reportFor(domain.LinkDiagnostics{
		ParticipantID:       "bob",
		ICEConnectionState:  "connected",
		LocalCandidates:     3,
		RemoteCandidates:    3,
		LocalCandidateType:  domain.CandidateTypeRelay,
		RemoteCandidateType: domain.CandidateTypeHost,
	})

	link := report.Links[0]
	assert.Equal(t, domain.ConnectivityRelayed, link.Connectivity)

	found := false
	for _, h := range link.Hints {
		if strings.Contains(h, "relayed through TURN") {
			found = true
		}
	}
	assert.True(t, found, "expected TURN latency hint, got %v", link.Hints)
}

func TestReport_HealthyLinkNoHints(t *testing.T) {
	report := reportFor(domain.LinkDiagnostics{
		ParticipantID:       "bob",
		ConnectionState:     "connected",
		ICEConnectionState:  "connected",
		LocalCandidates:     3,
		RemoteCandidates:    3,
		LocalCandidateType:  domain.CandidateTypeHost,
		RemoteCandidateType: domain.CandidateTypeReflexive,
	})

	assert.Empty(t, report.Links[0].Hints)
	assert.Equal(t, domain.ConnectivityDirect, report.Links[0].Connectivity)
}
