// Package services holds the call coordinator and its read-only
// companions. The coordinator is constructed per room, never shared.
package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"
	"safespace/pkg/events"
	"safespace/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// RemoteTrack is published on the RemoteStream topic whenever a peer link
// delivers inbound media.
type RemoteTrack struct {
	ParticipantID domain.UserID
	Track         *webrtc.TrackRemote
	Receiver      *webrtc.RTPReceiver
}

// CallEvents are the coordinator's typed pub/sub topics. Subscribers run
// synchronously on the publishing goroutine and must not block.
type CallEvents struct {
	CallIncoming       *events.Topic[domain.IncomingCall]
	CallStarted        *events.Topic[domain.CallSnapshot]
	CallRejected       *events.Topic[domain.CallSnapshot]
	CallEnded          *events.Topic[domain.CallSnapshot]
	MuteToggled        *events.Topic[bool]
	VideoToggled       *events.Topic[bool]
	ScreenShareStarted *events.Topic[domain.CallSnapshot]
	ScreenShareStopped *events.Topic[domain.CallSnapshot]
	RemoteStream       *events.Topic[RemoteTrack]
}

func newCallEvents() *CallEvents {
	return &CallEvents{
		CallIncoming:       events.NewTopic[domain.IncomingCall](),
		CallStarted:        events.NewTopic[domain.CallSnapshot](),
		CallRejected:       events.NewTopic[domain.CallSnapshot](),
		CallEnded:          events.NewTopic[domain.CallSnapshot](),
		MuteToggled:        events.NewTopic[bool](),
		VideoToggled:       events.NewTopic[bool](),
		ScreenShareStarted: events.NewTopic[domain.CallSnapshot](),
		ScreenShareStopped: events.NewTopic[domain.CallSnapshot](),
		RemoteStream:       events.NewTopic[RemoteTrack](),
	}
}

// CallCoordinator implements ports.CallService, ports.SignalingConsumer and
// ports.PeerLinkSource. One instance per room; all state behind one mutex.
type CallCoordinator struct {
	self    domain.Participant
	channel ports.SignalingChannel
	media   ports.MediaProvider
	newLink ports.PeerLinkFactory

	mu           sync.Mutex
	state        domain.CallState
	roomID       domain.RoomID
	participants map[domain.UserID]domain.Participant
	links        map[domain.UserID]ports.PeerLink
	incoming     *domain.IncomingCall
	localStream  ports.LocalStream
	screenStream ports.LocalStream
	muted        bool
	videoEnabled bool
	screenShare  bool
	recording    bool
	startedAt    time.Time
	elapsed      time.Duration
	timerStop    chan struct{}

	events  *CallEvents
	logger  *zap.SugaredLogger
	metrics ports.MetricsRecorder
}

func NewCallCoordinator(
	self domain.Participant,
	channel ports.SignalingChannel,
	media ports.MediaProvider,
	newLink ports.PeerLinkFactory,
	logger *zap.Logger,
	metrics ports.MetricsRecorder,
) *CallCoordinator {
	c := &CallCoordinator{
		self:         self,
		channel:      channel,
		media:        media,
		newLink:      newLink,
		state:        domain.CallStateIdle,
		participants: make(map[domain.UserID]domain.Participant),
		links:        make(map[domain.UserID]ports.PeerLink),
		events:       newCallEvents(),
		logger:       logger.Sugar(),
		metrics:      metrics,
	}
	channel.Bind(c)
	return c
}

// Events exposes the coordinator's pub/sub topics.
func (c *CallCoordinator) Events() *CallEvents { return c.events }

// StartCall acquires local media, moves to the outgoing state and sends the
// call request. A media failure leaves the coordinator untouched.
func (c *CallCoordinator) StartCall(ctx context.Context, participants []domain.Participant, roomID domain.RoomID) error {
	ctx, span := tracing.TraceCallOperation(ctx, "start", string(roomID))
	defer span.End()

	c.mu.Lock()
	if c.state != domain.CallStateIdle {
		c.mu.Unlock()
		return domain.ErrCallInProgress
	}
	c.mu.Unlock()

	stream, err := c.media.GetUserMedia(ctx, true, true)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Errorw("failed to acquire local media", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}

	c.mu.Lock()
	if c.state != domain.CallStateIdle {
		c.mu.Unlock()
		stream.Close()
		return domain.ErrCallInProgress
	}
	c.state = domain.CallStateOutgoing
	c.roomID = roomID
	c.localStream = stream
	c.muted = false
	c.videoEnabled = true
	for _, p := range participants {
		if p.ID == c.self.ID || p.ID == "" {
			continue
		}
		c.participants[p.ID] = p
	}
	c.mu.Unlock()

	c.logger.Infow("outgoing call started", "room_id", roomID, "participants", len(participants))
	c.channel.SendCallRequest(ports.CallRequest{
		From:         c.self,
		Participants: participants,
		RoomID:       roomID,
	})
	return nil
}

// AcceptCall answers the pending incoming call. Media is acquired before any
// state changes so a capture failure keeps the call acceptable.
func (c *CallCoordinator) AcceptCall(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CallStateIncoming || c.incoming == nil {
		c.mu.Unlock()
		return domain.ErrNoIncomingCall
	}
	inc := *c.incoming
	c.mu.Unlock()

	ctx, span := tracing.TraceCallOperation(ctx, "accept", string(inc.RoomID))
	defer span.End()

	stream, err := c.media.GetUserMedia(ctx, true, true)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Errorw("failed to acquire local media", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}

	c.mu.Lock()
	if c.state != domain.CallStateIncoming {
		// Call went away while the user was deciding.
		c.mu.Unlock()
		stream.Close()
		return domain.ErrNoIncomingCall
	}
	c.state = domain.CallStateActive
	c.roomID = inc.RoomID
	c.localStream = stream
	c.muted = false
	c.videoEnabled = true
	c.incoming = nil
	c.participants[inc.From.ID] = inc.From
	c.startTimerLocked()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Infow("call accepted", "room_id", inc.RoomID, "caller", inc.From.ID)
	c.channel.SendCallAccepted(ports.CallAnswer{From: c.self.ID, RoomID: inc.RoomID})
	if c.metrics != nil {
		c.metrics.RecordCallStarted()
	}
	c.events.CallStarted.Publish(snapshot)
	return nil
}

// RejectCall declines the pending incoming call and returns to idle.
func (c *CallCoordinator) RejectCall() error {
	c.mu.Lock()
	if c.state != domain.CallStateIncoming || c.incoming == nil {
		c.mu.Unlock()
		return domain.ErrNoIncomingCall
	}
	inc := *c.incoming
	c.incoming = nil
	c.state = domain.CallStateIdle
	delete(c.participants, inc.From.ID)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Infow("call rejected", "room_id", inc.RoomID, "caller", inc.From.ID)
	c.channel.SendCallRejected(ports.CallAnswer{From: c.self.ID, RoomID: inc.RoomID})
	c.events.CallRejected.Publish(snapshot)
	return nil
}

// EndCall hangs up from this side. Idempotent: ending while idle is a no-op.
func (c *CallCoordinator) EndCall() error {
	c.teardown(true)
	return nil
}

// teardown releases all call resources and returns to idle. sendEnd is false
// when the hangup was initiated remotely, so the end message is not echoed
// back to the peer that sent it.
func (c *CallCoordinator) teardown(sendEnd bool) {
	c.mu.Lock()
	if c.state == domain.CallStateIdle {
		c.mu.Unlock()
		return
	}
	roomID := c.roomID
	duration := c.elapsed
	if c.state == domain.CallStateActive && !c.startedAt.IsZero() {
		duration = time.Since(c.startedAt).Truncate(time.Second)
	}
	links := c.links
	localStream := c.localStream
	screenStream := c.screenStream

	c.links = make(map[domain.UserID]ports.PeerLink)
	c.participants = make(map[domain.UserID]domain.Participant)
	c.localStream = nil
	c.screenStream = nil
	c.incoming = nil
	c.muted = false
	c.videoEnabled = false
	c.screenShare = false
	c.recording = false
	c.stopTimerLocked()
	c.state = domain.CallStateIdle
	c.roomID = ""
	c.mu.Unlock()

	for id, link := range links {
		if err := link.Close(); err != nil {
			c.logger.Warnw("failed to close peer link", "participant_id", id, "error", err)
		}
		if c.metrics != nil {
			c.metrics.RecordPeerLinkClosed()
		}
	}
	if localStream != nil {
		localStream.Close()
	}
	if screenStream != nil {
		screenStream.Close()
	}

	// Resources are released before the network farewell: the channel may be
	// gone already and the hangup must still complete.
	if sendEnd {
		c.channel.SendCallEnd(ports.CallEnd{From: c.self.ID, RoomID: roomID})
	}

	c.logger.Infow("call ended", "room_id", roomID, "duration", duration, "initiated_locally", sendEnd)
	if c.metrics != nil {
		c.metrics.RecordCallEnded(duration)
	}
	c.events.CallEnded.Publish(domain.CallSnapshot{
		State:    domain.CallStateIdle,
		RoomID:   roomID,
		Duration: duration,
	})
}

// ToggleMute flips the mute flag and the enabled state of every local audio
// track. Returns the new muted value.
func (c *CallCoordinator) ToggleMute() bool {
	c.mu.Lock()
	c.muted = !c.muted
	muted := c.muted
	stream := c.localStream
	c.mu.Unlock()

	if stream != nil {
		for _, t := range stream.AudioTracks() {
			t.SetEnabled(!muted)
		}
	}
	c.events.MuteToggled.Publish(muted)
	return muted
}

// ToggleVideo flips the camera flag and the enabled state of every local
// video track. Returns the new enabled value.
func (c *CallCoordinator) ToggleVideo() bool {
	c.mu.Lock()
	c.videoEnabled = !c.videoEnabled
	enabled := c.videoEnabled
	stream := c.localStream
	c.mu.Unlock()

	if stream != nil {
		for _, t := range stream.VideoTracks() {
			t.SetEnabled(enabled)
		}
	}
	c.events.VideoToggled.Publish(enabled)
	return enabled
}

// StartScreenShare swaps the outgoing video to a display capture and
// renegotiates every link so remote sides pick up the new track.
func (c *CallCoordinator) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CallStateActive {
		c.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	if c.screenShare {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, span := tracing.TraceCallOperation(ctx, "screen_share_start", string(c.RoomID()))
	defer span.End()

	stream, err := c.media.GetDisplayMedia(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Errorw("failed to acquire display media", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}

	c.mu.Lock()
	if c.state != domain.CallStateActive {
		c.mu.Unlock()
		stream.Close()
		return domain.ErrNoActiveCall
	}
	c.screenStream = stream
	c.screenShare = true
	links := c.linksCopyLocked()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	videoTracks := stream.VideoTracks()
	if len(videoTracks) > 0 {
		c.swapVideoTrack(links, videoTracks[0].RTPTrack())
	}

	c.logger.Infow("screen share started", "links", len(links))
	c.events.ScreenShareStarted.Publish(snapshot)
	return nil
}

// StopScreenShare restores the camera track on every link. A no-op when no
// share is running.
func (c *CallCoordinator) StopScreenShare() error {
	c.mu.Lock()
	if !c.screenShare {
		c.mu.Unlock()
		return nil
	}
	stream := c.screenStream
	c.screenStream = nil
	c.screenShare = false
	localStream := c.localStream
	links := c.linksCopyLocked()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	if localStream != nil {
		if videoTracks := localStream.VideoTracks(); len(videoTracks) > 0 {
			c.swapVideoTrack(links, videoTracks[0].RTPTrack())
		}
	}

	c.logger.Infow("screen share stopped", "links", len(links))
	c.events.ScreenShareStopped.Publish(snapshot)
	return nil
}

// swapVideoTrack replaces the outgoing video on each link and renegotiates,
// sending a fresh offer so the remote side renders the new track.
func (c *CallCoordinator) swapVideoTrack(links map[domain.UserID]ports.PeerLink, track webrtc.TrackLocal) {
	for id, link := range links {
		if err := link.ReplaceVideoTrack(track); err != nil {
			c.logger.Warnw("failed to replace video track", "participant_id", id, "error", err)
			continue
		}
		offer, err := link.Negotiate()
		if err != nil {
			c.logger.Warnw("renegotiation failed", "participant_id", id, "error", err)
			continue
		}
		c.channel.SendOffer(ports.SDPMessage{From: c.self.ID, To: id, SDP: offer})
	}
}

// RemovePeer tears down the link for one participant without touching the
// rest of the call.
func (c *CallCoordinator) RemovePeer(id domain.UserID) error {
	c.mu.Lock()
	link, ok := c.links[id]
	delete(c.links, id)
	c.mu.Unlock()

	if !ok {
		return domain.ErrPeerLinkNotFound
	}
	if err := link.Close(); err != nil {
		c.logger.Warnw("failed to close peer link", "participant_id", id, "error", err)
	}
	if c.metrics != nil {
		c.metrics.RecordPeerLinkClosed()
	}
	return nil
}

// State returns an immutable snapshot of the coordinator.
func (c *CallCoordinator) State() domain.CallSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *CallCoordinator) LocalStream() ports.LocalStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localStream
}

// Links implements ports.PeerLinkSource.
func (c *CallCoordinator) Links() map[domain.UserID]ports.PeerLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linksCopyLocked()
}

// RoomID implements ports.PeerLinkSource.
func (c *CallCoordinator) RoomID() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// ---- inbound signaling (ports.SignalingConsumer) ----

func (c *CallCoordinator) OnRoomJoined(msg ports.RoomJoined) {
	c.mu.Lock()
	for _, u := range msg.Users {
		if u.ID == c.self.ID || u.ID == "" {
			continue
		}
		c.participants[u.ID] = u
	}
	count := len(c.participants)
	c.mu.Unlock()
	c.logger.Infow("room joined", "room_id", msg.RoomID, "participants", count)
}

func (c *CallCoordinator) OnUserJoined(msg ports.UserJoined) {
	if msg.User.ID == c.self.ID || msg.User.ID == "" {
		return
	}

	c.mu.Lock()
	c.participants[msg.User.ID] = msg.User
	// During an active call the side with the lower id initiates toward the
	// newcomer, so exactly one offer is produced per pair.
	initiate := c.state == domain.CallStateActive && c.self.ID < msg.User.ID
	c.mu.Unlock()

	c.logger.Infow("user joined", "user_id", msg.User.ID, "initiating", initiate)
	if initiate {
		c.initiateLink(msg.User.ID)
	}
}

func (c *CallCoordinator) OnUserLeft(msg ports.UserLeft) {
	c.mu.Lock()
	delete(c.participants, msg.UserID)
	link, hadLink := c.links[msg.UserID]
	delete(c.links, msg.UserID)
	lastOne := c.state == domain.CallStateActive && len(c.participants) == 0
	c.mu.Unlock()

	c.logger.Infow("user left", "user_id", msg.UserID, "had_link", hadLink)
	if hadLink {
		if err := link.Close(); err != nil {
			c.logger.Warnw("failed to close peer link", "participant_id", msg.UserID, "error", err)
		}
		if c.metrics != nil {
			c.metrics.RecordPeerLinkClosed()
		}
	}
	if lastOne {
		// Everyone else is gone; the call cannot continue.
		c.teardown(false)
	}
}

func (c *CallCoordinator) OnCallRequest(msg ports.CallRequest) {
	c.mu.Lock()
	if c.state != domain.CallStateIdle {
		c.mu.Unlock()
		c.logger.Warnw("ignoring call request while busy",
			"from", msg.From.ID,
			"state", c.state,
		)
		return
	}
	inc := domain.IncomingCall{From: msg.From, RoomID: msg.RoomID, ReceivedAt: time.Now()}
	c.incoming = &inc
	c.state = domain.CallStateIncoming
	c.roomID = msg.RoomID
	c.mu.Unlock()

	c.logger.Infow("incoming call", "from", msg.From.ID, "room_id", msg.RoomID)
	c.events.CallIncoming.Publish(inc)
}

func (c *CallCoordinator) OnCallAccepted(msg ports.CallAnswer) {
	c.mu.Lock()
	if c.state != domain.CallStateOutgoing && c.state != domain.CallStateActive {
		c.mu.Unlock()
		c.logger.Debugw("ignoring call accept", "from", msg.From, "state", c.state)
		return
	}
	answered := c.state == domain.CallStateOutgoing
	if answered {
		c.state = domain.CallStateActive
		c.startTimerLocked()
	}
	if _, known := c.participants[msg.From]; !known && msg.From != "" {
		c.participants[msg.From] = domain.Participant{ID: msg.From}
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Infow("call accepted by remote", "from", msg.From, "room_id", msg.RoomID)
	if answered {
		if c.metrics != nil {
			c.metrics.RecordCallStarted()
		}
		c.events.CallStarted.Publish(snapshot)
	}

	// The caller initiates the media link toward each accepting participant.
	c.initiateLink(msg.From)
}

func (c *CallCoordinator) OnCallRejected(msg ports.CallAnswer) {
	c.mu.Lock()
	if c.state != domain.CallStateOutgoing {
		c.mu.Unlock()
		return
	}
	c.state = domain.CallStateIdle
	c.roomID = ""
	stream := c.localStream
	c.localStream = nil
	c.participants = make(map[domain.UserID]domain.Participant)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	c.logger.Infow("call rejected by remote", "from", msg.From, "room_id", msg.RoomID)
	c.events.CallRejected.Publish(snapshot)
}

func (c *CallCoordinator) OnCallEnd(msg ports.CallEnd) {
	c.logger.Infow("remote ended call", "from", msg.From, "room_id", msg.RoomID)
	c.teardown(false)
}

func (c *CallCoordinator) OnOffer(msg ports.SDPMessage) {
	if msg.To != "" && msg.To != c.self.ID {
		return
	}

	c.mu.Lock()
	if c.state == domain.CallStateIdle {
		c.mu.Unlock()
		c.logger.Warnw("dropping offer outside a call", "from", msg.From)
		return
	}
	link, ok := c.links[msg.From]
	stream := c.localStream
	c.mu.Unlock()

	if !ok {
		var err error
		link, err = c.newLink(msg.From, stream, c.linkCallbacks(msg.From))
		if err != nil {
			c.logger.Errorw("failed to create peer link", "participant_id", msg.From, "error", err)
			return
		}
		c.mu.Lock()
		if existing, raced := c.links[msg.From]; raced {
			c.mu.Unlock()
			link.Close()
			link = existing
		} else {
			c.links[msg.From] = link
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.RecordPeerLinkOpened()
			}
		}
	}

	answer, err := link.HandleOffer(msg.SDP)
	if err != nil {
		c.logger.Errorw("failed to handle offer", "participant_id", msg.From, "error", err)
		return
	}
	c.channel.SendAnswer(ports.SDPMessage{From: c.self.ID, To: msg.From, SDP: answer})
}

func (c *CallCoordinator) OnAnswer(msg ports.SDPMessage) {
	if msg.To != "" && msg.To != c.self.ID {
		return
	}

	c.mu.Lock()
	link, ok := c.links[msg.From]
	c.mu.Unlock()

	if !ok {
		c.logger.Warnw("dropping answer with no matching link", "from", msg.From)
		return
	}
	if err := link.HandleAnswer(msg.SDP); err != nil {
		c.logger.Errorw("failed to handle answer", "participant_id", msg.From, "error", err)
	}
}

func (c *CallCoordinator) OnICECandidate(msg ports.CandidateMessage) {
	if msg.To != "" && msg.To != c.self.ID {
		return
	}

	c.mu.Lock()
	link, ok := c.links[msg.From]
	c.mu.Unlock()

	if !ok {
		c.logger.Debugw("dropping candidate with no matching link", "from", msg.From)
		return
	}
	if err := link.AddICECandidate(msg.Candidate); err != nil {
		c.logger.Warnw("failed to add ice candidate", "participant_id", msg.From, "error", err)
	}
}

// ---- internals ----

// initiateLink creates an offering link toward one participant and sends the
// initial offer. Safe to call for an already linked participant.
func (c *CallCoordinator) initiateLink(id domain.UserID) {
	if id == "" || id == c.self.ID {
		return
	}

	c.mu.Lock()
	if _, exists := c.links[id]; exists {
		c.mu.Unlock()
		return
	}
	stream := c.localStream
	c.mu.Unlock()

	link, err := c.newLink(id, stream, c.linkCallbacks(id))
	if err != nil {
		c.logger.Errorw("failed to create peer link", "participant_id", id, "error", err)
		return
	}

	c.mu.Lock()
	if _, raced := c.links[id]; raced {
		c.mu.Unlock()
		link.Close()
		return
	}
	c.links[id] = link
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordPeerLinkOpened()
	}

	offer, err := link.Negotiate()
	if err != nil {
		c.logger.Errorw("failed to create offer", "participant_id", id, "error", err)
		c.RemovePeer(id)
		return
	}
	c.channel.SendOffer(ports.SDPMessage{From: c.self.ID, To: id, SDP: offer})
}

func (c *CallCoordinator) linkCallbacks(id domain.UserID) ports.LinkCallbacks {
	return ports.LinkCallbacks{
		OnLocalCandidate: func(candidate webrtc.ICECandidateInit) {
			c.channel.SendICECandidate(ports.CandidateMessage{From: c.self.ID, To: id, Candidate: candidate})
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			c.events.RemoteStream.Publish(RemoteTrack{ParticipantID: id, Track: track, Receiver: receiver})
		},
		OnStateChange: func(state webrtc.PeerConnectionState) {
			if state == webrtc.PeerConnectionStateFailed {
				c.logger.Warnw("peer link failed", "participant_id", id)
			}
		},
	}
}

// startTimerLocked starts the 1 Hz duration ticker. Caller holds c.mu.
func (c *CallCoordinator) startTimerLocked() {
	c.startedAt = time.Now()
	c.elapsed = 0
	stop := make(chan struct{})
	c.timerStop = stop
	go c.runTimer(stop)
}

func (c *CallCoordinator) runTimer(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.timerStop == stop {
				c.elapsed = time.Since(c.startedAt).Truncate(time.Second)
			}
			c.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// stopTimerLocked stops the ticker and resets the elapsed time. Caller holds
// c.mu.
func (c *CallCoordinator) stopTimerLocked() {
	if c.timerStop != nil {
		close(c.timerStop)
		c.timerStop = nil
	}
	c.startedAt = time.Time{}
	c.elapsed = 0
}

func (c *CallCoordinator) linksCopyLocked() map[domain.UserID]ports.PeerLink {
	out := make(map[domain.UserID]ports.PeerLink, len(c.links))
	for id, link := range c.links {
		out[id] = link
	}
	return out
}

func (c *CallCoordinator) snapshotLocked() domain.CallSnapshot {
	participants := make([]domain.Participant, 0, len(c.participants))
	for _, p := range c.participants {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].ID < participants[j].ID })

	duration := c.elapsed
	if c.state == domain.CallStateActive && !c.startedAt.IsZero() {
		duration = time.Since(c.startedAt).Truncate(time.Second)
	}

	return domain.CallSnapshot{
		State:           c.state,
		RoomID:          c.roomID,
		IsMuted:         c.muted,
		IsVideoEnabled:  c.videoEnabled,
		IsScreenSharing: c.screenShare,
		IsRecording:     c.recording,
		Duration:        duration,
		Participants:    participants,
	}
}
