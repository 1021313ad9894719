// Package signal adapts one registry connection into a typed, room-scoped
// signaling API. Everything rides a {type, data} JSON envelope, one object
// per message.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"
	"safespace/pkg/validation"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Wire message types.
const (
	MsgJoinRoom     = "join-room"
	MsgRoomJoined   = "video-call:room-joined"
	MsgUserJoined   = "video-call:user-joined"
	MsgUserLeft     = "video-call:user-left"
	MsgCallRequest  = "video-call:request"
	MsgCallAccepted = "video-call:accepted"
	MsgCallRejected = "video-call:rejected"
	MsgCallEnd      = "video-call:end"
	MsgOffer        = "video-call:offer"
	MsgAnswer       = "video-call:answer"
	MsgICECandidate = "video-call:ice-candidate"
)

// Envelope is the wire frame for every signaling message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type joinRoomPayload struct {
	UserID domain.UserID `json:"userId"`
	RoomID domain.RoomID `json:"roomId"`
}

type Config struct {
	BaseURL           string
	MessagesPerSecond float64
	Burst             int
}

// Channel binds one registry connection to a room id.
type Channel struct {
	cfg      Config
	registry ports.ConnectionRegistry

	mu       sync.RWMutex
	conn     ports.Conn
	roomID   domain.RoomID
	userID   domain.UserID
	consumer ports.SignalingConsumer

	limiter *rate.Limiter
	logger  *zap.SugaredLogger
	metrics ports.MetricsRecorder
}

func NewChannel(cfg Config, reg ports.ConnectionRegistry, logger *zap.Logger, metrics ports.MetricsRecorder) *Channel {
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 200
	}
	return &Channel{
		cfg:      cfg,
		registry: reg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst),
		logger:   logger.Sugar(),
		metrics:  metrics,
	}
}

// Bind installs the consumer that receives inbound room traffic.
func (c *Channel) Bind(consumer ports.SignalingConsumer) {
	c.mu.Lock()
	c.consumer = consumer
	c.mu.Unlock()
}

// Connect builds the channel address for the room and opens (or reuses) the
// underlying registry connection, then announces the user to the room.
func (c *Channel) Connect(ctx context.Context, roomID domain.RoomID, userID domain.UserID, authToken string) error {
	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		return err
	}
	if err := validation.ValidateUserID(string(userID)); err != nil {
		return err
	}

	addr, err := c.channelURL(roomID, userID, authToken)
	if err != nil {
		return err
	}

	conn, err := c.registry.CreateConnection(ports.ConnectionParams{
		ID:        connectionID(roomID),
		URL:       addr,
		OnMessage: c.dispatch,
		OnClose: func(id string) {
			c.logger.Infow("signaling connection closed", "connection_id", id, "room_id", roomID)
		},
		OnError: func(id string, err error) {
			c.logger.Warnw("signaling connection error", "connection_id", id, "error", err)
		},
		OnReconnect: func(id string, attempt int) {
			c.logger.Infow("signaling connection reconnecting", "connection_id", id, "attempt", attempt)
		},
	})
	if err != nil {
		return fmt.Errorf("connect room %s: %w", roomID, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.roomID = roomID
	c.userID = userID
	c.mu.Unlock()

	c.send(MsgJoinRoom, joinRoomPayload{UserID: userID, RoomID: roomID})
	return nil
}

func (c *Channel) IsOpen() bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	return conn != nil && conn.IsOpen()
}

func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	roomID := c.roomID
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.registry.CloseConnection(connectionID(roomID), 1000, "channel closed")
}

func (c *Channel) SendCallRequest(msg ports.CallRequest)        { c.send(MsgCallRequest, msg) }
func (c *Channel) SendCallAccepted(msg ports.CallAnswer)        { c.send(MsgCallAccepted, msg) }
func (c *Channel) SendCallRejected(msg ports.CallAnswer)        { c.send(MsgCallRejected, msg) }
func (c *Channel) SendCallEnd(msg ports.CallEnd)                { c.send(MsgCallEnd, msg) }
func (c *Channel) SendOffer(msg ports.SDPMessage)               { c.send(MsgOffer, msg) }
func (c *Channel) SendAnswer(msg ports.SDPMessage)              { c.send(MsgAnswer, msg) }
func (c *Channel) SendICECandidate(msg ports.CandidateMessage)  { c.send(MsgICECandidate, msg) }

// send encodes and transmits one envelope. A send on a non-open channel is
// dropped and logged; it never fails upward.
func (c *Channel) send(msgType string, data interface{}) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsOpen() {
		c.logger.Warnw("dropping outbound message, channel not open", "type", msgType)
		return
	}

	if !c.limiter.Allow() {
		c.logger.Warnw("dropping outbound message, rate limit exceeded", "type", msgType)
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Errorw("failed to encode outbound payload", "type", msgType, "error", err)
		return
	}
	frame, err := json.Marshal(Envelope{Type: msgType, Data: raw})
	if err != nil {
		c.logger.Errorw("failed to encode envelope", "type", msgType, "error", err)
		return
	}

	if err := conn.Send(frame); err != nil {
		c.logger.Warnw("dropping outbound message, send failed", "type", msgType, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordMessage("out")
	}
}

// dispatch decodes an inbound envelope and routes it by type. Malformed
// payloads are logged and discarded without side effects.
func (c *Channel) dispatch(payload []byte) {
	c.mu.RLock()
	consumer := c.consumer
	c.mu.RUnlock()

	if consumer == nil {
		return
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.logger.Warnw("discarding malformed signaling frame", "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordMessage("in")
	}

	switch env.Type {
	case MsgUserJoined:
		var msg ports.UserJoined
		if c.decode(env, &msg) {
			consumer.OnUserJoined(msg)
		}
	case MsgJoinRoom:
		// Another member announcing themselves carries only ids.
		var msg joinRoomPayload
		if c.decode(env, &msg) {
			consumer.OnUserJoined(ports.UserJoined{User: domain.Participant{ID: msg.UserID}})
		}
	case MsgRoomJoined:
		var msg ports.RoomJoined
		if c.decode(env, &msg) {
			consumer.OnRoomJoined(msg)
		}
	case MsgUserLeft:
		var msg ports.UserLeft
		if c.decode(env, &msg) {
			consumer.OnUserLeft(msg)
		}
	case MsgCallRequest:
		var msg ports.CallRequest
		if c.decode(env, &msg) {
			consumer.OnCallRequest(msg)
		}
	case MsgCallAccepted:
		var msg ports.CallAnswer
		if c.decode(env, &msg) {
			consumer.OnCallAccepted(msg)
		}
	case MsgCallRejected:
		var msg ports.CallAnswer
		if c.decode(env, &msg) {
			consumer.OnCallRejected(msg)
		}
	case MsgCallEnd:
		var msg ports.CallEnd
		if c.decode(env, &msg) {
			consumer.OnCallEnd(msg)
		}
	case MsgOffer:
		var msg ports.SDPMessage
		if c.decode(env, &msg) {
			consumer.OnOffer(msg)
		}
	case MsgAnswer:
		var msg ports.SDPMessage
		if c.decode(env, &msg) {
			consumer.OnAnswer(msg)
		}
	case MsgICECandidate:
		var msg ports.CandidateMessage
		if c.decode(env, &msg) {
			consumer.OnICECandidate(msg)
		}
	default:
		c.logger.Debugw("ignoring unknown signaling type", "type", env.Type)
	}
}

func (c *Channel) decode(env Envelope, out interface{}) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.logger.Warnw("discarding malformed signaling payload", "type", env.Type, "error", err)
		return false
	}
	return true
}

// channelURL renders <base>/safe-space/<roomId>?userId=<id>&roomId=<id>[&token=<authToken>].
func (c *Channel) channelURL(roomID domain.RoomID, userID domain.UserID, authToken string) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid signaling base url %q: %w", c.cfg.BaseURL, err)
	}

	base.Path = fmt.Sprintf("%s/safe-space/%s", base.Path, roomID)
	q := base.Query()
	q.Set("userId", string(userID))
	q.Set("roomId", string(roomID))
	if authToken != "" {
		q.Set("token", authToken)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func connectionID(roomID domain.RoomID) string {
	return "signaling-" + string(roomID)
}
