package domain

import "errors"

var (
	ErrCallInProgress     = errors.New("call already in progress")
	ErrNoIncomingCall     = errors.New("no incoming call")
	ErrNoActiveCall       = errors.New("no active call")
	ErrMediaUnavailable   = errors.New("media capture unavailable")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrChannelNotOpen     = errors.New("channel not open")
	ErrPeerLinkNotFound   = errors.New("peer link not found")
	ErrRegistryClosed     = errors.New("registry closed")
)
