package app

import (
	"github.com/dkeye/Parlor/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case NoAction:
		return "none"
	case DropFrame:
		return "drop"
	case KickMember:
		return "kick"
	}
	return "unknown"
}

// Policy decides what happens to a connection whose outbound buffer refused
// a frame.
type Policy interface {
	OnBackPressure(id domain.ParticipantID, err error) BackpressureAction
}

// SimplePolicy disconnects slow receivers. The closed socket comes back to
// the router as a regular disconnect, which starts the grace period.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ParticipantID, error) BackpressureAction {
	return KickMember
}

// LenientPolicy drops the frame and keeps the connection.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(domain.ParticipantID, error) BackpressureAction {
	return DropFrame
}

// PolicyByName maps a config value to a Policy. Unknown names fall back to
// SimplePolicy.
func PolicyByName(name string) Policy {
	switch name {
	case "drop":
		return LenientPolicy{}
	default:
		return SimplePolicy{}
	}
}
