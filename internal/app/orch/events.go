package orch

import (
	"errors"

	"github.com/dkeye/Parlor/internal/domain"
)

// Outbound event types as they appear in the "type" field.
const (
	EvPresence     = "presence-snapshot"
	EvJoined       = "joined"
	EvLeft         = "left"
	EvHistory      = "room-history"
	EvMessage      = "message"
	EvTypingStart  = "typing-start"
	EvTypingStop   = "typing-stop"
	EvReaction     = "reaction-update"
	EvWelcome      = "welcome"
	EvWhoAmI       = "whoami"
	EvPong         = "pong"
	EvRoomSwitched = "room-switched"
	EvError        = "error"
)

type Event interface {
	EventType() string
}

type PresenceSnapshot struct {
	Type         string               `json:"type"`
	Participants []domain.Participant `json:"participants"`
}

type NameEvent struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type RoomHistory struct {
	Type      string                            `json:"type"`
	RoomID    domain.RoomID                     `json:"roomId"`
	Messages  []domain.Message                  `json:"messages"`
	Reactions map[domain.MessageID]domain.Tally `json:"reactions,omitempty"`
}

type MessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type TypingEvent struct {
	Type   string        `json:"type"`
	Name   string        `json:"name"`
	RoomID domain.RoomID `json:"roomId"`
}

type ReactionUpdate struct {
	Type      string           `json:"type"`
	MessageID domain.MessageID `json:"messageId"`
	RoomID    domain.RoomID    `json:"roomId"`
	Tally     domain.Tally     `json:"tally"`
	User      string           `json:"user"`
	Reaction  string           `json:"reaction"`
	Added     bool             `json:"added"`
}

type ParticipantEvent struct {
	Type        string              `json:"type"`
	Participant *domain.Participant `json:"participant,omitempty"`
}

type RoomSwitched struct {
	Type   string        `json:"type"`
	From   domain.RoomID `json:"from"`
	RoomID domain.RoomID `json:"roomId"`
}

type Pong struct {
	Type string `json:"type"`
}

type ErrorEvent struct {
	Type   string      `json:"type"`
	Kind   domain.Kind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

func (e PresenceSnapshot) EventType() string { return e.Type }
func (e NameEvent) EventType() string        { return e.Type }
func (e RoomHistory) EventType() string      { return e.Type }
func (e MessageEvent) EventType() string     { return e.Type }
func (e TypingEvent) EventType() string      { return e.Type }
func (e ReactionUpdate) EventType() string   { return e.Type }
func (e ParticipantEvent) EventType() string { return e.Type }
func (e RoomSwitched) EventType() string     { return e.Type }
func (e Pong) EventType() string             { return e.Type }
func (e ErrorEvent) EventType() string       { return e.Type }

// NewErrorEvent converts err into the event sent to the originator.
func NewErrorEvent(err error) ErrorEvent {
	ev := ErrorEvent{Type: EvError, Kind: domain.KindOf(err)}
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		ev.Detail = de.Detail
	case ev.Kind == domain.KindInternal:
		ev.Detail = "internal error"
	}
	return ev
}
