package core

import "github.com/dkeye/Parlor/internal/domain"

type TransitionKind int

const (
	NoTransition TransitionKind = iota
	TypingStarted
	TypingStopped
)

// Transition is the notification a typing change produces, if any.
type Transition struct {
	Kind   TransitionKind
	RoomID domain.RoomID
	Name   string
}

type typingEntry struct {
	room domain.RoomID
	name string
}

// TypingTracker remembers who is currently typing and where.
// Not safe for concurrent use; the router loop owns it.
type TypingTracker struct {
	active map[domain.ParticipantID]typingEntry
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{active: make(map[domain.ParticipantID]typingEntry)}
}

// SetTyping records the state and reports a start only when the participant
// was not already typing in that room, and a stop only when it was typing.
func (t *TypingTracker) SetTyping(id domain.ParticipantID, room domain.RoomID, name string, isTyping bool) Transition {
	prev, ok := t.active[id]
	if !isTyping {
		if !ok {
			return Transition{}
		}
		delete(t.active, id)
		return Transition{Kind: TypingStopped, RoomID: prev.room, Name: prev.name}
	}
	if ok && prev.room == room {
		return Transition{}
	}
	t.active[id] = typingEntry{room: room, name: name}
	return Transition{Kind: TypingStarted, RoomID: room, Name: name}
}

func (t *TypingTracker) Clear(id domain.ParticipantID) Transition {
	return t.SetTyping(id, "", "", false)
}

func (t *TypingTracker) IsTyping(id domain.ParticipantID) bool {
	_, ok := t.active[id]
	return ok
}
