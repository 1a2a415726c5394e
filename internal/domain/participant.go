// Package domain contains entities without logic, just meta-data
package domain

import "time"

const (
	MinNameLen = 2
	MaxNameLen = 20
)

// ParticipantID identifies a logical connection. It outlives a single
// websocket: the HTTP layer derives it from the session cookie.
type ParticipantID string

type Participant struct {
	ID          ParticipantID `json:"id"`
	Name        string        `json:"name"`
	Avatar      string        `json:"avatar"`
	Online      bool          `json:"isOnline"`
	LastSeenAt  time.Time     `json:"lastSeen"`
	CurrentRoom RoomID        `json:"currentRoom"`
	JoinedAt    time.Time     `json:"joinedAt"`
}

// Sender is the snapshot of a participant stored on a message.
type Sender struct {
	ID     ParticipantID `json:"id"`
	Name   string        `json:"name"`
	Avatar string        `json:"avatar"`
}

func (p *Participant) Sender() Sender {
	return Sender{ID: p.ID, Name: p.Name, Avatar: p.Avatar}
}
