package domain

import "time"

type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Data string `json:"data,omitempty"`
}

// Message is immutable once appended to a room's history.
type Message struct {
	ID         MessageID   `json:"id"`
	Seq        uint64      `json:"seq"`
	Sender     Sender      `json:"sender"`
	RoomID     RoomID      `json:"roomId"`
	Body       string      `json:"message,omitempty"`
	Attachment *Attachment `json:"file,omitempty"`
	ReplyTo    string      `json:"replyTo,omitempty"`
	CreatedAt  time.Time   `json:"timestamp"`
}

// Tally maps a reaction tag to the number of participants holding it.
type Tally map[string]int
