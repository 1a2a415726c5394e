package orch

import (
	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
)

// Intent is one inbound event from a connection.
type Intent interface {
	Type() string
}

// Connect binds a transport endpoint to the connection id. A previous
// endpoint for the same id is closed.
type Connect struct {
	Conn core.SignalConnection
}

// Disconnect is issued by the transport when Conn goes away. It is ignored
// when Conn is no longer the bound endpoint.
type Disconnect struct {
	Conn core.SignalConnection
}

type Join struct {
	Name string `json:"name"`
}

type Send struct {
	Message    string             `json:"message"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
	RoomID     domain.RoomID      `json:"roomId,omitempty"`
	ReplyTo    string             `json:"replyTo,omitempty"`
}

type Typing struct {
	RoomID   domain.RoomID `json:"roomId,omitempty"`
	IsTyping bool          `json:"isTyping"`
}

type React struct {
	MessageID domain.MessageID `json:"messageId"`
	Reaction  string           `json:"reaction"`
	RoomID    domain.RoomID    `json:"roomId,omitempty"`
}

// SwitchRoom moves the participant to another provisioned room.
type SwitchRoom struct {
	RoomID domain.RoomID `json:"roomId"`
}

type WhoAmI struct{}

type Ping struct{}

func (Connect) Type() string    { return "connect" }
func (Disconnect) Type() string { return "disconnect" }
func (Join) Type() string       { return "join" }
func (Send) Type() string       { return "send" }
func (Typing) Type() string     { return "typing" }
func (React) Type() string      { return "react" }
func (SwitchRoom) Type() string { return "switch-room" }
func (WhoAmI) Type() string     { return "whoami" }
func (Ping) Type() string       { return "ping" }
