package orch

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/sanitize"
)

// member returns the online participant behind sid and the room an intent
// addresses, falling back to the participant's current room.
func (o *Orchestrator) member(sid domain.ParticipantID, room domain.RoomID) (domain.Participant, domain.RoomID, error) {
	p, ok := o.Registry.Get(sid)
	if !ok || !p.Online {
		return domain.Participant{}, "", domain.Errorf(domain.KindUnauthenticated, "join first")
	}
	if room == "" {
		room = p.CurrentRoom
	}
	if !o.Rooms.Has(room) {
		return domain.Participant{}, "", domain.Errorf(domain.KindUnknownRoom, "room %q does not exist", room)
	}
	if !o.Rooms.IsMember(room, sid) {
		return domain.Participant{}, "", domain.Errorf(domain.KindUnknownRoom, "not a member of %q", room)
	}
	return p, room, nil
}

func (o *Orchestrator) send(sid domain.ParticipantID, in Send) error {
	p, room, err := o.member(sid, in.RoomID)
	if err != nil {
		return err
	}

	msg := domain.Message{
		Sender:  p.Sender(),
		RoomID:  room,
		ReplyTo: sanitize.ReplyRef(in.ReplyTo),
	}
	text := sanitize.Text(in.Message, o.opts.MaxMessageRunes)
	switch {
	case in.Attachment != nil && text != "":
		return domain.Errorf(domain.KindInvalidPayload, "send either a message or a file, not both")
	case in.Attachment != nil:
		a, err := o.opts.Attachments.Check(*in.Attachment)
		if err != nil {
			return err
		}
		msg.Attachment = &a
	case text == "":
		return domain.Errorf(domain.KindEmptyMessage, "message cannot be empty")
	default:
		msg.Body = text
	}

	o.seq++
	msg.ID = domain.MessageID(uuid.NewString())
	msg.Seq = o.seq
	msg.CreatedAt = o.now()

	evicted, err := o.Rooms.AppendMessage(room, msg)
	if err != nil {
		return err
	}
	for _, old := range evicted {
		o.Reactions.Forget(old.ID)
	}

	log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(room)).Str("msg", string(msg.ID)).Msg("message accepted")
	o.toRoom(room, MessageEvent{Type: EvMessage, Message: msg})

	if tr := o.Typing.Clear(sid); tr.Kind == core.TypingStopped {
		o.toRoom(tr.RoomID, TypingEvent{Type: EvTypingStop, Name: tr.Name, RoomID: tr.RoomID}, sid)
	}
	return nil
}

func (o *Orchestrator) typing(sid domain.ParticipantID, in Typing) error {
	p, room, err := o.member(sid, in.RoomID)
	if err != nil {
		return err
	}
	tr := o.Typing.SetTyping(sid, room, p.Name, in.IsTyping)
	switch tr.Kind {
	case core.TypingStarted:
		o.toRoom(tr.RoomID, TypingEvent{Type: EvTypingStart, Name: tr.Name, RoomID: tr.RoomID}, sid)
	case core.TypingStopped:
		o.toRoom(tr.RoomID, TypingEvent{Type: EvTypingStop, Name: tr.Name, RoomID: tr.RoomID}, sid)
	case core.NoTransition:
	}
	return nil
}

func (o *Orchestrator) react(sid domain.ParticipantID, in React) error {
	p, room, err := o.member(sid, in.RoomID)
	if err != nil {
		return err
	}
	if err := sanitize.Reaction(in.Reaction); err != nil {
		return err
	}
	if !o.Rooms.HasMessage(room, in.MessageID) {
		return domain.Errorf(domain.KindUnknownMessage, "message %q is not in %q", in.MessageID, room)
	}

	tally, added := o.Reactions.Apply(in.MessageID, sid, in.Reaction)
	o.toRoom(room, ReactionUpdate{
		Type:      EvReaction,
		MessageID: in.MessageID,
		RoomID:    room,
		Tally:     tally,
		User:      p.Name,
		Reaction:  in.Reaction,
		Added:     added,
	})
	return nil
}
