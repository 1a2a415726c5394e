package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
)

func (o *Orchestrator) switchRoom(sid domain.ParticipantID, in SwitchRoom) error {
	_, from, err := o.member(sid, "")
	if err != nil {
		return err
	}
	to := in.RoomID
	if !o.Rooms.Has(to) {
		return domain.Errorf(domain.KindUnknownRoom, "room %q does not exist", to)
	}
	if to == from {
		o.toOne(sid, o.history(to, o.opts.HistoryOnJoin))
		return nil
	}

	if tr := o.Typing.Clear(sid); tr.Kind == core.TypingStopped {
		o.toRoom(tr.RoomID, TypingEvent{Type: EvTypingStop, Name: tr.Name, RoomID: tr.RoomID}, sid)
	}
	o.Rooms.RemoveMember(from, sid)
	if err := o.Rooms.AddMember(to, sid); err != nil {
		return err
	}
	o.Registry.SetRoom(sid, to)

	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("from_room", string(from)).Str("room", string(to)).Msg("moved to room")

	o.toOne(sid, RoomSwitched{Type: EvRoomSwitched, From: from, RoomID: to})
	o.toOne(sid, o.history(to, o.opts.HistoryOnJoin))
	o.toAll(o.presence())
	return nil
}

func (o *Orchestrator) history(room domain.RoomID, limit int) RoomHistory {
	msgs := o.Rooms.RecentHistory(room, limit)
	ev := RoomHistory{Type: EvHistory, RoomID: room, Messages: msgs}
	for _, m := range msgs {
		t := o.Reactions.TallyFor(m.ID)
		if len(t) == 0 {
			continue
		}
		if ev.Reactions == nil {
			ev.Reactions = make(map[domain.MessageID]domain.Tally)
		}
		ev.Reactions[m.ID] = t
	}
	if ev.Messages == nil {
		ev.Messages = []domain.Message{}
	}
	return ev
}

// Participants returns the presence snapshot.
func (o *Orchestrator) Participants(ctx context.Context) ([]domain.Participant, error) {
	var out []domain.Participant
	err := o.do(ctx, func() { out = o.Registry.Snapshot() })
	return out, err
}

func (o *Orchestrator) ListRooms(ctx context.Context) ([]domain.RoomInfo, error) {
	var out []domain.RoomInfo
	err := o.do(ctx, func() { out = o.Rooms.List() })
	return out, err
}

// History returns up to limit recent messages of a room, oldest first.
func (o *Orchestrator) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	var (
		out    []domain.Message
		qryErr error
	)
	err := o.do(ctx, func() {
		if !o.Rooms.Has(room) {
			qryErr = domain.Errorf(domain.KindUnknownRoom, "room %q does not exist", room)
			return
		}
		out = o.Rooms.RecentHistory(room, limit)
	})
	if err != nil {
		return nil, err
	}
	return out, qryErr
}
