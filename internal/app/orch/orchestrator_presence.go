package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/sanitize"
)

func (o *Orchestrator) connect(sid domain.ParticipantID, conn core.SignalConnection) {
	if prev := o.Sessions.Bind(sid, conn); prev != nil && prev != conn {
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("replacing previous connection")
		prev.Close()
	}
	o.toOne(sid, o.presence())
}

func (o *Orchestrator) join(sid domain.ParticipantID, in Join) error {
	name, err := sanitize.Name(in.Name)
	if err != nil {
		return err
	}
	p, outcome, err := o.Registry.Join(sid, name, o.now())
	if err != nil {
		return err
	}
	o.Grace.Cancel(sid)

	room := p.CurrentRoom
	if !o.Rooms.Has(room) {
		room = domain.DefaultRoom
		o.Registry.SetRoom(sid, room)
		p.CurrentRoom = room
	}
	if err := o.Rooms.AddMember(room, sid); err != nil {
		return err
	}

	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("name", p.Name).Stringer("outcome", outcome).Msg("participant joined")

	o.toAll(o.presence())
	if outcome != core.Reclaimed {
		o.toAll(NameEvent{Type: EvJoined, Name: p.Name}, sid)
	}
	o.toOne(sid, o.history(room, o.opts.HistoryOnJoin))
	o.toOne(sid, ParticipantEvent{Type: EvWelcome, Participant: &p})
	return nil
}

func (o *Orchestrator) disconnect(sid domain.ParticipantID, conn core.SignalConnection) {
	if !o.Sessions.Unbind(sid, conn) {
		log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Msg("stale disconnect ignored")
		return
	}
	p, ok := o.Registry.Get(sid)
	if !ok || !p.Online {
		return
	}

	o.Registry.MarkOffline(sid, o.now())
	o.Rooms.RemoveMember(p.CurrentRoom, sid)
	if tr := o.Typing.Clear(sid); tr.Kind == core.TypingStopped {
		o.toRoom(tr.RoomID, TypingEvent{Type: EvTypingStop, Name: tr.Name, RoomID: tr.RoomID}, sid)
	}
	o.toAll(NameEvent{Type: EvLeft, Name: p.Name}, sid)
	o.toAll(o.presence())

	o.Grace.Schedule(sid, o.opts.GracePeriod, func(gen uint64) {
		// Runs on the timer goroutine; only the loop may touch state.
		if err := o.enqueue(context.Background(), func() { o.evict(sid, gen) }); err != nil {
			log.Debug().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Msg("eviction not queued")
		}
	})
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("name", p.Name).Dur("grace", o.opts.GracePeriod).Msg("participant offline")
}

// evict runs when a grace timer fires. A generation that is no longer
// current means the participant came back or was re-armed in between.
func (o *Orchestrator) evict(sid domain.ParticipantID, gen uint64) {
	if !o.Grace.Fired(sid, gen) {
		return
	}
	p, _ := o.Registry.Get(sid)
	if !o.Registry.Evict(sid) {
		return
	}
	o.Typing.Clear(sid)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("name", p.Name).Msg("participant evicted")
	o.toAll(o.presence())
}

func (o *Orchestrator) whoami(sid domain.ParticipantID) {
	ev := ParticipantEvent{Type: EvWhoAmI}
	if p, ok := o.Registry.Get(sid); ok {
		ev.Participant = &p
	}
	o.toOne(sid, ev)
}

func (o *Orchestrator) presence() PresenceSnapshot {
	return PresenceSnapshot{Type: EvPresence, Participants: o.Registry.Snapshot()}
}
