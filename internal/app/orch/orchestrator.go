// Package orch is the single writer of all shared chat state. Every intent
// and every read query runs on the loop started by Run; notifications are
// collected while a command mutates state and delivered once it completes.
package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/app"
	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/metrics"
	"github.com/dkeye/Parlor/internal/sanitize"
)

var ErrStopped = errors.New("orchestrator stopped")

// RoomSpec provisions a room at startup.
type RoomSpec struct {
	ID   domain.RoomID
	Name string
}

type Options struct {
	HistorySize     int
	HistoryOnJoin   int
	GracePeriod     time.Duration
	MaxMessageRunes int
	Attachments     sanitize.AttachmentPolicy
	Rooms           []RoomSpec
	QueueSize       int

	Clock     func() time.Time
	Scheduler core.Scheduler
}

func (o *Options) withDefaults() {
	if o.HistorySize <= 0 {
		o.HistorySize = 100
	}
	if o.HistoryOnJoin <= 0 {
		o.HistoryOnJoin = 50
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 300 * time.Second
	}
	if o.MaxMessageRunes <= 0 {
		o.MaxMessageRunes = 2000
	}
	if o.Attachments.MaxBytes <= 0 {
		o.Attachments.MaxBytes = 5 << 20
	}
	if len(o.Attachments.AllowedTypes) == 0 {
		o.Attachments.AllowedTypes = sanitize.DefaultAllowedTypes
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

type Orchestrator struct {
	Registry  *core.Registry
	Rooms     *core.RoomStore
	Typing    *core.TypingTracker
	Reactions *core.ReactionAggregator
	Grace     *core.Grace
	Sessions  *app.Sessions
	Policy    app.Policy

	opts     Options
	commands chan func()
	done     chan struct{}
	seq      uint64
	outbox   []delivery
}

type delivery struct {
	to []domain.ParticipantID
	ev Event
}

func New(opts Options, policy app.Policy) *Orchestrator {
	opts.withDefaults()
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	o := &Orchestrator{
		Registry:  core.NewRegistry(sanitize.Avatar),
		Rooms:     core.NewRoomStore(opts.HistorySize),
		Typing:    core.NewTypingTracker(),
		Reactions: core.NewReactionAggregator(),
		Grace:     core.NewGrace(opts.Scheduler),
		Sessions:  app.NewSessions(),
		Policy:    policy,
		opts:      opts,
		commands:  make(chan func(), opts.QueueSize),
		done:      make(chan struct{}),
	}
	o.Rooms.EnsureRoom(domain.DefaultRoom, "General")
	for _, r := range opts.Rooms {
		o.Rooms.EnsureRoom(r.ID, r.Name)
	}
	return o
}

// Run processes commands until ctx is cancelled. On exit it stops pending
// grace timers and closes every bound connection.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Str("module", "app.orch").Int("history", o.opts.HistorySize).Dur("grace", o.opts.GracePeriod).Msg("router started")
	defer func() {
		o.Grace.Stop()
		o.Sessions.CloseAll()
		metrics.Connections.Set(0)
		close(o.done)
		log.Info().Str("module", "app.orch").Msg("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-o.commands:
			o.exec(cmd)
		}
	}
}

func (o *Orchestrator) exec(cmd func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.orch").Interface("panic", r).Bytes("stack", debug.Stack()).Msg("command panicked")
		}
		o.flush()
	}()
	cmd()
}

// Submit queues an intent from the connection sid. It blocks only while the
// queue is full.
func (o *Orchestrator) Submit(ctx context.Context, sid domain.ParticipantID, in Intent) error {
	return o.enqueue(ctx, func() { o.handle(sid, in) })
}

func (o *Orchestrator) enqueue(ctx context.Context, cmd func()) error {
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}
}

func (o *Orchestrator) handle(sid domain.ParticipantID, in Intent) {
	metrics.Intents.WithLabelValues(in.Type()).Inc()
	log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Str("intent", in.Type()).Msg("intent")

	var err error
	switch in := in.(type) {
	case Connect:
		o.connect(sid, in.Conn)
	case Disconnect:
		o.disconnect(sid, in.Conn)
	case Join:
		err = o.join(sid, in)
	case Send:
		err = o.send(sid, in)
	case Typing:
		err = o.typing(sid, in)
	case React:
		err = o.react(sid, in)
	case SwitchRoom:
		err = o.switchRoom(sid, in)
	case WhoAmI:
		o.whoami(sid)
	case Ping:
		o.toOne(sid, Pong{Type: EvPong})
	default:
		err = domain.Errorf(domain.KindInvalidPayload, "unsupported intent %q", in.Type())
	}
	if err != nil {
		o.reject(sid, in, err)
	}
}

func (o *Orchestrator) reject(sid domain.ParticipantID, in Intent, err error) {
	ev := NewErrorEvent(err)
	metrics.Rejections.WithLabelValues(string(ev.Kind)).Inc()
	l := log.Debug()
	if ev.Kind == domain.KindInternal {
		l = log.Error()
	}
	l.Err(err).Str("module", "app.orch").Str("sid", string(sid)).Str("intent", in.Type()).Msg("intent rejected")
	o.toOne(sid, ev)
}

func (o *Orchestrator) now() time.Time { return o.opts.Clock() }

func (o *Orchestrator) toOne(sid domain.ParticipantID, ev Event) {
	o.outbox = append(o.outbox, delivery{to: []domain.ParticipantID{sid}, ev: ev})
}

// toAll targets every bound connection, joined or not, except the listed ids.
func (o *Orchestrator) toAll(ev Event, except ...domain.ParticipantID) {
	o.outbox = append(o.outbox, delivery{to: without(o.Sessions.IDs(), except), ev: ev})
}

func (o *Orchestrator) toRoom(room domain.RoomID, ev Event, except ...domain.ParticipantID) {
	o.outbox = append(o.outbox, delivery{to: without(o.Rooms.Members(room), except), ev: ev})
}

func without(ids []domain.ParticipantID, except []domain.ParticipantID) []domain.ParticipantID {
	if len(except) == 0 {
		return ids
	}
	out := ids[:0]
	for _, id := range ids {
		skip := false
		for _, x := range except {
			if id == x {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, id)
		}
	}
	return out
}

// flush encodes every collected event once and hands it to the bound
// connections without blocking.
func (o *Orchestrator) flush() {
	pending := o.outbox
	o.outbox = nil
	for _, d := range pending {
		if len(d.to) == 0 {
			continue
		}
		data, err := json.Marshal(d.ev)
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("event", d.ev.EventType()).Msg("marshal event")
			continue
		}
		for _, sid := range d.to {
			conn, ok := o.Sessions.Get(sid)
			if !ok {
				continue
			}
			if err := conn.TrySend(core.Frame(data)); err != nil {
				o.onBackPressure(sid, conn, err)
				continue
			}
			metrics.Events.WithLabelValues(d.ev.EventType()).Inc()
		}
	}
	metrics.Connections.Set(float64(o.Sessions.Len()))
	metrics.ParticipantsOnline.Set(float64(o.Registry.Online()))
}

func (o *Orchestrator) onBackPressure(sid domain.ParticipantID, conn core.SignalConnection, err error) {
	metrics.FramesDropped.Inc()
	action := o.Policy.OnBackPressure(sid, err)
	log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Stringer("action", action).Msg("frame dropped")
	switch action {
	case app.KickMember:
		conn.Close()
	case app.DropFrame, app.NoAction:
	}
}

// do runs fn on the loop and waits for it.
func (o *Orchestrator) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := o.enqueue(ctx, func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return fmt.Errorf("query: %w", ErrStopped)
	}
}
