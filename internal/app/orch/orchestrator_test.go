package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/core/coretest"
	"github.com/dkeye/Parlor/internal/domain"
)

var errFull = errors.New("buffer full")

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return errFull
	}
	c.frames = append(c.frames, append([]byte(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) ofType(typ string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(f, &env) == nil && env.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func lastOf[T any](t *testing.T, c *fakeConn, typ string) T {
	t.Helper()
	frames := c.ofType(typ)
	require.NotEmpty(t, frames, "no %s event", typ)
	return decode[T](t, frames[len(frames)-1])
}

type harness struct {
	t     *testing.T
	o     *Orchestrator
	sched *coretest.ManualScheduler
}

func newHarness(t *testing.T, tweak func(*Options)) *harness {
	t.Helper()
	sched := coretest.NewManualScheduler()
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := Options{
		Scheduler: sched,
		Clock: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
		Rooms: []RoomSpec{{ID: "random", Name: "Random"}},
	}
	if tweak != nil {
		tweak(&opts)
	}
	o := New(opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return &harness{t: t, o: o, sched: sched}
}

func (h *harness) submit(sid domain.ParticipantID, in Intent) {
	h.t.Helper()
	require.NoError(h.t, h.o.Submit(context.Background(), sid, in))
	h.sync()
}

// sync waits until every queued command has run.
func (h *harness) sync() {
	h.t.Helper()
	_, err := h.o.Participants(context.Background())
	require.NoError(h.t, err)
}

func (h *harness) connect(sid domain.ParticipantID) *fakeConn {
	c := &fakeConn{}
	h.submit(sid, Connect{Conn: c})
	return c
}

func (h *harness) joined(sid domain.ParticipantID, name string) *fakeConn {
	c := h.connect(sid)
	h.submit(sid, Join{Name: name})
	require.Empty(h.t, c.ofType(EvError), "join %s failed", name)
	return c
}

func (h *harness) participants() []domain.Participant {
	h.t.Helper()
	ps, err := h.o.Participants(context.Background())
	require.NoError(h.t, err)
	return ps
}

func errorKinds(t *testing.T, c *fakeConn) []domain.Kind {
	var out []domain.Kind
	for _, f := range c.ofType(EvError) {
		out = append(out, decode[ErrorEvent](t, f).Kind)
	}
	return out
}

func TestConnectSendsPresence(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("a")
	snap := lastOf[PresenceSnapshot](t, c, EvPresence)
	assert.Empty(t, snap.Participants)
}

func TestJoinNameTaken(t *testing.T) {
	h := newHarness(t, nil)
	h.joined("a", "Alice")
	b := h.connect("b")

	h.submit("b", Join{Name: "Alice"})
	assert.Equal(t, []domain.Kind{domain.KindNameTaken}, errorKinds(t, b))
	assert.Len(t, h.participants(), 1)
}

func TestJoinInvalidName(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("a")
	h.submit("a", Join{Name: "<b></b>x"})
	assert.Equal(t, []domain.Kind{domain.KindInvalidName}, errorKinds(t, c))
	assert.Empty(t, h.participants())
}

func TestJoinNotifiesOthers(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	a.reset()
	b := h.joined("b", "Bob")

	assert.Equal(t, "Bob", lastOf[NameEvent](t, a, EvJoined).Name)
	assert.Len(t, lastOf[PresenceSnapshot](t, a, EvPresence).Participants, 2)
	assert.Empty(t, b.ofType(EvJoined), "joiner does not hear about itself")

	hist := lastOf[RoomHistory](t, b, EvHistory)
	assert.Equal(t, domain.DefaultRoom, hist.RoomID)
	welcome := lastOf[ParticipantEvent](t, b, EvWelcome)
	require.NotNil(t, welcome.Participant)
	assert.Equal(t, "Bob", welcome.Participant.Name)
	assert.True(t, welcome.Participant.Online)
}

func TestSendRequiresJoin(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("a")
	h.submit("a", Send{Message: "hi"})
	assert.Equal(t, []domain.Kind{domain.KindUnauthenticated}, errorKinds(t, c))
}

func TestSendEmptyLeavesHistoryUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")

	h.submit("a", Send{Message: "   "})
	assert.Equal(t, []domain.Kind{domain.KindEmptyMessage}, errorKinds(t, a))

	msgs, err := h.o.History(context.Background(), domain.DefaultRoom, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSendBothBodyAndFile(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	h.submit("a", Send{Message: "hi", Attachment: &domain.Attachment{Name: "a.png", Type: "image/png", Size: 10}})
	assert.Equal(t, []domain.Kind{domain.KindInvalidPayload}, errorKinds(t, a))
}

func TestSendBlankBodyWithFileIsAttachmentOnly(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	h.submit("a", Send{Message: " \n\t ", Attachment: &domain.Attachment{Name: "a.png", Type: "image/png", Size: 10, Data: "https://img.example/a.png"}})

	assert.Empty(t, errorKinds(t, a))
	ev := lastOf[MessageEvent](t, a, EvMessage)
	require.NotNil(t, ev.Message.Attachment)
	assert.Equal(t, "a.png", ev.Message.Attachment.Name)
	assert.Empty(t, ev.Message.Body)
}

func TestSendDeliversOnceToEveryMember(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	b := h.joined("b", "Bob")

	h.submit("a", Send{Message: "hi"})

	for _, c := range []*fakeConn{a, b} {
		frames := c.ofType(EvMessage)
		require.Len(t, frames, 1)
		ev := decode[MessageEvent](t, frames[0])
		assert.Equal(t, "Alice", ev.Message.Sender.Name)
		assert.Equal(t, "hi", ev.Message.Body)
		assert.NotEmpty(t, ev.Message.ID)
		assert.Equal(t, uint64(1), ev.Message.Seq)
	}
}

func TestSendAttachment(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")

	h.submit("a", Send{Attachment: &domain.Attachment{Name: "cat.png", Type: "image/png", Size: 1024, Data: "https://img.example/cat.png"}})
	ev := lastOf[MessageEvent](t, a, EvMessage)
	require.NotNil(t, ev.Message.Attachment)
	assert.Equal(t, "cat.png", ev.Message.Attachment.Name)
	assert.Empty(t, ev.Message.Body)

	h.submit("a", Send{Attachment: &domain.Attachment{Name: "big.mov", Type: "video/quicktime", Size: 6 << 20}})
	h.submit("a", Send{Attachment: &domain.Attachment{Name: "run.exe", Type: "application/x-msdownload", Size: 10}})
	assert.Equal(t, []domain.Kind{domain.KindAttachmentTooLarge, domain.KindAttachmentTypeNotAllowed}, errorKinds(t, a))
}

func TestHistoryIsBounded(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.HistorySize = 100 })
	h.joined("a", "Alice")

	for i := 1; i <= 101; i++ {
		require.NoError(t, h.o.Submit(context.Background(), "a", Send{Message: fmt.Sprintf("msg %d", i)}))
	}
	h.sync()

	msgs, err := h.o.History(context.Background(), domain.DefaultRoom, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 100)
	assert.Equal(t, "msg 2", msgs[0].Body)
	assert.Equal(t, "msg 101", msgs[99].Body)

	_, err = h.o.History(context.Background(), "nowhere", 0)
	assert.ErrorIs(t, err, domain.KindUnknownRoom)
}

func TestReactionToggle(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	b := h.joined("b", "Bob")
	h.submit("a", Send{Message: "hi"})
	id := lastOf[MessageEvent](t, a, EvMessage).Message.ID

	h.submit("a", React{MessageID: id, Reaction: "👍"})
	up := lastOf[ReactionUpdate](t, b, EvReaction)
	assert.Equal(t, domain.Tally{"👍": 1}, up.Tally)
	assert.True(t, up.Added)
	assert.Equal(t, "Alice", up.User)

	h.submit("a", React{MessageID: id, Reaction: "👍"})
	up = lastOf[ReactionUpdate](t, b, EvReaction)
	assert.Zero(t, up.Tally["👍"])
	assert.False(t, up.Added)
}

func TestReactRejections(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	h.submit("a", Send{Message: "hi"})
	id := lastOf[MessageEvent](t, a, EvMessage).Message.ID

	h.submit("a", React{MessageID: id, Reaction: "🍕"})
	h.submit("a", React{MessageID: "missing", Reaction: "👍"})
	assert.Equal(t, []domain.Kind{domain.KindInvalidReaction, domain.KindUnknownMessage}, errorKinds(t, a))
	assert.Empty(t, a.ofType(EvReaction))
}

func TestHistoryCarriesTallies(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	h.submit("a", Send{Message: "hi"})
	id := lastOf[MessageEvent](t, a, EvMessage).Message.ID
	h.submit("a", React{MessageID: id, Reaction: "😂"})

	b := h.joined("b", "Bob")
	hist := lastOf[RoomHistory](t, b, EvHistory)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, domain.Tally{"😂": 1}, hist.Reactions[id])
}

func TestTypingNotifiesOthersOnly(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	b := h.joined("b", "Bob")

	h.submit("a", Typing{IsTyping: true})
	h.submit("a", Typing{IsTyping: true})
	require.Len(t, b.ofType(EvTypingStart), 1)
	assert.Empty(t, a.ofType(EvTypingStart))
	ev := decode[TypingEvent](t, b.ofType(EvTypingStart)[0])
	assert.Equal(t, "Alice", ev.Name)
	assert.Equal(t, domain.DefaultRoom, ev.RoomID)

	h.submit("a", Typing{IsTyping: false})
	assert.Len(t, b.ofType(EvTypingStop), 1)
}

func TestSendClearsTypingOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.joined("a", "Alice")
	b := h.joined("b", "Bob")

	h.submit("a", Typing{IsTyping: true})
	h.submit("a", Send{Message: "one"})
	h.submit("a", Send{Message: "two"})

	stops := b.ofType(EvTypingStop)
	require.Len(t, stops, 1)
	assert.Equal(t, "Alice", decode[TypingEvent](t, stops[0]).Name)
}

func TestDisconnectAndReclaimWithinGrace(t *testing.T) {
	h := newHarness(t, nil)
	a1 := h.joined("a", "Alice")
	b := h.joined("b", "Bob")
	b.reset()

	h.submit("a", Disconnect{Conn: a1})
	assert.Equal(t, "Alice", lastOf[NameEvent](t, b, EvLeft).Name)
	ps := h.participants()
	require.Len(t, ps, 2)
	assert.False(t, ps[0].Online)

	h.sched.Advance(299 * time.Second)
	h.sync()

	a2 := h.connect("a")
	h.submit("a", Join{Name: "Alice"})
	assert.Empty(t, errorKinds(t, a2))
	assert.Empty(t, b.ofType(EvJoined), "reclaim is not a new join")

	h.sched.Advance(time.Hour)
	h.sync()
	ps = h.participants()
	require.Len(t, ps, 2)
	assert.Equal(t, domain.ParticipantID("a"), ps[0].ID)
	assert.True(t, ps[0].Online)
	assert.Zero(t, h.sched.Armed())
}

func TestEvictionAfterGrace(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	b := h.joined("b", "Bob")
	h.submit("a", Disconnect{Conn: a})

	h.sched.Advance(300 * time.Second)
	h.sync()

	ps := h.participants()
	require.Len(t, ps, 1)
	assert.Equal(t, "Bob", ps[0].Name)
	assert.Len(t, lastOf[PresenceSnapshot](t, b, EvPresence).Participants, 1)

	h.joined("c", "Alice")
}

func TestNameReservedDuringGrace(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	h.submit("a", Disconnect{Conn: a})

	c := h.connect("c")
	h.submit("c", Join{Name: "Alice"})
	assert.Equal(t, []domain.Kind{domain.KindNameTaken}, errorKinds(t, c))
}

func TestReconnectReplacesConnection(t *testing.T) {
	h := newHarness(t, nil)
	a1 := h.joined("a", "Alice")
	a2 := h.connect("a")
	assert.True(t, a1.isClosed())

	h.submit("a", Disconnect{Conn: a1})
	ps := h.participants()
	require.Len(t, ps, 1)
	assert.True(t, ps[0].Online, "stale disconnect is ignored")

	h.submit("a", Ping{})
	assert.Len(t, a2.ofType(EvPong), 1)
	assert.Empty(t, a1.ofType(EvPong))
}

func TestSlowReceiverIsKicked(t *testing.T) {
	h := newHarness(t, nil)
	slow := &fakeConn{full: true}
	h.submit("s", Connect{Conn: slow})
	assert.True(t, slow.isClosed())
}

func TestSwitchRoomScopesFanOut(t *testing.T) {
	h := newHarness(t, nil)
	a := h.joined("a", "Alice")
	b := h.joined("b", "Bob")

	h.submit("a", SwitchRoom{RoomID: "random"})
	sw := lastOf[RoomSwitched](t, a, EvRoomSwitched)
	assert.Equal(t, domain.DefaultRoom, sw.From)
	assert.Equal(t, domain.RoomID("random"), sw.RoomID)
	assert.Equal(t, domain.RoomID("random"), lastOf[RoomHistory](t, a, EvHistory).RoomID)

	h.submit("a", Send{Message: "over here"})
	assert.Len(t, a.ofType(EvMessage), 1)
	assert.Empty(t, b.ofType(EvMessage))

	h.submit("b", Send{Message: "hi", RoomID: "random"})
	h.submit("a", SwitchRoom{RoomID: "attic"})
	assert.Equal(t, []domain.Kind{domain.KindUnknownRoom}, errorKinds(t, b))
	assert.Equal(t, []domain.Kind{domain.KindUnknownRoom}, errorKinds(t, a))

	rooms, err := h.o.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, domain.DefaultRoom, rooms[0].ID)
	assert.Equal(t, 1, rooms[0].MemberCount)
	assert.Equal(t, 1, rooms[1].HistoryLen)
}

func TestWhoAmI(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("a")
	h.submit("a", WhoAmI{})
	assert.Nil(t, lastOf[ParticipantEvent](t, c, EvWhoAmI).Participant)

	h.submit("a", Join{Name: "Alice"})
	h.submit("a", WhoAmI{})
	me := lastOf[ParticipantEvent](t, c, EvWhoAmI).Participant
	require.NotNil(t, me)
	assert.Equal(t, "Alice", me.Name)
}

func TestConcurrentJoinsKeepNamesUnique(t *testing.T) {
	h := newHarness(t, nil)
	conns := make([]*fakeConn, 20)
	for i := range conns {
		conns[i] = h.connect(domain.ParticipantID(fmt.Sprintf("c%02d", i)))
	}

	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = h.o.Submit(context.Background(), domain.ParticipantID(fmt.Sprintf("c%02d", i)), Join{Name: "Alice"})
		}(i)
	}
	wg.Wait()
	h.sync()

	require.Len(t, h.participants(), 1)
	taken := 0
	for _, c := range conns {
		taken += len(c.ofType(EvError))
	}
	assert.Equal(t, 19, taken)
}

func TestSubmitAfterStop(t *testing.T) {
	o := New(Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- o.Run(ctx) }()
	c := &fakeConn{}
	require.NoError(t, o.Submit(context.Background(), "a", Connect{Conn: c}))
	_, err := o.Participants(context.Background())
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-errc)
	assert.True(t, c.isClosed())
	assert.ErrorIs(t, o.Submit(context.Background(), "a", Ping{}), ErrStopped)
}
