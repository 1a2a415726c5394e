package app

import (
	"sort"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/rs/zerolog/log"
)

// Sessions binds connection ids to their live transport endpoint. A connection
// id has at most one endpoint; binding a new one hands back the previous.
// Not safe for concurrent use; the router loop owns it.
type Sessions struct {
	conns map[domain.ParticipantID]core.SignalConnection
}

func NewSessions() *Sessions {
	return &Sessions{conns: make(map[domain.ParticipantID]core.SignalConnection)}
}

func (s *Sessions) Bind(sid domain.ParticipantID, conn core.SignalConnection) (prev core.SignalConnection) {
	prev = s.conns[sid]
	s.conns[sid] = conn
	log.Debug().Str("module", "app.sessions").Str("sid", string(sid)).Bool("replaced", prev != nil).Msg("bound signal")
	return prev
}

func (s *Sessions) Get(sid domain.ParticipantID) (core.SignalConnection, bool) {
	c, ok := s.conns[sid]
	return c, ok
}

// Unbind removes the binding only if conn is still the bound endpoint.
func (s *Sessions) Unbind(sid domain.ParticipantID, conn core.SignalConnection) bool {
	cur, ok := s.conns[sid]
	if !ok || cur != conn {
		return false
	}
	delete(s.conns, sid)
	log.Debug().Str("module", "app.sessions").Str("sid", string(sid)).Msg("unbind signal")
	return true
}

// IDs returns every bound connection id in stable order.
func (s *Sessions) IDs() []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(s.conns))
	for sid := range s.conns {
		out = append(out, sid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Sessions) Len() int { return len(s.conns) }

// CloseAll closes and forgets every endpoint.
func (s *Sessions) CloseAll() {
	for sid, c := range s.conns {
		c.Close()
		delete(s.conns, sid)
	}
}
