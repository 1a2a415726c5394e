package core

import (
	"sort"

	"github.com/dkeye/Parlor/internal/domain"
)

type room struct {
	id      domain.RoomID
	name    string
	members map[domain.ParticipantID]struct{}
	history *history
}

// RoomStore holds membership and bounded message history per room.
// Not safe for concurrent use; the router loop owns it.
type RoomStore struct {
	rooms    map[domain.RoomID]*room
	capacity int
}

func NewRoomStore(capacity int) *RoomStore {
	return &RoomStore{
		rooms:    make(map[domain.RoomID]*room),
		capacity: capacity,
	}
}

// EnsureRoom creates the room if it does not exist yet. An existing room
// keeps its name and state.
func (s *RoomStore) EnsureRoom(id domain.RoomID, name string) {
	if _, ok := s.rooms[id]; ok {
		return
	}
	if name == "" {
		name = string(id)
	}
	s.rooms[id] = &room{
		id:      id,
		name:    name,
		members: make(map[domain.ParticipantID]struct{}),
		history: newHistory(s.capacity),
	}
}

func (s *RoomStore) Has(id domain.RoomID) bool {
	_, ok := s.rooms[id]
	return ok
}

func (s *RoomStore) AddMember(id domain.RoomID, pid domain.ParticipantID) error {
	r, ok := s.rooms[id]
	if !ok {
		return domain.Errorf(domain.KindUnknownRoom, "room %q does not exist", id)
	}
	r.members[pid] = struct{}{}
	return nil
}

// RemoveMember is a no-op for unknown rooms or non-members.
func (s *RoomStore) RemoveMember(id domain.RoomID, pid domain.ParticipantID) {
	if r, ok := s.rooms[id]; ok {
		delete(r.members, pid)
	}
}

// Members returns the member ids sorted for stable fan-out order.
func (s *RoomStore) Members(id domain.RoomID) []domain.ParticipantID {
	r, ok := s.rooms[id]
	if !ok {
		return nil
	}
	out := make([]domain.ParticipantID, 0, len(r.members))
	for pid := range r.members {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *RoomStore) IsMember(id domain.RoomID, pid domain.ParticipantID) bool {
	r, ok := s.rooms[id]
	if !ok {
		return false
	}
	_, ok = r.members[pid]
	return ok
}

// AppendMessage stores msg at the tail of the room history and returns the
// messages that fell off the head.
func (s *RoomStore) AppendMessage(id domain.RoomID, msg domain.Message) ([]domain.Message, error) {
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.Errorf(domain.KindUnknownRoom, "room %q does not exist", id)
	}
	if old, evicted := r.history.push(msg); evicted {
		return []domain.Message{old}, nil
	}
	return nil, nil
}

func (s *RoomStore) RecentHistory(id domain.RoomID, limit int) []domain.Message {
	r, ok := s.rooms[id]
	if !ok {
		return nil
	}
	return r.history.recent(limit)
}

func (s *RoomStore) HasMessage(id domain.RoomID, msgID domain.MessageID) bool {
	r, ok := s.rooms[id]
	return ok && r.history.has(msgID)
}

func (s *RoomStore) List() []domain.RoomInfo {
	out := make([]domain.RoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, domain.RoomInfo{
			ID:          r.id,
			Name:        r.name,
			MemberCount: len(r.members),
			HistoryLen:  r.history.len(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
