package core

import (
	"sort"
	"time"

	"github.com/dkeye/Parlor/internal/domain"
)

// JoinOutcome tells the router how a successful join relates to prior state.
type JoinOutcome int

const (
	Created JoinOutcome = iota
	// Reclaimed: the same connection came back under the same name.
	Reclaimed
	// Replaced: the connection was in grace under another name; the old
	// identity is dropped.
	Replaced
)

func (o JoinOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case Reclaimed:
		return "reclaimed"
	case Replaced:
		return "replaced"
	}
	return "unknown"
}

// Registry maps connection ids to participants and keeps names unique among
// every tracked participant, online or in grace. Not safe for concurrent use;
// the router loop owns it.
type Registry struct {
	byID   map[domain.ParticipantID]*domain.Participant
	byName map[string]domain.ParticipantID
	avatar func(string) string
}

func NewRegistry(avatar func(name string) string) *Registry {
	if avatar == nil {
		avatar = func(string) string { return "" }
	}
	return &Registry{
		byID:   make(map[domain.ParticipantID]*domain.Participant),
		byName: make(map[string]domain.ParticipantID),
		avatar: avatar,
	}
}

func (r *Registry) Join(id domain.ParticipantID, name string, now time.Time) (domain.Participant, JoinOutcome, error) {
	if holder, ok := r.byName[name]; ok && holder != id {
		return domain.Participant{}, Created, domain.Errorf(domain.KindNameTaken, "%q is already in use", name)
	}

	outcome := Created
	if p, ok := r.byID[id]; ok {
		switch {
		case p.Name == name:
			p.Online = true
			p.LastSeenAt = now
			return *p, Reclaimed, nil
		case p.Online:
			return domain.Participant{}, Created, domain.Errorf(domain.KindAlreadyJoined, "already joined as %q", p.Name)
		default:
			delete(r.byName, p.Name)
			delete(r.byID, id)
			outcome = Replaced
		}
	}

	p := &domain.Participant{
		ID:          id,
		Name:        name,
		Avatar:      r.avatar(name),
		Online:      true,
		LastSeenAt:  now,
		CurrentRoom: domain.DefaultRoom,
		JoinedAt:    now,
	}
	r.byID[id] = p
	r.byName[name] = id
	return *p, outcome, nil
}

func (r *Registry) MarkOffline(id domain.ParticipantID, now time.Time) {
	if p, ok := r.byID[id]; ok {
		p.Online = false
		p.LastSeenAt = now
	}
}

// Evict drops a participant that is still offline. It reports whether
// anything was removed.
func (r *Registry) Evict(id domain.ParticipantID) bool {
	p, ok := r.byID[id]
	if !ok || p.Online {
		return false
	}
	delete(r.byName, p.Name)
	delete(r.byID, id)
	return true
}

func (r *Registry) Get(id domain.ParticipantID) (domain.Participant, bool) {
	p, ok := r.byID[id]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// Snapshot returns every tracked participant ordered by join time.
func (r *Registry) Snapshot() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) Online() int {
	n := 0
	for _, p := range r.byID {
		if p.Online {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int { return len(r.byID) }

// SetRoom records the participant's current room. It reports false for
// unknown ids.
func (r *Registry) SetRoom(id domain.ParticipantID, room domain.RoomID) bool {
	p, ok := r.byID[id]
	if !ok {
		return false
	}
	p.CurrentRoom = room
	return true
}
