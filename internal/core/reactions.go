package core

import (
	"slices"

	"github.com/dkeye/Parlor/internal/domain"
)

// ReactionAggregator keeps, per message, the ordered tag set of every
// participant that reacted. Tallies are always recomputed from the sets.
// Not safe for concurrent use; the router loop owns it.
type ReactionAggregator struct {
	sets map[domain.MessageID]map[domain.ParticipantID][]string
}

func NewReactionAggregator() *ReactionAggregator {
	return &ReactionAggregator{sets: make(map[domain.MessageID]map[domain.ParticipantID][]string)}
}

// Apply toggles tag for the participant: a tag already held is removed,
// otherwise it is appended. added reports which of the two happened.
func (a *ReactionAggregator) Apply(msgID domain.MessageID, pid domain.ParticipantID, tag string) (tally domain.Tally, added bool) {
	byUser, ok := a.sets[msgID]
	if !ok {
		byUser = make(map[domain.ParticipantID][]string)
		a.sets[msgID] = byUser
	}

	tags := byUser[pid]
	if i := slices.Index(tags, tag); i >= 0 {
		tags = slices.Delete(tags, i, i+1)
	} else {
		tags = append(tags, tag)
		added = true
	}

	switch {
	case len(tags) > 0:
		byUser[pid] = tags
	default:
		delete(byUser, pid)
	}
	if len(byUser) == 0 {
		delete(a.sets, msgID)
	}
	return a.TallyFor(msgID), added
}

// TallyFor counts holders per tag. Tags nobody holds are absent.
func (a *ReactionAggregator) TallyFor(msgID domain.MessageID) domain.Tally {
	tally := domain.Tally{}
	for _, tags := range a.sets[msgID] {
		for _, tag := range tags {
			tally[tag]++
		}
	}
	return tally
}

// Holds reports whether the participant currently holds tag on the message.
func (a *ReactionAggregator) Holds(msgID domain.MessageID, pid domain.ParticipantID, tag string) bool {
	return slices.Contains(a.sets[msgID][pid], tag)
}

func (a *ReactionAggregator) Forget(msgIDs ...domain.MessageID) {
	for _, id := range msgIDs {
		delete(a.sets, id)
	}
}

func (a *ReactionAggregator) Len() int { return len(a.sets) }
