package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypingTransitions(t *testing.T) {
	tr := NewTypingTracker()

	got := tr.SetTyping("c1", "general", "Alice", true)
	assert.Equal(t, Transition{Kind: TypingStarted, RoomID: "general", Name: "Alice"}, got)

	assert.Equal(t, NoTransition, tr.SetTyping("c1", "general", "Alice", true).Kind, "repeated start is silent")

	got = tr.SetTyping("c1", "random", "Alice", true)
	assert.Equal(t, Transition{Kind: TypingStarted, RoomID: "random", Name: "Alice"}, got)

	got = tr.SetTyping("c1", "random", "Alice", false)
	assert.Equal(t, Transition{Kind: TypingStopped, RoomID: "random", Name: "Alice"}, got)

	assert.Equal(t, NoTransition, tr.SetTyping("c1", "random", "Alice", false).Kind, "stop without start is silent")
}

func TestTypingClear(t *testing.T) {
	tr := NewTypingTracker()
	assert.Equal(t, Transition{}, tr.Clear("c1"))

	tr.SetTyping("c1", "general", "Alice", true)
	assert.True(t, tr.IsTyping("c1"))

	got := tr.Clear("c1")
	assert.Equal(t, Transition{Kind: TypingStopped, RoomID: "general", Name: "Alice"}, got)
	assert.False(t, tr.IsTyping("c1"))
	assert.Equal(t, NoTransition, tr.Clear("c1").Kind)
}
