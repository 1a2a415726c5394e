package core

import "github.com/dkeye/Parlor/internal/domain"

// history is a fixed-capacity ring of messages, oldest evicted first.
type history struct {
	buf   []domain.Message
	head  int // index of the oldest entry
	count int
	index map[domain.MessageID]struct{}
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{
		buf:   make([]domain.Message, capacity),
		index: make(map[domain.MessageID]struct{}, capacity),
	}
}

// push appends msg and returns the entry it displaced, if any.
func (h *history) push(msg domain.Message) (evicted domain.Message, ok bool) {
	capacity := len(h.buf)
	if h.count == capacity {
		evicted = h.buf[h.head]
		delete(h.index, evicted.ID)
		h.buf[h.head] = msg
		h.head = (h.head + 1) % capacity
		h.index[msg.ID] = struct{}{}
		return evicted, true
	}
	h.buf[(h.head+h.count)%capacity] = msg
	h.count++
	h.index[msg.ID] = struct{}{}
	return domain.Message{}, false
}

// recent returns up to limit newest entries, oldest first. limit <= 0 means all.
func (h *history) recent(limit int) []domain.Message {
	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Message, 0, n)
	start := h.count - n
	for i := start; i < h.count; i++ {
		out = append(out, h.buf[(h.head+i)%len(h.buf)])
	}
	return out
}

func (h *history) has(id domain.MessageID) bool {
	_, ok := h.index[id]
	return ok
}

func (h *history) len() int { return h.count }
