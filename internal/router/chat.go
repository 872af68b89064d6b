package router

import "github.com/lox/homepoker/internal/protocol"

// chatRing keeps the most recent chat lines of a table.
type chatRing struct {
	lines []protocol.Chat
	next  int
	full  bool
}

func newChatRing(size int) *chatRing {
	return &chatRing{lines: make([]protocol.Chat, max(size, 1))}
}

func (r *chatRing) add(c protocol.Chat) {
	r.lines[r.next] = c
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// history returns the retained lines, oldest first.
func (r *chatRing) history() []protocol.Chat {
	if !r.full {
		return append([]protocol.Chat(nil), r.lines[:r.next]...)
	}
	out := make([]protocol.Chat, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
