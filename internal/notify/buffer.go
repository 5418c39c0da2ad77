package notify

import "sync"

// Entry is a buffered notification with its sequence number. Sequence
// numbers start at 1 and never repeat.
type Entry struct {
	Seq uint64 `json:"seq"`
	Message
}

// Buffer keeps the most recent notifications so a polling client can catch
// up with Since.
type Buffer struct {
	mu      sync.Mutex
	cap     int
	last    uint64
	entries []Entry
}

// NewBuffer creates a Buffer holding at most cap entries. Capacity must be
// >= 1.
func NewBuffer(cap int) *Buffer {
	if cap < 1 {
		cap = 1
	}
	return &Buffer{cap: cap}
}

func (b *Buffer) Notify(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last++
	b.entries = append(b.entries, Entry{Seq: b.last, Message: m})
	if over := len(b.entries) - b.cap; over > 0 {
		b.entries = append(b.entries[:0], b.entries[over:]...)
	}
}

// Since returns the buffered entries with a sequence number greater than
// seq, oldest first.
func (b *Buffer) Since(seq uint64) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Entry
	for _, e := range b.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the sequence number of the newest notification, 0 if none.
func (b *Buffer) Last() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}
