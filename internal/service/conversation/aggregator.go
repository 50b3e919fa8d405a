package conversation

import (
	"sort"

	"github.com/oggyb/event-network/internal/db"
)

// Conversation summarizes a viewer's messages with one counterpart.
type Conversation struct {
	CounterpartID uint64
	LastMessage   db.Message
	UnreadCount   int
}

// Aggregator folds a viewer's messages into one Conversation per
// counterpart and keeps it current with ApplyMessage and ApplyRead.
//
// Patches are idempotent and order-insensitive: any interleaving of the
// same messages and read flips ends in the state Build would produce over
// the final message set. Not safe for concurrent use.
type Aggregator struct {
	viewer uint64
	convs  map[uint64]*Conversation
	seen   map[string]struct{}
	// unread incoming message id -> counterpart
	unread map[string]uint64
	// read flips received before their message
	earlyReads map[string]struct{}
}

func NewAggregator(viewer uint64) *Aggregator {
	return &Aggregator{
		viewer:     viewer,
		convs:      make(map[uint64]*Conversation),
		seen:       make(map[string]struct{}),
		unread:     make(map[string]uint64),
		earlyReads: make(map[string]struct{}),
	}
}

// Build scans msgs newest first; the first message seen per counterpart
// becomes its last message.
func Build(viewer uint64, msgs []db.Message) *Aggregator {
	a := NewAggregator(viewer)

	sorted := make([]db.Message, 0, len(msgs))
	for _, m := range msgs {
		if a.involves(m) {
			sorted = append(sorted, m)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return newer(sorted[i], sorted[j]) })

	for _, m := range sorted {
		if _, dup := a.seen[m.ID]; dup {
			continue
		}
		a.seen[m.ID] = struct{}{}

		cp := m.Counterpart(viewer)
		conv, ok := a.convs[cp]
		if !ok {
			conv = &Conversation{CounterpartID: cp, LastMessage: m}
			a.convs[cp] = conv
		}
		if a.isUnreadIncoming(m) {
			a.unread[m.ID] = cp
			conv.UnreadCount++
		}
	}
	return a
}

// ApplyMessage adds a newly created message. It reports whether the
// projection changed.
func (a *Aggregator) ApplyMessage(m db.Message) bool {
	if !a.involves(m) {
		return false
	}
	if _, dup := a.seen[m.ID]; dup {
		if m.Read {
			return a.ApplyRead(m)
		}
		return false
	}
	a.seen[m.ID] = struct{}{}

	if _, early := a.earlyReads[m.ID]; early {
		m.Read = true
		delete(a.earlyReads, m.ID)
	}

	cp := m.Counterpart(a.viewer)
	conv, ok := a.convs[cp]
	switch {
	case !ok:
		conv = &Conversation{CounterpartID: cp, LastMessage: m}
		a.convs[cp] = conv
	case newer(m, conv.LastMessage):
		conv.LastMessage = m
	}

	if a.isUnreadIncoming(m) {
		a.unread[m.ID] = cp
		conv.UnreadCount++
	}
	return true
}

// ApplyRead records that m was read by its receiver. It reports whether the
// projection changed.
func (a *Aggregator) ApplyRead(m db.Message) bool {
	if !a.involves(m) {
		return false
	}
	if _, ok := a.seen[m.ID]; !ok {
		a.earlyReads[m.ID] = struct{}{}
		return false
	}

	changed := false
	cp := m.Counterpart(a.viewer)
	if _, ok := a.unread[m.ID]; ok {
		delete(a.unread, m.ID)
		a.convs[cp].UnreadCount--
		changed = true
	}
	if conv, ok := a.convs[cp]; ok && conv.LastMessage.ID == m.ID && !conv.LastMessage.Read {
		conv.LastMessage.Read = true
		changed = true
	}
	return changed
}

// Unread returns the unread count of the conversation with counterpartID.
func (a *Aggregator) Unread(counterpartID uint64) int {
	if conv, ok := a.convs[counterpartID]; ok {
		return conv.UnreadCount
	}
	return 0
}

// Snapshot returns the conversations, most recent first.
func (a *Aggregator) Snapshot() []Conversation {
	out := make([]Conversation, 0, len(a.convs))
	for _, c := range a.convs {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].LastMessage, out[j].LastMessage) })
	return out
}

func (a *Aggregator) involves(m db.Message) bool {
	return m.ID != "" && (m.SenderID == a.viewer || m.ReceiverID == a.viewer)
}

func (a *Aggregator) isUnreadIncoming(m db.Message) bool {
	return m.ReceiverID == a.viewer && m.SenderID != a.viewer && !m.Read
}

// newer orders by created_at, then id, so ties resolve the same way as the
// store's ORDER BY created_at DESC, id DESC.
func newer(x, y db.Message) bool {
	if !x.CreatedAt.Equal(y.CreatedAt) {
		return x.CreatedAt.After(y.CreatedAt)
	}
	return x.ID > y.ID
}
