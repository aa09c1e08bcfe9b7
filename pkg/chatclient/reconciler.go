package chatclient

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// Entry is one row of the conversation: a stored message or a pending send.
type Entry struct {
	Message *Message
	Pending *PendingMessage
}

// Key is the server id, or the temp id while the send is pending.
func (e Entry) Key() string {
	if e.Message != nil {
		return e.Message.ID
	}
	return e.Pending.TempID
}

func (e Entry) IsPending() bool { return e.Pending != nil }

func (e Entry) at() time.Time {
	if e.Message != nil {
		return e.Message.CreatedAt
	}
	return e.Pending.SubmittedAt
}

func (e Entry) before(o Entry) bool {
	a, b := e.at(), o.at()
	if !a.Equal(b) {
		return a.Before(b)
	}
	return e.Key() < o.Key()
}

// Reconciler owns the presented sequence. It is not safe for concurrent use:
// one goroutine applies every event.
type Reconciler struct {
	entries []Entry

	seen         map[string]struct{} // server ids in entries
	tempToServer map[string]string
	pending      map[string]*PendingMessage
	failed       []*PendingMessage

	cursor   string
	realtime bool
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		seen:         make(map[string]struct{}),
		tempToServer: make(map[string]string),
		pending:      make(map[string]*PendingMessage),
	}
}

// Apply merges ev and reports whether the presented state changed.
func (r *Reconciler) Apply(ev Event) bool {
	switch e := ev.(type) {
	case HistoryLoaded:
		r.advance(e.Cursor)
		return r.mergeAll(e.Messages)
	case Polled:
		r.advance(e.Cursor)
		return r.mergeAll(e.Messages)
	case Inbound:
		return r.merge(e.Message)
	case Submitted:
		return r.submit(e.Pending)
	case Confirmed:
		return r.confirm(e.TempID, e.Message)
	case Failed:
		return r.fail(e.TempID, e.Err)
	case RealtimeStatus:
		changed := r.realtime != e.Healthy
		r.realtime = e.Healthy
		return changed
	}
	return false
}

func (r *Reconciler) mergeAll(msgs []Message) bool {
	changed := false
	for _, m := range msgs {
		if r.merge(m) {
			changed = true
		}
	}
	return changed
}

// merge inserts m unless its server id is already presented.
func (r *Reconciler) merge(m Message) bool {
	if m.ID == "" {
		return false
	}
	if _, dup := r.seen[m.ID]; dup {
		return false
	}
	r.seen[m.ID] = struct{}{}
	r.insert(Entry{Message: &m})
	return true
}

func (r *Reconciler) submit(p *PendingMessage) bool {
	if p == nil || p.State != StatePending {
		return false
	}
	if _, exists := r.pending[p.TempID]; exists {
		return false
	}
	r.pending[p.TempID] = p
	r.insert(Entry{Pending: p})
	return true
}

// confirm swaps the pending entry for the stored message at its ordered
// position. If a notification already delivered the message, only the
// pending entry goes.
func (r *Reconciler) confirm(tempID string, m Message) bool {
	changed := false
	if p, ok := r.pending[tempID]; ok {
		_ = p.Confirm(m.ID)
		delete(r.pending, tempID)
		r.remove(tempID)
		changed = true
	}
	if m.ID != "" {
		r.tempToServer[tempID] = m.ID
	}
	if r.merge(m) {
		changed = true
	}
	return changed
}

func (r *Reconciler) fail(tempID string, err error) bool {
	p, ok := r.pending[tempID]
	if !ok {
		return false
	}
	_ = p.Fail(err)
	delete(r.pending, tempID)
	r.remove(tempID)
	r.failed = append(r.failed, p)
	return true
}

// TakeFailed removes a failed attempt so it can be resubmitted.
func (r *Reconciler) TakeFailed(tempID string) (*PendingMessage, bool) {
	p, idx, ok := lo.FindIndexOf(r.failed, func(p *PendingMessage) bool { return p.TempID == tempID })
	if !ok {
		return nil, false
	}
	r.failed = append(r.failed[:idx], r.failed[idx+1:]...)
	return p, true
}

func (r *Reconciler) insert(e Entry) {
	i := sort.Search(len(r.entries), func(i int) bool { return e.before(r.entries[i]) })
	r.entries = append(r.entries, Entry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
}

func (r *Reconciler) remove(key string) {
	r.entries = lo.Reject(r.entries, func(e Entry, _ int) bool { return e.Key() == key })
}

func (r *Reconciler) advance(cursor string) {
	if cursor != "" {
		r.cursor = cursor
	}
}

// Entries returns a copy of the presented sequence.
func (r *Reconciler) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Messages returns only the stored messages, in order.
func (r *Reconciler) Messages() []Message {
	return lo.FilterMap(r.entries, func(e Entry, _ int) (Message, bool) {
		if e.Message == nil {
			return Message{}, false
		}
		return *e.Message, true
	})
}

func (r *Reconciler) Pending() []*PendingMessage {
	return lo.FilterMap(r.entries, func(e Entry, _ int) (*PendingMessage, bool) {
		return e.Pending, e.Pending != nil
	})
}

func (r *Reconciler) Failed() []*PendingMessage {
	return append([]*PendingMessage(nil), r.failed...)
}

// ServerID returns the id a confirmed temp id was stored under.
func (r *Reconciler) ServerID(tempID string) (string, bool) {
	id, ok := r.tempToServer[tempID]
	return id, ok
}

// Cursor is the newest poll position handed out by the server.
func (r *Reconciler) Cursor() string { return r.cursor }

func (r *Reconciler) RealtimeHealthy() bool { return r.realtime }
