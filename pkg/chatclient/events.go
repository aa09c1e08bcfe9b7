package chatclient

// Event is one input to Reconciler.Apply.
type Event interface {
	event()
}

// HistoryLoaded is an authoritative page fetched on open.
type HistoryLoaded struct {
	Messages []Message
	Cursor   string
}

// Inbound is a realtime notification.
type Inbound struct {
	Message Message
}

// Polled is a page fetched by the fallback poller.
type Polled struct {
	Messages []Message
	Cursor   string
}

type Submitted struct {
	Pending *PendingMessage
}

type Confirmed struct {
	TempID  string
	Message Message
}

type Failed struct {
	TempID string
	Err    error
}

type RealtimeStatus struct {
	Healthy bool
	Err     error
}

func (HistoryLoaded) event()  {}
func (Inbound) event()        {}
func (Polled) event()         {}
func (Submitted) event()      {}
func (Confirmed) event()      {}
func (Failed) event()         {}
func (RealtimeStatus) event() {}
