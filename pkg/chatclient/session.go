package chatclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Snapshot is what a UI renders after each change.
type Snapshot struct {
	View     RoomView
	Entries  []Entry
	Failed   []*PendingMessage
	Realtime bool
}

type SessionConfig struct {
	PollEvery      time.Duration // fallback polling interval while realtime is down
	ReconcileEvery time.Duration // slow poll while realtime is up; default 15 x PollEvery
	SendTimeout    time.Duration // a send with no answer in this window fails and can be retried
	Realtime       bool          // open the websocket channel

	RealtimeOptions []RealtimeOption
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.PollEvery <= 0 {
		c.PollEvery = 2 * time.Second
	}
	if c.ReconcileEvery <= 0 {
		c.ReconcileEvery = 15 * c.PollEvery
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	return c
}

type command struct {
	send  *PendingMessage
	retry string
	done  chan *PendingMessage
}

// Session is the client counterpart of one open room. Run owns the
// reconciler; Send and Retry hand work to it through channels.
type Session struct {
	api    *API
	roomID string
	view   RoomView
	cfg    SessionConfig
	rt     *Realtime

	recon    *Reconciler
	events   chan Event
	commands chan command
	updates  chan Snapshot

	sends sync.WaitGroup
}

// Open loads the room and its full history.
func Open(ctx context.Context, api *API, roomID string, cfg SessionConfig) (*Session, error) {
	cfg = cfg.withDefaults()

	info, err := api.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	msgs, cursor, err := api.ListAll(ctx, roomID, "")
	if err != nil {
		return nil, err
	}

	s := &Session{
		api:      api,
		roomID:   roomID,
		view:     roomViewFromInfo(info),
		cfg:      cfg,
		recon:    NewReconciler(),
		events:   make(chan Event, 64),
		commands: make(chan command),
		updates:  make(chan Snapshot, 1),
	}
	s.recon.Apply(HistoryLoaded{Messages: msgs, Cursor: cursor})
	if cfg.Realtime {
		s.rt = NewRealtime(api.BaseURL(), roomID, api.token, cfg.RealtimeOptions...)
	}
	return s, nil
}

func (s *Session) View() RoomView { return s.view }

// Updates delivers the latest snapshot; intermediate ones may be skipped.
func (s *Session) Updates() <-chan Snapshot { return s.updates }

// Run merges realtime, polling and own sends until ctx is done. Sends already
// in flight finish before Run returns.
//
// Realtime delivery may skip messages without dropping the connection, so the
// store stays the source of truth: every new inbound message triggers a poll
// after the cursor, and a slow reconcile poll runs even while realtime is up.
func (s *Session) Run(ctx context.Context) error {
	var rtEvents <-chan Event
	if s.rt != nil {
		go s.rt.Run(ctx)
		rtEvents = s.rt.Events()
	}

	ticker := time.NewTicker(s.cfg.PollEvery)
	defer ticker.Stop()

	var (
		polling  bool
		again    bool
		lastPoll = time.Now() // Open just loaded the history
	)
	polled := make(chan Event, 1)
	poll := func() {
		if polling {
			// The in-flight poll may predate what prompted this one.
			again = true
			return
		}
		polling = true
		lastPoll = time.Now()
		cursor := s.recon.Cursor()
		go func() {
			msgs, next, err := s.api.ListAll(ctx, s.roomID, cursor)
			if err != nil && ctx.Err() == nil {
				slog.Debug("chatclient poll failed", "room", s.roomID, slog.Any("err", err))
			}
			polled <- Polled{Messages: msgs, Cursor: next}
		}()
	}

	s.publish()
	for {
		select {
		case <-ctx.Done():
			s.sends.Wait()
			return ctx.Err()

		case ev, ok := <-rtEvents:
			if !ok {
				rtEvents = nil
				continue
			}
			wasHealthy := s.recon.RealtimeHealthy()
			changed := s.recon.Apply(ev)
			switch ev := ev.(type) {
			case RealtimeStatus:
				if ev.Healthy && !wasHealthy {
					// Catch up on whatever was sent while the channel was down.
					poll()
				}
			case Inbound:
				if changed {
					// Anything stored before this message that never arrived shows up here.
					poll()
				}
			}
			if changed {
				s.publish()
			}

		case <-ticker.C:
			if !s.recon.RealtimeHealthy() || time.Since(lastPoll) >= s.cfg.ReconcileEvery {
				poll()
			}

		case ev := <-polled:
			polling = false
			if s.recon.Apply(ev) {
				s.publish()
			}
			if again {
				again = false
				poll()
			}

		case ev := <-s.events:
			if s.recon.Apply(ev) {
				s.publish()
			}

		case cmd := <-s.commands:
			p := cmd.send
			if cmd.retry != "" {
				if failed, ok := s.recon.TakeFailed(cmd.retry); ok {
					p = failed.Retry(time.Now())
				}
			}
			if p != nil {
				s.recon.Apply(Submitted{Pending: p})
				s.dispatch(ctx, p)
				s.publish()
			}
			cmd.done <- p
		}
	}
}

// Send submits d and returns the pending placeholder's temp id.
func (s *Session) Send(ctx context.Context, d Draft) (string, error) {
	p := NewPending(s.roomID, d, time.Now())
	done := make(chan *PendingMessage, 1)
	select {
	case s.commands <- command{send: p, done: done}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	<-done
	return p.TempID, nil
}

// Retry resubmits a failed attempt as a new send. It returns the new temp id.
func (s *Session) Retry(ctx context.Context, tempID string) (string, bool, error) {
	done := make(chan *PendingMessage, 1)
	select {
	case s.commands <- command{retry: tempID, done: done}:
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
	p := <-done
	if p == nil {
		return "", false, nil
	}
	return p.TempID, true, nil
}

// dispatch sends p without tying it to the session lifetime.
func (s *Session) dispatch(ctx context.Context, p *PendingMessage) {
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SendTimeout)
		defer cancel()

		msg, err := s.api.SendMessage(sendCtx, s.roomID, p.Draft)
		var ev Event = Confirmed{TempID: p.TempID, Message: msg}
		if err != nil {
			ev = Failed{TempID: p.TempID, Err: err}
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) publish() {
	// Pending entries are copied: the loop keeps mutating its own.
	snap := Snapshot{
		View: s.view,
		Entries: lo.Map(s.recon.Entries(), func(e Entry, _ int) Entry {
			if e.Pending != nil {
				p := *e.Pending
				e.Pending = &p
			}
			return e
		}),
		Failed: lo.Map(s.recon.Failed(), func(p *PendingMessage, _ int) *PendingMessage {
			c := *p
			return &c
		}),
		Realtime: s.recon.RealtimeHealthy(),
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}
