package runtime

import (
	"context"
	"sync"
)

// eventStream retains a run's events in publish order and fans them out
// to subscribers. Subscribers name the sequence they have already seen;
// the backlog past that point is replayed before live delivery, so a
// reconnecting stream never misses events.
type eventStream struct {
	mu     sync.Mutex
	events []RunEvent
	subs   []*streamSub
	closed bool
}

type streamSub struct {
	ch     chan RunEvent
	ctx    context.Context
	cancel context.CancelFunc
}

func newEventStream() *eventStream {
	return &eventStream{}
}

// Publish assigns the next sequence number, retains the event and
// delivers it to every live subscriber. Subscribers that cannot keep up
// are disconnected rather than blocking the run.
func (s *eventStream) Publish(ev RunEvent) RunEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ev
	}
	ev.Seq = int64(len(s.events)) + 1
	s.events = append(s.events, ev)

	remaining := s.subs[:0]
	for _, sub := range s.subs {
		select {
		case <-sub.ctx.Done():
			close(sub.ch)
			continue
		default:
		}
		select {
		case sub.ch <- ev:
			remaining = append(remaining, sub)
		default:
			close(sub.ch)
			sub.cancel()
		}
	}
	s.subs = remaining
	return ev
}

// Subscribe returns a pull function that yields events with Seq >
// afterSeq, replaying the retained backlog first. The second return
// value is false once the stream is closed and drained or the context
// is cancelled.
func (s *eventStream) Subscribe(ctx context.Context, afterSeq int64) func() (RunEvent, bool) {
	subCtx, cancel := context.WithCancel(ctx)

	if afterSeq < 0 {
		afterSeq = 0
	}
	s.mu.Lock()
	var backlog []RunEvent
	if afterSeq < int64(len(s.events)) {
		backlog = s.events[afterSeq:]
	}
	ch := make(chan RunEvent, len(backlog)+16)
	for _, ev := range backlog {
		ch <- ev
	}
	if s.closed {
		close(ch)
	} else {
		s.subs = append(s.subs, &streamSub{ch: ch, ctx: subCtx, cancel: cancel})
	}
	s.mu.Unlock()

	return func() (RunEvent, bool) {
		select {
		case ev, ok := <-ch:
			if !ok {
				return RunEvent{}, false
			}
			return ev, true
		case <-subCtx.Done():
			// Drain anything already buffered before reporting done.
			select {
			case ev, ok := <-ch:
				if ok {
					return ev, true
				}
			default:
			}
			return RunEvent{}, false
		}
	}
}

// Close ends the stream. Subscribers drain their buffers and then see
// the stream as done; later subscribers still receive the backlog.
func (s *eventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		close(sub.ch)
	}
	s.subs = nil
}

// Events returns a copy of the retained history.
func (s *eventStream) Events() []RunEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunEvent, len(s.events))
	copy(out, s.events)
	return out
}
