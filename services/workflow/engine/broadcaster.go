// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "sync"

// EventType discriminates broadcast events.
type EventType string

const (
	// EventLog carries one log entry.
	EventLog EventType = "log"

	// EventCompletion is the single terminal marker of a run stream.
	EventCompletion EventType = "completion"
)

// Event is one element of a run's broadcast stream.
type Event struct {
	Type EventType `json:"type"`

	// Entry is set for EventLog.
	Entry *LogEntry `json:"entry,omitempty"`

	// Run is the final run view, set for EventCompletion.
	Run *RunView `json:"run_info,omitempty"`
}

// Broadcaster is a per-run append-only event log with live fan-out.
//
// # Description
//
// Publish appends the event to the backlog and hands it to every attached
// subscriber. Delivery never blocks the publisher: each subscription owns
// an unbounded in-memory queue drained by its own goroutine, so a slow
// reader delays only itself. A subscriber attaching at any time observes
// the full backlog first and then live events, in order, ending with
// exactly one completion event (the monotonic prefix property).
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Broadcaster struct {
	mu       sync.Mutex
	backlog  []Event
	subs     map[*Subscription]struct{}
	finished bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*Subscription]struct{}),
	}
}

// Publish appends the event and delivers it to all attached subscribers.
//
// The first EventCompletion finalizes the stream: it is recorded, delivered,
// and all subscribers are detached (their channels close once drained).
// Events published after completion are dropped.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished {
		return
	}
	b.backlog = append(b.backlog, ev)

	// enqueue never blocks, so holding the lock here is cheap and keeps
	// backlog replay and live delivery strictly ordered per subscriber.
	for sub := range b.subs {
		sub.enqueue(ev)
	}
	if ev.Type == EventCompletion {
		b.finished = true
		b.subs = make(map[*Subscription]struct{})
	}
}

// Attach registers a new subscriber.
//
// The subscription's channel yields the full backlog recorded so far,
// then live events, then exactly one completion event, after which the
// channel is closed. When the run is already finished the backlog alone
// contains everything including the completion marker.
func (b *Broadcaster) Attach() *Subscription {
	sub := newSubscription(b)

	b.mu.Lock()
	for _, ev := range b.backlog {
		sub.enqueue(ev)
	}
	if !b.finished {
		b.subs[sub] = struct{}{}
	}
	b.mu.Unlock()

	go sub.drain()
	return sub
}

// Backlog returns a copy of all events recorded so far.
func (b *Broadcaster) Backlog() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.backlog...)
}

// detach removes the subscriber. Safe to call at any time.
func (b *Broadcaster) detach(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscription is one reader of a run's event stream.
//
// # Thread Safety
//
// Close may be called from any goroutine, any number of times, including
// concurrently with channel reads. Closing never affects the run.
type Subscription struct {
	b    *Broadcaster
	ch   chan Event
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

func newSubscription(b *Broadcaster) *Subscription {
	sub := &Subscription{
		b:    b,
		ch:   make(chan Event),
		done: make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	return sub
}

// Events returns the ordered stream of events for this subscription.
// The channel is closed after the completion event or after Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber and releases its resources.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cond.Signal()
		s.b.detach(s)
	})
}

// enqueue adds an event to the subscriber's private queue. Never blocks.
func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()
	s.cond.Signal()
}

// drain moves queued events onto the subscription channel, preserving
// order. Runs in its own goroutine per subscription.
func (s *Subscription) drain() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}

		if ev.Type == EventCompletion {
			// The stream is complete; detach quietly so late Close
			// calls stay no-ops.
			s.b.detach(s)
			return
		}
	}
}
