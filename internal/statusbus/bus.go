// Package statusbus fans a single stream of models.StatusEvent out to many
// subscribers (the console logger, a web client, the HITL prompt, an audit
// writer) without letting a slow subscriber stall the producers. It follows
// the same non-blocking fan-out shape the teacher's console logger and the
// reference event-loop implementation both use: a buffered channel per
// subscriber. A subscriber whose buffer is full loses its oldest buffered
// event instead of blocking the producer; the bus sends no marker for the
// loss, which shows up only as a jump in Seq that the subscriber can measure
// with Gap.
package statusbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/harrison/corerun/internal/models"
)

// DefaultBuffer is the per-subscriber channel capacity. Chosen generously
// enough that a console renderer redrawing at 60fps never backs up under
// normal wave sizes; a subscriber that falls behind this loses its oldest
// events (visible only as a Seq gap, see Gap), never blocking the publisher.
const DefaultBuffer = 256

// Bus is a multi-producer, multi-consumer fan-out of StatusEvents. The zero
// value is not usable; construct with New.
type Bus struct {
	seq   atomic.Uint64
	mu    sync.Mutex
	subs  map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	ch      chan models.StatusEvent
	dropped uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a new consumer and returns its channel plus an unsubscribe
// function. Subscribers that join late do not receive events published before
// they subscribed — there is no replay buffer, matching the live-dashboard use
// case this exists for.
func (b *Bus) Subscribe() (<-chan models.StatusEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan models.StatusEvent, DefaultBuffer)}
	b.subs[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			close(s.ch)
			delete(b.subs, id)
		}
	}
	return sub.ch, unsubscribe
}

// Publish assigns the next sequence number and fans evt out to every current
// subscriber. It never blocks: a subscriber whose buffer is full has its
// oldest buffered event evicted to make room, rather than this newest one
// being dropped — a lagging consumer should see where things ended up, not
// get stuck replaying ever-staler history. The caller is almost always a
// wave executor goroutine that must keep running tasks regardless of how
// fast anyone is watching.
func (b *Bus) Publish(evt models.StatusEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// Assigned under the lock so every subscriber receives events in Seq order.
	evt.Seq = b.seq.Add(1)
	for _, sub := range b.subs {
		b.send(sub, evt)
	}
}

// send delivers evt to sub, evicting the oldest buffered event first if the
// channel is full. Only Publish ever sends on sub.ch (always under b.mu), so
// the only concurrent actor is the subscriber's own receiver — the retry
// after eviction handles the case where that receiver drains a slot between
// the two selects.
func (b *Bus) send(sub *subscriber, evt models.StatusEvent) {
	select {
	case sub.ch <- evt:
		return
	default:
	}

	select {
	case <-sub.ch:
		sub.dropped++
	default:
	}

	select {
	case sub.ch <- evt:
	default:
		sub.dropped++
	}
}

// Close tears down every subscriber channel. Call once, at orchestrator
// shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Dropped returns how many events have been silently dropped across all
// subscribers so far, for diagnostics.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total uint64
	for _, sub := range b.subs {
		total += sub.dropped
	}
	return total
}

// Gap tells a subscriber how many events it missed between the last Seq it
// processed and evt, the one it just received. Because Seq is a single
// monotonic counter shared by every subscriber, a gap is detected locally
// with no bus-side bookkeeping: if evt.Seq is more than lastSeq+1, the
// difference is exactly how many events this subscriber's buffer dropped.
// Callers should log a lag_dropped marker of their own when Gap > 0 rather
// than silently rendering the jump.
func Gap(lastSeq, evtSeq uint64) uint64 {
	if lastSeq == 0 || evtSeq <= lastSeq+1 {
		return 0
	}
	return evtSeq - lastSeq - 1
}
