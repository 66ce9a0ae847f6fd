// Package bus provides the in-process message bus that decouples
// channel adapters, the agent loop, the scheduler, and subagents.
// Messages are routed by topic; every subscriber of a topic receives
// every message published to it, in publish order.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-topic queue depth. Publishers block once
// a topic's queue is full, which propagates backpressure to producers
// instead of dropping messages.
const DefaultCapacity = 1024

// Subscriber channel depth. Kept small so a stalled subscriber stalls
// the topic dispatcher and, through the queue, publishers.
const subBuffer = 16

var ErrBusClosed = errors.New("bus closed")

// Bus is a typed publish/subscribe router. Topics and their dispatch
// goroutines are created lazily on first use.
type Bus struct {
	capacity int

	mu     sync.Mutex
	topics map[Topic]*topicState

	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

type topicState struct {
	queue chan Envelope

	mu     sync.Mutex
	cond   *sync.Cond
	subs   map[int]*Subscription
	nextID int
}

// Subscription is one subscriber's view of a topic. Cancel releases
// it; a cancelled subscription stops receiving and unblocks the
// dispatcher if it was mid-delivery.
type Subscription struct {
	topic   Topic
	id      int
	ch      chan Envelope
	done    chan struct{}
	busDone chan struct{}
	once    sync.Once
	state   *topicState
}

// New creates a bus with the given per-topic queue capacity.
// Non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		topics:   make(map[Topic]*topicState),
		done:     make(chan struct{}),
	}
}

func (b *Bus) topic(t Topic) (*topicState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	ts, ok := b.topics[t]
	if !ok {
		ts = &topicState{
			queue: make(chan Envelope, b.capacity),
			subs:  make(map[int]*Subscription),
		}
		ts.cond = sync.NewCond(&ts.mu)
		b.topics[t] = ts
		b.wg.Add(1)
		go b.dispatch(ts)
	}
	return ts, nil
}

// Publish enqueues msg on its topic. It blocks while the topic queue
// is full and returns early if ctx is cancelled or the bus closes.
func (b *Bus) Publish(ctx context.Context, msg Envelope) error {
	ts, err := b.topic(msg.MessageTopic())
	if err != nil {
		return err
	}
	select {
	case ts.queue <- msg:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a new subscriber for topic. Messages published
// while a topic has no subscribers stay queued until one arrives.
func (b *Bus) Subscribe(topic Topic) (*Subscription, error) {
	ts, err := b.topic(topic)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		topic:   topic,
		ch:      make(chan Envelope, subBuffer),
		done:    make(chan struct{}),
		busDone: b.done,
		state:   ts,
	}
	ts.mu.Lock()
	sub.id = ts.nextID
	ts.nextID++
	ts.subs[sub.id] = sub
	ts.mu.Unlock()
	ts.cond.Broadcast()
	return sub, nil
}

// SubscriberCount reports the number of live subscriptions for topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.Lock()
	ts, ok := b.topics[topic]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.subs)
}

// QueueSize reports the number of messages waiting in a topic's queue.
func (b *Bus) QueueSize(topic Topic) int {
	b.mu.Lock()
	ts, ok := b.topics[topic]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return len(ts.queue)
}

// Close shuts the bus down. Pending publishes and receives unblock
// with ErrBusClosed; undelivered messages are discarded.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.done)
	b.mu.Lock()
	topics := make([]*topicState, 0, len(b.topics))
	for _, ts := range b.topics {
		topics = append(topics, ts)
	}
	b.mu.Unlock()
	for _, ts := range topics {
		ts.cond.Broadcast()
	}
	b.wg.Wait()
}

// dispatch is the per-topic fan-out loop. It parks while the topic has
// no subscribers so queued messages are retained, then delivers each
// message to every subscriber in registration order.
func (b *Bus) dispatch(ts *topicState) {
	defer b.wg.Done()
	for {
		ts.mu.Lock()
		for len(ts.subs) == 0 && !b.closed.Load() {
			ts.cond.Wait()
		}
		ts.mu.Unlock()
		if b.closed.Load() {
			return
		}

		var msg Envelope
		select {
		case msg = <-ts.queue:
		case <-b.done:
			return
		}

		ts.mu.Lock()
		subs := make([]*Subscription, 0, len(ts.subs))
		for i := 0; i < ts.nextID; i++ {
			if s, ok := ts.subs[i]; ok {
				subs = append(subs, s)
			}
		}
		ts.mu.Unlock()

		for _, s := range subs {
			select {
			case s.ch <- msg:
			case <-s.done:
			case <-b.done:
				return
			}
		}
	}
}

// Recv blocks until a message is available, the subscription is
// cancelled, the bus closes, or ctx is cancelled. Messages already
// delivered to this subscription are drained before close is reported.
func (s *Subscription) Recv(ctx context.Context) (Envelope, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	default:
	}
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.done:
		return nil, ErrBusClosed
	case <-s.busDone:
		return nil, ErrBusClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel removes the subscription from its topic. Safe to call more
// than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.state.mu.Lock()
		delete(s.state.subs, s.id)
		s.state.mu.Unlock()
	})
}

// Topic reports which topic the subscription listens on.
func (s *Subscription) Topic() Topic { return s.topic }
