// Package queue implements the reactive queues that carry documents
// between pipeline stages. Each queue owns a dedicated dispatcher
// goroutine holding the FIFO buffer, the single owned consumer and the
// registered effects; everything else talks to it over messages.
package queue

import (
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// mailboxSize bounds the external message channel. Self-scheduled
// dispatches never go through it, so it cannot deadlock on itself.
const mailboxSize = 64

type msgKind int

const (
	msgEnqueue msgKind = iota
	msgDispatchNext
	msgRegisterOwned
	msgReadSeq
	msgReadDirty
	msgRunWithinOwner
	msgStop
)

type message[T any] struct {
	kind     msgKind
	items    []T
	consumer func(T)
	effect   func(seq uint64, dirty bool)
	seqReply chan uint64
	boolRep  chan bool
}

// Queue is a handle to one reactive queue. The zero value is not usable;
// construct with New. Handles are cheap to share: every copy of the
// pointer references the same dispatcher.
type Queue[T any] struct {
	name   string
	msgs   chan message[T]
	done   chan struct{}
	joined chan struct{}
}

// New starts the dispatcher goroutine and returns its handle. The name
// only labels log output.
func New[T any](name string) *Queue[T] {
	q := &Queue[T]{
		name:   name,
		msgs:   make(chan message[T], mailboxSize),
		done:   make(chan struct{}),
		joined: make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Enqueue appends one item. After Stop it returns ErrQueueStopped.
func (q *Queue[T]) Enqueue(item T) error {
	return q.send(message[T]{kind: msgEnqueue, items: []T{item}})
}

// EnqueueMany appends items preserving their order.
func (q *Queue[T]) EnqueueMany(items []T) error {
	if len(items) == 0 {
		return nil
	}
	return q.send(message[T]{kind: msgEnqueue, items: items})
}

// ForEachOwned registers fn as the sole consumer, replacing any prior
// one. Items dispatched while no consumer is registered are dropped.
func (q *Queue[T]) ForEachOwned(fn func(T)) error {
	return q.send(message[T]{kind: msgRegisterOwned, consumer: fn})
}

// Effect registers a side-effect closure observed against the dispatch
// clock and dirty flag. It runs once at registration and again after
// every dispatch.
func (q *Queue[T]) Effect(fn func(seq uint64, dirty bool)) error {
	return q.send(message[T]{kind: msgRunWithinOwner, effect: fn})
}

// ReadSeq returns a snapshot of the dispatch clock.
func (q *Queue[T]) ReadSeq() (uint64, error) {
	reply := make(chan uint64, 1)
	if err := q.send(message[T]{kind: msgReadSeq, seqReply: reply}); err != nil {
		return 0, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-q.done:
		return 0, domain.ErrQueueStopped
	}
}

// ReadDirty returns a snapshot of the dirty flag, true while the buffer
// is non-empty.
func (q *Queue[T]) ReadDirty() (bool, error) {
	reply := make(chan bool, 1)
	if err := q.send(message[T]{kind: msgReadDirty, boolRep: reply}); err != nil {
		return false, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-q.done:
		return false, domain.ErrQueueStopped
	}
}

// Stop shuts the dispatcher down and waits for it to exit. Safe to call
// more than once.
func (q *Queue[T]) Stop() {
	_ = q.send(message[T]{kind: msgStop})
	<-q.joined
}

func (q *Queue[T]) send(m message[T]) error {
	select {
	case <-q.done:
		return domain.ErrQueueStopped
	default:
	}
	select {
	case q.msgs <- m:
		return nil
	case <-q.done:
		return domain.ErrQueueStopped
	}
}

// dispatch is the dispatcher goroutine. It keeps an internal mailbox so
// a self-scheduled dispatch lands behind messages that arrived first,
// preserving arrival order across enqueues, reads and registrations.
func (q *Queue[T]) dispatch() {
	defer close(q.joined)

	var (
		mailbox  []message[T]
		fifo     []T
		seq      uint64
		dirty    bool
		consumer func(T)
		effects  []func(seq uint64, dirty bool)
	)

	runEffects := func() {
		for _, fn := range effects {
			fn(seq, dirty)
		}
	}

	drain := func() {
		for {
			select {
			case m := <-q.msgs:
				mailbox = append(mailbox, m)
			default:
				return
			}
		}
	}

	for {
		drain()
		if len(mailbox) == 0 {
			mailbox = append(mailbox, <-q.msgs)
		}
		m := mailbox[0]
		mailbox = mailbox[1:]

		switch m.kind {
		case msgEnqueue:
			wasEmpty := len(fifo) == 0
			fifo = append(fifo, m.items...)
			dirty = true
			if wasEmpty {
				drain()
				mailbox = append(mailbox, message[T]{kind: msgDispatchNext})
			}

		case msgDispatchNext:
			if len(fifo) == 0 {
				continue
			}
			item := fifo[0]
			fifo = fifo[1:]
			seq++
			dirty = len(fifo) > 0
			q.deliver(consumer, item)
			runEffects()
			if len(fifo) > 0 {
				drain()
				mailbox = append(mailbox, message[T]{kind: msgDispatchNext})
			}

		case msgRegisterOwned:
			consumer = m.consumer

		case msgRunWithinOwner:
			effects = append(effects, m.effect)
			m.effect(seq, dirty)

		case msgReadSeq:
			m.seqReply <- seq

		case msgReadDirty:
			m.boolRep <- dirty

		case msgStop:
			close(q.done)
			return
		}
	}
}

// deliver invokes the consumer, containing panics so the clock keeps
// advancing. Without a consumer the item is dropped.
func (q *Queue[T]) deliver(consumer func(T), item T) {
	if consumer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("queue consumer panicked", "queue", q.name, "panic", r)
		}
	}()
	consumer(item)
}
