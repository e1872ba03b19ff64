// Package event provides the observability surface: every attempt and state
// transition is published as a structured event for external consumption.
package event

import (
	"sync"
	"time"
)

// Type identifies the kind of event being published.
type Type string

const (
	// TypeTaskStarted is published when a task enters its first stage.
	TypeTaskStarted Type = "task_started"
	// TypeStateChanged is published on every task status transition.
	TypeStateChanged Type = "state_changed"
	// TypeAttemptRecorded is published when an attempt is appended to a
	// task's log.
	TypeAttemptRecorded Type = "attempt_recorded"
	// TypeTaskCompleted is published when a task reaches completed.
	TypeTaskCompleted Type = "task_completed"
	// TypeTaskAborted is published when a task reaches aborted.
	TypeTaskAborted Type = "task_aborted"
	// TypeTaskFinalized carries the final artifact of a completed task for
	// the external commit collaborator. Never published for a task that
	// did not complete.
	TypeTaskFinalized Type = "task_finalized"
)

// Event is one structured observability record.
type Event struct {
	Type      Type
	TaskID    string
	Stage     string
	Attempt   int
	Outcome   string
	Timestamp time.Time
	Data      map[string]any
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe fan-out. Events are delivered
// asynchronously via buffered channels; if a subscriber's channel is full the
// event is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]chan Event
	bufferSize  int
}

// NewBus creates an event bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[Type][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for one event type and returns an
// unsubscribe function. The subscriber runs on its own goroutine; a panic in
// it is swallowed so one bad consumer cannot disrupt delivery to others.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[t] = append(b.subscribers[t], ch)

	go func() {
		for ev := range ch {
			func() {
				defer func() {
					_ = recover()
				}()
				fn(ev)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				b.subscribers[t] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish sends the event to all subscribers of its type without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	for _, ch := range b.subscribers[ev.Type] {
		select {
		case ch <- ev:
		default:
		}
	}
}
