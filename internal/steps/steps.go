// Package steps is the progress-streaming substrate. Agents emit step events
// keyed by session id; a single consumer per session drains them over SSE.
// Emission never blocks the pipeline: a full queue drops the newest event.
package steps

import (
	"context"
	"sync"
	"time"

	"olympus/internal/logging"
)

// EventType classifies a step event.
type EventType string

const (
	// EventStep is a normal progress update.
	EventStep EventType = "step"
	// EventComplete terminates the stream with the final payload available.
	EventComplete EventType = "complete"
	// EventError terminates the stream after a pipeline failure.
	EventError EventType = "error"
	// EventTimeout is synthesized by the consumer when the stream window
	// elapses; agents never emit it.
	EventTimeout EventType = "timeout"
)

// Event is one progress update from an agent.
type Event struct {
	Type      EventType              `json:"type"`
	Agent     string                 `json:"agent,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// terminal reports whether the event ends its stream.
func (e Event) terminal() bool {
	return e.Type == EventComplete || e.Type == EventError || e.Type == EventTimeout
}

// Bus routes events from emitters to per-session queues.
type Bus struct {
	mu        sync.Mutex
	queues    map[string]chan Event
	queueSize int
	dropped   map[string]int
}

// NewBus creates a bus with the given per-session queue capacity.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Bus{
		queues:    make(map[string]chan Event),
		queueSize: queueSize,
		dropped:   make(map[string]int),
	}
}

// Emit publishes an event for a session. Never blocks: with no queue
// registered the event is dropped outright, and a full queue drops the
// newest event. Emitting never creates queues; only EnsureQueue and Stream
// do, so sessions nobody consumes cannot accumulate state in the bus.
func (b *Bus) Emit(sessionID string, event Event) {
	if sessionID == "" {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	b.mu.Lock()
	q, ok := b.queues[sessionID]
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case q <- event:
	default:
		b.mu.Lock()
		b.dropped[sessionID]++
		n := b.dropped[sessionID]
		b.mu.Unlock()
		logging.Steps("session %s queue full, dropped event (%d total)", sessionID, n)
	}
}

// Step is the common-case emit.
func (b *Bus) Step(sessionID, agent, action string, details map[string]interface{}) {
	b.Emit(sessionID, Event{Type: EventStep, Agent: agent, Action: action, Details: details})
}

// Complete terminates a session's stream successfully.
func (b *Bus) Complete(sessionID string, details map[string]interface{}) {
	b.Emit(sessionID, Event{Type: EventComplete, Details: details})
}

// Error terminates a session's stream with a failure message.
func (b *Bus) Error(sessionID, message string) {
	b.Emit(sessionID, Event{Type: EventError, Details: map[string]interface{}{"message": message}})
}

// Stream drains a session's queue, invoking send per event, until a terminal
// event is sent, the timeout elapses, or ctx is canceled. On timeout a
// synthetic timeout event is delivered before returning. The queue is
// removed when Stream returns; each session supports one consumer.
func (b *Bus) Stream(ctx context.Context, sessionID string, timeout time.Duration, send func(Event) error) error {
	q := b.ensure(sessionID)
	defer b.remove(sessionID)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case event := <-q:
			if err := send(event); err != nil {
				return err
			}
			if event.terminal() {
				return nil
			}

		case <-deadline.C:
			timeoutEvent := Event{
				Type:      EventTimeout,
				Details:   map[string]interface{}{"timeout_seconds": timeout.Seconds()},
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			}
			send(timeoutEvent)
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// EnsureQueue registers a session's queue ahead of its consumer, so events
// emitted before Stream attaches are retained. Idempotent; Stream calls it
// implicitly. A queue created here is only released by Stream returning.
func (b *Bus) EnsureQueue(sessionID string) {
	if sessionID == "" {
		return
	}
	b.ensure(sessionID)
}

// Dropped returns how many events a session lost to overflow.
func (b *Bus) Dropped(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped[sessionID]
}

// DroppedTotal returns overflow losses across all live sessions.
func (b *Bus) DroppedTotal() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.dropped {
		total += n
	}
	return total
}

func (b *Bus) ensure(sessionID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[sessionID]
	if !ok {
		q = make(chan Event, b.queueSize)
		b.queues[sessionID] = q
	}
	return q
}

func (b *Bus) remove(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, sessionID)
	delete(b.dropped, sessionID)
}
