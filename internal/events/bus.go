package events

import (
	"fmt"
	"sync"
	"time"
)

// Logger is the subset of a component logger the bus reports through.
type Logger interface {
	WarnWithContext(message string, context map[string]interface{})
	Error(message string, err error)
}

type nopLogger struct{}

func (nopLogger) WarnWithContext(string, map[string]interface{}) {}
func (nopLogger) Error(string, error)                            {}

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// DefaultEventBus queues events and fans them out to subscribers from a
// single dispatcher goroutine. Handlers run concurrently; Stop waits for them.
type DefaultEventBus struct {
	subscribers map[EventType][]subscription
	mu          sync.RWMutex

	eventQueue chan Event
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	handlers   sync.WaitGroup

	nextSubID SubscriptionID
	logger    Logger
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *DefaultEventBus {
	bus := &DefaultEventBus{
		subscribers: make(map[EventType][]subscription),
		eventQueue:  make(chan Event, bufferSize),
		stopCh:      make(chan struct{}),
		nextSubID:   1,
		logger:      nopLogger{},
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// SetLogger routes dropped-event and handler-panic reports to logger
func (eb *DefaultEventBus) SetLogger(logger Logger) *DefaultEventBus {
	eb.logger = logger
	return eb
}

// Subscribe registers a handler for a specific event type
func (eb *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) SubscriptionID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subID := eb.nextSubID
	eb.nextSubID++
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: subID, handler: handler})
	return subID
}

// Unsubscribe removes a subscription by ID
func (eb *DefaultEventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for eventType, subs := range eb.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				eb.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish queues an event, blocking while the queue is full
func (eb *DefaultEventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-eb.stopCh:
		eb.logger.WarnWithContext("dropped event, bus stopped", map[string]interface{}{"type": event.Type})
		return
	default:
	}

	select {
	case eb.eventQueue <- event:
	case <-eb.stopCh:
		eb.logger.WarnWithContext("dropped event, bus stopped", map[string]interface{}{"type": event.Type})
	}
}

// PublishAsync sends an event without blocking the caller
func (eb *DefaultEventBus) PublishAsync(event Event) {
	go eb.Publish(event)
}

// Stop drains queued events, waits for running handlers and stops the bus.
// Safe to call more than once.
func (eb *DefaultEventBus) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.stopCh)
		eb.wg.Wait()
		eb.handlers.Wait()
	})
}

func (eb *DefaultEventBus) processEvents() {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.eventQueue:
			eb.dispatch(event)

		case <-eb.stopCh:
			for {
				select {
				case event := <-eb.eventQueue:
					eb.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *DefaultEventBus) dispatch(event Event) {
	eb.mu.RLock()
	subs := eb.subscribers[event.Type]
	handlers := make([]EventHandler, len(subs))
	for i, sub := range subs {
		handlers[i] = sub.handler
	}
	eb.mu.RUnlock()

	for _, handler := range handlers {
		eb.handlers.Add(1)
		go eb.safeHandlerCall(handler, event)
	}
}

func (eb *DefaultEventBus) safeHandlerCall(handler EventHandler, event Event) {
	defer eb.handlers.Done()
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error(fmt.Sprintf("handler panic for event %s", event.Type), fmt.Errorf("%v", r))
		}
	}()

	handler(event)
}

// GetSubscriberCount returns the number of subscribers for an event type
func (eb *DefaultEventBus) GetSubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[eventType])
}
