package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventTrackerChanged = "tracker-change"
	RealtimeEventSaveFailed     = "save-failed"
	realtimeEventHeartbeat      = "heartbeat"
	realtimeSourceBackend       = "deckelo"
)

type RealtimeMessage struct {
	EventType string
	Decks     int
	Matches   int
	Reason    string
	Timestamp time.Time
}

// RealtimeDispatcher fans tracker events out to the open event streams. Slow subscribers
// miss messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount returns the number of open subscriptions.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}

// PublishTrackerChange announces a new tracker state.
func (d *RealtimeDispatcher) PublishTrackerChange(decks, matches int, at time.Time) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventTrackerChanged,
		Decks:     decks,
		Matches:   matches,
		Timestamp: at,
	})
}

// PublishSaveFailure announces that the latest changes did not reach storage.
func (d *RealtimeDispatcher) PublishSaveFailure(cause error, at time.Time) {
	reason := "save_failed"
	if cause != nil {
		reason = cause.Error()
	}
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventSaveFailed,
		Reason:    reason,
		Timestamp: at,
	})
}
