package store

import (
	"sync"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/beckn/pkg/api"
)

// Feed broadcasts transaction record changes to any number of consumers.
// Consumers only observe events published after they subscribe
type Feed struct {
	topic  topic.Topic[api.TransactionEvent]
	prod   topic.Producer[api.TransactionEvent]
	mu     sync.RWMutex
	closed bool
}

// NewFeed creates an open feed
func NewFeed() *Feed {
	t := caravan.NewTopic[api.TransactionEvent]()
	return &Feed{
		topic: t,
		prod:  t.NewProducer(),
	}
}

// Subscribe returns a consumer of subsequent events. The caller must Close
// the consumer when done
func (f *Feed) Subscribe() topic.Consumer[api.TransactionEvent] {
	return f.topic.NewConsumer()
}

// Publish sends an event to every subscriber. Events published after Close
// are dropped
func (f *Feed) Publish(ev api.TransactionEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	message.Send(f.prod, ev)
}

// Close stops the feed
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.prod.Close()
}
