// Package eventstest provides a recording sink for tests.
package eventstest

import (
	"context"
	"sync"

	"payment-platform/internal/events"
)

type Webhook struct {
	MerchantID string
	Event      events.Event
}

// Recorder implements events.Sink and events.WebhookSink in memory.
type Recorder struct {
	mu       sync.Mutex
	events   []events.Event
	webhooks []Webhook
}

func (r *Recorder) Publish(ctx context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) PublishWebhook(ctx context.Context, merchantID string, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks = append(r.webhooks, Webhook{MerchantID: merchantID, Event: ev})
	return nil
}

// Names returns the recorded event names in publish order.
func (r *Recorder) Names() []events.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Name, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

// Events returns the recorded notification events in publish order.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *Recorder) Count(name events.Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

func (r *Recorder) Webhooks() []Webhook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Webhook(nil), r.webhooks...)
}
