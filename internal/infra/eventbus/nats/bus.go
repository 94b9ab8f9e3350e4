// Package nats is the distributed eventbus.Bus adapter: every Publish goes
// out over a NATS JetStream subject, and every subscribed handler is driven
// by messages arriving back off that subject (including ones published by
// other processes), rather than by a direct in-process call. Grounded on
// the teacher's internal/infrastructure/messaging/nats package (Publisher/
// Subscriber pair over watermill-nats), generalized from the teacher's
// raw-topic/payload API into a drop-in eventbus.Bus satisfying the same
// Subscribe/Publish/PublishSync surface the in-process eventbus.EventBus
// does.
package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

const subject = "flowcraft.events"

// Bus publishes FlowcraftEvents to a NATS JetStream subject and dispatches
// messages arriving off it to locally registered handlers, satisfying
// eventbus.Bus.
type Bus struct {
	publisher  *wmnats.Publisher
	subscriber *wmnats.Subscriber
	logger     watermill.LoggerAdapter

	mu       sync.RWMutex
	handlers map[string][]eventbus.Handler
}

// New connects to natsURL, ensures the event stream exists, and starts
// consuming it in the background.
func New(ctx context.Context, natsURL string, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	nc, err := natsgo.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}
	if err := ensureStream(js); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{URL: natsURL, Marshaler: wmnats.GobMarshaler{}}, logger)
	if err != nil {
		return nil, fmt.Errorf("new publisher: %w", err)
	}
	sub, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:         natsURL,
		Unmarshaler: wmnats.GobMarshaler{},
		SubscribersCount: 1,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("new subscriber: %w", err)
	}

	b := &Bus{publisher: pub, subscriber: sub, logger: logger, handlers: make(map[string][]eventbus.Handler)}

	msgs, err := sub.Subscribe(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	go b.consume(ctx, msgs)

	return b, nil
}

func ensureStream(js natsgo.JetStreamContext) error {
	const streamName = "flowcraft-events"
	if _, err := js.StreamInfo(streamName); err == nil {
		return nil
	}
	_, err := js.AddStream(&natsgo.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject + ".>"},
		Storage:  natsgo.FileStorage,
		Replicas: 1,
	})
	return err
}

func (b *Bus) consume(ctx context.Context, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			event, err := b.decode(msg.Payload)
			if err != nil {
				b.logger.Error("failed to decode event", err, nil)
				msg.Nack()
				continue
			}
			b.dispatch(msg.Context(), event)
			msg.Ack()
		}
	}
}

func (b *Bus) decode(payload []byte) (eventbus.Event, error) {
	return eventbus.Decode(payload)
}

func (b *Bus) dispatch(ctx context.Context, event eventbus.Event) {
	b.mu.RLock()
	handlers := append(append([]eventbus.Handler{}, b.handlers[event.EventType()]...), b.handlers["*"]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.logger.Error("event handler failed", err, watermill.LogFields{"event_type": event.EventType()})
		}
	}
}

// Subscribe registers a local handler for eventType ("*" for all types).
func (b *Bus) Subscribe(eventType string, handler eventbus.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish publishes event to NATS; delivery back to this process's own
// handlers happens asynchronously via the background consumer, so Publish
// itself never blocks on handler execution.
func (b *Bus) Publish(ctx context.Context, event eventbus.Event) error {
	return b.publish(event)
}

// PublishSync behaves identically to Publish: ordering across a distributed
// bus is a property of the transport (NATS JetStream preserves per-subject
// publish order), not something this adapter can additionally guarantee by
// blocking on local delivery.
func (b *Bus) PublishSync(ctx context.Context, event eventbus.Event) error {
	return b.publish(event)
}

func (b *Bus) publish(event eventbus.Event) error {
	data, err := eventbus.Encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	return b.publisher.Publish(subject, msg)
}

// Close shuts down the publisher and subscriber.
func (b *Bus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}
	return b.subscriber.Close()
}
