package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const Topic = "waifu"

const subscriberBuffer = 64

// Bus publishes events as JSON watermill messages on an in-process
// gochannel pubsub. Every message carries a monotonically increasing
// sequence_number in its metadata.
//
// Publishing waits for subscribers to take each message, so Emit blocks
// once a subscriber is more than subscriberBuffer events behind. Without
// subscribers Emit never blocks.
type Bus struct {
	logger watermill.LoggerAdapter
	pubsub *gochannel.GoChannel

	mu             sync.Mutex
	sequenceNumber uint64
}

var _ Emitter = (*Bus)(nil)

type BusOption func(*Bus)

func WithLogger(logger watermill.LoggerAdapter) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

func NewBus(options ...BusOption) *Bus {
	ret := &Bus{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}
	// Blocking until ack keeps delivery in publish order and lets Close
	// flush what was already published.
	ret.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            subscriberBuffer,
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	return ret
}

// Emit logs publish failures instead of returning them. It blocks while a
// lagging subscriber catches up.
func (b *Bus) Emit(ctx context.Context, e Event) {
	if err := b.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("failed to publish event")
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not encode event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", b.sequenceNumber))
	msg.Metadata.Set("event_type", string(e.Type))
	b.sequenceNumber++

	log.Trace().
		Str("event_type", string(e.Type)).
		Str("persona_id", e.PersonaID).
		Msg("publishing event")
	return b.pubsub.Publish(Topic, msg)
}

// Subscribe returns a channel of decoded events. The channel closes when
// ctx is done or the bus is closed. Publishers block once a subscriber
// falls more than subscriberBuffer events behind.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, errors.Wrap(err, "could not subscribe")
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				log.Error().Err(err).Str("event_id", msg.UUID).Msg("could not decode event")
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	log.Debug().Msg("Closing event bus")
	return b.pubsub.Close()
}
