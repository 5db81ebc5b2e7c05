// Package notify replicates inventory change events across stockbench
// instances over a redis pub/sub channel, so SSE clients see staging
// activity no matter which replica handled it. It carries events only;
// item state always comes from the store.
package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type envelope struct {
	Origin string `json:"origin"`
	Event  string `json:"event"`
	Data   string `json:"data"`
}

type Bridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	cancel     context.CancelFunc
}

func New(client *redis.Client, channel string) *Bridge {
	return &Bridge{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
	}
}

// Publish forwards a locally produced event to the other instances.
// Redis being down is logged and otherwise ignored; the local SSE path
// already delivered the event.
func (b *Bridge) Publish(event, data string) {
	payload, err := json.Marshal(envelope{Origin: b.instanceID, Event: event, Data: data})
	if err != nil {
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, payload).Err(); err != nil {
		log.Printf("notify: publish %s: %v", event, err)
	}
}

// Listen delivers events published by other instances to fn. Own
// events are filtered out by instance id so a publish never echoes
// back into the local fan-out.
func (b *Bridge) Listen(fn func(event, data string)) {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	sub := b.client.Subscribe(ctx, b.channel)
	go func() {
		defer sub.Close()
		for msg := range sub.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("notify: bad envelope: %v", err)
				continue
			}
			if env.Origin == b.instanceID {
				continue
			}
			fn(env.Event, env.Data)
		}
	}()
}

func (b *Bridge) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}
