package mq

import (
	"context"
	"encoding/json"
	"log"

	"merza/rdx"
)

const eventsChannel = "store-events"

// Event is the payload published for every catalog/order side effect.
type Event struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	SKU        string `json:"sku,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Method     string `json:"method,omitempty"`
}

type Emitter struct {
	Cache *rdx.Cache
}

func NewEmitter(cache *rdx.Cache) *Emitter {
	return &Emitter{Cache: cache}
}

// Emit publishes the event to Redis; failures are logged, never fatal.
// Callers fire these from goroutines after the triggering write committed.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[mq] marshal event %q: %v", event.Name, err)
		return
	}
	if err := e.Cache.Conn.Publish(ctx, eventsChannel, data).Err(); err != nil {
		log.Printf("[mq] publish event %q: %v", event.Name, err)
	}
}

// StartWorker consumes published events and keeps the Redis-side views
// current: the low-stock SKU set for the admin dashboard, and order counters.
// Runs until ctx is cancelled.
func (e *Emitter) StartWorker(ctx context.Context) {
	sub := e.Cache.Conn.Subscribe(ctx, eventsChannel)
	defer sub.Close()
	ch := sub.Channel()

	log.Println("[mq] event worker listening")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("[mq] bad event payload: %v", err)
				continue
			}
			e.handle(ctx, event)
		}
	}
}

func (e *Emitter) handle(ctx context.Context, event Event) {
	switch event.Name {
	case "stock-low":
		if event.SKU == "" {
			return
		}
		if err := e.Cache.SAdd(ctx, "stock:low", event.SKU); err != nil {
			log.Printf("[mq] record low stock %s: %v", event.SKU, err)
		}
	case "stock-replenished":
		if event.SKU == "" {
			return
		}
		if err := e.Cache.SRem(ctx, "stock:low", event.SKU); err != nil {
			log.Printf("[mq] clear low stock %s: %v", event.SKU, err)
		}
	case "order-created":
		if err := e.Cache.Conn.Incr(ctx, "orders:count").Err(); err != nil {
			log.Printf("[mq] bump order counter: %v", err)
		}
	case "product-created", "product-edited", "product-deleted":
		// invalidate the cached product document
		if event.EntityID != "" {
			if _, err := e.Cache.Del(ctx, "product:"+event.EntityID); err != nil {
				log.Printf("[mq] invalidate product cache %s: %v", event.EntityID, err)
			}
		}
	default:
		log.Printf("[mq] event %q observed", event.Name)
	}
}
