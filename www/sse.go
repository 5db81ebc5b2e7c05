package www

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"stockbench/bus"
	"stockbench/notify"
)

type SSEEvent struct {
	Event string
	Data  string
}

type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	select {
	case h.stopChan <- struct{}{}:
	default:
	}
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- evt:
				default:
					// drop if full
				}
			}
			h.mu.RUnlock()
		case <-keepalive.C:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- SSEEvent{Event: "keepalive", Data: "ping"}:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupBusListeners wires inventory events to SSE broadcasts, and to
// the redis bridge when one is configured so the other replicas'
// clients hear about them too.
func (h *EventHub) SetupBusListeners(events *bus.EventBus, bridge *notify.Bridge) {
	emit := func(event, data string) {
		h.Broadcast(event, data)
		if bridge != nil {
			bridge.Publish(event, data)
		}
	}

	events.SubscribeTypes(func(evt bus.Event) {
		ev := evt.Payload.(bus.StagedAdjustedEvent)
		emit("inventory-update", fmt.Sprintf(`{"item_id":%d,"delta":%d,"staged":%d}`, ev.ItemID, ev.Delta, ev.Staged))
	}, bus.EventStagedAdjusted)

	events.SubscribeTypes(func(evt bus.Event) {
		ev := evt.Payload.(bus.StagingCommittedEvent)
		emit("staging-committed", fmt.Sprintf(`{"batch_id":"%s","items":%d}`, ev.BatchID, ev.Items))
	}, bus.EventStagingCommitted)

	if bridge != nil {
		bridge.Listen(h.Broadcast)
	}
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.AddClient()
	defer h.RemoveClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
