package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/application/services"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
)

const sseHeartbeatInterval = 30 * time.Second

// SSEHandler streams queue events to operator screens
type SSEHandler struct {
	eventBus  providers.EventBus
	clock     *services.Clock
	heartbeat time.Duration
	clients   map[string]map[chan *entities.QueueEvent]bool // channel -> clients
	mu        sync.RWMutex
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus, clock *services.Clock) *SSEHandler {
	if clock == nil {
		clock = services.NewClock(nil, nil)
	}
	return &SSEHandler{
		eventBus:  eventBus,
		clock:     clock,
		heartbeat: sseHeartbeatInterval,
		clients:   make(map[string]map[chan *entities.QueueEvent]bool),
	}
}

// StreamQueueUpdates handles GET /api/stream/queue. By default only today's
// queue is streamed; ?scope=all also carries batch and other days' events.
func (h *SSEHandler) StreamQueueUpdates(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context())

	channel := providers.GetQueueDayChannel(h.clock.Today())
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "today":
	case "all":
		channel = providers.EventChannelQueueUpdates
	default:
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("unknown scope %q", scope))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventChan, err := h.eventBus.Subscribe(r.Context(), channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("failed to subscribe to queue events")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan *entities.QueueEvent, 10)
	h.registerClient(channel, clientChan)
	defer h.unregisterClient(channel, clientChan)

	h.sendEvent(w, "connected", map[string]interface{}{
		"channel":   channel,
		"timestamp": time.Now(),
	})
	flusher.Flush()

	busClosed := make(chan struct{})
	go func() {
		h.forwardEvents(r.Context(), eventChan, clientChan)
		close(busClosed)
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Str("channel", channel).Msg("queue stream client disconnected")
			return
		case <-busClosed:
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event := <-clientChan:
			if event == nil {
				continue
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
		}
	}
}

// forwardEvents copies bus events to the client until ctx is done or the bus
// closes the subscription. A slow client drops events rather than stalling
// the bus.
func (h *SSEHandler) forwardEvents(ctx context.Context, eventChan <-chan *entities.QueueEvent, clientChan chan<- *entities.QueueEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			select {
			case clientChan <- event:
			default:
			}
		}
	}
}

func (h *SSEHandler) registerClient(channel string, clientChan chan *entities.QueueEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[channel] == nil {
		h.clients[channel] = make(map[chan *entities.QueueEvent]bool)
	}
	h.clients[channel][clientChan] = true
}

func (h *SSEHandler) unregisterClient(channel string, clientChan chan *entities.QueueEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.clients[channel]; exists {
		delete(clients, clientChan)
		if len(clients) == 0 {
			delete(h.clients, channel)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		observability.GetLogger().Warn().Err(err).Msg("failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
