// Event bridge: forwards system events from the bus to the WebSocket hub
// so operators can watch dispatch and stream lifecycle live.
package api

import (
	"context"

	"github.com/yutakobayashidev/asobiba/pkg/bus"
	"github.com/yutakobayashidev/asobiba/pkg/logger"
)

// EventBridge connects the system-event bus to the WebSocket hub.
type EventBridge struct {
	bus *bus.Bus
	hub *WSHub
}

// NewEventBridge creates a bridge. The bus may be nil, in which case Run is
// a no-op.
func NewEventBridge(b *bus.Bus, hub *WSHub) *EventBridge {
	return &EventBridge{bus: b, hub: hub}
}

// Run forwards events until ctx is cancelled. Call in a goroutine.
func (eb *EventBridge) Run(ctx context.Context) {
	if eb.bus == nil {
		return
	}
	tap := eb.bus.Subscribe("event-bridge")
	logger.InfoC("events", "Event bridge started, forwarding system events to WebSocket")

	for {
		select {
		case <-ctx.Done():
			logger.InfoC("events", "Event bridge stopped")
			return
		case event, ok := <-tap:
			if !ok {
				return
			}
			eb.hub.Broadcast(event.Type, event.Data)
		}
	}
}
