package websocket

import (
	"log"

	"github.com/shuttle-pass/backend/internal/reservation"
)

// EventBroadcaster handles broadcasting WebSocket events. It implements
// the notification hooks the reservation orchestrator calls when pass or
// schedule state changes.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// PassIssued sends a pass.issued event. Pass-state events are retained by
// the hub so late-joining clients receive the latest one on connect.
func (b *EventBroadcaster) PassIssued(pass *reservation.BoardingPass) {
	b.broadcastSticky(NewMessage(TypePassIssued, passPayload(pass, false)))
}

// PassReversed sends a pass.reversed event. cancelFailed marks that the
// previous pass could not be withdrawn on the remote side.
func (b *EventBroadcaster) PassReversed(pass *reservation.BoardingPass, cancelFailed bool) {
	b.broadcastSticky(NewMessage(TypePassReversed, passPayload(pass, cancelFailed)))
}

// PassCancelled sends a pass.cancelled event.
func (b *EventBroadcaster) PassCancelled() {
	b.broadcastSticky(NewMessage(TypePassCancelled, struct{}{}))
}

// ScheduleRefreshed sends a schedule.refreshed event.
func (b *EventBroadcaster) ScheduleRefreshed(routes int, trigger string) {
	b.broadcast(NewMessage(TypeScheduleRefreshed, ScheduleRefreshedPayload{
		Routes:  routes,
		Trigger: trigger,
	}))
}

// RefreshFailed sends a schedule.refresh_error event.
func (b *EventBroadcaster) RefreshFailed(trigger string, err error) {
	b.broadcast(NewMessage(TypeRefreshError, RefreshErrorPayload{
		Trigger: trigger,
		Message: err.Error(),
	}))
}

func passPayload(pass *reservation.BoardingPass, cancelFailed bool) PassPayload {
	return PassPayload{
		RouteID:      pass.RouteID,
		RouteName:    pass.RouteName,
		Date:         pass.Date,
		StartTime:    pass.StartTime,
		IsPast:       pass.IsPast,
		CancelFailed: cancelFailed,
	}
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	b.hub.Broadcast(data)
}

// broadcastSticky sends a message and retains it for replay on connect.
func (b *EventBroadcaster) broadcastSticky(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	b.hub.BroadcastSticky(data)
}
