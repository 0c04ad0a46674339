package events

import "github.com/kelindar/event"

// StreamTypes maps SSE event names to the bus events streamed under them.
func StreamTypes() map[string]any {
	return map[string]any{
		"session-state":    SessionStateChangedEvent{},
		"capture-saved":    CaptureSavedEvent{},
		"error-reported":   ErrorReportedEvent{},
		"device-discovery": DeviceDiscoveryEvent{},
	}
}

// SubscribeToChannel forwards events of type T into ch for select-based
// consumers such as the SSE handler. Events are dropped while ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAll forwards every type in StreamTypes into ch. The returned
// function drops all of the subscriptions.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[SessionStateChangedEvent](bus, ch),
		SubscribeToChannel[CaptureSavedEvent](bus, ch),
		SubscribeToChannel[ErrorReportedEvent](bus, ch),
		SubscribeToChannel[DeviceDiscoveryEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
