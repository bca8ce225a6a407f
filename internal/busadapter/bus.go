// Package busadapter defines the narrow bus-surface the Control
// Façade needs (object publication, verb dispatch, property-change
// signaling) plus a concrete loopback HTTP reference adapter, since no
// real message-bus transport is part of this repository's scope.
package busadapter

// Publisher is what the façade needs from a bus transport: announce a
// Device's object path as it becomes controllable, and withdraw it
// once the Device disappears.
type Publisher interface {
	Publish(path, udn string)
	Unpublish(path string)
}

// PropertySignaler forwards a property-change notification onward to
// bus subscribers, the bus analogue of a GENA event the registry
// received from a renderer.
type PropertySignaler interface {
	SignalPropertyChanged(path, name string, value any)
}
