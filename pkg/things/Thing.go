// Package things with the device model of a maveo hub: things, their
// classes, and the schema types describing states and actions
package things

import (
	"sync"

	"github.com/google/uuid"
)

// Thing is a device registered on the hub, discovered once per session and
// never destroyed while the session lasts. Its state cache holds the last
// known value per state type, fed by discovery seeding and by StateChanged
// notifications. An absent key means not yet observed, not false or zero.
type Thing struct {
	ID           uuid.UUID `json:"id"`
	ThingClassID uuid.UUID `json:"thingClassId"`
	Name         string    `json:"name"`

	cacheMutex   sync.RWMutex
	states       map[uuid.UUID]interface{}
	listeners    map[int]func(stateTypeID uuid.UUID, value interface{})
	nextListener int
}

// NewThing creates a thing with an empty state cache
func NewThing(id uuid.UUID, thingClassID uuid.UUID, name string) *Thing {
	return &Thing{
		ID:           id,
		ThingClassID: thingClassID,
		Name:         name,
	}
}

// SetStateValue stores the last known value of a state type and invokes the
// change listeners. Each update overwrites; ordering is arrival order.
func (thing *Thing) SetStateValue(stateTypeID uuid.UUID, value interface{}) {
	thing.cacheMutex.Lock()
	if thing.states == nil {
		thing.states = make(map[uuid.UUID]interface{})
	}
	thing.states[stateTypeID] = value
	listeners := make([]func(uuid.UUID, interface{}), 0, len(thing.listeners))
	for _, listener := range thing.listeners {
		listeners = append(listeners, listener)
	}
	thing.cacheMutex.Unlock()

	for _, listener := range listeners {
		listener(stateTypeID, value)
	}
}

// StateValue returns the last known value of a state type.
// The second result is false when the value was never observed.
func (thing *Thing) StateValue(stateTypeID uuid.UUID) (interface{}, bool) {
	thing.cacheMutex.RLock()
	defer thing.cacheMutex.RUnlock()
	value, found := thing.states[stateTypeID]
	return value, found
}

// StateValues returns a copy of the cache
func (thing *Thing) StateValues() map[uuid.UUID]interface{} {
	thing.cacheMutex.RLock()
	defer thing.cacheMutex.RUnlock()
	values := make(map[uuid.UUID]interface{}, len(thing.states))
	for id, value := range thing.states {
		values[id] = value
	}
	return values
}

// OnChange registers a listener invoked after every state cache update.
// Listeners run on the client's dispatch routine.
// Returns the function that removes the listener again.
func (thing *Thing) OnChange(listener func(stateTypeID uuid.UUID, value interface{})) func() {
	thing.cacheMutex.Lock()
	defer thing.cacheMutex.Unlock()
	if thing.listeners == nil {
		thing.listeners = make(map[int]func(uuid.UUID, interface{}))
	}
	id := thing.nextListener
	thing.nextListener++
	thing.listeners[id] = listener

	return func() {
		thing.cacheMutex.Lock()
		defer thing.cacheMutex.Unlock()
		delete(thing.listeners, id)
	}
}
