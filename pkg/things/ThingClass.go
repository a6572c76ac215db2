package things

import (
	"github.com/google/uuid"
)

// Vendor is a device maker known to the hub. Its display name is what
// device registries show as the manufacturer.
type Vendor struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
}

// ParamType describes one parameter of an action or event
type ParamType struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Type string    `json:"type"`
}

// StateType describes one readable value a thing of a class exposes
type StateType struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Type        string    `json:"type"`
	Unit        string    `json:"unit,omitempty"`
}

// ActionType describes one operation a thing of a class can execute
type ActionType struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"displayName"`
	ParamTypes  []ParamType `json:"paramTypes,omitempty"`
}

// EventType describes one event a thing of a class can emit
type EventType struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"displayName"`
	ParamTypes  []ParamType `json:"paramTypes,omitempty"`
}

// ThingClass is the hub's schema for a device type. Entities look up state
// and action types by display name, the ids differ per hub firmware.
type ThingClass struct {
	ID          uuid.UUID    `json:"id"`
	VendorID    uuid.UUID    `json:"vendorId"`
	Name        string       `json:"name"`
	DisplayName string       `json:"displayName"`
	StateTypes  []StateType  `json:"stateTypes,omitempty"`
	ActionTypes []ActionType `json:"actionTypes,omitempty"`
	EventTypes  []EventType  `json:"eventTypes,omitempty"`
}

// StateType returns the class's state type with the given display name,
// nil when the class has none
func (tc *ThingClass) StateType(displayName string) *StateType {
	for index := range tc.StateTypes {
		if tc.StateTypes[index].DisplayName == displayName {
			return &tc.StateTypes[index]
		}
	}
	return nil
}

// ActionType returns the class's action type with the given display name,
// nil when the class has none
func (tc *ThingClass) ActionType(displayName string) *ActionType {
	for index := range tc.ActionTypes {
		if tc.ActionTypes[index].DisplayName == displayName {
			return &tc.ActionTypes[index]
		}
	}
	return nil
}

// StateValue pairs a state type with its current value, as the hub reports
// them in GetStateValues responses and in things' embedded states.
type StateValue struct {
	StateTypeID uuid.UUID   `json:"stateTypeId"`
	Value       interface{} `json:"value"`
}

// ActionParam carries one parameter value for ExecuteAction
type ActionParam struct {
	ParamTypeID uuid.UUID   `json:"paramTypeId"`
	Value       interface{} `json:"value"`
}
