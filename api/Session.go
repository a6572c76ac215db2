// Package api with the public maveo hub client contract shared by entity
// layers and integrations
package api

import (
	"encoding/json"
)

// Method names in the Integrations namespace of the hub protocol
const (
	MethodGetVendors      = "Integrations.GetVendors"
	MethodGetThingClasses = "Integrations.GetThingClasses"
	MethodGetThings       = "Integrations.GetThings"
	MethodGetStateTypes   = "Integrations.GetStateTypes"
	MethodGetActionTypes  = "Integrations.GetActionTypes"
	MethodGetStateValue   = "Integrations.GetStateValue"
	MethodGetStateValues  = "Integrations.GetStateValues"
	MethodExecuteAction   = "Integrations.ExecuteAction"
)

// NotificationStateChanged carries {thingId, stateTypeId, value} whenever a
// thing's state moves. It is the feed that keeps the state caches current.
const NotificationStateChanged = "Integrations.StateChanged"

// HelloInfo is what the hub reports in its JSONRPC.Hello response. The three
// flags determine the authentication path; the rest identifies the hub.
type HelloInfo struct {
	Server                  string `json:"server"`
	Name                    string `json:"name"`
	Version                 string `json:"version"`
	ProtocolVersion         string `json:"protocol version"`
	Language                string `json:"language"`
	InitialSetupRequired    bool   `json:"initialSetupRequired"`
	AuthenticationRequired  bool   `json:"authenticationRequired"`
	PushButtonAuthAvailable bool   `json:"pushButtonAuthAvailable"`
}

// NotificationHandler receives the params of one notification.
// Handlers run on the client's dispatch routine, not on the socket reader;
// a panicking handler is logged and does not affect other handlers.
type NotificationHandler func(params json.RawMessage)

// HandlerID identifies one registered notification handler. Zero is never
// issued and unregisters nothing.
type HandlerID int
