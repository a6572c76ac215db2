// Package api with the maveo hub client interface definition
package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/maveohome/maveolib-go/pkg/jsonrpc"
	"github.com/maveohome/maveolib-go/pkg/things"
)

// IHubClient interface describing the methods to connect to a maveo box and
// work with the things it manages.
// Intended for entity layers and integrations that consume hub state and
// invoke hub actions.
type IHubClient interface {

	// Connect establishes the command connection and runs the handshake and
	// authentication sequence. When the hub requires authentication and no
	// token is known yet, this blocks in push-button pairing until the
	// button on the hub is pressed or ctx is cancelled. Call once per
	// client instance.
	// Returns the bearer token, empty when the hub needs no authentication.
	Connect(ctx context.Context) (string, error)

	// Connected tells whether Connect completed and Disconnect was not called
	Connected() bool

	// Disconnect stops the notification listener, awaiting its termination,
	// and closes the command connection. Safe to call more than once.
	Disconnect()

	// SendCommand submits one request over the command channel and blocks
	// until its response arrives. This is the single RPC primitive all
	// higher level operations use.
	//  method is the namespaced method name, e.g. "Integrations.GetThings"
	//  params may be nil; it is omitted from the wire when empty
	SendCommand(ctx context.Context, method string, params map[string]interface{}) (*jsonrpc.Response, error)

	// TestConnection probes hub reachability, independent of this client's
	// own connection. Intended for setup validation.
	TestConnection(host string, port int, timeout time.Duration) bool

	// RegisterNotificationHandler adds a handler for one notification name.
	// Handlers for the same name run in registration order.
	RegisterNotificationHandler(name string, handler NotificationHandler) HandlerID

	// UnregisterNotificationHandler removes a previously registered handler
	UnregisterNotificationHandler(id HandlerID)

	// StartNotificationListener starts the background WebSocket listener
	// that feeds registered handlers and the state caches. A no-op when the
	// listener already runs.
	StartNotificationListener() error

	// StopNotificationListener stops the listener and returns once its
	// background routine has fully terminated. Safe to call more than once.
	StopNotificationListener()

	// Discover loads vendors, thing classes and things from the hub and
	// seeds each thing's state cache with the current values.
	Discover(ctx context.Context) error

	// Things returns all discovered things
	Things() []*things.Thing

	// Thing returns a discovered thing by id, nil when unknown
	Thing(id uuid.UUID) *things.Thing

	// ThingClass returns a discovered thing class by id, nil when unknown
	ThingClass(id uuid.UUID) *things.ThingClass

	// Vendor returns a discovered vendor by id, nil when unknown
	Vendor(id uuid.UUID) *things.Vendor

	// DescribeThing resolves a thing's name, manufacturer and model through
	// its thing class and vendor, for device registries and diagnostics.
	DescribeThing(id uuid.UUID) (name string, manufacturer string, model string)

	// ExecuteAction invokes an action on a thing.
	//  params carries the action's parameter values, may be nil
	ExecuteAction(ctx context.Context, thingID uuid.UUID, actionTypeID uuid.UUID, params []things.ActionParam) error

	// GetStateValue fetches one current state value from the hub, bypassing
	// the cache. Useful to re-seed after the notification channel was down.
	GetStateValue(ctx context.Context, thingID uuid.UUID, stateTypeID uuid.UUID) (interface{}, error)

	// GetStateTypes fetches the state schema of a thing class
	GetStateTypes(ctx context.Context, thingClassID uuid.UUID) ([]things.StateType, error)

	// GetActionTypes fetches the action schema of a thing class
	GetActionTypes(ctx context.Context, thingClassID uuid.UUID) ([]things.ActionType, error)

	// HelloInfo returns the hub identification from the last handshake
	HelloInfo() HelloInfo

	// Token returns the bearer token in use, empty when none
	Token() string
}
