package hubclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maveohome/maveolib-go/api"
	"github.com/maveohome/maveolib-go/pkg/discovery"
	"github.com/maveohome/maveolib-go/pkg/hubconfig"
	"github.com/maveohome/maveolib-go/pkg/jsonrpc"
	"github.com/maveohome/maveolib-go/pkg/things"
	"github.com/maveohome/maveolib-go/pkg/wsclient"
)

// HubClient is the facade for one maveo box. It owns the command channel,
// the notification listener, the handler registry and the tables of
// discovered things. Two channels run concurrently: commands are strictly
// request/response while notifications stream in the background and land in
// the per-thing state caches.
type HubClient struct {
	address    string
	wsURL      string
	deviceName string

	// updateMutex guards the connection lifecycle fields
	updateMutex sync.Mutex
	channel     *jsonrpc.Channel
	mode        jsonrpc.ConnectionMode
	hello       api.HelloInfo
	token       string
	connected   bool

	// tableMutex guards the discovery tables
	tableMutex   sync.RWMutex
	things       map[uuid.UUID]*things.Thing
	thingClasses map[uuid.UUID]*things.ThingClass
	vendors      map[uuid.UUID]*things.Vendor

	registry          *HandlerRegistry
	listener          api.INotificationListener
	retryUnauthorized bool
}

// Make sure the facade implements the public contract
var _ api.IHubClient = (*HubClient)(nil)

// NewHubClient creates a client for the hub at the given host.
//  port is the command endpoint, hubconfig.DefaultPort on a maveo box
//  wsPort is the notification endpoint, hubconfig.DefaultWebSocketPort
//  deviceName identifies this client in the hub's token overview
func NewHubClient(host string, port int, wsPort int, deviceName string) *HubClient {
	hubClient := &HubClient{
		address:           fmt.Sprintf("%s:%d", host, port),
		wsURL:             fmt.Sprintf("ws://%s:%d", host, wsPort),
		deviceName:        deviceName,
		things:            make(map[uuid.UUID]*things.Thing),
		thingClasses:      make(map[uuid.UUID]*things.ThingClass),
		vendors:           make(map[uuid.UUID]*things.Vendor),
		registry:          NewHandlerRegistry(),
		retryUnauthorized: true,
	}
	hubClient.listener = wsclient.NewNotificationListener(
		hubClient.wsURL, hubClient.Token, hubClient.authRequired, hubClient.registry.Dispatch)
	hubClient.registry.Register(api.NotificationStateChanged, hubClient.onStateChanged)
	return hubClient
}

// NewHubClientFromConfig creates a client from a loaded configuration,
// including a stored token when the config carries one. A token file takes
// precedence over the literal token value.
func NewHubClientFromConfig(config *hubconfig.HubConfig) *HubClient {
	hubClient := NewHubClient(config.Host, config.Port, config.WebSocketPort, config.DeviceName)
	token := config.Token
	if config.TokenFile != "" {
		fileToken, err := ioutil.ReadFile(config.TokenFile)
		if err != nil {
			logrus.Warningf("NewHubClientFromConfig: unable to read token file %s: %s",
				config.TokenFile, err)
		} else {
			token = strings.TrimSpace(string(fileToken))
		}
	}
	if token != "" {
		hubClient.SetToken(token)
	}
	return hubClient
}

// SetToken supplies a bearer token from an earlier pairing so Connect can
// skip the push-button wait. Call before Connect.
func (hubClient *HubClient) SetToken(token string) {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	hubClient.token = token
	if hubClient.channel != nil {
		hubClient.channel.SetToken(token)
	}
}

// Token returns the bearer token in use, empty when none
func (hubClient *HubClient) Token() string {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	return hubClient.token
}

// HelloInfo returns the hub identification from the last handshake
func (hubClient *HubClient) HelloInfo() api.HelloInfo {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	return hubClient.hello
}

// Connected tells whether Connect completed and Disconnect was not called
func (hubClient *HubClient) Connected() bool {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	return hubClient.connected
}

// ConnectionMode tells how the command connection was established
func (hubClient *HubClient) ConnectionMode() jsonrpc.ConnectionMode {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	return hubClient.mode
}

// SetUnauthorizedRetry controls whether a command rejected as unauthorized
// triggers one re-pairing and resubmit. Enabled by default; it only ever
// applies when the hub offers push-button authentication.
func (hubClient *HubClient) SetUnauthorizedRetry(enabled bool) {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	hubClient.retryUnauthorized = enabled
}

// Connect establishes the command connection, plain TCP with a single
// unverified TLS retry, and runs the authentication sequence from the Hello
// flags:
//  - no authentication required: done, no token is ever attached
//  - initial setup required: fails, this client needs an initialized hub
//  - no push-button auth: fails, password logins are not supported
//  - token already known: done, the token is reused
//  - otherwise push-button pairing runs and blocks until the button on the
//    hub is pressed or ctx is cancelled
// Returns the bearer token, empty when the hub needs no authentication.
// Call once per client instance.
func (hubClient *HubClient) Connect(ctx context.Context) (string, error) {
	hubClient.updateMutex.Lock()
	if hubClient.connected {
		hubClient.updateMutex.Unlock()
		return "", ErrAlreadyConnected
	}
	hubClient.updateMutex.Unlock()

	channel, mode, err := jsonrpc.ConnectChannel(ctx, hubClient.address, hubClient.handshake)
	if err != nil {
		return "", err
	}

	hello := hubClient.HelloInfo()
	if hello.AuthenticationRequired {
		if hello.InitialSetupRequired {
			_ = channel.Close()
			return "", &UnsupportedConfigurationError{Reason: "the hub still requires its initial setup"}
		}
		if !hello.PushButtonAuthAvailable {
			_ = channel.Close()
			return "", &UnsupportedConfigurationError{Reason: "the hub offers no push-button authentication"}
		}
		if hubClient.Token() == "" {
			logrus.Infof("HubClient.Connect: hub requires pairing, press the button on the hub")
			token, err := channel.RequestPushButtonAuth(ctx, hubClient.deviceName)
			if err != nil {
				_ = channel.Close()
				return "", err
			}
			hubClient.updateMutex.Lock()
			hubClient.token = token
			hubClient.updateMutex.Unlock()
			channel.SetToken(token)
		}
	}

	hubClient.updateMutex.Lock()
	hubClient.channel = channel
	hubClient.mode = mode
	hubClient.connected = true
	hubClient.updateMutex.Unlock()
	logrus.Infof("HubClient.Connect: connected to %s over %s", hubClient.address, mode)
	return hubClient.Token(), nil
}

// handshake identifies this client on a fresh connection and records the
// hub's flags. Runs once per transport attempt, so a TLS retry repeats it.
func (hubClient *HubClient) handshake(ctx context.Context, channel *jsonrpc.Channel) error {
	response, err := channel.Send(ctx, jsonrpc.MethodHello, nil)
	if err != nil {
		return err
	}
	var hello api.HelloInfo
	if err = json.Unmarshal(response.Params, &hello); err != nil {
		return &jsonrpc.ProtocolError{Reason: "Invalid Hello response", Cause: err}
	}
	hubClient.updateMutex.Lock()
	hubClient.hello = hello
	token := hubClient.token
	hubClient.updateMutex.Unlock()

	channel.SetAuthRequired(hello.AuthenticationRequired)
	if token != "" {
		channel.SetToken(token)
	}
	logrus.Infof("HubClient.handshake: hub %s %s, protocol %s",
		hello.Server, hello.Version, hello.ProtocolVersion)
	return nil
}

// Disconnect stops the notification listener, awaiting its termination,
// then closes the command connection. Safe to call more than once.
func (hubClient *HubClient) Disconnect() {
	hubClient.listener.Stop()

	hubClient.updateMutex.Lock()
	channel := hubClient.channel
	wasConnected := hubClient.connected
	hubClient.channel = nil
	hubClient.connected = false
	hubClient.updateMutex.Unlock()

	if channel != nil {
		_ = channel.Close()
	}
	if wasConnected {
		hubClient.registry.Close()
		logrus.Infof("HubClient.Disconnect: disconnected from %s", hubClient.address)
	}
}

// SendCommand submits one request and blocks until its response arrives.
// When the hub rejects the token as unauthorized and push-button pairing is
// available, the client pairs again and resubmits a single time.
func (hubClient *HubClient) SendCommand(ctx context.Context, method string,
	params map[string]interface{}) (*jsonrpc.Response, error) {

	channel := hubClient.currentChannel()
	if channel == nil {
		return nil, ErrNotConnected
	}
	response, err := channel.Send(ctx, method, params)
	if err == nil {
		return response, nil
	}
	var cmdErr *jsonrpc.CommandError
	if !errors.As(err, &cmdErr) || !cmdErr.IsUnauthorized() || !hubClient.canRenewPairing() {
		return nil, err
	}
	logrus.Warningf("HubClient.SendCommand: %s rejected as unauthorized, renewing pairing", method)
	token, pairErr := channel.RequestPushButtonAuth(ctx, hubClient.deviceName)
	if pairErr != nil {
		return nil, pairErr
	}
	hubClient.SetToken(token)
	return channel.Send(ctx, method, params)
}

// TestConnection probes hub reachability without touching this client's own
// connection. Intended for setup validation.
func (hubClient *HubClient) TestConnection(host string, port int, timeout time.Duration) bool {
	return discovery.ProbeHub(host, port, timeout)
}

// RegisterNotificationHandler adds a handler for one notification name
func (hubClient *HubClient) RegisterNotificationHandler(name string,
	handler api.NotificationHandler) api.HandlerID {
	return hubClient.registry.Register(name, handler)
}

// UnregisterNotificationHandler removes a previously registered handler
func (hubClient *HubClient) UnregisterNotificationHandler(id api.HandlerID) {
	hubClient.registry.Unregister(id)
}

// StartNotificationListener starts the background WebSocket listener.
// A no-op when it already runs.
func (hubClient *HubClient) StartNotificationListener() error {
	return hubClient.listener.Start()
}

// StopNotificationListener stops the listener and returns once its
// background routine terminated. Safe to call more than once.
func (hubClient *HubClient) StopNotificationListener() {
	hubClient.listener.Stop()
}

// currentChannel returns the command channel, nil when not connected
func (hubClient *HubClient) currentChannel() *jsonrpc.Channel {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	if !hubClient.connected {
		return nil
	}
	return hubClient.channel
}

// canRenewPairing tells whether an unauthorized command may re-pair
func (hubClient *HubClient) canRenewPairing() bool {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	return hubClient.retryUnauthorized &&
		hubClient.hello.AuthenticationRequired &&
		hubClient.hello.PushButtonAuthAvailable
}

// authRequired feeds the notification listener's handshake
func (hubClient *HubClient) authRequired() bool {
	hubClient.updateMutex.Lock()
	defer hubClient.updateMutex.Unlock()
	return hubClient.hello.AuthenticationRequired
}

// onStateChanged routes Integrations.StateChanged into the owning thing's
// state cache. Notifications for unknown things are dropped; they can occur
// before discovery ran.
func (hubClient *HubClient) onStateChanged(params json.RawMessage) {
	var change struct {
		ThingID     uuid.UUID   `json:"thingId"`
		StateTypeID uuid.UUID   `json:"stateTypeId"`
		Value       interface{} `json:"value"`
	}
	if err := json.Unmarshal(params, &change); err != nil {
		logrus.Warningf("HubClient.onStateChanged: malformed params: %s", err)
		return
	}
	thing := hubClient.Thing(change.ThingID)
	if thing == nil {
		logrus.Debugf("HubClient.onStateChanged: unknown thing %s", change.ThingID)
		return
	}
	thing.SetStateValue(change.StateTypeID, change.Value)
}
