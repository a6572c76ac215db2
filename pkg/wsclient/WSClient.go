// Package wsclient with the WebSocket listener for maveo hub push
// notifications. It runs as a background routine, authenticates its own
// connection, and self-heals with capped exponential backoff.
package wsclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"github.com/maveohome/maveolib-go/pkg/jsonrpc"
)

const (
	initialRetryDelay = time.Second
	maxRetryDelay     = 60 * time.Second
)

// NotificationListener maintains the hub's notification connection.
// It dials ws:// first and retries as wss:// with certificate verification
// disabled, mirroring the command channel's transport fallback. Received
// notifications go to the sink; responses to its own handshake commands are
// consumed internally.
type NotificationListener struct {
	wsURL        string
	token        func() string
	authRequired func() bool
	sink         func(name string, params json.RawMessage)

	// updateMutex guards the lifecycle fields below
	updateMutex sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewNotificationListener prepares a listener, call Start to run it.
//  wsURL is the hub's notification endpoint, e.g. ws://10.0.0.5:4444
//  token supplies the current bearer token, empty when none
//  authRequired tells whether the hub expects tokens at all
//  sink receives every notification's name and params
func NewNotificationListener(wsURL string, token func() string, authRequired func() bool,
	sink func(name string, params json.RawMessage)) *NotificationListener {

	return &NotificationListener{
		wsURL:        wsURL,
		token:        token,
		authRequired: authRequired,
		sink:         sink,
	}
}

// Start launches the background listener routine. A no-op when it already
// runs.
func (listener *NotificationListener) Start() error {
	listener.updateMutex.Lock()
	defer listener.updateMutex.Unlock()
	if listener.running {
		logrus.Infof("NotificationListener.Start: already running")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	listener.cancel = cancel
	listener.done = make(chan struct{})
	listener.running = true
	go listener.run(ctx, listener.done)
	logrus.Infof("NotificationListener.Start: listening on %s", listener.wsURL)
	return nil
}

// Stop ends the listener and only returns once the background routine has
// fully terminated, interrupting a blocked read or backoff sleep. Safe to
// call without a preceding Start and safe to call more than once.
func (listener *NotificationListener) Stop() {
	listener.updateMutex.Lock()
	if !listener.running {
		listener.updateMutex.Unlock()
		return
	}
	cancel := listener.cancel
	done := listener.done
	listener.running = false
	listener.updateMutex.Unlock()

	cancel()
	<-done
	logrus.Infof("NotificationListener.Stop: listener stopped")
}

// Running tells whether the background routine is active
func (listener *NotificationListener) Running() bool {
	listener.updateMutex.Lock()
	defer listener.updateMutex.Unlock()
	return listener.running
}

// run connects, listens, and reconnects with growing delay until ctx ends.
// The delay resets after every successful handshake.
func (listener *NotificationListener) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	retryDelay := initialRetryDelay

	for {
		conn, err := listener.connect(ctx)
		if err == nil {
			retryDelay = initialRetryDelay
			err = listener.listen(ctx, conn)
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
		if ctx.Err() != nil {
			return
		}
		logrus.Warningf("NotificationListener.run: notification channel down: %s. Reconnecting in %d seconds",
			err, retryDelay/time.Second)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// connect dials the endpoint and runs the notification channel handshake
func (listener *NotificationListener) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, err := listener.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err = listener.handshake(ctx, conn); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil, err
	}
	return conn, nil
}

// dial attempts ws:// first, then wss:// with verification disabled.
// maveo boxes serve self-signed certificates on the secure port.
func (listener *NotificationListener) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, plainErr := websocket.Dial(ctx, listener.wsURL, nil)
	if plainErr == nil {
		logrus.Infof("NotificationListener.dial: connected to %s", listener.wsURL)
		return conn, nil
	}
	secureURL := strings.Replace(listener.wsURL, "ws://", "wss://", 1)
	logrus.Infof("NotificationListener.dial: %s failed: %s. Retrying as %s",
		listener.wsURL, plainErr, secureURL)

	options := &websocket.DialOptions{
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
	conn, _, tlsErr := websocket.Dial(ctx, secureURL, options)
	if tlsErr == nil {
		logrus.Infof("NotificationListener.dial: connected to %s, certificate unverified", secureURL)
		return conn, nil
	}
	return nil, &jsonrpc.TransportError{Address: listener.wsURL, PlainErr: plainErr, TLSErr: tlsErr}
}

// handshake identifies and authenticates this connection, then asks the hub
// to stream notifications:
//  1. Hello without credentials, must succeed
//  2. when a token is known, Hello again carrying the token, must succeed
//  3. SetNotificationStatus enabled; a rejection here is logged and
//     tolerated, some hub configurations stream notifications regardless
func (listener *NotificationListener) handshake(ctx context.Context, conn *websocket.Conn) error {
	commandID := 0
	if _, err := listener.exchange(ctx, conn, &jsonrpc.Request{
		ID: commandID, Method: jsonrpc.MethodHello}); err != nil {
		return err
	}
	commandID++

	token := listener.token()
	if token != "" {
		if _, err := listener.exchange(ctx, conn, &jsonrpc.Request{
			ID: commandID, Method: jsonrpc.MethodHello, Token: token}); err != nil {
			return err
		}
		commandID++
	}

	request := &jsonrpc.Request{
		ID:     commandID,
		Method: jsonrpc.MethodSetNotificationStatus,
		Params: map[string]interface{}{"enabled": true},
	}
	if listener.authRequired() && token != "" {
		request.Token = token
	}
	if _, err := listener.exchange(ctx, conn, request); err != nil {
		var cmdErr *jsonrpc.CommandError
		if errors.As(err, &cmdErr) {
			logrus.Warningf("NotificationListener.handshake: SetNotificationStatus rejected: %s. Listening anyway",
				cmdErr.Message)
			return nil
		}
		return err
	}
	logrus.Infof("NotificationListener.handshake: notifications enabled")
	return nil
}

// exchange sends one request on the WebSocket and reads until its response
// arrives. WebSocket messages carry one JSON object each, without the
// newline framing of the command channel. Notifications arriving in between
// are delivered, not lost.
func (listener *NotificationListener) exchange(ctx context.Context, conn *websocket.Conn,
	request *jsonrpc.Request) (*jsonrpc.Response, error) {

	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	if err = conn.Write(ctx, websocket.MessageText, data); err != nil {
		return nil, err
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		message, err := jsonrpc.DecodeMessage(data)
		if err != nil {
			logrus.Warningf("NotificationListener.exchange: discarding malformed message: %s", err)
			continue
		}
		if message.Kind() == jsonrpc.KindNotification {
			listener.deliver(message.AsNotification())
			continue
		}
		response := message.AsResponse()
		if response.ID != request.ID {
			logrus.Warningf("NotificationListener.exchange: stale response id=%d while waiting for id=%d, ignored",
				response.ID, request.ID)
			continue
		}
		if response.Status != jsonrpc.StatusSuccess {
			return nil, &jsonrpc.CommandError{Method: request.Method,
				Status: response.Status, Message: response.Error}
		}
		return response, nil
	}
}

// listen delivers notifications until the connection ends or ctx cancels.
// Cancelling ctx interrupts the blocked read, that is the cooperative
// cancellation point of this loop.
func (listener *NotificationListener) listen(ctx context.Context, conn *websocket.Conn) error {
	logrus.Infof("NotificationListener.listen: waiting for notifications")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		message, err := jsonrpc.DecodeMessage(data)
		if err != nil {
			logrus.Warningf("NotificationListener.listen: discarding malformed message: %s", err)
			continue
		}
		if message.Kind() != jsonrpc.KindNotification {
			logrus.Debugf("NotificationListener.listen: ignoring response id=%d on the notification channel",
				*message.ID)
			continue
		}
		listener.deliver(message.AsNotification())
	}
}

// deliver hands one notification to the sink
func (listener *NotificationListener) deliver(notification *jsonrpc.Notification) {
	logrus.Debugf("NotificationListener.deliver: %s", notification.Name)
	listener.sink(notification.Name, notification.Params)
}
