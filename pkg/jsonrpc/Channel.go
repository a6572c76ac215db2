package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// readPollInterval bounds each blocking socket read so a pending call can
// notice context cancellation while waiting for the hub.
const readPollInterval = time.Second

// Channel is the request/response side of a hub connection. The protocol is
// strictly request/response, not pipelined, so the channel is single-flight:
// one write-then-read-until-matching-id cycle at a time. Waiting callers
// remain cancellable through their context.
type Channel struct {
	conn     net.Conn
	reader   *FrameReader
	sendLock *semaphore.Weighted

	// updateMutex guards the command id, token and auth flag
	updateMutex  sync.Mutex
	nextID       int
	token        string
	authRequired bool
}

// NewChannel wraps an established hub connection
func NewChannel(conn net.Conn) *Channel {
	return &Channel{
		conn:     conn,
		reader:   NewFrameReader(conn),
		sendLock: semaphore.NewWeighted(1),
	}
}

// ConnectChannel dials the hub's command endpoint with the plain-then-TLS
// strategy of Dial and runs the handshake on a fresh channel per attempt.
// Command ids start at 0 on each new channel.
func ConnectChannel(ctx context.Context, address string,
	handshake func(ctx context.Context, channel *Channel) error) (*Channel, ConnectionMode, error) {

	var channel *Channel
	probe := func(conn net.Conn) error {
		channel = NewChannel(conn)
		return handshake(ctx, channel)
	}
	_, mode, err := Dial(ctx, address, probe)
	if err != nil {
		return nil, ModeNone, err
	}
	return channel, mode, nil
}

// SetToken stores the bearer token attached to subsequent requests
func (ch *Channel) SetToken(token string) {
	ch.updateMutex.Lock()
	defer ch.updateMutex.Unlock()
	ch.token = token
}

// Token returns the current bearer token, empty if none
func (ch *Channel) Token() string {
	ch.updateMutex.Lock()
	defer ch.updateMutex.Unlock()
	return ch.token
}

// SetAuthRequired records whether the hub expects a token on requests.
// Without it no token is ever attached, even if one is known.
func (ch *Channel) SetAuthRequired(required bool) {
	ch.updateMutex.Lock()
	defer ch.updateMutex.Unlock()
	ch.authRequired = required
}

// AuthRequired returns whether the hub expects a token on requests
func (ch *Channel) AuthRequired() bool {
	ch.updateMutex.Lock()
	defer ch.updateMutex.Unlock()
	return ch.authRequired
}

// Close closes the underlying connection. Pending calls fail.
func (ch *Channel) Close() error {
	return ch.conn.Close()
}

// Send submits one command and blocks until its response arrives.
// A response with a status other than success is returned as a CommandError.
// ErrConnectionBroken and ProtocolError are fatal for the channel.
func (ch *Channel) Send(ctx context.Context, method string, params map[string]interface{}) (*Response, error) {
	if err := ch.sendLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer ch.sendLock.Release(1)

	response, err := ch.roundTrip(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if response.Status != StatusSuccess {
		return nil, &CommandError{Method: method, Status: response.Status, Message: response.Error}
	}
	return response, nil
}

// RequestPushButtonAuth starts push-button pairing and waits for the hub
// user to press the physical button. The exchange holds the channel for its
// whole duration: the confirmation arrives as a notification on this same
// connection. Failed attempts keep the wait going. The protocol itself has
// no timeout, callers bound the wait through ctx.
//  deviceName identifies this client in the hub's token overview
// Returns the bearer token issued by the hub.
func (ch *Channel) RequestPushButtonAuth(ctx context.Context, deviceName string) (string, error) {
	if err := ch.sendLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer ch.sendLock.Release(1)

	params := map[string]interface{}{"deviceName": deviceName}
	response, err := ch.roundTrip(ctx, MethodRequestPushButtonAuth, params)
	if err != nil {
		return "", err
	}
	if response.Status != StatusSuccess {
		return "", &CommandError{Method: MethodRequestPushButtonAuth,
			Status: response.Status, Message: response.Error}
	}
	logrus.Infof("Channel.RequestPushButtonAuth: waiting for the button press on the hub")

	for {
		frame, err := ch.readFrame(ctx)
		if err != nil {
			return "", err
		}
		message, err := DecodeMessage(frame)
		if err != nil {
			return "", err
		}
		if message.Kind() != KindNotification ||
			message.Notification != NotificationPushButtonAuthFinished {
			logrus.Debugf("Channel.RequestPushButtonAuth: ignoring message while pairing")
			continue
		}
		var result struct {
			Success bool   `json:"success"`
			Token   string `json:"token"`
		}
		if err = json.Unmarshal(message.Params, &result); err != nil {
			return "", &ProtocolError{Reason: "Invalid PushButtonAuthFinished params", Cause: err}
		}
		if !result.Success {
			logrus.Warningf("Channel.RequestPushButtonAuth: pairing attempt failed, still waiting for the button")
			continue
		}
		logrus.Infof("Channel.RequestPushButtonAuth: pairing succeeded")
		return result.Token, nil
	}
}

// roundTrip writes one request and reads frames until its response arrives.
// Notifications showing up here are unexpected but tolerated, the hub sends
// them on the notification channel. The caller holds the send lock.
func (ch *Channel) roundTrip(ctx context.Context, method string, params map[string]interface{}) (*Response, error) {
	request := ch.buildRequest(method, params)
	frame, err := EncodeFrame(request)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Channel.roundTrip: sending id=%d method=%s", request.ID, method)
	if _, err = ch.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("Write of %s request failed: %w", method, err)
	}

	for {
		frame, err := ch.readFrame(ctx)
		if err != nil {
			return nil, err
		}
		message, err := DecodeMessage(frame)
		if err != nil {
			return nil, err
		}
		if message.Kind() == KindNotification {
			logrus.Warningf("Channel.roundTrip: unexpected notification %s on the command channel, ignored",
				message.Notification)
			continue
		}
		if *message.ID != request.ID {
			logrus.Warningf("Channel.roundTrip: stale response id=%d while waiting for id=%d, ignored",
				*message.ID, request.ID)
			continue
		}
		return message.AsResponse(), nil
	}
}

// buildRequest assigns the next command id and applies the token rules
func (ch *Channel) buildRequest(method string, params map[string]interface{}) *Request {
	ch.updateMutex.Lock()
	defer ch.updateMutex.Unlock()
	request := &Request{ID: ch.nextID, Method: method}
	ch.nextID++
	if len(params) > 0 {
		request.Params = params
	}
	if ch.authRequired && ch.token != "" {
		request.Token = ch.token
	}
	return request
}

// readFrame reads one frame in short deadline slices so ctx cancellation is
// honored within readPollInterval even while blocked on the socket.
func (ch *Channel) readFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = ch.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		frame, err := ch.reader.ReadFrame()
		if err == nil {
			return frame, nil
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			continue
		}
		return nil, err
	}
}
