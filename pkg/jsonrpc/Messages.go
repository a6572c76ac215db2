package jsonrpc

import (
	"encoding/json"
)

// Method names in the JSONRPC namespace of the hub protocol
const (
	MethodHello                 = "JSONRPC.Hello"
	MethodRequestPushButtonAuth = "JSONRPC.RequestPushButtonAuth"
	MethodSetNotificationStatus = "JSONRPC.SetNotificationStatus"
)

// NotificationPushButtonAuthFinished is emitted by the hub once per pairing
// attempt, successful or not. A successful one carries the bearer token.
const NotificationPushButtonAuthFinished = "JSONRPC.PushButtonAuthFinished"

// Response status values used by the hub
const (
	StatusSuccess      = "success"
	StatusError        = "error"
	StatusUnauthorized = "unauthorized"
)

// Request is a single command sent to the hub.
//  ID is unique per channel instance, strictly increasing, never reused.
//  Params is omitted from the wire when empty.
//  Token is attached only when the hub requires authentication and a token is known.
type Request struct {
	ID     int         `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
	Token  string      `json:"token,omitempty"`
}

// Response answers exactly one Request, correlated by ID
type Response struct {
	ID     int             `json:"id"`
	Status string          `json:"status"`
	Params json.RawMessage `json:"params,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Notification is an unsolicited message from the hub. It has no ID and
// normally arrives on the notification channel only.
type Notification struct {
	Name   string          `json:"notification"`
	Params json.RawMessage `json:"params,omitempty"`
}

// MessageKind discriminates the messages a hub can send
type MessageKind int

const (
	// KindResponse answers a request
	KindResponse MessageKind = iota
	// KindNotification is unsolicited
	KindNotification
)

// Message is the decoded envelope of one inbound frame. The kind is
// determined by the presence of the notification key, then the id key.
type Message struct {
	ID           *int            `json:"id"`
	Status       string          `json:"status"`
	Notification string          `json:"notification"`
	Params       json.RawMessage `json:"params"`
	Error        string          `json:"error"`
}

// Kind returns what the message is. Only valid on messages produced by
// DecodeMessage, which rejects frames that are neither.
func (m *Message) Kind() MessageKind {
	if m.Notification != "" {
		return KindNotification
	}
	return KindResponse
}

// AsResponse converts a KindResponse message
func (m *Message) AsResponse() *Response {
	return &Response{ID: *m.ID, Status: m.Status, Params: m.Params, Error: m.Error}
}

// AsNotification converts a KindNotification message
func (m *Message) AsNotification() *Notification {
	return &Notification{Name: m.Notification, Params: m.Params}
}

// DecodeMessage parses one frame into a message envelope.
// Returns a ProtocolError when the payload is not valid JSON or carries
// neither an id nor a notification name.
func DecodeMessage(data []byte) (*Message, error) {
	message := &Message{}
	if err := json.Unmarshal(data, message); err != nil {
		return nil, &ProtocolError{Reason: "Malformed message", Cause: err}
	}
	if message.Notification == "" && message.ID == nil {
		return nil, &ProtocolError{Reason: "Message has neither an id nor a notification name"}
	}
	return message, nil
}
