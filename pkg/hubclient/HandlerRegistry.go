package hubclient

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/maveohome/maveolib-go/api"
)

// notificationQueueSize bounds the dispatch backlog. The socket reader never
// blocks on slow handlers; overflow drops the notification with a warning.
const notificationQueueSize = 100

type queuedNotification struct {
	name   string
	params json.RawMessage
}

type registration struct {
	id      api.HandlerID
	handler api.NotificationHandler
}

// HandlerRegistry maps notification names to ordered handler lists and runs
// one dispatch routine that invokes them. Handlers therefore never run on
// the notification socket's reader routine, and a panicking handler is
// recovered and logged without affecting the others.
type HandlerRegistry struct {
	// updateMutex guards handlers, names and closed
	updateMutex sync.RWMutex
	handlers    map[string][]registration
	names       map[api.HandlerID]string
	nextID      api.HandlerID
	closed      bool

	queue chan queuedNotification
	done  chan struct{}
}

// NewHandlerRegistry creates the registry and starts its dispatch routine
func NewHandlerRegistry() *HandlerRegistry {
	registry := &HandlerRegistry{
		handlers: make(map[string][]registration),
		names:    make(map[api.HandlerID]string),
		nextID:   1,
		queue:    make(chan queuedNotification, notificationQueueSize),
		done:     make(chan struct{}),
	}
	go registry.run()
	return registry
}

// Register adds a handler for one notification name. Handlers for the same
// name run in registration order.
func (registry *HandlerRegistry) Register(name string, handler api.NotificationHandler) api.HandlerID {
	registry.updateMutex.Lock()
	defer registry.updateMutex.Unlock()
	id := registry.nextID
	registry.nextID++
	registry.handlers[name] = append(registry.handlers[name], registration{id: id, handler: handler})
	registry.names[id] = name
	logrus.Debugf("HandlerRegistry.Register: handler %d for %s", id, name)
	return id
}

// Unregister removes a handler. Unknown ids are ignored.
func (registry *HandlerRegistry) Unregister(id api.HandlerID) {
	registry.updateMutex.Lock()
	defer registry.updateMutex.Unlock()
	name, found := registry.names[id]
	if !found {
		return
	}
	delete(registry.names, id)
	registrations := registry.handlers[name]
	for index, reg := range registrations {
		if reg.id == id {
			registry.handlers[name] = append(registrations[:index], registrations[index+1:]...)
			break
		}
	}
	logrus.Debugf("HandlerRegistry.Unregister: handler %d for %s", id, name)
}

// Dispatch queues one notification for the dispatch routine. Never blocks:
// when the queue is full the notification is dropped with a warning.
func (registry *HandlerRegistry) Dispatch(name string, params json.RawMessage) {
	registry.updateMutex.RLock()
	defer registry.updateMutex.RUnlock()
	if registry.closed {
		logrus.Warningf("HandlerRegistry.Dispatch: registry closed, dropping %s", name)
		return
	}
	select {
	case registry.queue <- queuedNotification{name: name, params: params}:
	default:
		logrus.Warningf("HandlerRegistry.Dispatch: queue full, dropping %s", name)
	}
}

// Close stops the dispatch routine after draining the queue and waits for it
// to finish. Safe to call more than once.
func (registry *HandlerRegistry) Close() {
	registry.updateMutex.Lock()
	if registry.closed {
		registry.updateMutex.Unlock()
		return
	}
	registry.closed = true
	close(registry.queue)
	registry.updateMutex.Unlock()
	<-registry.done
}

// run drains the queue until Close
func (registry *HandlerRegistry) run() {
	for notification := range registry.queue {
		registry.invoke(notification)
	}
	close(registry.done)
}

// invoke runs all handlers registered for one notification
func (registry *HandlerRegistry) invoke(notification queuedNotification) {
	registry.updateMutex.RLock()
	registrations := make([]registration, len(registry.handlers[notification.name]))
	copy(registrations, registry.handlers[notification.name])
	registry.updateMutex.RUnlock()

	if len(registrations) == 0 {
		logrus.Debugf("HandlerRegistry.invoke: no handler for %s", notification.name)
		return
	}
	for _, reg := range registrations {
		registry.callHandler(notification, reg)
	}
}

// callHandler isolates one handler invocation. A panic is logged and the
// remaining handlers still run.
func (registry *HandlerRegistry) callHandler(notification queuedNotification, reg registration) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("HandlerRegistry.callHandler: handler %d for %s panicked: %v",
				reg.id, notification.name, r)
		}
	}()
	reg.handler(notification.params)
}
