package hubclient_test

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maveohome/maveolib-go/pkg/hubclient"
)

// receiveLabel reads one handler invocation marker with a timeout
func receiveLabel(t *testing.T, labels chan string) string {
	select {
	case label := <-labels:
		return label
	case <-time.After(5 * time.Second):
		t.Fatal("no handler invocation within 5 seconds")
		return ""
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	logrus.Infof("--- TestHandlersRunInRegistrationOrder ---")
	registry := hubclient.NewHandlerRegistry()
	defer registry.Close()

	labels := make(chan string, 4)
	registry.Register("Test.Ordered", func(json.RawMessage) { labels <- "first" })
	registry.Register("Test.Ordered", func(json.RawMessage) { labels <- "second" })

	registry.Dispatch("Test.Ordered", nil)
	assert.Equal(t, "first", receiveLabel(t, labels))
	assert.Equal(t, "second", receiveLabel(t, labels))
}

func TestHandlerReceivesParams(t *testing.T) {
	logrus.Infof("--- TestHandlerReceivesParams ---")
	registry := hubclient.NewHandlerRegistry()
	defer registry.Close()

	received := make(chan string, 1)
	registry.Register("Test.Params", func(params json.RawMessage) {
		received <- string(params)
	})
	registry.Dispatch("Test.Params", json.RawMessage(`{"value":"open"}`))
	assert.JSONEq(t, `{"value":"open"}`, receiveLabel(t, received))
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	logrus.Infof("--- TestPanickingHandlerDoesNotStopOthers ---")
	registry := hubclient.NewHandlerRegistry()
	defer registry.Close()

	labels := make(chan string, 2)
	registry.Register("Test.Panic", func(json.RawMessage) { panic("handler bug") })
	registry.Register("Test.Panic", func(json.RawMessage) { labels <- "survivor" })

	registry.Dispatch("Test.Panic", nil)
	assert.Equal(t, "survivor", receiveLabel(t, labels),
		"a panicking handler must not take the others down")

	// the dispatch routine itself survived too
	registry.Dispatch("Test.Panic", nil)
	assert.Equal(t, "survivor", receiveLabel(t, labels))
}

func TestUnregister(t *testing.T) {
	logrus.Infof("--- TestUnregister ---")
	registry := hubclient.NewHandlerRegistry()
	defer registry.Close()

	var removedCalls int32
	removedID := registry.Register("Test.Gone", func(json.RawMessage) {
		atomic.AddInt32(&removedCalls, 1)
	})
	labels := make(chan string, 1)
	registry.Register("Test.Gone", func(json.RawMessage) { labels <- "kept" })

	registry.Unregister(removedID)
	registry.Dispatch("Test.Gone", nil)

	// the kept handler runs after the removed one would have
	assert.Equal(t, "kept", receiveLabel(t, labels))
	assert.Zero(t, atomic.LoadInt32(&removedCalls))

	// unknown ids are ignored
	registry.Unregister(removedID)
	registry.Unregister(0)
}

func TestDispatchWithoutHandlers(t *testing.T) {
	logrus.Infof("--- TestDispatchWithoutHandlers ---")
	registry := hubclient.NewHandlerRegistry()
	defer registry.Close()
	registry.Dispatch("Test.Nobody", json.RawMessage(`{}`))
}

func TestDispatchAfterClose(t *testing.T) {
	logrus.Infof("--- TestDispatchAfterClose ---")
	registry := hubclient.NewHandlerRegistry()

	var calls int32
	registry.Register("Test.Closed", func(json.RawMessage) {
		atomic.AddInt32(&calls, 1)
	})
	registry.Dispatch("Test.Closed", nil)
	registry.Close()
	require.Equal(t, int32(1), atomic.LoadInt32(&calls),
		"Close drains what was queued before it")

	// dispatching into a closed registry drops the notification
	registry.Dispatch("Test.Closed", nil)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	registry.Close() // safe to repeat
}
