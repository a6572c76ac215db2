package wsclient_test

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maveohome/maveolib-go/pkg/hubconfig"
	"github.com/maveohome/maveolib-go/pkg/hubsim"
	"github.com/maveohome/maveolib-go/pkg/jsonrpc"
	"github.com/maveohome/maveolib-go/pkg/wsclient"
)

type notification struct {
	name   string
	params json.RawMessage
}

func TestMain(m *testing.M) {
	hubconfig.SetLogging("info", "")
	os.Exit(m.Run())
}

// startSim runs a hub simulator and a listener against it whose
// notifications land in the returned channel.
func startSim(t *testing.T, config hubsim.Config) (*hubsim.HubSim, *wsclient.NotificationListener, chan notification) {
	sim := hubsim.NewHubSim(config)
	require.NoError(t, sim.Start())
	t.Cleanup(sim.Stop)

	received := make(chan notification, 64)
	listener := wsclient.NewNotificationListener(sim.WSURL(),
		func() string { return config.FixedToken },
		func() bool { return config.AuthRequired },
		func(name string, params json.RawMessage) {
			received <- notification{name: name, params: params}
		})
	t.Cleanup(listener.Stop)
	return sim, listener, received
}

// pushUntil pushes the named notification repeatedly until one comes out of
// the sink, covering the window in which the subscription is still settling.
func pushUntil(t *testing.T, sim *hubsim.HubSim, received chan notification,
	name string, deadline time.Duration) notification {

	expire := time.After(deadline)
	for {
		sim.PushNotification(name, map[string]interface{}{"probe": true})
		select {
		case delivered := <-received:
			if delivered.name == name {
				return delivered
			}
		case <-expire:
			t.Fatalf("no %s notification within %v", name, deadline)
			return notification{}
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func drain(received chan notification) {
	for {
		select {
		case <-received:
		default:
			return
		}
	}
}

func TestListenerReceivesNotifications(t *testing.T) {
	logrus.Infof("--- TestListenerReceivesNotifications ---")
	sim, listener, received := startSim(t, hubsim.Config{})

	require.NoError(t, listener.Start())
	delivered := pushUntil(t, sim, received, "Test.Ping", 10*time.Second)
	assert.Equal(t, "Test.Ping", delivered.name)

	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(delivered.params, &params))
	assert.Equal(t, true, params["probe"])
}

func TestListenerConnectsOverTLS(t *testing.T) {
	logrus.Infof("--- TestListenerConnectsOverTLS ---")
	sim := hubsim.NewHubSim(hubsim.Config{TLSOnly: true})
	require.NoError(t, sim.Start())
	t.Cleanup(sim.Stop)

	// clients address the endpoint as ws:// and rely on the wss:// fallback
	received := make(chan notification, 64)
	listener := wsclient.NewNotificationListener(
		fmt.Sprintf("ws://127.0.0.1:%d", sim.WSPort()),
		func() string { return "" },
		func() bool { return false },
		func(name string, params json.RawMessage) {
			received <- notification{name: name, params: params}
		})
	t.Cleanup(listener.Stop)

	require.NoError(t, listener.Start())
	delivered := pushUntil(t, sim, received, "Test.Secure", 15*time.Second)
	assert.Equal(t, "Test.Secure", delivered.name)
}

func TestListenerAuthenticatesWithToken(t *testing.T) {
	logrus.Infof("--- TestListenerAuthenticatesWithToken ---")
	sim, listener, received := startSim(t, hubsim.Config{
		AuthRequired: true,
		FixedToken:   "WS-TOKEN",
	})

	require.NoError(t, listener.Start())
	pushUntil(t, sim, received, "Test.Secured", 10*time.Second)

	var anonymousHello, tokenHello, subscribe bool
	for _, request := range sim.ReceivedRequests() {
		switch request.Method {
		case jsonrpc.MethodHello:
			if request.Token == "" {
				anonymousHello = true
			} else if request.Token == "WS-TOKEN" {
				tokenHello = true
			}
		case jsonrpc.MethodSetNotificationStatus:
			subscribe = request.Token == "WS-TOKEN"
		}
	}
	assert.True(t, anonymousHello, "handshake starts with a Hello without credentials")
	assert.True(t, tokenHello, "handshake repeats Hello with the token")
	assert.True(t, subscribe, "subscription carries the token")
}

func TestListenerStartStop(t *testing.T) {
	logrus.Infof("--- TestListenerStartStop ---")
	_, listener, _ := startSim(t, hubsim.Config{})

	assert.False(t, listener.Running())
	listener.Stop() // without a Start

	require.NoError(t, listener.Start())
	assert.True(t, listener.Running())
	require.NoError(t, listener.Start()) // second Start is a no-op
	assert.True(t, listener.Running())

	listener.Stop()
	assert.False(t, listener.Running())
	listener.Stop() // repeat is safe
}

func TestListenerRecoversFromConnectionLoss(t *testing.T) {
	logrus.Infof("--- TestListenerRecoversFromConnectionLoss ---")
	sim, listener, received := startSim(t, hubsim.Config{})

	require.NoError(t, listener.Start())
	pushUntil(t, sim, received, "Test.BeforeDrop", 10*time.Second)

	sim.DropListenerSessions()
	drain(received)

	// the listener reconnects and resubscribes on its own
	delivered := pushUntil(t, sim, received, "Test.AfterDrop", 15*time.Second)
	assert.Equal(t, "Test.AfterDrop", delivered.name)
	assert.True(t, listener.Running())
}

func TestListenerKeepsRetryingWithoutEndpoint(t *testing.T) {
	logrus.Infof("--- TestListenerKeepsRetryingWithoutEndpoint ---")
	// grab a port that nothing listens on
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	listener := wsclient.NewNotificationListener(
		fmt.Sprintf("ws://127.0.0.1:%d", port),
		func() string { return "" },
		func() bool { return false },
		func(string, json.RawMessage) {})

	require.NoError(t, listener.Start())
	time.Sleep(1500 * time.Millisecond)
	assert.True(t, listener.Running(), "connection failures must not end the routine")

	stopped := make(chan struct{})
	go func() {
		listener.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not interrupt the retry loop")
	}
	assert.False(t, listener.Running())
}
