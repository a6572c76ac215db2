// Package hubsim with an in-process simulation of a maveo box for testing.
// It serves the line-delimited JSON-RPC command channel on TCP and the
// notification channel on a WebSocket endpoint, backed by a small in-memory
// thing table resembling a garage door installation.
package hubsim

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"github.com/maveohome/maveolib-go/api"
	"github.com/maveohome/maveolib-go/pkg/jsonrpc"
	"github.com/maveohome/maveolib-go/pkg/things"
)

// time allowed for pushing a notification to a listener session
const wsWriteTimeout = time.Second * 5

// Config of the simulated hub
type Config struct {
	AuthRequired         bool          // clients must pair and present a token
	InitialSetupRequired bool          // hub reports that initial setup is still pending
	PushButtonAvailable  bool          // push-button pairing is offered
	PushButtonDelay      time.Duration // wait before pairing completes, simulating the button press
	TLSOnly              bool          // accept only TLS on both endpoints
	FixedToken           string        // pairing hands out this token instead of minting one
	ServerName           string        // hub name reported by Hello. Default is "maveo box"
	Version              string        // hub version reported by Hello. Default is "1.2.0"
	ProtocolVersion      string        // protocol version reported by Hello. Default is "5.4"
}

// ReceivedRequest records a command received on either channel, for
// assertions on token handling
type ReceivedRequest struct {
	Method string
	Token  string
}

// HubSim simulates a maveo box
type HubSim struct {
	config Config
	issuer *TokenIssuer

	// the simulated installation
	tableMutex   sync.RWMutex
	vendors      []things.Vendor
	thingClasses []things.ThingClass
	things       []*thingRecord

	// open client connections
	sessionMutex sync.Mutex
	tcpSessions  map[*tcpSession]bool
	wsSessions   map[*wsSession]bool

	// request log and pairing script
	recordMutex        sync.Mutex
	receivedRequests   []ReceivedRequest
	pushButtonFailures int

	runMutex   sync.Mutex
	running    bool
	listener   net.Listener
	wsListener net.Listener
	httpServer *http.Server
}

// tcpSession is one command channel connection
type tcpSession struct {
	conn       net.Conn
	reader     *jsonrpc.FrameReader
	writeMutex sync.Mutex
}

// write a frame to the command channel connection
func (session *tcpSession) write(v interface{}) error {
	frame, err := jsonrpc.EncodeFrame(v)
	if err != nil {
		return err
	}
	session.writeMutex.Lock()
	defer session.writeMutex.Unlock()
	_, err = session.conn.Write(frame)
	return err
}

// wsSession is one notification channel connection
type wsSession struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex
	subscribed bool
}

// write a message to the notification channel connection. Unlike the command
// channel, websocket messages carry no newline delimiter.
func (session *wsSession) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	session.writeMutex.Lock()
	defer session.writeMutex.Unlock()
	return session.conn.Write(ctx, websocket.MessageText, data)
}

// NewHubSim creates a hub simulator with the given configuration and a
// garage door installation as its thing table. Use Start to serve.
func NewHubSim(config Config) *HubSim {
	if config.ServerName == "" {
		config.ServerName = "maveo box"
	}
	if config.Version == "" {
		config.Version = "1.2.0"
	}
	if config.ProtocolVersion == "" {
		config.ProtocolVersion = "5.4"
	}
	sim := &HubSim{
		config:      config,
		issuer:      NewTokenIssuer(config.FixedToken),
		tcpSessions: make(map[*tcpSession]bool),
		wsSessions:  make(map[*wsSession]bool),
	}
	sim.vendors, sim.thingClasses, sim.things = buildGarageDoorTable()
	return sim
}

// Start binds the command and notification endpoints on loopback with
// OS-assigned ports and serves until Stop.
func (sim *HubSim) Start() error {
	sim.runMutex.Lock()
	defer sim.runMutex.Unlock()
	if sim.running {
		return fmt.Errorf("HubSim is already running")
	}

	var tlsConfig *tls.Config
	if sim.config.TLSOnly {
		cert, err := CreateSelfSignedCert()
		if err != nil {
			return err
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{*cert}}
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}
	sim.listener = listener

	wsListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		listener.Close()
		return err
	}
	sim.wsListener = wsListener

	router := mux.NewRouter()
	router.HandleFunc("/", sim.serveWebsocket)
	sim.httpServer = &http.Server{Handler: router}
	if tlsConfig != nil {
		sim.httpServer.TLSConfig = tlsConfig.Clone()
	}

	sim.running = true
	go sim.acceptLoop()
	go func() {
		var serveErr error
		if sim.config.TLSOnly {
			serveErr = sim.httpServer.ServeTLS(wsListener, "", "")
		} else {
			serveErr = sim.httpServer.Serve(wsListener)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logrus.Errorf("HubSim: notification endpoint: %s", serveErr)
		}
	}()
	logrus.Infof("HubSim: command endpoint on %s, notifications on %s", sim.Addr(), sim.WSURL())
	return nil
}

// Stop closes the endpoints and all open connections
func (sim *HubSim) Stop() {
	sim.runMutex.Lock()
	defer sim.runMutex.Unlock()
	if !sim.running {
		return
	}
	sim.running = false
	logrus.Infof("HubSim.Stop: shutting down")

	sim.listener.Close()
	// closes the websocket listener but not hijacked connections
	sim.httpServer.Close()

	sim.sessionMutex.Lock()
	tcpSessions := make([]*tcpSession, 0, len(sim.tcpSessions))
	for session := range sim.tcpSessions {
		tcpSessions = append(tcpSessions, session)
	}
	wsSessions := make([]*wsSession, 0, len(sim.wsSessions))
	for session := range sim.wsSessions {
		wsSessions = append(wsSessions, session)
	}
	sim.sessionMutex.Unlock()

	for _, session := range tcpSessions {
		session.conn.Close()
	}
	for _, session := range wsSessions {
		session.conn.Close(websocket.StatusGoingAway, "shutting down")
	}
}

// Addr returns the command endpoint as host:port. Valid after Start.
func (sim *HubSim) Addr() string {
	return sim.listener.Addr().String()
}

// Port returns the command endpoint port. Valid after Start.
func (sim *HubSim) Port() int {
	return sim.listener.Addr().(*net.TCPAddr).Port
}

// WSPort returns the notification endpoint port. Valid after Start.
func (sim *HubSim) WSPort() int {
	return sim.wsListener.Addr().(*net.TCPAddr).Port
}

// WSURL returns the notification endpoint URL. Valid after Start.
func (sim *HubSim) WSURL() string {
	scheme := "ws"
	if sim.config.TLSOnly {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://127.0.0.1:%d", scheme, sim.WSPort())
}

// PushNotification sends a notification to every subscribed listener session
func (sim *HubSim) PushNotification(name string, params interface{}) {
	notification := &outboundNotification{Name: name, Params: params}

	sim.sessionMutex.Lock()
	subscribers := make([]*wsSession, 0, len(sim.wsSessions))
	for session := range sim.wsSessions {
		if session.subscribed {
			subscribers = append(subscribers, session)
		}
	}
	sim.sessionMutex.Unlock()

	for _, session := range subscribers {
		if err := session.write(notification); err != nil {
			logrus.Debugf("HubSim.PushNotification: write failed: %s", err)
		}
	}
}

// SetThingState updates a state value of the simulated installation and
// notifies subscribed listeners with a StateChanged notification
func (sim *HubSim) SetThingState(thingID uuid.UUID, stateTypeID uuid.UUID, value interface{}) {
	sim.tableMutex.Lock()
	record := sim.lookupThing(thingID)
	if record == nil {
		sim.tableMutex.Unlock()
		logrus.Warningf("HubSim.SetThingState: unknown thing %s", thingID)
		return
	}
	record.states[stateTypeID] = value
	sim.tableMutex.Unlock()

	sim.PushNotification(api.NotificationStateChanged, map[string]interface{}{
		"thingId":     thingID,
		"stateTypeId": stateTypeID,
		"value":       value,
	})
}

// DropListenerSessions closes every open notification channel connection
// while the endpoint keeps serving, simulating the connection loss a
// listener has to recover from on its own.
func (sim *HubSim) DropListenerSessions() {
	sim.sessionMutex.Lock()
	sessions := make([]*wsSession, 0, len(sim.wsSessions))
	for session := range sim.wsSessions {
		sessions = append(sessions, session)
	}
	sim.sessionMutex.Unlock()

	for _, session := range sessions {
		session.conn.Close(websocket.StatusGoingAway, "connection dropped")
	}
	logrus.Infof("HubSim.DropListenerSessions: dropped %d listener connections", len(sessions))
}

// FailNextPushButton makes the next pairing emit count failure notifications
// before the successful one, to exercise pairing retry handling in clients
func (sim *HubSim) FailNextPushButton(count int) {
	sim.recordMutex.Lock()
	sim.pushButtonFailures = count
	sim.recordMutex.Unlock()
}

// ReceivedRequests returns a copy of all commands received so far
func (sim *HubSim) ReceivedRequests() []ReceivedRequest {
	sim.recordMutex.Lock()
	defer sim.recordMutex.Unlock()
	result := make([]ReceivedRequest, len(sim.receivedRequests))
	copy(result, sim.receivedRequests)
	return result
}

// accept command channel connections until the listener closes
func (sim *HubSim) acceptLoop() {
	for {
		conn, err := sim.listener.Accept()
		if err != nil {
			return
		}
		session := &tcpSession{conn: conn, reader: jsonrpc.NewFrameReader(conn)}
		sim.sessionMutex.Lock()
		sim.tcpSessions[session] = true
		sim.sessionMutex.Unlock()
		go sim.serveConn(session)
	}
}

// serveConn runs the request loop of one command channel connection
func (sim *HubSim) serveConn(session *tcpSession) {
	defer func() {
		session.conn.Close()
		sim.sessionMutex.Lock()
		delete(sim.tcpSessions, session)
		sim.sessionMutex.Unlock()
	}()

	for {
		frame, err := session.reader.ReadFrame()
		if err != nil {
			logrus.Debugf("HubSim: command connection from %s closed: %s", session.conn.RemoteAddr(), err)
			return
		}
		request := &inboundRequest{}
		if err = json.Unmarshal(frame, request); err != nil {
			logrus.Warningf("HubSim: ignoring malformed request: %s", err)
			continue
		}
		response := sim.execute(request, session.write)
		if err = session.write(response); err != nil {
			return
		}
		if response.after != nil {
			response.after()
		}
	}
}

// serveWebsocket upgrades a notification channel connection and runs its
// request loop. The same commands work here, subscribed sessions receive
// pushed notifications.
func (sim *HubSim) serveWebsocket(resp http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(resp, req, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logrus.Warningf("HubSim: websocket upgrade from %s failed: %s", req.RemoteAddr, err)
		return
	}
	session := &wsSession{conn: conn}
	sim.sessionMutex.Lock()
	sim.wsSessions[session] = true
	sim.sessionMutex.Unlock()
	defer func() {
		conn.Close(websocket.StatusNormalClosure, "")
		sim.sessionMutex.Lock()
		delete(sim.wsSessions, session)
		sim.sessionMutex.Unlock()
	}()

	for {
		_, data, err := conn.Read(req.Context())
		if err != nil {
			logrus.Debugf("HubSim: listener connection from %s closed: %s", req.RemoteAddr, err)
			return
		}
		request := &inboundRequest{}
		if err = json.Unmarshal(data, request); err != nil {
			logrus.Warningf("HubSim: ignoring malformed listener request: %s", err)
			continue
		}
		response := sim.execute(request, session.write)
		if err = session.write(response); err != nil {
			return
		}
		if request.Method == jsonrpc.MethodSetNotificationStatus && response.Status == jsonrpc.StatusSuccess {
			sim.sessionMutex.Lock()
			session.subscribed = true
			sim.sessionMutex.Unlock()
		}
		if response.after != nil {
			response.after()
		}
	}
}

// lookupThing returns the record of a thing. Caller must hold the table lock.
func (sim *HubSim) lookupThing(thingID uuid.UUID) *thingRecord {
	for _, record := range sim.things {
		if record.ID == thingID {
			return record
		}
	}
	return nil
}
