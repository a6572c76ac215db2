package hubsim_test

import (
	"bufio"
	"crypto/x509"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maveohome/maveolib-go/pkg/hubsim"
	"github.com/maveohome/maveolib-go/pkg/jsonrpc"
)

func TestStartStop(t *testing.T) {
	logrus.Infof("--- TestStartStop ---")
	sim := hubsim.NewHubSim(hubsim.Config{})
	require.NoError(t, sim.Start())

	assert.NotEmpty(t, sim.Addr())
	assert.Greater(t, sim.Port(), 0)
	assert.Greater(t, sim.WSPort(), 0)
	assert.True(t, strings.HasPrefix(sim.WSURL(), "ws://"))

	err := sim.Start()
	assert.Error(t, err, "a running simulator cannot start twice")

	sim.Stop()
	sim.Stop() // safe to repeat
}

// TestHelloOnRawSocket pins the wire format: one JSON object per line on the
// command channel, a Hello response with the protocol version key containing
// a space.
func TestHelloOnRawSocket(t *testing.T) {
	logrus.Infof("--- TestHelloOnRawSocket ---")
	sim := hubsim.NewHubSim(hubsim.Config{AuthRequired: true, PushButtonAvailable: true})
	require.NoError(t, sim.Start())
	defer sim.Stop()

	conn, err := net.DialTimeout("tcp", sim.Addr(), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"id":0,"method":"JSONRPC.Hello"}` + "\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var response struct {
		ID     int                    `json:"id"`
		Status string                 `json:"status"`
		Params map[string]interface{} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(line, &response))
	assert.Equal(t, 0, response.ID)
	assert.Equal(t, jsonrpc.StatusSuccess, response.Status)
	assert.Equal(t, "nymea", response.Params["server"])
	assert.Equal(t, "maveo box", response.Params["name"])
	assert.Equal(t, "5.4", response.Params["protocol version"])
	assert.Equal(t, true, response.Params["authenticationRequired"])
	assert.Equal(t, true, response.Params["pushButtonAuthAvailable"])
	assert.Equal(t, false, response.Params["initialSetupRequired"])
}

func TestCommandsRequireToken(t *testing.T) {
	logrus.Infof("--- TestCommandsRequireToken ---")
	sim := hubsim.NewHubSim(hubsim.Config{
		AuthRequired: true, PushButtonAvailable: true, FixedToken: "GOOD"})
	require.NoError(t, sim.Start())
	defer sim.Stop()

	conn, err := net.DialTimeout("tcp", sim.Addr(), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(conn)

	readResponse := func() map[string]interface{} {
		line, readErr := reader.ReadBytes('\n')
		require.NoError(t, readErr)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &response))
		return response
	}

	_, err = conn.Write([]byte(`{"id":0,"method":"Integrations.GetThings"}` + "\n"))
	require.NoError(t, err)
	response := readResponse()
	assert.Equal(t, jsonrpc.StatusUnauthorized, response["status"])

	_, err = conn.Write([]byte(`{"id":1,"method":"Integrations.GetThings","token":"GOOD"}` + "\n"))
	require.NoError(t, err)
	response = readResponse()
	assert.Equal(t, jsonrpc.StatusSuccess, response["status"])
}

func TestReceivedRequestsAreRecorded(t *testing.T) {
	logrus.Infof("--- TestReceivedRequestsAreRecorded ---")
	sim := hubsim.NewHubSim(hubsim.Config{})
	require.NoError(t, sim.Start())
	defer sim.Stop()

	conn, err := net.DialTimeout("tcp", sim.Addr(), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"id":0,"method":"JSONRPC.Hello"}` + "\n"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	requests := sim.ReceivedRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, jsonrpc.MethodHello, requests[0].Method)
	assert.Empty(t, requests[0].Token)
}

func TestTokenIssuer(t *testing.T) {
	logrus.Infof("--- TestTokenIssuer ---")
	issuer := hubsim.NewTokenIssuer("")

	token := issuer.IssueToken("maveolib-go test")
	require.NotEmpty(t, token)
	assert.True(t, issuer.VerifyToken(token))

	assert.False(t, issuer.VerifyToken(""))
	assert.False(t, issuer.VerifyToken("not-a-jwt"))

	// tokens from another issuer carry the wrong signature
	other := hubsim.NewTokenIssuer("")
	assert.False(t, issuer.VerifyToken(other.IssueToken("imposter")))
}

func TestTokenIssuerFixedToken(t *testing.T) {
	logrus.Infof("--- TestTokenIssuerFixedToken ---")
	issuer := hubsim.NewTokenIssuer("SCRIPTED")
	assert.Equal(t, "SCRIPTED", issuer.IssueToken("any device"))
	assert.True(t, issuer.VerifyToken("SCRIPTED"))
	assert.False(t, issuer.VerifyToken("SOMETHING-ELSE"))
}

func TestSelfSignedCert(t *testing.T) {
	logrus.Infof("--- TestSelfSignedCert ---")
	cert, err := hubsim.CreateSelfSignedCert()
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, parsed.DNSNames, "localhost")
	assert.True(t, parsed.NotAfter.After(time.Now()))

	hasLoopback := false
	for _, ip := range parsed.IPAddresses {
		if ip.Equal(net.ParseIP("127.0.0.1")) {
			hasLoopback = true
		}
	}
	assert.True(t, hasLoopback, "certificate must cover the loopback address")
}
