package hubconfig_test

import (
	"flag"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maveohome/maveolib-go/pkg/hubconfig"
)

// resetFlags replaces the flag set owned by the testing package so the hub
// client flags can be registered freshly in every test
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
}

func TestSetHubCommandlineArgs(t *testing.T) {
	logrus.Infof("--- TestSetHubCommandlineArgs ---")
	resetFlags()
	myArgs := strings.Split("--host 192.168.2.179 --port 3333 --logLevel debug", " ")
	os.Args = append(os.Args[0:1], myArgs...)

	config := hubconfig.CreateDefaultHubConfig("/etc/maveo")
	hubconfig.SetHubCommandlineArgs(config)
	// a second call must not redefine the flags
	hubconfig.SetHubCommandlineArgs(config)
	flag.Parse()

	assert.Equal(t, "192.168.2.179", config.Host)
	assert.Equal(t, 3333, config.Port)
	assert.Equal(t, "debug", config.Loglevel)
	// flags not given keep their defaults
	assert.Equal(t, hubconfig.DefaultWebSocketPort, config.WebSocketPort)
	assert.Equal(t, hubconfig.DefaultDeviceName, config.DeviceName)
}

func TestParseHubCommandline(t *testing.T) {
	logrus.Infof("--- TestParseHubCommandline ---")
	resetFlags()
	folder := writeConfigFile(t, "host: 192.168.2.179\nport: 2223\nlogLevel: info\n")
	configFile := path.Join(folder, hubconfig.HubConfigName)
	myArgs := strings.Split("-c "+configFile+" --deviceName home-assistant", " ")
	os.Args = append(os.Args[0:1], myArgs...)

	config, err := hubconfig.ParseHubCommandline()
	require.NoError(t, err)
	// from the config file
	assert.Equal(t, "192.168.2.179", config.Host)
	assert.Equal(t, 2223, config.Port)
	// from the commandline
	assert.Equal(t, "home-assistant", config.DeviceName)
}

func TestParseHubCommandlineFlagOverridesFile(t *testing.T) {
	logrus.Infof("--- TestParseHubCommandlineFlagOverridesFile ---")
	resetFlags()
	folder := writeConfigFile(t, "host: 192.168.2.179\nport: 2223\nlogLevel: info\n")
	configFile := path.Join(folder, hubconfig.HubConfigName)
	myArgs := strings.Split("-c "+configFile+" --port 3333", " ")
	os.Args = append(os.Args[0:1], myArgs...)

	config, err := hubconfig.ParseHubCommandline()
	require.NoError(t, err)
	assert.Equal(t, 3333, config.Port, "commandline wins over the config file")
	assert.Equal(t, "192.168.2.179", config.Host)
}

func TestParseHubCommandlineBadFlag(t *testing.T) {
	logrus.Infof("--- TestParseHubCommandlineBadFlag ---")
	resetFlags()
	folder := writeConfigFile(t, "host: 192.168.2.179\nlogLevel: info\n")
	configFile := path.Join(folder, hubconfig.HubConfigName)
	myArgs := strings.Split("-c "+configFile+" --nosuchflag bad", " ")
	os.Args = append(os.Args[0:1], myArgs...)

	_, err := hubconfig.ParseHubCommandline()
	assert.Error(t, err, "parsing -nosuchflag should fail")
}

func TestParseHubCommandlineBadConfigFile(t *testing.T) {
	logrus.Infof("--- TestParseHubCommandlineBadConfigFile ---")
	resetFlags()
	folder := writeConfigFile(t, "host: [this is\nnot valid yaml\n")
	configFile := path.Join(folder, hubconfig.HubConfigName)
	myArgs := strings.Split("-c "+configFile, " ")
	os.Args = append(os.Args[0:1], myArgs...)

	config, err := hubconfig.ParseHubCommandline()
	assert.Error(t, err)
	assert.NotNil(t, config)
}

func TestParseHubCommandlineInvalidResult(t *testing.T) {
	logrus.Infof("--- TestParseHubCommandlineInvalidResult ---")
	resetFlags()
	// the file parses but leaves the host unset
	folder := writeConfigFile(t, "port: 2223\nlogLevel: info\n")
	configFile := path.Join(folder, hubconfig.HubConfigName)
	myArgs := strings.Split("-c "+configFile, " ")
	os.Args = append(os.Args[0:1], myArgs...)

	config, err := hubconfig.ParseHubCommandline()
	assert.Error(t, err, "validation should reject the missing host")
	assert.NotNil(t, config)
	assert.Equal(t, 2223, config.Port)
}
