// Package hubconfig with the hub client configuration struct and methods
package hubconfig

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"regexp"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// HubConfigName the configuration file name of the hub client
const HubConfigName = "maveo.yaml"

// HubLogFile the file name of the hub client logging
const HubLogFile = "maveo.log"

// DefaultPort of the command channel
const DefaultPort = 2222

// DefaultWebSocketPort of the notification channel
const DefaultWebSocketPort = 4444

// DefaultDeviceName presented to the hub during push-button pairing
const DefaultDeviceName = "maveolib-go"

// DefaultConnectTimeout of the command channel connect in seconds
const DefaultConnectTimeout = 30

// hostnames per RFC 1123, labels of 63 characters max without leading or trailing hyphen
var hostnamePattern = regexp.MustCompile(
	`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)

// HubConfig with hub client configuration parameters
// Intended for integrations that connect to a maveo box
type HubConfig struct {
	// hub addressing
	Host          string `yaml:"host"`   // hostname or IP of the hub, required
	Port          int    `yaml:"port"`   // command channel port. Default is 2222
	WebSocketPort int    `yaml:"wsPort"` // notification channel port. Default is 4444

	// pairing
	DeviceName string `yaml:"deviceName"`          // name presented during push-button pairing
	Token      string `yaml:"token,omitempty"`     // bearer token from an earlier pairing
	TokenFile  string `yaml:"tokenFile,omitempty"` // file holding the bearer token. Overrides Token when set

	// timeouts
	ConnectTimeout int `yaml:"connectTimeout"` // command channel connect timeout in seconds. Default is 30

	// logging
	Loglevel string `yaml:"logLevel"` // debug, info, warning, error. Default is warning
	LogFile  string `yaml:"logFile"`  // client logging to file

	// Folders
	ConfigFolder string `yaml:"configFolder"` // location of configuration files
}

// CreateDefaultHubConfig with default values
//  configFolder is the location of configuration files.
// Use "" for default: the config folder in the parent of the application binary.
// When a relative path is given, it is relative to the current working directory.
func CreateDefaultHubConfig(configFolder string) *HubConfig {
	if configFolder == "" {
		appBin, _ := os.Executable()
		binFolder := path.Dir(appBin)
		configFolder = path.Join(path.Dir(binFolder), "config")
	} else if !path.IsAbs(configFolder) {
		cwd, _ := os.Getwd()
		configFolder = path.Join(cwd, configFolder)
	}
	config := &HubConfig{
		Port:           DefaultPort,
		WebSocketPort:  DefaultWebSocketPort,
		DeviceName:     DefaultDeviceName,
		ConnectTimeout: DefaultConnectTimeout,
		Loglevel:       "warning",
		ConfigFolder:   configFolder,
	}
	return config
}

// LoadConfig loads the configuration from file into the given config
//  configFile path to yaml configuration file
//  config structure to load into. Existing values are kept as defaults
// Returns nil if successful
func LoadConfig(configFile string, config *HubConfig) error {
	rawConfig, err := ioutil.ReadFile(configFile)
	if err != nil {
		logrus.Infof("Unable to load config file: %s", err)
		return err
	}
	logrus.Infof("Loaded config file '%s'", configFile)

	err = yaml.Unmarshal(rawConfig, config)
	if err != nil {
		logrus.Errorf("Error parsing config file '%s': %s", configFile, err)
		return err
	}
	return nil
}

// LoadHubConfig loads the hub client configuration from {configFolder}/maveo.yaml
// Defaults apply for anything the file does not set. A missing file is not an
// error, the defaults are returned as-is and validation reports what is missing.
//  configFolder with the location of configuration files. Use "" for the default.
// Returns the configuration and an error when the file is malformed or the result invalid
func LoadHubConfig(configFolder string) (*HubConfig, error) {
	config := CreateDefaultHubConfig(configFolder)
	configFile := path.Join(config.ConfigFolder, HubConfigName)

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logrus.Infof("LoadHubConfig: No config file at %s. Using defaults", configFile)
	} else if err := LoadConfig(configFile, config); err != nil {
		return config, err
	}
	return config, ValidateConfig(config)
}

// ValidateConfig checks if values in the hub client configuration are correct
// Returns an error if the config is invalid
func ValidateConfig(config *HubConfig) error {
	if config.Host == "" {
		err := fmt.Errorf("Hub host not provided")
		logrus.Error(err)
		return err
	}
	if !hostnamePattern.MatchString(config.Host) {
		err := fmt.Errorf("Hub host '%s' is not a valid hostname or IP address", config.Host)
		logrus.Error(err)
		return err
	}
	if config.Port < 1 || config.Port > 65535 {
		err := fmt.Errorf("Command channel port %d out of range", config.Port)
		logrus.Error(err)
		return err
	}
	if config.WebSocketPort < 1 || config.WebSocketPort > 65535 {
		err := fmt.Errorf("Notification channel port %d out of range", config.WebSocketPort)
		logrus.Error(err)
		return err
	}
	if config.Loglevel != "" {
		if _, err := logrus.ParseLevel(config.Loglevel); err != nil {
			err = fmt.Errorf("Unknown loglevel '%s'", config.Loglevel)
			logrus.Error(err)
			return err
		}
	}
	return nil
}
