// Package hubconfig with commandline configuration handling
package hubconfig

import (
	"flag"
	"os"
	"path"

	"github.com/sirupsen/logrus"
)

var flagsAreSet bool = false

// SetHubCommandlineArgs creates the common hub client commandline flags
//
// -c            /path/to/maveo.yaml  optional alt configuration, default is {configFolder}/maveo.yaml
// --host        hostname             hub hostname or IP address
// --port        2222                 optional alternative command channel port
// --wsPort      4444                 optional alternative notification channel port
// --deviceName  name                 name presented to the hub during pairing
// --token       token                bearer token from an earlier pairing
// --logFile     /path/to/maveo.log   optional logfile. Use to determine the logs folder
// --logLevel    warning              for extra logging, default is the config loglevel
//
func SetHubCommandlineArgs(config *HubConfig) {
	// in test mode this function can be called multiple times with a fresh
	// flag.CommandLine. Flags cannot be defined twice on the same set, so
	// prevent redefining them just like testing.Init does.
	if flagsAreSet && flag.Lookup("host") != nil {
		return
	}
	flagsAreSet = true
	// Flag -c is handled separately in ParseHubCommandline. It is added here to avoid a flag parse error
	flag.String("c", "", "Set the hub client configuration `file`")
	flag.StringVar(&config.Host, "host", config.Host, "Hub hostname or IP `address`")
	flag.IntVar(&config.Port, "port", config.Port, "Command channel `port`")
	flag.IntVar(&config.WebSocketPort, "wsPort", config.WebSocketPort, "Notification channel `port`")
	flag.StringVar(&config.DeviceName, "deviceName", config.DeviceName, "Device `name` presented during pairing")
	flag.StringVar(&config.Token, "token", config.Token, "Bearer `token` from an earlier pairing")
	flag.StringVar(&config.LogFile, "logFile", config.LogFile, "Log to `file`")
	flag.StringVar(&config.Loglevel, "logLevel", config.Loglevel, "Loglevel: {error|`warning`|info|debug}")
}

// ParseHubCommandline loads the hub client configuration and applies the
// commandline arguments on top.
//
// This checks the following commandline arguments:
//  - Commandline "-c" specifies an alternative configuration file
//  - The remaining flags from SetHubCommandlineArgs override file values
//
// Returns the configuration and an error when parsing or validation fails
func ParseHubCommandline() (*HubConfig, error) {
	config := CreateDefaultHubConfig("")

	// Option -c overrides the default config file. Intended for testing.
	configFile := path.Join(config.ConfigFolder, HubConfigName)
	args := os.Args[1:]
	for index, arg := range args {
		if arg == "-c" && index < len(args)-1 {
			configFile = args[index+1]
			// make relative paths absolute
			if !path.IsAbs(configFile) {
				cwd, _ := os.Getwd()
				configFile = path.Join(cwd, configFile)
			}
			logrus.Infof("Commandline option '-c %s' overrides the default config file", configFile)
			break
		}
	}
	if _, err := os.Stat(configFile); err == nil {
		if err = LoadConfig(configFile, config); err != nil {
			return config, err
		}
	} else {
		logrus.Infof("ParseHubCommandline: No config file at %s. Using defaults", configFile)
	}

	SetHubCommandlineArgs(config)
	// catch parsing errors, in case flag.ErrorHandling = flag.ContinueOnError
	err := flag.CommandLine.Parse(os.Args[1:])

	// Second validation pass in case a commandline argument messed up the config
	if err == nil {
		err = ValidateConfig(config)
	}

	// Last set the client logging
	if err == nil {
		SetLogging(config.Loglevel, config.LogFile)
	}
	return config, err
}
