package hubconfig

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"

	"github.com/sirupsen/logrus"
)

// SetLogging sets the logging level and output file of the global logger
// Intended for applying the configured Loglevel and LogFile
//  levelName is the level to log: error, warning, info or debug
//  filename of the logfile, or "" for logging to stderr only
// Returns an error when the level is unknown or the logfile cannot be opened
func SetLogging(levelName string, filename string) error {
	var err error
	loggingLevel := logrus.WarnLevel

	if levelName != "" {
		loggingLevel, err = logrus.ParseLevel(levelName)
		if err != nil {
			err = fmt.Errorf("Unknown loglevel '%s', using warning instead", levelName)
			logrus.Error(err)
			loggingLevel = logrus.WarnLevel
		}
	}

	var logOut io.Writer = os.Stderr
	if filename != "" {
		logFileHandle, err2 := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err2 != nil {
			err = fmt.Errorf("Unable to open logfile %s: %s", filename, err2)
			logrus.Error(err)
		} else {
			logOut = io.MultiWriter(logFileHandle, os.Stderr)
		}
	}

	logrus.SetOutput(logOut)
	logrus.SetLevel(loggingLevel)
	// include the caller location when debugging
	logrus.SetReportCaller(loggingLevel == logrus.DebugLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000-0700",
		CallerPrettyfier: func(frame *runtime.Frame) (string, string) {
			funcName := path.Base(frame.Function)
			fileName := fmt.Sprintf("%s:%d", path.Base(frame.File), frame.Line)
			return funcName, fileName
		},
	})
	return err
}
