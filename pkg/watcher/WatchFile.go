// Package watcher with a resilient file watcher for configuration and token files
package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// interval to wait after the last change before invoking the handler
const debounceInterval = time.Millisecond * 100

// WatchFile is a resilient file watcher that handles file renames
// Special features:
// 1. This debounces multiple quick changes before invoking the callback
// 2. After the callback, resubscribe to the file to handle file renames that change the file inode
//
//  path of the file to watch
//  handler to invoke on change, receives the watched path
//  clientID to include in logging, to identify the watch when multiple are active
// This returns the fsnotify watcher. Close it when done.
func WatchFile(path string, handler func(path string) error, clientID string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The callback timer debounces multiple changes to the file
	callbackTimer := time.AfterFunc(0, func() {
		logrus.Debugf("WatchFile: invoking callback of client '%s' for %s", clientID, path)
		handler(path)

		// file renames change the inode of the filename, resubscribe
		watcher.Remove(path)
		watcher.Add(path)
	})
	callbackTimer.Stop() // don't start yet

	err = watcher.Add(path)
	if err != nil {
		logrus.Errorf("WatchFile: client '%s' unable to watch %s for changes: %s", clientID, path, err)
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// don't care what the change is, shortly after the last event the file reloads
				logrus.Debugf("WatchFile: event: %s. Modified file: %s", event, event.Name)
				callbackTimer.Reset(debounceInterval)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Errorf("WatchFile: Error: %s", err)
			}
		}
	}()
	return watcher, nil
}
