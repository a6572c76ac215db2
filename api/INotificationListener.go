// Package api with the notification listener interface definition
package api

// INotificationListener maintains the push notification connection of a hub.
// The command channel and the notification channel are separate connections,
// a hub client combines one of each. Implementations run in the background
// and recover lost connections on their own.
type INotificationListener interface {
	// Start the background listener routine. A no-op when it already runs.
	Start() error

	// Stop the listener and wait until its background routine has ended.
	// Safe to call without a preceding Start and safe to call repeatedly.
	Stop()

	// Running tells whether the background routine is active
	Running() bool
}
