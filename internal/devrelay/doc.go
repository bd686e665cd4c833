// Package devrelay mirrors event bus traffic to a socket.io development server
// and accepts remote hot-reload requests from it.
//
// The relay subscribes at Monitor priority, so it observes every publication
// of the mirrored events (including cancelled ones) without affecting
// dispatch. Reload requests are never executed by the relay itself: they are
// queued on the channel returned by Reloads and the host drains that channel
// on the goroutine that owns the mod manager.
package devrelay
