// Package progress fans poll notifications out to their consumers.
//
// A Hub serves notifications to WebSocket clients as JSON, a Watcher is the
// matching client, LogObserver writes them to slog, and Async decouples a
// slow observer from the poll loop without reordering notifications.
package progress
