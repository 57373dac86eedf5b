// Package poller implements the order completion poller.
//
// The poller:
//   - Submits an OrderSpec exactly once and returns its handle
//   - Queries order status once per iteration at a fixed interval (default: 10s)
//   - Notifies observers on every observed state, repeats included
//   - Stops on a terminal state, a bounded attempt limit, or context cancellation
//
// Transport failures while polling are returned immediately; the caller
// decides whether to resume.
package poller
