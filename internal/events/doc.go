// Package events publishes order lifecycle events to a durable AMQP queue.
//
// Two event types are emitted: order.state_changed whenever a poll observes a
// state different from the previous poll of the same order, and
// order.completed once an order reaches a terminal state, carrying the result
// manifest.
package events
