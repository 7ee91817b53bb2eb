// Package gatt correlates request/response and notification traffic over an
// asynchronous GATT transport.
//
// Native BLE stacks deliver every result through a single unordered event
// stream: connection-state changes, write confirmations, descriptor-write
// confirmations and unsolicited notifications all arrive on one callback
// entry point, tagged only by characteristic or descriptor UUID. This
// package turns that stream back into ordinary blocking calls: each
// outgoing operation registers a single-shot waiter keyed by operation
// identity, the dispatcher routes every inbound event to the matching
// waiter, and unsolicited notifications with no waiting reader are queued
// per characteristic in arrival order.
//
// Peer is the public surface; Transport is the boundary a concrete BLE
// stack adapter has to implement (see the goble subpackage).
package gatt
