// Package host runs the sandbox side of the bridge.
//
// A Host owns the two module runtimes, the installed bridge, the blob
// store and the session state machine:
//
//	Created → Loaded → SessionEstablishing → Ready → Disconnecting → Disconnected
//
// Failed marks a bring-up that never reached Loaded. A session failure
// while Ready drops back to Loaded so setup can be retried. Disconnected
// is terminal.
//
// Host implements rpc.Handler; Serve answers calls on a transport and the
// HTTP server exposes the same calls over a websocket together with blob
// dereference, health and metrics endpoints.
package host
