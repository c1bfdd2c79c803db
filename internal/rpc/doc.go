/*
Package rpc carries the sandbox boundary protocol: three request/response
methods plus a one-shot Loaded event.

Frames are CBOR maps so byte bodies cross without base64. A request has an
id, a method and params; a response echoes the id with either a result or
an error {code, message}; an event has only an event name. Frames may carry
a trace map that joins both sides of a call to the same trace.

Server dispatches every request on its own goroutine, so concurrent
mixFetch calls interleave and no ordering between them is promised. Client
correlates responses by id, and rejects calls locally with ErrNotReady
until the Loaded event arrives.

Transports: NewPipe for an in-process sandbox, and websocket transports
(NewWebSocketTransport, DialWebSocket) for a sandbox host in another
process.
*/
package rpc
