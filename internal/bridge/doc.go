// Package bridge lets the primary module drive connection primitives
// implemented elsewhere, usually by the secondary module.
//
// The capability is a Connector injected by the caller. Install publishes it
// into a runtime under the global __go_rs_bridge__, with the four function
// names the primary module's generated bindings call:
//
//	start_new_mixnet_connection(addr) -> Promise<id>
//	send_client_data(id, bytes)       -> Promise<void>
//	mix_fetch_initialised()           -> boolean
//	finish_mixnet_connection(id)      -> Promise<void>
//
// Asynchronous calls run off the loop and settle their promise back on it.
// The bridge tracks open connection ids and rejects duplicates or unknown ids
// before they reach the Connector.
package bridge
