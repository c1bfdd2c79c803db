// Package blob stages response bodies inside the sandbox and hands out
// object-URL style handles (blob:<origin>/<id>) in their place.
//
// A staged blob is owned by the store until the caller dereferences it.
// Take returns the bytes and releases the blob in one step, Release drops it
// unread, and a sweeper expires blobs nobody claimed within the TTL.
package blob
