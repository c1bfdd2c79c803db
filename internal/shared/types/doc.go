// Package types defines the values that cross the sandbox boundary.
//
// Core Types:
//   - ResponseDescriptor: serialized response produced inside the sandbox
//   - Body: sum type of the decoded body (empty, bytes, json, text, form, blob)
//   - Headers: ordered header pairs with case-insensitive lookup
//   - RequestArgs: method, headers and body of one mixFetch call
//   - SetupOptions: mixnet session parameters passed to setupMixFetch
//   - BodyConfigMap: caller override of the MIME decode rule set
//
// Every type here has a CBOR form used by the RPC transport. A ResponseDescriptor
// is created once inside the sandbox, decoded once on the caller side and never
// mutated in between.
package types
