// Package testutil provides module fixtures and mocks shared by tests.
//
// The fixtures are small JavaScript module images that honour the same
// export contract as the real mixnet modules. The primary fixture answers
// fetches from a route table keyed by URL path:
//
//	/json        application/json {"a":1}
//	/text        text/plain with repeated X-Hop headers
//	/html        text/html
//	/png         image/png, ?size= bytes (default 10240)
//	/octet       application/octet-stream, 64 bytes
//	/form        urlencoded with a repeated field
//	/bad-form    urlencoded with an invalid escape
//	/weird       application/x-custom-weird, 32 bytes
//	/untyped     16 bytes without Content-Type
//	/empty       204 without body
//	/redirected  redirected text response
//	/echo        echoes ?id=, method, headers and body size as JSON
//	/none        resolves to undefined
//	/drop        drops the session with a SessionError
//	/panic       reports through the panic hook, then throws
//
// Any route accepts ?delay=<ms> to hold the response.
package testutil
