// Package reconstruct turns a response descriptor received from the
// sandbox back into a standard *http.Response.
//
// Status, status text, URL, headers and the redirected and ok flags are
// carried over verbatim. Bodies are rebuilt per variant: bytes as-is, text
// and JSON re-encoded in the declared charset, forms re-encoded in their
// original content type (multipart keeps its boundary) and blob references
// dereferenced through a BlobResolver.
package reconstruct
