package types

import (
	"net/http"
	"sort"
	"strings"
)

// HeaderField is a single header name/value pair
type HeaderField struct {
	Name  string `cbor:"n" json:"name"`
	Value string `cbor:"v" json:"value"`
}

// Headers is an ordered header list with case-insensitive lookup.
// Repeated names are kept as separate entries.
type Headers []HeaderField

// Get returns the first value for name, or "" when absent
func (h Headers) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Lookup is Get with a presence flag
func (h Headers) Lookup(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for name in insertion order
func (h Headers) Values(name string) []string {
	var out []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Add appends a header
func (h *Headers) Add(name, value string) {
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Set replaces all values of name with a single value, keeping the
// position of the first occurrence
func (h *Headers) Set(name, value string) {
	out := (*h)[:0]
	replaced := false
	for _, f := range *h {
		if strings.EqualFold(f.Name, name) {
			if replaced {
				continue
			}
			f.Value = value
			replaced = true
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	*h = out
}

// Del removes every value of name
func (h *Headers) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

// Clone returns a copy that shares no backing array with h
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// HTTPHeader converts to a net/http header collection
func (h Headers) HTTPHeader() http.Header {
	out := make(http.Header, len(h))
	for _, f := range h {
		out.Add(f.Name, f.Value)
	}
	return out
}

// HeadersFromHTTP converts a net/http header collection. Keys are emitted
// in sorted order since http.Header carries none.
func HeadersFromHTTP(hdr http.Header) Headers {
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out Headers
	for _, k := range keys {
		for _, v := range hdr[k] {
			out = append(out, HeaderField{Name: k, Value: v})
		}
	}
	return out
}

// HeadersFromMap converts a plain key/value map, sorted by key
func HeadersFromMap(m map[string]string) Headers {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Headers, 0, len(keys))
	for _, k := range keys {
		out = append(out, HeaderField{Name: k, Value: m[k]})
	}
	return out
}
