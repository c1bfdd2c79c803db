package types

import "errors"

// ErrAmbiguousBody is returned when a serialized body carries zero or
// several populated variants, or a variant that contradicts its kind
var ErrAmbiguousBody = errors.New("ambiguous response body variant")

// BodyKind names the populated body variant
type BodyKind string

const (
	BodyEmpty BodyKind = "empty"
	BodyBytes BodyKind = "bytes"
	BodyJSON  BodyKind = "json"
	BodyText  BodyKind = "text"
	BodyForm  BodyKind = "form"
	BodyBlob  BodyKind = "blob"
)

// Body is the decoded response body. Exactly one of the variant types below
// implements it, so a descriptor can never carry two bodies at once.
type Body interface {
	Kind() BodyKind
	isBody()
}

// EmptyBody means no body was present or the body was deliberately dropped
type EmptyBody struct{}

// BytesBody carries the raw body bytes
type BytesBody struct {
	Data []byte
}

// JSONBody carries a JSON document as unparsed text
type JSONBody struct {
	Text string
}

// TextBody carries a decoded text body
type TextBody struct {
	Text string
}

// FormBody carries decoded form fields in wire order
type FormBody struct {
	Fields []FormField
}

// BlobBody carries a reference to bytes staged inside the sandbox
type BlobBody struct {
	Ref BlobRef
}

func (EmptyBody) Kind() BodyKind { return BodyEmpty }
func (BytesBody) Kind() BodyKind { return BodyBytes }
func (JSONBody) Kind() BodyKind  { return BodyJSON }
func (TextBody) Kind() BodyKind  { return BodyText }
func (FormBody) Kind() BodyKind  { return BodyForm }
func (BlobBody) Kind() BodyKind  { return BodyBlob }

func (EmptyBody) isBody() {}
func (BytesBody) isBody() {}
func (JSONBody) isBody()  {}
func (TextBody) isBody()  {}
func (FormBody) isBody()  {}
func (BlobBody) isBody()  {}

// FormField is one decoded form entry. Filename and ContentType are set
// only for multipart file parts.
type FormField struct {
	Name        string `cbor:"name" json:"name"`
	Value       string `cbor:"value" json:"value"`
	Filename    string `cbor:"filename,omitempty" json:"filename,omitempty"`
	ContentType string `cbor:"type,omitempty" json:"type,omitempty"`
}

// FormValues groups fields by name, keeping every value in order
func FormValues(fields []FormField) map[string][]string {
	out := make(map[string][]string, len(fields))
	for _, f := range fields {
		out[f.Name] = append(out[f.Name], f.Value)
	}
	return out
}

// BlobRef is a handle to a blob staged inside the sandbox. Handle has the
// object-URL shape blob:<origin>/<id>.
type BlobRef struct {
	Handle string `cbor:"handle" json:"handle"`
	ID     string `cbor:"id" json:"id"`
	Size   int64  `cbor:"size" json:"size"`
	Type   string `cbor:"type,omitempty" json:"type,omitempty"`
}
