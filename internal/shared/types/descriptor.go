package types

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ResponseDescriptor is the serialized response crossing the sandbox boundary
type ResponseDescriptor struct {
	URL        string
	Status     int
	StatusText string
	Headers    Headers
	Type       string
	OK         bool
	Redirected bool
	Body       Body
}

// wireBody mirrors the loosely typed body union of the wire format: one
// optional field per variant plus the kind tag
type wireBody struct {
	Kind  BodyKind     `cbor:"kind"`
	Bytes *[]byte      `cbor:"uint8array,omitempty"`
	JSON  *string      `cbor:"json,omitempty"`
	Text  *string      `cbor:"text,omitempty"`
	Form  *[]FormField `cbor:"formData,omitempty"`
	Blob  *BlobRef     `cbor:"blobUrl,omitempty"`
}

type wireDescriptor struct {
	URL        string   `cbor:"url"`
	Status     int      `cbor:"status"`
	StatusText string   `cbor:"statusText"`
	Headers    Headers  `cbor:"headers"`
	Type       string   `cbor:"type"`
	OK         bool     `cbor:"ok"`
	Redirected bool     `cbor:"redirected"`
	Body       wireBody `cbor:"body"`
}

// MarshalCBOR implements cbor.Marshaler
func (d ResponseDescriptor) MarshalCBOR() ([]byte, error) {
	body, err := encodeBody(d.Body)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(wireDescriptor{
		URL:        d.URL,
		Status:     d.Status,
		StatusText: d.StatusText,
		Headers:    d.Headers,
		Type:       d.Type,
		OK:         d.OK,
		Redirected: d.Redirected,
		Body:       body,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler. It fails with ErrAmbiguousBody
// unless exactly one body variant matches the kind tag.
func (d *ResponseDescriptor) UnmarshalCBOR(data []byte) error {
	var w wireDescriptor
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	body, err := decodeBody(w.Body)
	if err != nil {
		return err
	}
	*d = ResponseDescriptor{
		URL:        w.URL,
		Status:     w.Status,
		StatusText: w.StatusText,
		Headers:    w.Headers,
		Type:       w.Type,
		OK:         w.OK,
		Redirected: w.Redirected,
		Body:       body,
	}
	return nil
}

func encodeBody(b Body) (wireBody, error) {
	switch v := b.(type) {
	case nil, EmptyBody:
		return wireBody{Kind: BodyEmpty}, nil
	case BytesBody:
		data := v.Data
		if data == nil {
			data = []byte{}
		}
		return wireBody{Kind: BodyBytes, Bytes: &data}, nil
	case JSONBody:
		return wireBody{Kind: BodyJSON, JSON: &v.Text}, nil
	case TextBody:
		return wireBody{Kind: BodyText, Text: &v.Text}, nil
	case FormBody:
		fields := v.Fields
		if fields == nil {
			fields = []FormField{}
		}
		return wireBody{Kind: BodyForm, Form: &fields}, nil
	case BlobBody:
		return wireBody{Kind: BodyBlob, Blob: &v.Ref}, nil
	default:
		return wireBody{}, fmt.Errorf("%w: unknown body type %T", ErrAmbiguousBody, b)
	}
}

func decodeBody(w wireBody) (Body, error) {
	populated := 0
	for _, set := range []bool{w.Bytes != nil, w.JSON != nil, w.Text != nil, w.Form != nil, w.Blob != nil} {
		if set {
			populated++
		}
	}

	if populated > 1 {
		return nil, fmt.Errorf("%w: %d variants populated", ErrAmbiguousBody, populated)
	}
	if populated == 0 {
		if w.Kind != BodyEmpty {
			return nil, fmt.Errorf("%w: kind %q without a populated variant", ErrAmbiguousBody, w.Kind)
		}
		return EmptyBody{}, nil
	}

	switch {
	case w.Kind == BodyBytes && w.Bytes != nil:
		return BytesBody{Data: *w.Bytes}, nil
	case w.Kind == BodyJSON && w.JSON != nil:
		return JSONBody{Text: *w.JSON}, nil
	case w.Kind == BodyText && w.Text != nil:
		return TextBody{Text: *w.Text}, nil
	case w.Kind == BodyForm && w.Form != nil:
		return FormBody{Fields: *w.Form}, nil
	case w.Kind == BodyBlob && w.Blob != nil:
		return BlobBody{Ref: *w.Blob}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q does not match populated variant", ErrAmbiguousBody, w.Kind)
	}
}
