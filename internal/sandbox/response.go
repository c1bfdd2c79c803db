package sandbox

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/nymtech/nym-sub006/internal/shared/types"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// ResponseInit carries the metadata of a response
type ResponseInit struct {
	Status     int
	StatusText string
	URL        string
	Type       string
	Redirected bool
	Headers    types.Headers
}

// Response is a fetch response created inside a runtime. Its body can be
// read once, through any one of the body methods.
type Response struct {
	init ResponseInit
	body []byte

	mu   sync.Mutex
	used bool
}

// NewResponse creates a response. A nil body means no body.
func NewResponse(init ResponseInit, body []byte) *Response {
	if init.Status == 0 {
		init.Status = 200
	}
	if init.Type == "" {
		init.Type = "default"
	}
	return &Response{init: init, body: body}
}

func (r *Response) Status() int           { return r.init.Status }
func (r *Response) StatusText() string    { return r.init.StatusText }
func (r *Response) URL() string           { return r.init.URL }
func (r *Response) Type() string          { return r.init.Type }
func (r *Response) Redirected() bool      { return r.init.Redirected }
func (r *Response) Header() types.Headers { return r.init.Headers.Clone() }

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.init.Status >= 200 && r.init.Status <= 299
}

// HasBody reports whether a non-empty body is present
func (r *Response) HasBody() bool {
	return len(r.body) > 0
}

// BodyUsed reports whether the body has been read
func (r *Response) BodyUsed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

func (r *Response) consume() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used {
		return nil, ErrBodyUsed
	}
	r.used = true
	return r.body, nil
}

// Bytes reads the whole body
func (r *Response) Bytes() ([]byte, error) {
	body, err := r.consume()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), body...), nil
}

// Text reads the body as text, decoding it to UTF-8 using the declared
// charset or, failing that, a detected one
func (r *Response) Text() (string, error) {
	body, err := r.consume()
	if err != nil {
		return "", err
	}
	return DecodeText(body, r.init.Headers.Get("Content-Type")), nil
}

// FormData reads the body as urlencoded or multipart form fields in wire order
func (r *Response) FormData() ([]types.FormField, error) {
	body, err := r.consume()
	if err != nil {
		return nil, err
	}
	return ParseForm(body, r.init.Headers.Get("Content-Type"))
}

// Blob reads the body as opaque bytes together with its declared type
func (r *Response) Blob() ([]byte, string, error) {
	body, err := r.consume()
	if err != nil {
		return nil, "", err
	}
	return append([]byte(nil), body...), strings.ToLower(r.init.Headers.Get("Content-Type")), nil
}

// DecodeText converts body to a UTF-8 string
func DecodeText(body []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if label := params["charset"]; label != "" {
			if enc, name := charset.Lookup(label); enc != nil {
				if name == "utf-8" {
					return string(body)
				}
				if out, err := enc.NewDecoder().Bytes(body); err == nil {
					return string(out)
				}
			}
		}
	}

	if utf8.Valid(body) {
		return string(body)
	}

	detected, err := chardet.NewTextDetector().DetectBest(body)
	if err == nil && detected != nil {
		if enc, _ := charset.Lookup(detected.Charset); enc != nil {
			if out, err := enc.NewDecoder().Bytes(body); err == nil {
				return string(out)
			}
		}
	}
	return string(body)
}

// ParseForm decodes a urlencoded or multipart body. Repeated names are kept.
func ParseForm(body []byte, contentType string) ([]types.FormField, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedForm, err)
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		return parseURLEncoded(body)
	case "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("%w: missing multipart boundary", ErrMalformedForm)
		}
		return parseMultipart(body, boundary)
	default:
		return nil, fmt.Errorf("%w: %s is not a form type", ErrMalformedForm, mediaType)
	}
}

func parseURLEncoded(body []byte) ([]types.FormField, error) {
	fields := []types.FormField{}
	for _, pair := range strings.Split(string(body), "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedForm, err)
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedForm, err)
		}
		fields = append(fields, types.FormField{Name: name, Value: value})
	}
	return fields, nil
}

func parseMultipart(body []byte, boundary string) ([]types.FormField, error) {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	fields := []types.FormField{}

	for {
		part, err := reader.NextPart()
		// only a bare io.EOF marks the closing boundary; a wrapped one is truncation
		if err == io.EOF {
			return fields, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedForm, err)
		}

		value, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedForm, err)
		}

		fields = append(fields, types.FormField{
			Name:        part.FormName(),
			Value:       string(value),
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
		})
	}
}

// installResponse defines the global Response constructor
func (r *Runtime) installResponse() error {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		resp, err := r.responseFromInit(call.Argument(0), call.Argument(1))
		if err != nil {
			panic(r.vm.NewTypeError(err.Error()))
		}
		r.bindResponse(call.This, resp)
		return call.This
	}
	return r.vm.Set("Response", ctor)
}

// ResponseFromValue extracts the Go response behind a module value. Plain
// objects with a status field are accepted too, their body field holding a
// string or binary buffer. Must run on the loop.
func (r *Runtime) ResponseFromValue(v goja.Value) (*Response, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, ErrNotResponse
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, ErrNotResponse
	}

	if bound := obj.GetSymbol(r.responseSym); bound != nil {
		if resp, ok := bound.Export().(*Response); ok {
			return resp, nil
		}
	}

	if status := obj.Get("status"); status == nil || goja.IsUndefined(status) {
		return nil, ErrNotResponse
	}
	return r.responseFromInit(obj.Get("body"), obj)
}

func (r *Runtime) responseFromInit(bodyV, initV goja.Value) (*Response, error) {
	var body []byte
	if !isNullish(bodyV) {
		b, ok := BytesFromValue(r.vm, bodyV)
		if !ok {
			return nil, fmt.Errorf("unsupported body type %s", bodyV.ExportType())
		}
		body = b
	}

	var init ResponseInit
	if !isNullish(initV) {
		obj := initV.ToObject(r.vm)
		if v := obj.Get("status"); !isNullish(v) {
			init.Status = int(v.ToInteger())
		}
		init.StatusText = optionalString(obj.Get("statusText"))
		init.URL = optionalString(obj.Get("url"))
		init.Type = optionalString(obj.Get("type"))
		if v := obj.Get("redirected"); !isNullish(v) {
			init.Redirected = v.ToBoolean()
		}
		headers, err := HeadersFromValue(r.vm, obj.Get("headers"))
		if err != nil {
			return nil, err
		}
		init.Headers = headers
	}

	return NewResponse(init, body), nil
}

func (r *Runtime) bindResponse(obj *goja.Object, resp *Response) {
	vm := r.vm
	_ = obj.SetSymbol(r.responseSym, resp)
	_ = obj.Set("status", resp.Status())
	_ = obj.Set("statusText", resp.StatusText())
	_ = obj.Set("ok", resp.OK())
	_ = obj.Set("url", resp.URL())
	_ = obj.Set("redirected", resp.Redirected())
	_ = obj.Set("type", resp.Type())
	_ = obj.Set("headers", headersObject(vm, resp.init.Headers))

	_ = obj.Set("arrayBuffer", func(goja.FunctionCall) goja.Value {
		b, err := resp.Bytes()
		if err != nil {
			return Rejected(vm, err)
		}
		return Resolved(vm, vm.ToValue(vm.NewArrayBuffer(b)))
	})
	_ = obj.Set("text", func(goja.FunctionCall) goja.Value {
		s, err := resp.Text()
		if err != nil {
			return Rejected(vm, err)
		}
		return Resolved(vm, vm.ToValue(s))
	})
	_ = obj.Set("json", func(goja.FunctionCall) goja.Value {
		s, err := resp.Text()
		if err != nil {
			return Rejected(vm, err)
		}
		parse, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
		v, err := parse(goja.Undefined(), vm.ToValue(s))
		if err != nil {
			return Rejected(vm, ErrorFromException(vm, err))
		}
		return Resolved(vm, v)
	})
}

// headersObject exposes ordered headers with case-insensitive lookup
func headersObject(vm *goja.Runtime, headers types.Headers) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		values := headers.Values(call.Argument(0).String())
		if len(values) == 0 {
			return goja.Null()
		}
		return vm.ToValue(strings.Join(values, ", "))
	})
	_ = obj.Set("has", func(call goja.FunctionCall) goja.Value {
		_, ok := headers.Lookup(call.Argument(0).String())
		return vm.ToValue(ok)
	})
	_ = obj.Set("entries", func(goja.FunctionCall) goja.Value {
		pairs := make([]interface{}, len(headers))
		for i, f := range headers {
			pairs[i] = []interface{}{strings.ToLower(f.Name), f.Value}
		}
		return vm.ToValue(pairs)
	})
	_ = obj.Set("forEach", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("callback must be a function"))
		}
		for _, f := range headers {
			if _, err := fn(goja.Undefined(), vm.ToValue(f.Value), vm.ToValue(strings.ToLower(f.Name))); err != nil {
				panic(err)
			}
		}
		return goja.Undefined()
	})
	return obj
}

// HeadersFromValue reads headers given as an array of [name, value] pairs,
// a plain object, or an object with an entries() method
func HeadersFromValue(vm *goja.Runtime, v goja.Value) (types.Headers, error) {
	if isNullish(v) {
		return nil, nil
	}
	obj := v.ToObject(vm)

	if entries, ok := goja.AssertFunction(obj.Get("entries")); ok && obj.ClassName() != "Array" {
		list, err := entries(obj)
		if err != nil {
			return nil, err
		}
		return headersFromPairs(vm, list)
	}

	if obj.ClassName() == "Array" {
		return headersFromPairs(vm, obj)
	}

	var headers types.Headers
	for _, key := range obj.Keys() {
		headers.Add(key, obj.Get(key).String())
	}
	return headers, nil
}

func headersFromPairs(vm *goja.Runtime, list goja.Value) (types.Headers, error) {
	arr := list.ToObject(vm)
	n := int(arr.Get("length").ToInteger())

	var headers types.Headers
	for i := 0; i < n; i++ {
		pair := arr.Get(fmt.Sprint(i)).ToObject(vm)
		if pair.Get("length").ToInteger() != 2 {
			return nil, fmt.Errorf("header entry %d is not a [name, value] pair", i)
		}
		headers.Add(pair.Get("0").String(), pair.Get("1").String())
	}
	return headers, nil
}

// BytesFromValue copies the bytes out of a string, ArrayBuffer or typed
// array value
func BytesFromValue(vm *goja.Runtime, v goja.Value) ([]byte, bool) {
	if isNullish(v) {
		return nil, false
	}

	switch x := v.Export().(type) {
	case string:
		return []byte(x), true
	case []byte:
		return append([]byte{}, x...), true
	case goja.ArrayBuffer:
		return append([]byte{}, x.Bytes()...), true
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	bufV := obj.Get("buffer")
	if bufV == nil {
		return nil, false
	}
	buf, ok := bufV.Export().(goja.ArrayBuffer)
	if !ok {
		return nil, false
	}
	data := buf.Bytes()
	offset := obj.Get("byteOffset").ToInteger()
	length := obj.Get("byteLength").ToInteger()
	if offset < 0 || length < 0 || offset+length > int64(len(data)) {
		return nil, false
	}
	return append([]byte{}, data[offset:offset+length]...), true
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
