package types

import "time"

// RequestArgs are the fetch arguments of one mixFetch call
type RequestArgs struct {
	Method   string  `cbor:"method,omitempty" json:"method,omitempty"`
	Headers  Headers `cbor:"headers,omitempty" json:"headers,omitempty"`
	Body     []byte  `cbor:"body,omitempty" json:"body,omitempty"`
	Redirect string  `cbor:"redirect,omitempty" json:"redirect,omitempty"`
}

// SetupOptions configure the mixnet session established by setupMixFetch
type SetupOptions struct {
	// PreferredGateway is the entry gateway identity; a random one is
	// chosen by the module when empty
	PreferredGateway          string            `cbor:"preferredGateway,omitempty"`
	PreferredNetworkRequester string            `cbor:"preferredNetworkRequester,omitempty"`
	ClientID                  string            `cbor:"clientId,omitempty"`
	ForceTLS                  bool              `cbor:"forceTls,omitempty"`
	RequestTimeout            time.Duration     `cbor:"requestTimeout,omitempty"`
	Extra                     map[string]string `cbor:"extra,omitempty"`

	// ResponseBodyConfigMap replaces the default MIME decode rule set.
	// It takes effect only at setup time.
	ResponseBodyConfigMap *BodyConfigMap `cbor:"responseBodyConfigMap,omitempty"`
}

// ModuleArgs renders the options as the plain object handed to the
// primary module's setupMixFetch entry point
func (o SetupOptions) ModuleArgs() map[string]interface{} {
	args := map[string]interface{}{
		"forceTls": o.ForceTLS,
	}
	if o.PreferredGateway != "" {
		args["preferredGateway"] = o.PreferredGateway
	}
	if o.PreferredNetworkRequester != "" {
		args["preferredNetworkRequester"] = o.PreferredNetworkRequester
	}
	if o.ClientID != "" {
		args["clientId"] = o.ClientID
	}
	if o.RequestTimeout > 0 {
		args["mixFetchOverride"] = map[string]interface{}{
			"requestTimeoutMs": o.RequestTimeout.Milliseconds(),
		}
	}
	if len(o.Extra) > 0 {
		extra := make(map[string]interface{}, len(o.Extra))
		for k, v := range o.Extra {
			extra[k] = v
		}
		args["extra"] = extra
	}
	return args
}

// BodyConfigMap maps each decode strategy to its content-type matchers.
// A matcher is an exact media type, a glob such as "image/*", or a regular
// expression written as "re:<expr>" or "/<expr>/".
type BodyConfigMap struct {
	Bytes    []string `cbor:"uint8array,omitempty" json:"bytes,omitempty" yaml:"bytes,omitempty" toml:"bytes,omitempty"`
	JSON     []string `cbor:"json,omitempty" json:"json,omitempty" yaml:"json,omitempty" toml:"json,omitempty"`
	Text     []string `cbor:"text,omitempty" json:"text,omitempty" yaml:"text,omitempty" toml:"text,omitempty"`
	Form     []string `cbor:"formData,omitempty" json:"form,omitempty" yaml:"form,omitempty" toml:"form,omitempty"`
	Blob     []string `cbor:"blob,omitempty" json:"blob,omitempty" yaml:"blob,omitempty" toml:"blob,omitempty"`
	Fallback string   `cbor:"fallback,omitempty" json:"fallback,omitempty" yaml:"fallback,omitempty" toml:"fallback,omitempty"`
}
