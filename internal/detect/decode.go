package detect

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrMalformedRequest is returned by DecodeRequest when the input is not a
// JSON object.
var ErrMalformedRequest = errors.New("request descriptor is not a JSON object")

// DecodeRequest reads the JSON request contract. Decoding is tolerant: any
// field that is missing or of the wrong type becomes empty, and param/body
// values that are not scalars become the empty string.
func DecodeRequest(data []byte) (Request, error) {
	if !gjson.ValidBytes(data) {
		return Request{}, ErrMalformedRequest
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Request{}, ErrMalformedRequest
	}
	return requestFromResult(doc), nil
}

// DecodeRequests reads either a single descriptor object or an array of
// them. Array elements that are not objects decode to empty requests.
func DecodeRequests(data []byte) ([]Request, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedRequest
	}
	doc := gjson.ParseBytes(data)
	switch {
	case doc.IsObject():
		return []Request{requestFromResult(doc)}, nil
	case doc.IsArray():
		var out []Request
		doc.ForEach(func(_, v gjson.Result) bool {
			out = append(out, requestFromResult(v))
			return true
		})
		return out, nil
	}
	return nil, ErrMalformedRequest
}

func requestFromResult(doc gjson.Result) Request {
	return Request{
		IPAddress:  str(doc.Get("ip_address")),
		URL:        str(doc.Get("url")),
		HTTPMethod: str(doc.Get("http_method")),
		Params:     scalarMap(doc.Get("params")),
		Body:       scalarMap(doc.Get("body")),
		UserAgent:  str(doc.Get("user_agent")),
	}
}

func str(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return ""
}

func scalarMap(r gjson.Result) map[string]any {
	if !r.IsObject() {
		return nil
	}
	out := make(map[string]any)
	r.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = scalar(v)
		return true
	})
	return out
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	}
	return ""
}

// DecodeFields reads a top-level JSON object into a params/body map with the
// same scalar rules as DecodeRequest. It reports false for anything else.
func DecodeFields(data []byte) (map[string]any, bool) {
	if !gjson.ValidBytes(data) {
		return nil, false
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, false
	}
	return scalarMap(doc), true
}
