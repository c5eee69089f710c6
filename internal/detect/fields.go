package detect

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Field is one named, decoded value of a request.
type Field struct {
	Name  string
	Value string
}

// Fields is the flattened view of a request in scan order.
type Fields []Field

// Get returns the value of the named field.
func (fs Fields) Get(name string) (string, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

const (
	FieldURL       = "url"
	FieldMethod    = "http_method"
	FieldUserAgent = "user_agent"

	paramPrefix = "param."
	bodyPrefix  = "body."
)

// Extract flattens a request into url, http_method, user_agent, then
// param.<name> and body.<name> entries with names sorted. Every value is
// percent-decoded.
func Extract(req *Request) Fields {
	fields := make(Fields, 0, 3+len(req.Params)+len(req.Body))
	fields = append(fields,
		Field{Name: FieldURL, Value: Unquote(req.URL)},
		Field{Name: FieldMethod, Value: Unquote(req.HTTPMethod)},
		Field{Name: FieldUserAgent, Value: Unquote(req.UserAgent)},
	)
	fields = appendMap(fields, paramPrefix, req.Params)
	fields = appendMap(fields, bodyPrefix, req.Body)
	return fields
}

func appendMap(fields Fields, prefix string, m map[string]any) Fields {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, Field{Name: prefix + k, Value: Unquote(Text(m[k]))})
	}
	return fields
}

// Text coerces a scalar to text. Strings pass through, numbers use their
// shortest decimal form and booleans render as true/false. Anything else,
// nil included, is the empty string.
func Text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case json.Number:
		return x.String()
	}
	return ""
}

// Unquote percent-decodes s once. Valid %XX escapes are decoded, malformed
// ones are kept as written and '+' is left alone. Decoded bytes that are not
// valid UTF-8 become U+FFFD.
func Unquote(s string) string {
	first := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '%' {
			first = i
			break
		}
	}
	if first < 0 {
		return s
	}

	buf := make([]byte, 0, len(s))
	buf = append(buf, s[:first]...)
	for i := first; i < len(s); i++ {
		c := s[i]
		if c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		buf = append(buf, c)
	}
	return strings.ToValidUTF8(string(buf), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
