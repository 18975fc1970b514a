package bbb

import (
	"net/url"
	"strconv"
	"strings"
)

// Param is one query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list. The meeting server checksums the query string
// exactly as sent, so order is preserved rather than sorted as url.Values would do.
type Params []Param

// Add appends a parameter.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// AddOptional appends a parameter only when value is non-nil and non-empty.
func (p Params) AddOptional(key string, value *string) Params {
	if value == nil || *value == "" {
		return p
	}
	return p.Add(key, *value)
}

// AddBool appends a boolean as "true"/"false".
func (p Params) AddBool(key string, value bool) Params {
	return p.Add(key, strconv.FormatBool(value))
}

// Get returns the first value for key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Encode serialises the parameters in form encoding (space as '+'), keeping insertion order.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}
