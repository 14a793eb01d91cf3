package gerbang

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
)

// Key is the canonical fingerprint of a fetchable resource: an endpoint plus
// an ordered parameter set. Two fetches that build a Key from the same
// endpoint and the same parameters collide regardless of the order the
// parameters were supplied in, which is what cache lookups and in-flight
// de-duplication rely on. Every component is percent-escaped so parameter
// values containing separator characters cannot collide with a different
// parameter set.
type Key struct {
	endpoint  string
	canonical string
	sum       uint64
}

// NewKey builds a Key from an endpoint name and its parameters. Parameter
// names are sorted and escaped before serialization so the canonical form is
// stable and injective.
func NewKey(endpoint string, params map[string]string) Key {
	values := make(url.Values, len(params))
	for name, value := range params {
		values.Set(name, value)
	}

	var builder strings.Builder
	builder.WriteString(url.PathEscape(endpoint))
	if len(values) > 0 {
		builder.WriteByte('?')
		builder.WriteString(values.Encode())
	}
	canonical := builder.String()

	h := fnv.New64a()
	h.Write([]byte(canonical))

	return Key{
		endpoint:  endpoint,
		canonical: canonical,
		sum:       h.Sum64(),
	}
}

// String returns the canonical form used as the cache and de-dup identity.
func (k Key) String() string {
	return k.canonical
}

// Endpoint returns the endpoint component, used as a metrics label.
func (k Key) Endpoint() string {
	if k.endpoint == "" {
		return "unknown"
	}
	return k.endpoint
}

// Fingerprint returns the FNV-64a digest of the canonical form as hex.
func (k Key) Fingerprint() string {
	return fmt.Sprintf("%016x", k.sum)
}

// IsZero reports whether the key was never initialized.
func (k Key) IsZero() bool {
	return k.canonical == ""
}
