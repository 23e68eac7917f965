package cache

import "net/http"

// KeyKind identifies which validator a cache key carries.
type KeyKind string

const (
	// KindETag marks an entity-tag validator, re-sent as If-None-Match.
	KindETag KeyKind = "etag"

	// KindLastModified marks a date validator, re-sent as If-Modified-Since.
	KindLastModified KeyKind = "last-modified"
)

// Key is the validator stored for a cached URI. It carries exactly one of
// the two validator forms and is re-sent verbatim on the next request so the
// server can answer 304 Not Modified.
type Key struct {
	Kind  KeyKind `json:"kind"`
	Value string  `json:"value"`
}

// KeyFromHeader extracts a validator from response headers.
// ETag takes precedence over Last-Modified because it is more accurate.
func KeyFromHeader(h http.Header) (Key, bool) {
	if etag := h.Get("ETag"); etag != "" {
		return Key{Kind: KindETag, Value: etag}, true
	}
	if lastModified := h.Get("Last-Modified"); lastModified != "" {
		return Key{Kind: KindLastModified, Value: lastModified}, true
	}
	return Key{}, false
}

// IsZero reports whether the key carries no validator.
func (k Key) IsZero() bool {
	return k.Value == ""
}

// Apply sets the conditional request header matching the validator kind.
func (k Key) Apply(h http.Header) {
	switch k.Kind {
	case KindETag:
		h.Set("If-None-Match", k.Value)
	case KindLastModified:
		h.Set("If-Modified-Since", k.Value)
	}
}
