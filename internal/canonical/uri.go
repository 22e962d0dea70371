// Package canonical implements the header, query-string, and path
// canonicalization rules SigV4 requires, plus the S3 Range header parser.
package canonical

import (
	"net/url"
	"sort"
	"strings"
)

const hexUppercase = "0123456789ABCDEF"

// URIEncode percent-encodes s per SigV4's rules: unreserved characters pass
// through unchanged, every other byte becomes %XX with uppercase hex digits.
// When encodeSlash is false, '/' is left unescaped, which is what the
// canonical URI line requires since S3 keys are taken as-is (the "single
// encoding" rule spec.md's canonicalization gotchas call out: AWS normally
// double-encodes the path for SigV4, but S3 itself encodes the path exactly
// once).
func URIEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/':
			if encodeSlash {
				b.WriteString("%2F")
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte('%')
			b.WriteByte(hexUppercase[c>>4])
			b.WriteByte(hexUppercase[c&0x0f])
		}
	}
	return b.String()
}

// CanonicalURI re-encodes each already-escaped path segment per SigV4: the
// path is taken from the request, percent-decoded segment by segment, and
// re-encoded with URIEncode(segment, false) so '/' stays a separator. An
// empty path becomes "/".
func CanonicalURI(rawPath string) string {
	if rawPath == "" {
		return "/"
	}
	segments := strings.Split(rawPath, "/")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			decoded = seg
		}
		segments[i] = URIEncode(decoded, false)
	}
	return strings.Join(segments, "/")
}

// QueryParam is a single decoded key/value pair from a query string.
type QueryParam struct {
	Key   string
	Value string
}

// ParseQueryParams splits a raw query string into key/value pairs,
// preserving multiplicity and treating a bare "k" (no "=") as "k" with an
// empty value — S3's canonical query string requires empty values to still
// appear as "k=", never be omitted.
func ParseQueryParams(rawQuery string) []QueryParam {
	if rawQuery == "" {
		return nil
	}
	pairs := strings.Split(rawQuery, "&")
	params := make([]QueryParam, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		var key, value string
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			key, value = pair[:idx], pair[idx+1:]
		} else {
			key = pair
		}
		k, err := url.QueryUnescape(key)
		if err != nil {
			k = key
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			v = value
		}
		params = append(params, QueryParam{Key: k, Value: v})
	}
	return params
}

// CanonicalQueryString builds the CANONICAL_QUERY line: parameters sorted
// by key then by value, each percent-encoded, joined with '&'. If exclude is
// non-empty, parameters with that key are dropped first — used to exclude
// the presigned X-Amz-Signature parameter from its own canonical request.
func CanonicalQueryString(params []QueryParam, exclude string) string {
	filtered := make([]QueryParam, 0, len(params))
	for _, p := range params {
		if exclude != "" && p.Key == exclude {
			continue
		}
		filtered = append(filtered, p)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Key != filtered[j].Key {
			return filtered[i].Key < filtered[j].Key
		}
		return filtered[i].Value < filtered[j].Value
	})

	var b strings.Builder
	for i, p := range filtered {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(URIEncode(p.Key, true))
		b.WriteByte('=')
		b.WriteString(URIEncode(p.Value, true))
	}
	return b.String()
}

// QueryGet returns the first value associated with key, and whether it was
// present at all.
func QueryGet(params []QueryParam, key string) (string, bool) {
	for _, p := range params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}
