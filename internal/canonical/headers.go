package canonical

import (
	"net/http"
	"sort"
	"strings"
)

// collapseWhitespace trims a header value and collapses internal runs of
// whitespace to a single space, per SigV4's canonical header rule.
func collapseWhitespace(v string) string {
	fields := strings.Fields(v)
	return strings.Join(fields, " ")
}

// CanonicalHeaders builds the CANONICAL_HEADERS block for the given signed
// header names (any case, any order): lowercase, sorted, each rendered as
// "name:value\n". "host" is special-cased to r.Host since Go's http.Request
// strips it from r.Header.
func CanonicalHeaders(r *http.Request, signedHeaderNames []string) (canonicalHeaders, signedHeaders string) {
	names := make([]string, 0, len(signedHeaderNames))
	for _, h := range signedHeaderNames {
		n := strings.ToLower(strings.TrimSpace(h))
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		var value string
		switch name {
		case "host":
			value = r.Host
			if value == "" {
				value = r.URL.Host
			}
		default:
			value = r.Header.Get(name)
		}
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(collapseWhitespace(value))
		b.WriteByte('\n')
	}

	return b.String(), strings.Join(names, ";")
}
