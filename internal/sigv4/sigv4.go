// Package sigv4 implements AWS Signature Version 4 request authentication:
// canonical-request construction, signing-key derivation, header and
// presigned-query validators, and the streaming chunk-signature chain.
//
// The canonical-request algorithm is grounded on
// original_source/src/signature_v4.rs and verified against the same AWS
// test vectors that file's unit tests use (spec.md §8 scenario 1); the
// Authorization-header parsing shape follows the teacher's
// internal/auth/aws_hmac.go.
package sigv4

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"depot/internal/canonical"
	"depot/internal/crypto"
)

// Algorithm is the only signing algorithm this server accepts.
const Algorithm = "AWS4-HMAC-SHA256"

// MaxClockSkew bounds how far a request's timestamp may drift from now.
const MaxClockSkew = 15 * time.Minute

// AmzDateLayout is the ISO-8601 basic format SigV4 timestamps use.
const AmzDateLayout = "20060102T150405Z"

const dateOnlyLayout = "20060102"

// Credential is the single static access/secret key pair this server
// authenticates requests against.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
}

// CanonicalRequest holds the pieces of a SigV4 canonical request, mirroring
// spec.md §4.2's CANONICAL_* breakdown.
type CanonicalRequest struct {
	Method        string
	CanonicalURI  string
	CanonicalQS   string
	SignedHeaders string
	PayloadHash   string
	text          string
}

// String renders the canonical request in the exact newline-joined form
// that gets hashed.
func (c *CanonicalRequest) String() string {
	return c.text
}

// BuildCanonicalRequest assembles the canonical request for r, signing the
// headers named in signedHeaderNames, using payloadHash as the
// already-resolved PAYLOAD_HASH line (the literal from
// x-amz-content-sha256, which may be a hex hash or one of the streaming/
// unsigned sentinels).
func BuildCanonicalRequest(r *http.Request, signedHeaderNames []string, payloadHash string) *CanonicalRequest {
	return buildCanonicalRequest(r, signedHeaderNames, payloadHash, "")
}

// BuildCanonicalRequestExcluding is BuildCanonicalRequest but additionally
// drops excludeQueryParam from the canonical query string — used for
// presigned requests, whose own X-Amz-Signature parameter is never part of
// what it signs (spec.md §4.2).
func BuildCanonicalRequestExcluding(r *http.Request, signedHeaderNames []string, payloadHash, excludeQueryParam string) *CanonicalRequest {
	return buildCanonicalRequest(r, signedHeaderNames, payloadHash, excludeQueryParam)
}

func buildCanonicalRequest(r *http.Request, signedHeaderNames []string, payloadHash, excludeQueryParam string) *CanonicalRequest {
	// The server's slashFix and virtualHostedRewrite middleware rewrite
	// r.URL.Path before authentication runs, so a server-side request is
	// canonicalized from the path as the client sent it (RequestURI).
	path := r.URL.EscapedPath()
	if r.RequestURI != "" {
		if u, err := url.ParseRequestURI(r.RequestURI); err == nil {
			path = u.EscapedPath()
		}
	}
	uri := canonical.CanonicalURI(path)
	params := canonical.ParseQueryParams(r.URL.RawQuery)
	qs := canonical.CanonicalQueryString(params, excludeQueryParam)
	canonicalHeaders, signedHeaders := canonical.CanonicalHeaders(r, signedHeaderNames)

	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(uri)
	b.WriteByte('\n')
	b.WriteString(qs)
	b.WriteByte('\n')
	b.WriteString(canonicalHeaders)
	b.WriteByte('\n')
	b.WriteString(signedHeaders)
	b.WriteByte('\n')
	b.WriteString(payloadHash)

	return &CanonicalRequest{
		Method:        r.Method,
		CanonicalURI:  uri,
		CanonicalQS:   qs,
		SignedHeaders: signedHeaders,
		PayloadHash:   payloadHash,
		text:          b.String(),
	}
}

// Scope is the SigV4 credential scope: "<date>/<region>/s3/aws4_request".
func Scope(date, region string) string {
	return date + "/" + region + "/s3/aws4_request"
}

// StringToSign builds the SigV4 string-to-sign from a canonical request.
func StringToSign(canonicalRequest, amzDateTime, date, region string) string {
	hashed := crypto.HexSHA256([]byte(canonicalRequest))
	var b strings.Builder
	b.WriteString(Algorithm)
	b.WriteByte('\n')
	b.WriteString(amzDateTime)
	b.WriteByte('\n')
	b.WriteString(Scope(date, region))
	b.WriteByte('\n')
	b.WriteString(hashed)
	return b.String()
}

// SigningKey derives the SigV4 signing key:
// HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date), region), "s3"), "aws4_request").
func SigningKey(secretAccessKey, date, region string) []byte {
	kDate := crypto.HMACSHA256([]byte("AWS4"+secretAccessKey), date)
	kRegion := crypto.HMACSHA256(kDate, region)
	kService := crypto.HMACSHA256(kRegion, "s3")
	return crypto.HMACSHA256(kService, "aws4_request")
}

// Sign computes the hex SigV4 signature of stringToSign under signingKey.
func Sign(signingKey []byte, stringToSign string) string {
	return crypto.HexHMACSHA256(signingKey, stringToSign)
}

// ParsedAuthorization is the decomposed Authorization header of a header-
// SigV4 request.
type ParsedAuthorization struct {
	AccessKeyID   string
	Date          string
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// ParseAuthorizationHeader parses the
// "AWS4-HMAC-SHA256 Credential=.../SignedHeaders=...,Signature=..." header
// value. It returns an error for anything that doesn't look like a
// well-formed SigV4 header; callers map that to AuthorizationHeaderMalformed.
func ParseAuthorizationHeader(value string) (*ParsedAuthorization, error) {
	const prefix = Algorithm + " "
	if !strings.HasPrefix(value, prefix) {
		return nil, fmt.Errorf("missing %q prefix", prefix)
	}
	rest := strings.TrimPrefix(value, prefix)

	kv := make(map[string]string, 3)
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.IndexByte(part, '=')
		if idx <= 0 {
			return nil, fmt.Errorf("malformed component %q", part)
		}
		kv[part[:idx]] = part[idx+1:]
	}

	cred, ok := kv["Credential"]
	if !ok {
		return nil, fmt.Errorf("missing Credential")
	}
	signedHeaders, ok := kv["SignedHeaders"]
	if !ok {
		return nil, fmt.Errorf("missing SignedHeaders")
	}
	signature, ok := kv["Signature"]
	if !ok {
		return nil, fmt.Errorf("missing Signature")
	}

	credParts := strings.Split(cred, "/")
	if len(credParts) != 5 {
		return nil, fmt.Errorf("malformed Credential scope")
	}
	if credParts[4] != "aws4_request" {
		return nil, fmt.Errorf("unexpected credential terminator %q", credParts[4])
	}

	return &ParsedAuthorization{
		AccessKeyID:   credParts[0],
		Date:          credParts[1],
		Region:        credParts[2],
		Service:       credParts[3],
		SignedHeaders: strings.Split(signedHeaders, ";"),
		Signature:     signature,
	}, nil
}

// ParseAmzDate parses an x-amz-date (or Date) header value in
// AmzDateLayout.
func ParseAmzDate(value string) (time.Time, error) {
	return time.Parse(AmzDateLayout, value)
}

// CheckSkew reports whether t is within MaxClockSkew of now.
func CheckSkew(t, now time.Time) bool {
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}
	return diff <= MaxClockSkew
}

// DateStamp renders t as the YYYYMMDD date-only stamp used in the
// credential scope.
func DateStamp(t time.Time) string {
	return t.UTC().Format(dateOnlyLayout)
}

// AmzDateTime renders t as the full ISO-8601 basic timestamp.
func AmzDateTime(t time.Time) string {
	return t.UTC().Format(AmzDateLayout)
}

// parseExpires parses an X-Amz-Expires value, validating it falls in
// [1, 604800] seconds per spec.md §4.2.
func parseExpires(value string) (time.Duration, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 604800 {
		return 0, fmt.Errorf("expires out of range: %d", n)
	}
	return time.Duration(n) * time.Second, nil
}
