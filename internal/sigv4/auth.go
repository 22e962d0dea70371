package sigv4

import (
	"io"
	"net/http"
	"time"

	"depot/internal/canonical"
	"depot/internal/crypto"
	"depot/internal/s3err"
)

// Identity is what a successful authentication yields: the access key the
// request authenticated as.
type Identity struct {
	AccessKeyID string
}

// Engine is the interface the service glue authenticates requests through,
// grounded on the teacher's pkg/auth.AuthEngine shape. Unlike the teacher
// (which returns (nil, nil) for "not this kind of auth, try another
// engine"), AuthenticateRequest here always speaks for the whole pipeline:
// there is exactly one configured engine, selected once at startup by
// whether a credential is configured.
type Engine interface {
	// AuthenticateRequest inspects r for SigV4 credentials (header or
	// presigned-query form) and returns the authenticated identity, or an
	// *s3err.Error (AccessDenied / InvalidAccessKeyId / ...) if
	// authentication fails.
	AuthenticateRequest(r *http.Request, now time.Time) (*Identity, *s3err.Error)
}

// AnonymousEngine authenticates every request, used when the server is
// started without a configured credential (spec.md §4.2: "the server
// enforces authentication when a credential is configured"). Adapted from
// the teacher's BasicAuthEngine, which served the analogous "accept a
// fixed credential" role; here there is no credential to check at all.
type AnonymousEngine struct{}

func (AnonymousEngine) AuthenticateRequest(*http.Request, time.Time) (*Identity, *s3err.Error) {
	return &Identity{AccessKeyID: "anonymous"}, nil
}

// SigV4Engine authenticates header-SigV4 and presigned-query-SigV4
// requests against a single static credential.
type SigV4Engine struct {
	Credential Credential
	Region     string
}

// NewSigV4Engine constructs an engine for the given credential and signing
// region.
func NewSigV4Engine(cred Credential, region string) *SigV4Engine {
	return &SigV4Engine{Credential: cred, Region: region}
}

func (e *SigV4Engine) AuthenticateRequest(r *http.Request, now time.Time) (*Identity, *s3err.Error) {
	params := canonical.ParseQueryParams(r.URL.RawQuery)
	if _, ok := canonical.QueryGet(params, "X-Amz-Signature"); ok {
		return e.authenticatePresigned(r, params, now)
	}
	return e.authenticateHeader(r, now)
}

func (e *SigV4Engine) authenticateHeader(r *http.Request, now time.Time) (*Identity, *s3err.Error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, s3err.New(s3err.CodeAccessDenied, "Request is missing Authorization header").WithResource(r.URL.Path)
	}

	parsed, err := ParseAuthorizationHeader(authHeader)
	if err != nil {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, err.Error()).WithResource(r.URL.Path)
	}

	if !crypto.EqualString(parsed.AccessKeyID, e.Credential.AccessKeyID) {
		return nil, s3err.New(s3err.CodeInvalidAccessKeyID, "The access key ID you provided does not exist in our records.").WithResource(r.URL.Path)
	}

	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = r.Header.Get("Date")
	}
	if amzDate == "" {
		return nil, s3err.New(s3err.CodeMissingSecurityHeader, "Request is missing a required header: x-amz-date").WithResource(r.URL.Path)
	}

	reqTime, parseErr := ParseAmzDate(amzDate)
	if parseErr != nil {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "x-amz-date is not a valid timestamp").WithResource(r.URL.Path)
	}
	if !CheckSkew(reqTime, now) {
		return nil, s3err.New(s3err.CodeRequestTimeTooSkewed, "The difference between the request time and the current time is too large.").WithResource(r.URL.Path)
	}

	payloadHash := r.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		payloadHash = crypto.EmptyStringSHA256
	}

	canonicalRequest := BuildCanonicalRequest(r, parsed.SignedHeaders, payloadHash)
	stringToSign := StringToSign(canonicalRequest.String(), AmzDateTime(reqTime), parsed.Date, parsed.Region)
	signingKey := SigningKey(e.Credential.SecretAccessKey, parsed.Date, parsed.Region)
	expected := Sign(signingKey, stringToSign)

	if !crypto.EqualHex(expected, parsed.Signature) {
		return nil, s3err.New(s3err.CodeSignatureDoesNotMatch, "The request signature we calculated does not match the signature you provided.").WithResource(r.URL.Path)
	}

	if payloadHash == StreamingSentinel && r.Body != nil {
		r.Body = io.NopCloser(NewChunkReader(r.Body, signingKey, AmzDateTime(reqTime), Scope(parsed.Date, parsed.Region), expected))
	}

	return &Identity{AccessKeyID: parsed.AccessKeyID}, nil
}

func (e *SigV4Engine) authenticatePresigned(r *http.Request, params []canonical.QueryParam, now time.Time) (*Identity, *s3err.Error) {
	algorithm, _ := canonical.QueryGet(params, "X-Amz-Algorithm")
	if algorithm != Algorithm {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "unsupported X-Amz-Algorithm").WithResource(r.URL.Path)
	}

	credential, ok := canonical.QueryGet(params, "X-Amz-Credential")
	if !ok {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "missing X-Amz-Credential").WithResource(r.URL.Path)
	}
	credParts := splitCredential(credential)
	if credParts == nil {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "malformed X-Amz-Credential").WithResource(r.URL.Path)
	}

	if !crypto.EqualString(credParts.accessKeyID, e.Credential.AccessKeyID) {
		return nil, s3err.New(s3err.CodeInvalidAccessKeyID, "The access key ID you provided does not exist in our records.").WithResource(r.URL.Path)
	}

	amzDate, ok := canonical.QueryGet(params, "X-Amz-Date")
	if !ok {
		return nil, s3err.New(s3err.CodeMissingSecurityHeader, "missing X-Amz-Date").WithResource(r.URL.Path)
	}
	reqTime, err := ParseAmzDate(amzDate)
	if err != nil {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "X-Amz-Date is not a valid timestamp").WithResource(r.URL.Path)
	}

	expiresStr, ok := canonical.QueryGet(params, "X-Amz-Expires")
	if !ok {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "missing X-Amz-Expires").WithResource(r.URL.Path)
	}
	expires, err := parseExpires(expiresStr)
	if err != nil {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "X-Amz-Expires out of range").WithResource(r.URL.Path)
	}
	if now.After(reqTime.Add(expires)) {
		return nil, s3err.New(s3err.CodeAccessDenied, "Request has expired").WithResource(r.URL.Path)
	}
	if !CheckSkew(reqTime, now) && now.Before(reqTime) {
		return nil, s3err.New(s3err.CodeRequestTimeTooSkewed, "The difference between the request time and the current time is too large.").WithResource(r.URL.Path)
	}

	signedHeadersStr, ok := canonical.QueryGet(params, "X-Amz-SignedHeaders")
	if !ok {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "missing X-Amz-SignedHeaders").WithResource(r.URL.Path)
	}
	signature, ok := canonical.QueryGet(params, "X-Amz-Signature")
	if !ok {
		return nil, s3err.New(s3err.CodeAuthorizationHeaderMalformed, "missing X-Amz-Signature").WithResource(r.URL.Path)
	}

	signedHeaderNames := splitSemicolon(signedHeadersStr)
	payloadHash := "UNSIGNED-PAYLOAD"

	canonicalRequest := BuildCanonicalRequestExcluding(r, signedHeaderNames, payloadHash, "X-Amz-Signature")
	stringToSign := StringToSign(canonicalRequest.String(), AmzDateTime(reqTime), credParts.date, credParts.region)
	signingKey := SigningKey(e.Credential.SecretAccessKey, credParts.date, credParts.region)
	expected := Sign(signingKey, stringToSign)

	if !crypto.EqualHex(expected, signature) {
		return nil, s3err.New(s3err.CodeSignatureDoesNotMatch, "The request signature we calculated does not match the signature you provided.").WithResource(r.URL.Path)
	}

	return &Identity{AccessKeyID: credParts.accessKeyID}, nil
}

type credentialParts struct {
	accessKeyID string
	date        string
	region      string
}

func splitCredential(s string) *credentialParts {
	parts := splitSlash(s)
	if len(parts) != 5 || parts[4] != "aws4_request" {
		return nil
	}
	return &credentialParts{accessKeyID: parts[0], date: parts[1], region: parts[2]}
}

func splitSlash(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func splitSemicolon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
