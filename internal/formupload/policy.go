package formupload

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"depot/internal/crypto"
	"depot/internal/s3err"
	"depot/internal/sigv4"
)

// ValidatePolicy checks a browser POST upload's base64-encoded policy
// document against the bucket, key, content type, and (when known)
// declared size of the request — the authorization scheme spec.md §4.3
// describes for POST-policy form uploads. Grounded on the
// conditions/operators contract exercised by yashikota-minis3's
// internal/handler/bucket_post_policy_test.go (a required bucket
// condition, eq/starts-with/content-length-range operators, and
// expiration checking); sizeHint of -1 means the request's declared
// length is unknown, in which case any content-length-range condition is
// treated as satisfied rather than rejected.
func ValidatePolicy(policyB64, bucket, key, contentType string, fields map[string]string, sizeHint int64, now time.Time) *s3err.Error {
	raw, err := base64.StdEncoding.DecodeString(policyB64)
	if err != nil {
		return s3err.New(s3err.CodeInvalidArgument, "policy is not valid base64")
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return s3err.New(s3err.CodeInvalidArgument, "policy is not valid JSON")
	}

	expirationRaw, ok := doc["expiration"].(string)
	if !ok {
		return s3err.New(s3err.CodeInvalidArgument, "policy is missing an expiration field")
	}
	expiration, err := time.Parse(time.RFC3339, expirationRaw)
	if err != nil {
		return s3err.New(s3err.CodeInvalidArgument, "policy expiration is not a valid timestamp")
	}
	if now.After(expiration) {
		return s3err.New(s3err.CodeAccessDenied, "Invalid according to Policy: Policy expired.")
	}

	conditions, ok := doc["conditions"].([]any)
	if !ok {
		return s3err.New(s3err.CodeInvalidArgument, "policy is missing a conditions list")
	}

	normalizedFields := make(map[string]string, len(fields))
	for name, value := range fields {
		normalizedFields[strings.ToLower(name)] = value
	}

	sawBucketCondition := false
	for _, entry := range conditions {
		cond, serr := parseCondition(entry)
		if serr != nil {
			return serr
		}
		if cond.field == "bucket" {
			sawBucketCondition = true
		}

		switch cond.op {
		case "content-length-range":
			if sizeHint >= 0 && (sizeHint < cond.min || sizeHint > cond.max) {
				return s3err.New(s3err.CodeInvalidArgument, "the uploaded content length is outside the policy's allowed range")
			}
		case "eq":
			if resolvePostPolicyFieldValue(cond.field, bucket, key, contentType, normalizedFields) != cond.value {
				return s3err.New(s3err.CodeAccessDenied, "Invalid according to Policy: Policy Condition failed.")
			}
		case "starts-with":
			if !strings.HasPrefix(resolvePostPolicyFieldValue(cond.field, bucket, key, contentType, normalizedFields), cond.value) {
				return s3err.New(s3err.CodeAccessDenied, "Invalid according to Policy: Policy Condition failed.")
			}
		}
	}

	if !sawBucketCondition {
		return s3err.New(s3err.CodeAccessDenied, "Invalid according to Policy: Policy is missing a bucket condition.")
	}
	return nil
}

// policyCondition is one normalized entry of a policy's conditions array.
type policyCondition struct {
	field string
	op    string
	value string
	min   int64
	max   int64
}

// parseCondition accepts both shorthand a policy document can use for an
// exact-match condition ({"bucket": "my-bucket"}) and the three-element
// array form ordinary conditions take (["starts-with", "$key", "uploads/"]
// or ["content-length-range", 0, 1024]).
func parseCondition(raw any) (policyCondition, *s3err.Error) {
	switch c := raw.(type) {
	case map[string]any:
		if len(c) != 1 {
			return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "policy condition object must have exactly one key")
		}
		for k, v := range c {
			str, ok := v.(string)
			if !ok {
				return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "policy condition value must be a string")
			}
			return policyCondition{field: strings.ToLower(k), op: "eq", value: str}, nil
		}
		return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "policy condition object must have exactly one key")

	case []any:
		if len(c) == 0 {
			return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "policy condition array must not be empty")
		}
		opName, ok := c[0].(string)
		if !ok {
			return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "policy condition operator must be a string")
		}
		op := strings.ToLower(opName)
		switch op {
		case "eq", "starts-with":
			if len(c) != 3 {
				return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "policy condition must have 3 elements")
			}
			fieldRaw, ok1 := c[1].(string)
			valueRaw, ok2 := c[2].(string)
			if !ok1 || !ok2 {
				return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "policy condition field/value must be strings")
			}
			return policyCondition{field: strings.ToLower(strings.TrimPrefix(fieldRaw, "$")), op: op, value: valueRaw}, nil
		case "content-length-range":
			if len(c) != 3 {
				return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "content-length-range requires a minimum and maximum")
			}
			minF, ok1 := c[1].(float64)
			maxF, ok2 := c[2].(float64)
			if !ok1 || !ok2 || minF < 0 || maxF < minF {
				return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "content-length-range bounds are invalid")
			}
			return policyCondition{op: op, min: int64(minF), max: int64(maxF)}, nil
		default:
			return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "unsupported policy condition operator")
		}

	default:
		return policyCondition{}, s3err.New(s3err.CodeInvalidArgument, "policy condition must be an object or array")
	}
}

// resolvePostPolicyFieldValue looks up the actual value a policy condition
// field names, accepting the field either bare ("bucket") or
// dollar-prefixed ("$bucket") the way a policy document's array-form
// conditions write it.
func resolvePostPolicyFieldValue(field, bucket, key, contentType string, normalizedFields map[string]string) string {
	field = strings.ToLower(strings.TrimPrefix(field, "$"))
	switch field {
	case "bucket":
		return bucket
	case "key":
		return key
	case "content-type":
		return contentType
	default:
		return normalizedFields[field]
	}
}

// VerifySignature checks a POST-policy form's x-amz-signature field the
// way this server signs everything else: HMAC-SHA256 over the raw policy
// document under the same SigV4 signing-key derivation authenticateHeader
// uses, keyed by x-amz-credential's date/region scope. Unlike
// yashikota-minis3's legacy AWSAccessKeyId/HMAC-SHA1 POST-policy scheme,
// this server only ever speaks SigV4, so the signing primitives come
// straight from the sigv4 package rather than a second signing scheme.
func VerifySignature(cred sigv4.Credential, fields map[string]string, policyB64 string) *s3err.Error {
	normalized := make(map[string]string, len(fields))
	for name, value := range fields {
		normalized[strings.ToLower(name)] = value
	}

	if normalized["x-amz-algorithm"] != sigv4.Algorithm {
		return s3err.New(s3err.CodeAuthorizationHeaderMalformed, "unsupported x-amz-algorithm")
	}

	credParts := strings.Split(normalized["x-amz-credential"], "/")
	if len(credParts) != 5 || credParts[4] != "aws4_request" {
		return s3err.New(s3err.CodeAuthorizationHeaderMalformed, "malformed x-amz-credential")
	}
	if !crypto.EqualString(credParts[0], cred.AccessKeyID) {
		return s3err.New(s3err.CodeInvalidAccessKeyID, "The access key ID you provided does not exist in our records.")
	}

	signature := normalized["x-amz-signature"]
	if signature == "" {
		return s3err.New(s3err.CodeAuthorizationHeaderMalformed, "missing x-amz-signature")
	}

	signingKey := sigv4.SigningKey(cred.SecretAccessKey, credParts[1], credParts[2])
	expected := sigv4.Sign(signingKey, policyB64)
	if !crypto.EqualHex(expected, signature) {
		return s3err.New(s3err.CodeSignatureDoesNotMatch, "The request signature we calculated does not match the signature you provided.")
	}
	return nil
}
