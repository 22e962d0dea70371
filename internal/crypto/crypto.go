// Package crypto collects the small byte-level helpers the SigV4 engine and
// the storage backend both need: hex-encoded digests, constant-time
// comparison, and MD5/SHA-256/HMAC-SHA-256 hashing.
package crypto

import (
	"crypto/hmac"
	"crypto/md5"  //nolint:gosec // required by the S3 ETag format, not used for security
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HexSHA256 returns the lowercase hex SHA-256 digest of data.
func HexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HexMD5 returns the lowercase hex MD5 digest of data. S3 ETags for
// single-part objects are exactly this value, quoted.
func HexMD5(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// MD5Sum returns the raw MD5 digest of data.
func MD5Sum(data []byte) []byte {
	sum := md5.Sum(data) //nolint:gosec
	return sum[:]
}

// HMACSHA256 computes HMAC-SHA-256(key, data).
func HMACSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// HexHMACSHA256 computes HMAC-SHA-256(key, data) and hex-encodes the result.
func HexHMACSHA256(key []byte, data string) string {
	return hex.EncodeToString(HMACSHA256(key, data))
}

// EqualHex reports whether two hex-encoded digests are equal, comparing in
// constant time once decoded. A malformed hex string is never equal to
// anything.
func EqualHex(a, b string) bool {
	ad, err := hex.DecodeString(a)
	if err != nil {
		return false
	}
	bd, err := hex.DecodeString(b)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(ad, bd) == 1
}

// EqualString reports whether a and b are equal, in constant time.
func EqualString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// EmptyStringSHA256 is the SHA-256 hash of the empty string, the payload
// hash clients send for requests with no body.
const EmptyStringSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
