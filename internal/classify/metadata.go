package classify

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const userMetadataPrefix = "X-Amz-Meta-"

// UserMetadata extracts the x-amz-meta-* headers into a plain map keyed by
// the lowercase suffix (spec.md §9: "normalized to lowercase here").
func UserMetadata(header http.Header) map[string]string {
	var meta map[string]string
	for name, values := range header {
		if len(values) == 0 {
			continue
		}
		if !strings.HasPrefix(http.CanonicalHeaderKey(name), userMetadataPrefix) {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		suffix := strings.ToLower(name[len(userMetadataPrefix):])
		meta[suffix] = values[0]
	}
	return meta
}

// CopySource is the parsed form of an x-amz-copy-source header: either
// "/bucket/key" or "bucket/key", optionally URL-encoded.
type CopySource struct {
	Bucket string
	Key    string
}

// ParseCopySource parses an x-amz-copy-source header value.
func ParseCopySource(value string) (CopySource, bool) {
	value = strings.TrimPrefix(value, "/")
	if decoded, err := url.QueryUnescape(value); err == nil {
		value = decoded
	}
	idx := strings.IndexByte(value, '/')
	if idx <= 0 || idx == len(value)-1 {
		return CopySource{}, false
	}
	return CopySource{Bucket: value[:idx], Key: value[idx+1:]}, true
}

// ListObjectsParams holds the pagination/filter query parameters shared by
// ListObjects and ListObjectsV2.
type ListObjectsParams struct {
	Prefix            string
	Delimiter         string
	MaxKeys           int
	Marker            string // v1 only
	StartAfter        string // v2 only
	ContinuationToken string // v2 only
}

// ParseListObjectsParams reads the common listing query parameters,
// defaulting MaxKeys to 1000 (spec.md §4.5).
func ParseListObjectsParams(q url.Values) ListObjectsParams {
	p := ListObjectsParams{
		Prefix:            q.Get("prefix"),
		Delimiter:         q.Get("delimiter"),
		Marker:            q.Get("marker"),
		StartAfter:        q.Get("start-after"),
		ContinuationToken: q.Get("continuation-token"),
		MaxKeys:           1000,
	}
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.MaxKeys = n
		}
	}
	return p
}

// MetadataDirective reads the x-amz-metadata-directive header, defaulting
// to "COPY" per S3 semantics.
func MetadataDirective(header http.Header) string {
	if v := header.Get("X-Amz-Metadata-Directive"); v == "REPLACE" {
		return "REPLACE"
	}
	return "COPY"
}

// CannedACL reads the x-amz-acl header, if present.
func CannedACL(header http.Header) string {
	return header.Get("X-Amz-Acl")
}

// PartNumber parses the partNumber query parameter.
func PartNumber(q url.Values) (int, bool) {
	v := q.Get("partNumber")
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// UploadID reads the uploadId query parameter.
func UploadID(q url.Values) string { return q.Get("uploadId") }

// MaxParts reads the max-parts query parameter, defaulting to 1000.
func MaxParts(q url.Values) int {
	if v := q.Get("max-parts"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

// PartNumberMarker reads the part-number-marker query parameter.
func PartNumberMarker(q url.Values) int {
	if v := q.Get("part-number-marker"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// MaxUploads reads the max-uploads query parameter, defaulting to 1000.
func MaxUploads(q url.Values) int {
	if v := q.Get("max-uploads"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
