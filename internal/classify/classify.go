// Package classify turns (method, path, query, headers) into a tagged S3
// operation (spec.md §4.1, "Request classifier & operation router"). It
// does not itself parse bucket/key from the URL path — internal/service's
// router (grounded on the teacher's net/http.ServeMux route table) already
// does that via path-style route patterns and a virtual-hosted-style
// pre-routing rewrite (SPEC_FULL §4.7) — classify only disambiguates which
// operation a given (method, subresource query, header) combination
// names.
package classify

import (
	"net/http"
	"net/url"
)

// Operation is a tagged S3 operation name.
type Operation int

const (
	OpUnknown Operation = iota
	OpListBuckets
	OpCreateBucket
	OpHeadBucket
	OpDeleteBucket
	OpGetBucketLocation
	OpListObjectsV1
	OpListObjectsV2
	OpDeleteObjects
	OpListMultipartUploads
	OpPostFormUpload
	OpPutObject
	OpGetObject
	OpHeadObject
	OpDeleteObject
	OpCopyObject
	OpCreateMultipartUpload
	OpUploadPart
	OpUploadPartCopy
	OpCompleteMultipartUpload
	OpAbortMultipartUpload
	OpListParts
	OpNotImplemented
)

func (op Operation) String() string {
	switch op {
	case OpListBuckets:
		return "ListBuckets"
	case OpCreateBucket:
		return "CreateBucket"
	case OpHeadBucket:
		return "HeadBucket"
	case OpDeleteBucket:
		return "DeleteBucket"
	case OpGetBucketLocation:
		return "GetBucketLocation"
	case OpListObjectsV1:
		return "ListObjects"
	case OpListObjectsV2:
		return "ListObjectsV2"
	case OpDeleteObjects:
		return "DeleteObjects"
	case OpListMultipartUploads:
		return "ListMultipartUploads"
	case OpPostFormUpload:
		return "PostFormUpload"
	case OpPutObject:
		return "PutObject"
	case OpGetObject:
		return "GetObject"
	case OpHeadObject:
		return "HeadObject"
	case OpDeleteObject:
		return "DeleteObject"
	case OpCopyObject:
		return "CopyObject"
	case OpCreateMultipartUpload:
		return "CreateMultipartUpload"
	case OpUploadPart:
		return "UploadPart"
	case OpUploadPartCopy:
		return "UploadPartCopy"
	case OpCompleteMultipartUpload:
		return "CompleteMultipartUpload"
	case OpAbortMultipartUpload:
		return "AbortMultipartUpload"
	case OpListParts:
		return "ListParts"
	case OpNotImplemented:
		return "NotImplemented"
	default:
		return "Unknown"
	}
}

// unimplementedSubresources are subresource queries the classifier
// recognizes but the storage trait does not implement (spec.md §9 Open
// Questions: "prefer the 501 behavior"). Bucket/object tagging,
// versioning, lifecycle, policy, cors, and acl all land here.
var unimplementedSubresources = []string{
	"acl", "versioning", "lifecycle", "policy", "cors", "tagging", "notification", "website", "replication",
}

func hasAnySubresource(q url.Values, names ...string) bool {
	for _, n := range names {
		if q.Has(n) {
			return true
		}
	}
	return false
}

// ClassifyRoot classifies a request against the server root ("/"), with
// no bucket in the path.
func ClassifyRoot(method string, q url.Values) Operation {
	switch method {
	case http.MethodGet, http.MethodHead:
		return OpListBuckets
	default:
		return OpNotImplemented
	}
}

// ClassifyBucket classifies a request whose path names a bucket but no
// key.
func ClassifyBucket(method string, q url.Values) Operation {
	if hasAnySubresource(q, unimplementedSubresources...) {
		return OpNotImplemented
	}

	switch method {
	case http.MethodPut:
		return OpCreateBucket
	case http.MethodHead:
		return OpHeadBucket
	case http.MethodDelete:
		return OpDeleteBucket
	case http.MethodGet:
		switch {
		case q.Has("location"):
			return OpGetBucketLocation
		case q.Has("uploads"):
			return OpListMultipartUploads
		case q.Get("list-type") == "2":
			return OpListObjectsV2
		default:
			return OpListObjectsV1
		}
	case http.MethodPost:
		switch {
		case q.Has("delete"):
			return OpDeleteObjects
		default:
			return OpPostFormUpload
		}
	default:
		return OpNotImplemented
	}
}

// ClassifyObject classifies a request whose path names both a bucket and
// a key.
func ClassifyObject(method string, q url.Values, header http.Header) Operation {
	if hasAnySubresource(q, unimplementedSubresources...) {
		return OpNotImplemented
	}

	hasUploadID := q.Has("uploadId")
	hasPartNumber := q.Has("partNumber")
	isCopy := header.Get("X-Amz-Copy-Source") != ""

	switch method {
	case http.MethodPut:
		switch {
		case hasPartNumber && hasUploadID && isCopy:
			return OpUploadPartCopy
		case hasPartNumber && hasUploadID:
			return OpUploadPart
		case isCopy:
			return OpCopyObject
		default:
			return OpPutObject
		}
	case http.MethodGet:
		switch {
		case hasUploadID:
			return OpListParts
		default:
			return OpGetObject
		}
	case http.MethodHead:
		return OpHeadObject
	case http.MethodDelete:
		switch {
		case hasUploadID:
			return OpAbortMultipartUpload
		default:
			return OpDeleteObject
		}
	case http.MethodPost:
		switch {
		case q.Has("uploads"):
			return OpCreateMultipartUpload
		case hasUploadID:
			return OpCompleteMultipartUpload
		default:
			return OpNotImplemented
		}
	default:
		return OpNotImplemented
	}
}
