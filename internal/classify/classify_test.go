package classify_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"depot/internal/classify"
)

func values(pairs ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		q.Set(pairs[i], pairs[i+1])
	}
	return q
}

func TestClassifyRoot(t *testing.T) {
	require.Equal(t, classify.OpListBuckets, classify.ClassifyRoot(http.MethodGet, nil))
	require.Equal(t, classify.OpListBuckets, classify.ClassifyRoot(http.MethodHead, nil))
	require.Equal(t, classify.OpNotImplemented, classify.ClassifyRoot(http.MethodPost, nil))
}

func TestClassifyBucket(t *testing.T) {
	cases := []struct {
		name   string
		method string
		q      url.Values
		want   classify.Operation
	}{
		{"create", http.MethodPut, nil, classify.OpCreateBucket},
		{"head", http.MethodHead, nil, classify.OpHeadBucket},
		{"delete", http.MethodDelete, nil, classify.OpDeleteBucket},
		{"location", http.MethodGet, values("location", ""), classify.OpGetBucketLocation},
		{"list multipart uploads", http.MethodGet, values("uploads", ""), classify.OpListMultipartUploads},
		{"list v2", http.MethodGet, values("list-type", "2"), classify.OpListObjectsV2},
		{"list v1 default", http.MethodGet, nil, classify.OpListObjectsV1},
		{"delete objects", http.MethodPost, values("delete", ""), classify.OpDeleteObjects},
		{"post form upload", http.MethodPost, nil, classify.OpPostFormUpload},
		{"unimplemented acl", http.MethodGet, values("acl", ""), classify.OpNotImplemented},
		{"unimplemented tagging put", http.MethodPut, values("tagging", ""), classify.OpNotImplemented},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, classify.ClassifyBucket(tc.method, tc.q))
		})
	}
}

func TestClassifyObject(t *testing.T) {
	copyHeader := http.Header{"X-Amz-Copy-Source": []string{"/src/key"}}

	cases := []struct {
		name   string
		method string
		q      url.Values
		header http.Header
		want   classify.Operation
	}{
		{"put object", http.MethodPut, nil, nil, classify.OpPutObject},
		{"copy object", http.MethodPut, nil, copyHeader, classify.OpCopyObject},
		{"upload part", http.MethodPut, values("partNumber", "1", "uploadId", "abc"), nil, classify.OpUploadPart},
		{"upload part copy", http.MethodPut, values("partNumber", "1", "uploadId", "abc"), copyHeader, classify.OpUploadPartCopy},
		{"get object", http.MethodGet, nil, nil, classify.OpGetObject},
		{"list parts", http.MethodGet, values("uploadId", "abc"), nil, classify.OpListParts},
		{"head object", http.MethodHead, nil, nil, classify.OpHeadObject},
		{"delete object", http.MethodDelete, nil, nil, classify.OpDeleteObject},
		{"abort multipart", http.MethodDelete, values("uploadId", "abc"), nil, classify.OpAbortMultipartUpload},
		{"create multipart", http.MethodPost, values("uploads", ""), nil, classify.OpCreateMultipartUpload},
		{"complete multipart", http.MethodPost, values("uploadId", "abc"), nil, classify.OpCompleteMultipartUpload},
		{"post without marker is not implemented", http.MethodPost, nil, nil, classify.OpNotImplemented},
		{"unimplemented acl get", http.MethodGet, values("acl", ""), nil, classify.OpNotImplemented},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, classify.ClassifyObject(tc.method, tc.q, tc.header))
		})
	}
}

func TestOperationString(t *testing.T) {
	require.Equal(t, "PutObject", classify.OpPutObject.String())
	require.Equal(t, "Unknown", classify.OpUnknown.String())
}

func TestUserMetadata(t *testing.T) {
	header := http.Header{}
	header.Set("X-Amz-Meta-Owner", "student")
	header.Set("X-Amz-Meta-Project", "depot")
	header.Set("Content-Type", "text/plain")

	meta := classify.UserMetadata(header)
	require.Equal(t, map[string]string{"owner": "student", "project": "depot"}, meta)
}

func TestUserMetadata_NoMetadataHeadersReturnsNil(t *testing.T) {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	require.Nil(t, classify.UserMetadata(header))
}

func TestParseCopySource(t *testing.T) {
	src, ok := classify.ParseCopySource("/my-bucket/path/to/key.txt")
	require.True(t, ok)
	require.Equal(t, classify.CopySource{Bucket: "my-bucket", Key: "path/to/key.txt"}, src)

	src, ok = classify.ParseCopySource("my-bucket/key%20with%20space.txt")
	require.True(t, ok)
	require.Equal(t, "my-bucket", src.Bucket)
	require.Equal(t, "key with space.txt", src.Key)

	_, ok = classify.ParseCopySource("no-slash-here")
	require.False(t, ok)

	_, ok = classify.ParseCopySource("/bucket-only/")
	require.False(t, ok)
}

func TestParseListObjectsParams_Defaults(t *testing.T) {
	p := classify.ParseListObjectsParams(values("prefix", "a/", "delimiter", "/"))
	require.Equal(t, "a/", p.Prefix)
	require.Equal(t, "/", p.Delimiter)
	require.Equal(t, 1000, p.MaxKeys)
}

func TestParseListObjectsParams_MaxKeys(t *testing.T) {
	p := classify.ParseListObjectsParams(values("max-keys", "5"))
	require.Equal(t, 5, p.MaxKeys)

	p = classify.ParseListObjectsParams(values("max-keys", "not-a-number"))
	require.Equal(t, 1000, p.MaxKeys)
}

func TestMetadataDirective(t *testing.T) {
	header := http.Header{}
	require.Equal(t, "COPY", classify.MetadataDirective(header))

	header.Set("X-Amz-Metadata-Directive", "REPLACE")
	require.Equal(t, "REPLACE", classify.MetadataDirective(header))

	header.Set("X-Amz-Metadata-Directive", "bogus")
	require.Equal(t, "COPY", classify.MetadataDirective(header))
}

func TestPartNumber(t *testing.T) {
	n, ok := classify.PartNumber(values("partNumber", "7"))
	require.True(t, ok)
	require.Equal(t, 7, n)

	_, ok = classify.PartNumber(values())
	require.False(t, ok)

	_, ok = classify.PartNumber(values("partNumber", "nope"))
	require.False(t, ok)
}

func TestMaxPartsAndMarkers(t *testing.T) {
	require.Equal(t, 1000, classify.MaxParts(values()))
	require.Equal(t, 50, classify.MaxParts(values("max-parts", "50")))

	require.Equal(t, 0, classify.PartNumberMarker(values()))
	require.Equal(t, 3, classify.PartNumberMarker(values("part-number-marker", "3")))

	require.Equal(t, 1000, classify.MaxUploads(values()))
	require.Equal(t, 9, classify.MaxUploads(values("max-uploads", "9")))
}
