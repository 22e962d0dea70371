package s3xml_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"depot/internal/s3xml"
)

func TestEncode_IncludesProlog(t *testing.T) {
	var buf bytes.Buffer
	result := s3xml.ListAllMyBucketsResult{
		XMLNS: s3xml.Namespace,
		Owner: s3xml.Owner{ID: "depot", DisplayName: "depot"},
		Buckets: []s3xml.BucketEntry{
			{Name: "photos", CreationDate: "2026-01-02T03:04:05.000Z"},
		},
	}
	require.NoError(t, s3xml.Encode(&buf, result))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	require.Contains(t, out, "<ListAllMyBucketsResult")
	require.Contains(t, out, "<Name>photos</Name>")
}

func TestDecode_ParsesCompleteMultipartUploadBody(t *testing.T) {
	body := `<CompleteMultipartUpload>
		<Part><PartNumber>1</PartNumber><ETag>"aaa"</ETag></Part>
		<Part><PartNumber>2</PartNumber><ETag>"bbb"</ETag></Part>
	</CompleteMultipartUpload>`

	var parsed s3xml.CompleteMultipartUpload
	require.NoError(t, s3xml.Decode(strings.NewReader(body), &parsed))
	require.Len(t, parsed.Parts, 2)
	require.Equal(t, 1, parsed.Parts[0].PartNumber)
	require.Equal(t, `"aaa"`, parsed.Parts[0].ETag)
	require.Equal(t, 2, parsed.Parts[1].PartNumber)
}

func TestDecode_MalformedBodyReturnsWrappedError(t *testing.T) {
	var parsed s3xml.Delete
	err := s3xml.Decode(strings.NewReader("<Delete><Object><Key>oops</Delete>"), &parsed)
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed xml body")
}

func TestDecode_DeleteObjectsRequestBody(t *testing.T) {
	body := `<Delete>
		<Quiet>true</Quiet>
		<Object><Key>a.txt</Key></Object>
		<Object><Key>b.txt</Key></Object>
	</Delete>`

	var parsed s3xml.Delete
	require.NoError(t, s3xml.Decode(strings.NewReader(body), &parsed))
	require.True(t, parsed.Quiet)
	require.Equal(t, []s3xml.ObjectIdentifier{{Key: "a.txt"}, {Key: "b.txt"}}, parsed.Objects)
}

func TestEncode_LocationConstraintIsChardata(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, s3xml.Encode(&buf, s3xml.LocationConstraint{XMLNS: s3xml.Namespace, Region: "us-west-2"}))
	require.Contains(t, buf.String(), "<LocationConstraint")
	require.Contains(t, buf.String(), "us-west-2")
}

func TestEncode_DeleteResultRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	result := s3xml.DeleteResult{
		XMLNS:   s3xml.Namespace,
		Deleted: []s3xml.DeletedObject{{Key: "ok.txt"}},
		Errors:  []s3xml.DeleteError{{Key: "bad.txt", Code: "AccessDenied", Message: "denied"}},
	}
	require.NoError(t, s3xml.Encode(&buf, result))

	var parsed s3xml.DeleteResult
	require.NoError(t, s3xml.Decode(&buf, &parsed))
	require.Equal(t, result.Deleted, parsed.Deleted)
	require.Equal(t, result.Errors, parsed.Errors)
}
