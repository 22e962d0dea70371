// Package storage defines the abstract storage interface the S3 request
// pipeline calls (spec.md §4.4, "Storage trait") and a reference
// filesystem-backed implementation (spec.md §4.5). The interface is a
// plain Go interface, satisfied by *FilesystemBackend — ordinary dynamic
// dispatch at the call site, matching spec.md §9's "implementers may
// choose static or dynamic dispatch" note.
package storage

import (
	"context"
	"io"
	"time"

	"depot/internal/canonical"
	"depot/internal/s3err"
)

// ByteRange is the resolved, in-bounds [Start, End] (inclusive) byte range
// of a GetObject request; an alias of canonical.ByteRange since the
// classifier/response-builder layer parses Range headers against exactly
// this shape.
type ByteRange = canonical.ByteRange

// BucketInfo is one entry of ListBuckets' output.
type BucketInfo struct {
	Name    string
	Created time.Time
}

// ObjectMeta describes an object's attributes without its content,
// returned by HeadObject and embedded in GetObject's output.
type ObjectMeta struct {
	Key             string
	Size            int64
	ETag            string
	LastModified    time.Time
	ContentType     string
	ContentEncoding string
	UserMetadata    map[string]string
	CannedACL       string
}

// PutObjectInput is put_object's input (spec.md §4.4).
type PutObjectInput struct {
	Bucket          string
	Key             string
	Body            io.Reader
	Size            int64 // -1 if unknown
	ContentType     string
	ContentEncoding string
	UserMetadata    map[string]string
	CannedACL       string
}

// GetObjectOutput is get_object's output: headers plus a byte stream the
// caller must Close.
type GetObjectOutput struct {
	ObjectMeta
	Body      io.ReadCloser
	Range     *ByteRange // nil if the full object was returned
	TotalSize int64      // object size regardless of range
}

// ObjectEntry is one entry of a ListObjectsV2 result.
type ObjectEntry struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListObjectsV2Input is list_objects_v2's input.
type ListObjectsV2Input struct {
	Bucket            string
	Prefix            string
	Delimiter         string
	StartAfter        string
	MaxKeys           int
	ContinuationToken string
}

// ListObjectsV2Output is list_objects_v2's output.
type ListObjectsV2Output struct {
	Contents              []ObjectEntry
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
}

// CopyObjectInput is copy_object's input.
type CopyObjectInput struct {
	SrcBucket, SrcKey   string
	DstBucket, DstKey   string
	// MetadataDirective is "COPY" (default, keep source metadata) or
	// "REPLACE" (use the fields below instead).
	MetadataDirective string
	ContentType       string
	ContentEncoding   string
	UserMetadata      map[string]string
}

// CopyObjectOutput is copy_object's output.
type CopyObjectOutput struct {
	ETag         string
	LastModified time.Time
}

// DeleteResult reports the outcome of one key within a DeleteObjects call.
type DeleteResult struct {
	Key     string
	Deleted bool
	Err     *s3err.Error
}

// CreateMultipartUploadInput is create_multipart_upload's input.
type CreateMultipartUploadInput struct {
	Bucket          string
	Key             string
	ContentType     string
	ContentEncoding string
	UserMetadata    map[string]string
	CannedACL       string
}

// UploadPartInput is upload_part's input.
type UploadPartInput struct {
	Bucket     string
	Key        string
	UploadID   string
	PartNumber int
	Body       io.Reader
	Size       int64 // -1 if unknown
}

// CompletedPart is one entry of the client-supplied manifest for
// complete_multipart_upload.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// CompleteMultipartUploadOutput is complete_multipart_upload's output.
type CompleteMultipartUploadOutput struct {
	ETag         string
	LastModified time.Time
	Size         int64
}

// PartInfo is one entry of list_parts' output.
type PartInfo struct {
	PartNumber   int
	ETag         string
	Size         int64
	LastModified time.Time
}

// ListPartsOutput is list_parts' output.
type ListPartsOutput struct {
	Parts                []PartInfo
	IsTruncated          bool
	NextPartNumberMarker int
}

// MultipartUploadInfo is one entry of list_multipart_uploads' output.
type MultipartUploadInfo struct {
	Key       string
	UploadID  string
	Initiated time.Time
}

// ListMultipartUploadsInput is list_multipart_uploads' input.
type ListMultipartUploadsInput struct {
	Bucket         string
	Prefix         string
	Delimiter      string
	MaxUploads     int
	KeyMarker      string
	UploadIDMarker string
}

// ListMultipartUploadsOutput is list_multipart_uploads' output.
type ListMultipartUploadsOutput struct {
	Uploads            []MultipartUploadInfo
	CommonPrefixes     []string
	IsTruncated        bool
	NextKeyMarker      string
	NextUploadIDMarker string
}

// Engine is the capability set the S3 request pipeline calls (spec.md
// §4.4). Every method returns *s3err.Error (not a bare error) so the
// response builder can render it directly without a second translation
// pass; unexpected I/O failures are wrapped as s3err.CodeInternalError by
// the implementation before they ever reach the pipeline.
type Engine interface {
	CreateBucket(ctx context.Context, name string) *s3err.Error
	DeleteBucket(ctx context.Context, name string) *s3err.Error
	HeadBucket(ctx context.Context, name string) (bool, *s3err.Error)
	ListBuckets(ctx context.Context) ([]BucketInfo, *s3err.Error)

	PutObject(ctx context.Context, in PutObjectInput) (etag string, err *s3err.Error)
	GetObject(ctx context.Context, bucket, key string, rng *ByteRange) (*GetObjectOutput, *s3err.Error)
	HeadObject(ctx context.Context, bucket, key string) (*ObjectMeta, *s3err.Error)
	DeleteObject(ctx context.Context, bucket, key string) (deleted bool, err *s3err.Error)
	DeleteObjects(ctx context.Context, bucket string, keys []string) []DeleteResult
	CopyObject(ctx context.Context, in CopyObjectInput) (*CopyObjectOutput, *s3err.Error)
	ListObjectsV2(ctx context.Context, in ListObjectsV2Input) (*ListObjectsV2Output, *s3err.Error)

	CreateMultipartUpload(ctx context.Context, in CreateMultipartUploadInput) (uploadID string, err *s3err.Error)
	UploadPart(ctx context.Context, in UploadPartInput) (etag string, err *s3err.Error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (*CompleteMultipartUploadOutput, *s3err.Error)
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) *s3err.Error
	ListParts(ctx context.Context, bucket, key, uploadID string, maxParts, partNumberMarker int) (*ListPartsOutput, *s3err.Error)
	ListMultipartUploads(ctx context.Context, in ListMultipartUploadsInput) (*ListMultipartUploadsOutput, *s3err.Error)
}
