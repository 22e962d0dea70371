package storage_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"depot/internal/s3err"
	"depot/internal/storage"
)

func newBackend(t *testing.T) *storage.FilesystemBackend {
	t.Helper()
	ctx := context.Background()
	backend, err := storage.NewFilesystemBackend(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func mustCreateBucket(t *testing.T, b *storage.FilesystemBackend, name string) {
	t.Helper()
	require.Nil(t, b.CreateBucket(context.Background(), name))
}

func TestCreateBucket_RejectsDuplicateAndInvalidNames(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	require.Nil(t, b.CreateBucket(ctx, "my-bucket"))

	serr := b.CreateBucket(ctx, "my-bucket")
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeBucketAlreadyExists, serr.Code)

	serr = b.CreateBucket(ctx, "AB")
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidBucketName, serr.Code)

	serr = b.CreateBucket(ctx, "1.2.3.4")
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidBucketName, serr.Code)
}

func TestHeadBucketAndListBuckets(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	exists, serr := b.HeadBucket(ctx, "absent")
	require.Nil(t, serr)
	require.False(t, exists)

	mustCreateBucket(t, b, "bucket-a")
	mustCreateBucket(t, b, "bucket-b")

	exists, serr = b.HeadBucket(ctx, "bucket-a")
	require.Nil(t, serr)
	require.True(t, exists)

	list, serr := b.ListBuckets(ctx)
	require.Nil(t, serr)
	require.Len(t, list, 2)
}

func TestDeleteBucket_RequiresEmpty(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	_, serr := b.PutObject(ctx, storage.PutObjectInput{
		Bucket: "bucket", Key: "a.txt", Body: bytes.NewReader([]byte("hi")), Size: 2,
	})
	require.Nil(t, serr)

	serr = b.DeleteBucket(ctx, "bucket")
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeBucketNotEmpty, serr.Code)

	_, serr = b.DeleteObject(ctx, "bucket", "a.txt")
	require.Nil(t, serr)

	require.Nil(t, b.DeleteBucket(ctx, "bucket"))

	exists, serr := b.HeadBucket(ctx, "bucket")
	require.Nil(t, serr)
	require.False(t, exists)
}

func TestPutGetHeadDeleteObject_RoundTrip(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	content := []byte("hello depot")
	etag, serr := b.PutObject(ctx, storage.PutObjectInput{
		Bucket:       "bucket",
		Key:          "dir/file.txt",
		Body:         bytes.NewReader(content),
		Size:         int64(len(content)),
		ContentType:  "text/plain",
		UserMetadata: map[string]string{"owner": "student"},
	})
	require.Nil(t, serr)
	require.Equal(t, `"bd0395ea5cc0aaa507365afb09da5a04"`, etag)

	meta, serr := b.HeadObject(ctx, "bucket", "dir/file.txt")
	require.Nil(t, serr)
	require.Equal(t, etag, meta.ETag)
	require.Equal(t, int64(len(content)), meta.Size)
	require.Equal(t, "text/plain", meta.ContentType)
	require.Equal(t, "student", meta.UserMetadata["owner"])

	out, serr := b.GetObject(ctx, "bucket", "dir/file.txt", nil)
	require.Nil(t, serr)
	defer out.Body.Close()
	require.Equal(t, etag, out.ETag)

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(out.Body)
	require.NoError(t, err)
	require.Equal(t, content, buf.Bytes())

	deleted, serr := b.DeleteObject(ctx, "bucket", "dir/file.txt")
	require.Nil(t, serr)
	require.True(t, deleted)

	_, serr = b.HeadObject(ctx, "bucket", "dir/file.txt")
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeNoSuchKey, serr.Code)
}

func TestGetObject_Range(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	content := []byte("0123456789")
	_, serr := b.PutObject(ctx, storage.PutObjectInput{
		Bucket: "bucket", Key: "nums", Body: bytes.NewReader(content), Size: int64(len(content)),
	})
	require.Nil(t, serr)

	out, serr := b.GetObject(ctx, "bucket", "nums", &storage.ByteRange{Start: 2, End: 5})
	require.Nil(t, serr)
	defer out.Body.Close()
	require.Equal(t, int64(10), out.TotalSize)

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(out.Body)
	require.NoError(t, err)
	require.Equal(t, []byte("2345"), buf.Bytes())

	_, serr = b.GetObject(ctx, "bucket", "nums", &storage.ByteRange{Start: 8, End: 20})
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidRange, serr.Code)
}

func TestPutObject_RejectsContentLengthMismatch(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	_, serr := b.PutObject(ctx, storage.PutObjectInput{
		Bucket: "bucket", Key: "k", Body: bytes.NewReader([]byte("abc")), Size: 99,
	})
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidRequest, serr.Code)
}

func TestPutObject_RequiresExistingBucket(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	_, serr := b.PutObject(ctx, storage.PutObjectInput{
		Bucket: "missing", Key: "k", Body: bytes.NewReader([]byte("abc")), Size: 3,
	})
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeNoSuchBucket, serr.Code)
}

func TestCopyObject_CopyAndReplaceDirectives(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "src")
	mustCreateBucket(t, b, "dst")

	_, serr := b.PutObject(ctx, storage.PutObjectInput{
		Bucket: "src", Key: "a", Body: bytes.NewReader([]byte("payload")), Size: 7,
		ContentType: "text/plain", UserMetadata: map[string]string{"k": "v"},
	})
	require.Nil(t, serr)

	out, serr := b.CopyObject(ctx, storage.CopyObjectInput{
		SrcBucket: "src", SrcKey: "a", DstBucket: "dst", DstKey: "b",
	})
	require.Nil(t, serr)
	require.NotEmpty(t, out.ETag)

	meta, serr := b.HeadObject(ctx, "dst", "b")
	require.Nil(t, serr)
	require.Equal(t, "text/plain", meta.ContentType)
	require.Equal(t, "v", meta.UserMetadata["k"])

	out2, serr := b.CopyObject(ctx, storage.CopyObjectInput{
		SrcBucket: "src", SrcKey: "a", DstBucket: "dst", DstKey: "c",
		MetadataDirective: "REPLACE", ContentType: "application/json",
	})
	require.Nil(t, serr)
	require.Equal(t, out.ETag, out2.ETag)

	meta2, serr := b.HeadObject(ctx, "dst", "c")
	require.Nil(t, serr)
	require.Equal(t, "application/json", meta2.ContentType)
	require.Empty(t, meta2.UserMetadata["k"])
}

func TestCopyObject_MissingSourceIsInvalidCopySource(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "src")
	mustCreateBucket(t, b, "dst")

	_, serr := b.CopyObject(ctx, storage.CopyObjectInput{
		SrcBucket: "src", SrcKey: "nope", DstBucket: "dst", DstKey: "b",
	})
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidCopySource, serr.Code)
}

func TestDeleteObjects_PartialSuccess(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	_, serr := b.PutObject(ctx, storage.PutObjectInput{
		Bucket: "bucket", Key: "exists", Body: bytes.NewReader([]byte("x")), Size: 1,
	})
	require.Nil(t, serr)

	results := b.DeleteObjects(ctx, "bucket", []string{"exists", "also-missing"})
	require.Len(t, results, 2)
	require.True(t, results[0].Deleted)
	// Deleting an already-absent key succeeds too: S3's DeleteObjects is
	// idempotent per key.
	require.True(t, results[1].Deleted)
}

func TestListObjectsV2_PrefixDelimiterAndPagination(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	keys := []string{"a/1.txt", "a/2.txt", "a/sub/3.txt", "b/1.txt", "top.txt"}
	for _, k := range keys {
		_, serr := b.PutObject(ctx, storage.PutObjectInput{
			Bucket: "bucket", Key: k, Body: bytes.NewReader([]byte("x")), Size: 1,
		})
		require.Nil(t, serr)
	}

	out, serr := b.ListObjectsV2(ctx, storage.ListObjectsV2Input{Bucket: "bucket", Prefix: "a/", Delimiter: "/"})
	require.Nil(t, serr)
	require.Len(t, out.Contents, 2)
	require.Equal(t, []string{"a/sub/"}, out.CommonPrefixes)
	require.False(t, out.IsTruncated)

	page1, serr := b.ListObjectsV2(ctx, storage.ListObjectsV2Input{Bucket: "bucket", MaxKeys: 2})
	require.Nil(t, serr)
	require.Len(t, page1.Contents, 2)
	require.True(t, page1.IsTruncated)
	require.NotEmpty(t, page1.NextContinuationToken)

	page2, serr := b.ListObjectsV2(ctx, storage.ListObjectsV2Input{
		Bucket: "bucket", MaxKeys: 10, ContinuationToken: page1.NextContinuationToken,
	})
	require.Nil(t, serr)
	require.Len(t, page2.Contents, 3)
}

func TestMultipartUploadLifecycle(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	uploadID, serr := b.CreateMultipartUpload(ctx, storage.CreateMultipartUploadInput{
		Bucket: "bucket", Key: "big.bin", ContentType: "application/octet-stream",
	})
	require.Nil(t, serr)
	require.NotEmpty(t, uploadID)

	part1 := bytes.Repeat([]byte("A"), 5*1024*1024)
	etag1, serr := b.UploadPart(ctx, storage.UploadPartInput{
		Bucket: "bucket", Key: "big.bin", UploadID: uploadID, PartNumber: 1,
		Body: bytes.NewReader(part1), Size: int64(len(part1)),
	})
	require.Nil(t, serr)

	part2 := []byte("tail bytes")
	etag2, serr := b.UploadPart(ctx, storage.UploadPartInput{
		Bucket: "bucket", Key: "big.bin", UploadID: uploadID, PartNumber: 2,
		Body: bytes.NewReader(part2), Size: int64(len(part2)),
	})
	require.Nil(t, serr)

	listed, serr := b.ListParts(ctx, "bucket", "big.bin", uploadID, 0, 0)
	require.Nil(t, serr)
	require.Len(t, listed.Parts, 2)

	out, serr := b.CompleteMultipartUpload(ctx, "bucket", "big.bin", uploadID, []storage.CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	require.Nil(t, serr)
	require.Equal(t, int64(len(part1)+len(part2)), out.Size)
	require.Contains(t, out.ETag, "-2")

	meta, serr := b.HeadObject(ctx, "bucket", "big.bin")
	require.Nil(t, serr)
	require.Equal(t, "application/octet-stream", meta.ContentType)
	require.Equal(t, out.ETag, meta.ETag)

	_, serr = b.ListParts(ctx, "bucket", "big.bin", uploadID, 0, 0)
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeNoSuchUpload, serr.Code)
}

func TestCompleteMultipartUpload_RejectsOutOfOrderAndUndersizedParts(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	uploadID, serr := b.CreateMultipartUpload(ctx, storage.CreateMultipartUploadInput{Bucket: "bucket", Key: "k"})
	require.Nil(t, serr)

	etag1, serr := b.UploadPart(ctx, storage.UploadPartInput{
		Bucket: "bucket", Key: "k", UploadID: uploadID, PartNumber: 1,
		Body: bytes.NewReader([]byte("too small")), Size: 9,
	})
	require.Nil(t, serr)
	etag2, serr := b.UploadPart(ctx, storage.UploadPartInput{
		Bucket: "bucket", Key: "k", UploadID: uploadID, PartNumber: 2,
		Body: bytes.NewReader([]byte("also small")), Size: 10,
	})
	require.Nil(t, serr)

	_, serr = b.CompleteMultipartUpload(ctx, "bucket", "k", uploadID, []storage.CompletedPart{
		{PartNumber: 2, ETag: etag2},
		{PartNumber: 1, ETag: etag1},
	})
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidPartOrder, serr.Code)

	_, serr = b.CompleteMultipartUpload(ctx, "bucket", "k", uploadID, []storage.CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeEntityTooSmall, serr.Code)
}

func TestAbortMultipartUpload_ReclaimsStaging(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	uploadID, serr := b.CreateMultipartUpload(ctx, storage.CreateMultipartUploadInput{Bucket: "bucket", Key: "k"})
	require.Nil(t, serr)

	_, serr = b.UploadPart(ctx, storage.UploadPartInput{
		Bucket: "bucket", Key: "k", UploadID: uploadID, PartNumber: 1,
		Body: bytes.NewReader([]byte("data")), Size: 4,
	})
	require.Nil(t, serr)

	require.Nil(t, b.AbortMultipartUpload(ctx, "bucket", "k", uploadID))

	_, serr = b.ListParts(ctx, "bucket", "k", uploadID, 0, 0)
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeNoSuchUpload, serr.Code)
}

func TestListMultipartUploads_DefaultsAndPrefix(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mustCreateBucket(t, b, "bucket")

	id1, serr := b.CreateMultipartUpload(ctx, storage.CreateMultipartUploadInput{Bucket: "bucket", Key: "alpha"})
	require.Nil(t, serr)
	_, serr = b.CreateMultipartUpload(ctx, storage.CreateMultipartUploadInput{Bucket: "bucket", Key: "beta"})
	require.Nil(t, serr)

	out, serr := b.ListMultipartUploads(ctx, storage.ListMultipartUploadsInput{Bucket: "bucket", Prefix: "al"})
	require.Nil(t, serr)
	require.Len(t, out.Uploads, 1)
	require.Equal(t, id1, out.Uploads[0].UploadID)
}
