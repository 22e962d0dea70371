// Command depot-smoke drives a running depot server through the
// minio-go/v7 SDK, exercising bucket creation, put/list/get/copy,
// cross-bucket copy, and a low-level multipart upload end to end as a
// compatibility smoke test. Adapted
// from the teacher's cmd/example.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

const (
	bucketName         = "depot-smoke-bucket"
	otherBucket        = "depot-smoke-other-bucket"
	objectName         = "hello.txt"
	objectContent      = "Hello from depot!\n"
	otherObjectName    = "reports/q1/summary.txt"
	otherObjectContent = "quarterly summary placeholder content\n"
)

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
		}
	}
	return nil
}

func uploadFile(ctx context.Context, client *minio.Client, bucket, key string, content []byte) error {
	reader := bytes.NewReader(content)
	_, err := client.PutObject(ctx, bucket, key, reader, int64(len(content)), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q to bucket %q: %w", key, bucket, err)
	}
	slog.Info("uploaded object", "key", key, "bucket", bucket)
	return nil
}

func listBucketObjects(ctx context.Context, client *minio.Client, bucket string) error {
	slog.Info("listing objects", "bucket", bucket)
	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list objects in bucket %q: %w", bucket, obj.Err)
		}
		slog.Info("object", "key", obj.Key, "size", obj.Size)
	}
	return nil
}

func downloadFile(ctx context.Context, client *minio.Client, bucket, key, downloadPath string) error {
	if err := client.FGetObject(ctx, bucket, key, downloadPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download object %q from bucket %q: %w", key, bucket, err)
	}
	slog.Info("downloaded object", "path", downloadPath)
	return nil
}

func copyObject(ctx context.Context, client *minio.Client, srcBucket, srcKey, dstBucket, dstKey string) error {
	src := minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey}
	dst := minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey}
	if _, err := client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("failed to copy object %q/%q to %q/%q: %w", srcBucket, srcKey, dstBucket, dstKey, err)
	}
	slog.Info("copied object", "src_bucket", srcBucket, "src_key", srcKey, "dst_bucket", dstBucket, "dst_key", dstKey)
	return nil
}

// multipartUploadExample exercises CreateMultipartUpload/UploadPart/
// CompleteMultipartUpload through minio-go's low-level Core client,
// grounded on the teacher's cmd/example.MultipartUploadExample.
func multipartUploadExample(ctx context.Context, client *minio.Client) error {
	const (
		bucket = "depot-smoke-multipart-bucket"
		object = "multipart-object.bin"
	)

	creds, err := client.GetCreds()
	if err != nil {
		return fmt.Errorf("failed to get client credentials: %w", err)
	}
	endpointURL := client.EndpointURL()

	coreClient, err := minio.NewCore(endpointURL.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, ""),
		Secure:       false,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create core client: %w", err)
	}

	if err := coreClient.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"}); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
	}

	uploadID, err := coreClient.NewMultipartUpload(ctx, bucket, object, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to initiate multipart upload: %w", err)
	}

	log := slog.With("bucket", bucket, "object", object, "upload_id", uploadID)
	log.Info("started multipart upload")

	partData := [][]byte{
		bytes.Repeat([]byte("AAAA"), 1280*1024),
		bytes.Repeat([]byte("BBBB"), 1280*1024),
		bytes.Repeat([]byte("CCCC"), 128*1024),
	}

	var parts []minio.CompletePart
	totalLength := 0
	for i, data := range partData {
		partNumber := i + 1
		objPart, err := coreClient.PutObjectPart(ctx, bucket, object, uploadID, partNumber, bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
		if err != nil {
			return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
		}
		parts = append(parts, minio.CompletePart{PartNumber: partNumber, ETag: objPart.ETag})
		totalLength += len(data)
	}

	if _, err := coreClient.CompleteMultipartUpload(ctx, bucket, object, uploadID, parts, minio.PutObjectOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	log.Info("completed multipart upload", "total_size", totalLength)
	return nil
}

func run(ctx context.Context, client *minio.Client) error {
	if err := ensureBucket(ctx, client, bucketName); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	if err := uploadFile(ctx, client, bucketName, objectName, []byte(objectContent)); err != nil {
		return fmt.Errorf("failed to upload example file: %w", err)
	}
	if err := listBucketObjects(ctx, client, bucketName); err != nil {
		return fmt.Errorf("failed to list bucket objects: %w", err)
	}

	downloadPath := filepath.Join(".", "downloaded_"+objectName)
	if err := downloadFile(ctx, client, bucketName, objectName, downloadPath); err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}

	if err := copyObject(ctx, client, bucketName, objectName, bucketName, "copies/hello_copy.txt"); err != nil {
		return fmt.Errorf("failed to copy object within bucket: %w", err)
	}

	if err := ensureBucket(ctx, client, otherBucket); err != nil {
		return fmt.Errorf("failed to ensure another bucket exists: %w", err)
	}
	if err := copyObject(ctx, client, bucketName, "copies/hello_copy.txt", otherBucket, "cross-bucket/hello_copy.txt"); err != nil {
		return fmt.Errorf("failed to copy object to another bucket: %w", err)
	}
	if err := uploadFile(ctx, client, otherBucket, otherObjectName, []byte(otherObjectContent)); err != nil {
		return fmt.Errorf("failed to upload example file: %w", err)
	}
	if err := listBucketObjects(ctx, client, otherBucket); err != nil {
		return fmt.Errorf("failed to list bucket objects: %w", err)
	}

	if err := multipartUploadExample(ctx, client); err != nil {
		return fmt.Errorf("failed to run multipart upload example: %w", err)
	}

	return nil
}

func main() {
	endpoint := getenv("DEPOT_ENDPOINT", "localhost:8014")
	accessKey := getenv("DEPOT_ACCESS_KEY", "depotadmin")
	secretKey := getenv("DEPOT_SECRET_KEY", "depotadmin")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		slog.Error("failed to create S3 client", "err", err)
		os.Exit(1)
	}

	if err := run(context.Background(), client); err != nil {
		slog.Error("smoke test failed", "err", err)
		os.Exit(1)
	}

	slog.Info("smoke test completed successfully")
}
