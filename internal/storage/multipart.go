package storage

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"depot/internal/s3err"
)

// uploadLocks is a map of per-UploadId *sync.Mutex, guarded by mu
// (spec.md §5: "mutations... take an upload-scoped lock"), as described
// in the SPEC_FULL concurrency section.
type uploadLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUploadLocks() *uploadLocks {
	return &uploadLocks{locks: make(map[string]*sync.Mutex)}
}

func (u *uploadLocks) lock(uploadID string) func() {
	u.mu.Lock()
	l, ok := u.locks[uploadID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[uploadID] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (u *uploadLocks) forget(uploadID string) {
	u.mu.Lock()
	delete(u.locks, uploadID)
	u.mu.Unlock()
}

func (b *FilesystemBackend) uploadDir(bucket, uploadID string) string {
	return filepath.Join(b.uploadsDir(bucket), uploadID)
}

func (b *FilesystemBackend) partPath(bucket, uploadID string, partNumber int) string {
	return filepath.Join(b.uploadDir(bucket, uploadID), strconv.Itoa(partNumber))
}

func (b *FilesystemBackend) CreateMultipartUpload(ctx context.Context, in CreateMultipartUploadInput) (string, *s3err.Error) {
	if serr := b.requireBucket(ctx, in.Bucket); serr != nil {
		return "", serr
	}
	if serr := validateKey(in.Key); serr != nil {
		return "", serr
	}

	uploadID := uuid.NewString()
	now := time.Now().UTC()

	if err := os.MkdirAll(b.uploadDir(in.Bucket, uploadID), 0o755); err != nil {
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to create upload staging directory", err)
	}
	if err := b.writeSidecar(in.Bucket, multipartSidecarKey(uploadID), sidecar{
		ContentType:     in.ContentType,
		ContentEncoding: in.ContentEncoding,
		UserMetadata:    in.UserMetadata,
		CannedACL:       in.CannedACL,
		LastModified:    now,
	}); err != nil {
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to stage upload metadata", err)
	}
	if err := b.registry.createMultipartUpload(ctx, uploadID, in.Bucket, in.Key, now); err != nil {
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to register upload", err)
	}

	return uploadID, nil
}

// multipartSidecarKey maps an in-flight upload's declared object metadata
// (content-type, user metadata, canned ACL) onto the same sidecar
// mechanism objects use, keyed by a path no real object key can collide
// with.
func multipartSidecarKey(uploadID string) string {
	return uploadsDirName + "/" + uploadID + "/metadata"
}

func (b *FilesystemBackend) requireUpload(ctx context.Context, bucket, key, uploadID string) (*multipartUploadRow, *s3err.Error) {
	row, err := b.registry.getMultipartUpload(ctx, uploadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s3err.New(s3err.CodeNoSuchUpload, "The specified multipart upload does not exist.")
		}
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to look up upload", err)
	}
	if row.Bucket != bucket || row.Key != key {
		return nil, s3err.New(s3err.CodeNoSuchUpload, "The specified multipart upload does not exist.")
	}
	return row, nil
}

func (b *FilesystemBackend) UploadPart(ctx context.Context, in UploadPartInput) (string, *s3err.Error) {
	if _, serr := b.requireUpload(ctx, in.Bucket, in.Key, in.UploadID); serr != nil {
		return "", serr
	}
	if in.PartNumber < 1 || in.PartNumber > 10000 {
		return "", s3err.New(s3err.CodeInvalidArgument, "part number must be between 1 and 10000")
	}

	unlock := b.uploads.lock(in.UploadID)
	defer unlock()

	dir := b.uploadDir(in.Bucket, in.UploadID)
	if _, err := os.Stat(dir); err != nil {
		return "", s3err.New(s3err.CodeNoSuchUpload, "The specified multipart upload does not exist.")
	}

	path := b.partPath(in.Bucket, in.UploadID, in.PartNumber)
	f, err := os.Create(path)
	if err != nil {
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to stage part", err)
	}

	md5sum := md5.New()
	written, copyErr := io.Copy(f, io.TeeReader(in.Body, md5sum))
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to write part", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to flush part", closeErr)
	}
	if in.Size >= 0 && in.Size != written {
		_ = os.Remove(path)
		return "", s3err.New(s3err.CodeInvalidRequest, "declared Content-Length did not match bytes written")
	}

	return quoteETag(hex.EncodeToString(md5sum.Sum(nil))), nil
}

// stagedParts lists the parts physically present under an upload's
// directory, sorted by part number.
func (b *FilesystemBackend) stagedParts(bucket, uploadID string) ([]PartInfo, error) {
	dir := b.uploadDir(bucket, uploadID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var parts []PartInfo
	for _, e := range entries {
		if e.IsDir() || e.Name() == "metadata" {
			continue
		}
		n, convErr := strconv.Atoi(e.Name())
		if convErr != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, statErr := e.Info()
		if statErr != nil {
			return nil, statErr
		}
		etagHex, hashErr := hashFile(path)
		if hashErr != nil {
			return nil, hashErr
		}
		parts = append(parts, PartInfo{
			PartNumber:   n,
			ETag:         quoteETag(etagHex),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func (b *FilesystemBackend) ListParts(ctx context.Context, bucket, key, uploadID string, maxParts, partNumberMarker int) (*ListPartsOutput, *s3err.Error) {
	if _, serr := b.requireUpload(ctx, bucket, key, uploadID); serr != nil {
		return nil, serr
	}
	if maxParts <= 0 || maxParts > 1000 {
		maxParts = 1000
	}

	all, err := b.stagedParts(bucket, uploadID)
	if err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to list parts", err)
	}

	out := &ListPartsOutput{}
	for _, p := range all {
		if p.PartNumber <= partNumberMarker {
			continue
		}
		if len(out.Parts) >= maxParts {
			out.IsTruncated = true
			out.NextPartNumberMarker = out.Parts[len(out.Parts)-1].PartNumber
			break
		}
		out.Parts = append(out.Parts, p)
	}
	return out, nil
}

// CompleteMultipartUpload assembles the manifest's parts in the given
// order into the final object. The manifest's part numbers must be
// strictly increasing (spec.md §8 scenario 5); any other order is
// InvalidPartOrder. Parts not present in the manifest remain staged and
// are discarded along with the rest of the staging directory afterward.
func (b *FilesystemBackend) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, manifest []CompletedPart) (*CompleteMultipartUploadOutput, *s3err.Error) {
	if _, serr := b.requireUpload(ctx, bucket, key, uploadID); serr != nil {
		return nil, serr
	}
	if len(manifest) == 0 {
		return nil, s3err.New(s3err.CodeInvalidRequest, "at least one part must be specified")
	}

	unlock := b.uploads.lock(uploadID)
	defer unlock()

	for i := 1; i < len(manifest); i++ {
		if manifest[i].PartNumber <= manifest[i-1].PartNumber {
			return nil, s3err.New(s3err.CodeInvalidPartOrder, "The list of parts was not in ascending order.")
		}
	}

	staged, err := b.stagedParts(bucket, uploadID)
	if err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to inspect staged parts", err)
	}
	byNumber := make(map[int]PartInfo, len(staged))
	for _, p := range staged {
		byNumber[p.PartNumber] = p
	}

	destPath, serr := b.objectPath(bucket, key)
	if serr != nil {
		return nil, serr
	}

	out, err := b.createStagingFile(bucket)
	if err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to stage final object", err)
	}
	defer cleanupStaged(&out)

	var totalSize int64
	var partDigests []byte
	for i, m := range manifest {
		part, ok := byNumber[m.PartNumber]
		if !ok {
			return nil, s3err.Newf(s3err.CodeInvalidPart, "part %d was not uploaded", m.PartNumber)
		}
		if quoteETag(trimQuotes(part.ETag)) != quoteETag(trimQuotes(m.ETag)) {
			return nil, s3err.Newf(s3err.CodeInvalidPart, "ETag for part %d does not match", m.PartNumber)
		}
		isLast := i == len(manifest)-1
		if !isLast && part.Size < minPartSize {
			return nil, s3err.Newf(s3err.CodeEntityTooSmall, "part %d is smaller than the 5 MiB minimum", m.PartNumber)
		}

		partPath := b.partPath(bucket, uploadID, m.PartNumber)
		if copyErr := appendFile(out.file, partPath); copyErr != nil {
			return nil, s3err.Wrap(s3err.CodeInternalError, "failed to assemble object", copyErr)
		}
		totalSize += part.Size

		digest, decodeErr := hex.DecodeString(trimQuotes(part.ETag))
		if decodeErr != nil {
			return nil, s3err.Wrap(s3err.CodeInternalError, "malformed staged part digest", decodeErr)
		}
		partDigests = append(partDigests, digest...)
	}

	if err := out.file.Close(); err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to flush object", err)
	}
	out.file = nil

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to create object directory", err)
	}
	if err := moveFile(out.path, destPath); err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to publish object", err)
	}
	out.committed = true

	sum := md5.Sum(partDigests)
	etag := fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:]), len(manifest))

	now := time.Now().UTC()
	uploadMeta, _ := b.readSidecar(bucket, multipartSidecarKey(uploadID))
	sc := sidecar{ETag: etag, Size: totalSize, LastModified: now}
	if uploadMeta != nil {
		sc.ContentType = uploadMeta.ContentType
		sc.ContentEncoding = uploadMeta.ContentEncoding
		sc.UserMetadata = uploadMeta.UserMetadata
		sc.CannedACL = uploadMeta.CannedACL
	}
	if err := b.writeSidecar(bucket, key, sc); err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to write object metadata", err)
	}

	b.finishUpload(ctx, bucket, uploadID)

	return &CompleteMultipartUploadOutput{ETag: quoteETag(etag), LastModified: now, Size: totalSize}, nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func appendFile(dst *os.File, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

func (b *FilesystemBackend) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) *s3err.Error {
	if _, serr := b.requireUpload(ctx, bucket, key, uploadID); serr != nil {
		return serr
	}

	unlock := b.uploads.lock(uploadID)
	defer unlock()

	b.finishUpload(ctx, bucket, uploadID)
	return nil
}

// finishUpload reclaims an upload's staging area and registry row
// (spec.md §3: "the staging area of an aborted or completed upload is
// fully reclaimed").
func (b *FilesystemBackend) finishUpload(ctx context.Context, bucket, uploadID string) {
	if err := os.RemoveAll(b.uploadDir(bucket, uploadID)); err != nil {
		slog.Error("remove upload staging dir", "upload_id", uploadID, "err", err)
	}
	if err := b.registry.deleteMultipartUpload(ctx, uploadID); err != nil {
		slog.Error("delete upload registry row", "upload_id", uploadID, "err", err)
	}
	b.uploads.forget(uploadID)
}

func (b *FilesystemBackend) ListMultipartUploads(ctx context.Context, in ListMultipartUploadsInput) (*ListMultipartUploadsOutput, *s3err.Error) {
	if serr := b.requireBucket(ctx, in.Bucket); serr != nil {
		return nil, serr
	}

	maxUploads := in.MaxUploads
	if maxUploads <= 0 || maxUploads > 1000 {
		maxUploads = 1000
	}

	rows, err := b.registry.listMultipartUploads(ctx, in.Bucket)
	if err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to list uploads", err)
	}

	out := &ListMultipartUploadsOutput{}
	seenPrefixes := make(map[string]bool)
	count := 0
	for _, row := range rows {
		if !strings.HasPrefix(row.Key, in.Prefix) {
			continue
		}
		if before(row.Key, row.UploadID, in.KeyMarker, in.UploadIDMarker) {
			continue
		}

		if in.Delimiter != "" {
			rest := row.Key[len(in.Prefix):]
			if idx := strings.Index(rest, in.Delimiter); idx >= 0 {
				prefix := in.Prefix + rest[:idx+len(in.Delimiter)]
				if !seenPrefixes[prefix] {
					seenPrefixes[prefix] = true
					out.CommonPrefixes = append(out.CommonPrefixes, prefix)
					count++
				}
				continue
			}
		}

		if count >= maxUploads {
			out.IsTruncated = true
			out.NextKeyMarker = row.Key
			out.NextUploadIDMarker = row.UploadID
			break
		}

		out.Uploads = append(out.Uploads, MultipartUploadInfo{
			Key:       row.Key,
			UploadID:  row.UploadID,
			Initiated: row.Initiated,
		})
		count++
	}

	return out, nil
}

func before(key, uploadID, keyMarker, uploadIDMarker string) bool {
	if keyMarker == "" {
		return false
	}
	if key < keyMarker {
		return true
	}
	if key == keyMarker {
		return uploadID <= uploadIDMarker
	}
	return false
}
