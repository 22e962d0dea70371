package storage

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"depot/internal/s3err"
)

// bucketNamePattern matches the standard S3 virtual-hosted-style bucket
// naming rule, grounded on the teacher's pkg/core/server.go pattern.
var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

const (
	tmpDirName     = ".tmp"
	metaDirName    = ".meta"
	uploadsDirName = ".uploads"
	registryName   = ".depot.sqlite"

	minPartSize = 5 * 1024 * 1024 // 5 MiB, S3's minimum part size except the last
	maxObjectSize = 5 * 1024 * 1024 * 1024 // 5 GiB single-PUT limit (spec.md §5)
)

// FilesystemBackend is the reference storage Engine implementation
// (spec.md §4.5): buckets are directories under root, objects are files
// within them, metadata sidecars and multipart staging areas live under
// hidden per-bucket directories (spec.md §4.8).
type FilesystemBackend struct {
	root     string
	registry *registry
	uploads  *uploadLocks
}

// NewFilesystemBackend opens (creating if necessary) a filesystem-backed
// storage engine rooted at root.
func NewFilesystemBackend(ctx context.Context, root string) (*FilesystemBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	reg, err := openRegistry(ctx, filepath.Join(root, registryName))
	if err != nil {
		return nil, err
	}

	return &FilesystemBackend{
		root:     root,
		registry: reg,
		uploads:  newUploadLocks(),
	}, nil
}

// Close releases the backend's registry database handle.
func (b *FilesystemBackend) Close() error {
	return b.registry.Close()
}

func (b *FilesystemBackend) bucketDir(bucket string) string  { return filepath.Join(b.root, bucket) }
func (b *FilesystemBackend) tmpDir(bucket string) string     { return filepath.Join(b.bucketDir(bucket), tmpDirName) }
func (b *FilesystemBackend) metaDir(bucket string) string    { return filepath.Join(b.bucketDir(bucket), metaDirName) }
func (b *FilesystemBackend) uploadsDir(bucket string) string { return filepath.Join(b.bucketDir(bucket), uploadsDirName) }

// objectPath resolves key to its path under bucket's directory, rejecting
// any key that would escape the bucket tree (spec.md §4.5).
func (b *FilesystemBackend) objectPath(bucket, key string) (string, *s3err.Error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.bucketDir(bucket), filepath.FromSlash(key)), nil
}

func validateKey(key string) *s3err.Error {
	if key == "" || len(key) > 1024 {
		return s3err.New(s3err.CodeInvalidArgument, "key length must be between 1 and 1024 bytes")
	}
	if strings.HasPrefix(key, "/") {
		return s3err.New(s3err.CodeInvalidRequest, "key must not begin with a slash")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, string(filepath.Separator)+"..") {
		return s3err.New(s3err.CodeInvalidRequest, "key must not escape the bucket")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == tmpDirName || seg == metaDirName || seg == uploadsDirName {
			return s3err.New(s3err.CodeInvalidRequest, "key must not use a reserved path component")
		}
	}
	return nil
}

// metaPath is the metadata sidecar for key: .meta/<sha256(key)>.json
// (spec.md §4.8).
func (b *FilesystemBackend) metaPath(bucket, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(b.metaDir(bucket), hex.EncodeToString(sum[:])+".json")
}

// sidecar is the on-disk shape of an object's metadata sidecar file.
type sidecar struct {
	ContentType     string            `json:"content_type"`
	ContentEncoding string            `json:"content_encoding,omitempty"`
	UserMetadata    map[string]string `json:"user_metadata,omitempty"`
	CannedACL       string            `json:"canned_acl,omitempty"`
	ETag            string            `json:"etag"`
	Size            int64             `json:"size"`
	LastModified    time.Time         `json:"last_modified"`
}

func (b *FilesystemBackend) writeSidecar(bucket, key string, sc sidecar) error {
	if err := os.MkdirAll(b.metaDir(bucket), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	tmp, err := b.stageTemp(bucket, data)
	if err != nil {
		return err
	}
	defer cleanupStaged(&tmp)
	if err := moveFile(tmp.path, b.metaPath(bucket, key)); err != nil {
		return err
	}
	tmp.committed = true
	return nil
}

func (b *FilesystemBackend) readSidecar(bucket, key string) (*sidecar, error) {
	data, err := os.ReadFile(b.metaPath(bucket, key))
	if err != nil {
		return nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (b *FilesystemBackend) removeSidecar(bucket, key string) error {
	err := os.Remove(b.metaPath(bucket, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// stagedFile is a scoped-acquisition guard for a staging file (spec.md
// §9 "Scoped cleanup"): on any exit path the file is unlinked unless
// committed is set true after a successful atomic publish.
type stagedFile struct {
	path      string
	file      *os.File
	committed bool
}

func cleanupStaged(s *stagedFile) {
	if s.file != nil {
		_ = s.file.Close()
	}
	if !s.committed {
		_ = os.Remove(s.path)
	}
}

// stageTemp writes data to a fresh file under bucket's .tmp directory and
// returns a guard describing it.
func (b *FilesystemBackend) stageTemp(bucket string, data []byte) (stagedFile, error) {
	dir := b.tmpDir(bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stagedFile{}, err
	}
	path := filepath.Join(dir, uuid.NewString())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return stagedFile{}, err
	}
	return stagedFile{path: path}, nil
}

// createStagingFile opens a fresh file under bucket's .tmp directory for
// streamed writes, returning the guard and the open handle.
func (b *FilesystemBackend) createStagingFile(bucket string) (stagedFile, error) {
	dir := b.tmpDir(bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stagedFile{}, err
	}
	path := filepath.Join(dir, uuid.NewString())
	f, err := os.Create(path)
	if err != nil {
		return stagedFile{}, err
	}
	return stagedFile{path: path, file: f}, nil
}

// --- Bucket operations ---

func (b *FilesystemBackend) CreateBucket(ctx context.Context, name string) *s3err.Error {
	if !isValidBucketName(name) {
		return s3err.New(s3err.CodeInvalidBucketName, "The specified bucket is not valid.")
	}

	created, err := b.registry.createBucket(ctx, name, time.Now().UTC())
	if err != nil {
		slog.Error("create bucket", "bucket", name, "err", err)
		return s3err.Wrap(s3err.CodeInternalError, "failed to create bucket", err)
	}
	if !created {
		return s3err.New(s3err.CodeBucketAlreadyExists, "The requested bucket name is not available.")
	}

	for _, dir := range []string{b.bucketDir(name), b.tmpDir(name), b.metaDir(name), b.uploadsDir(name)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("create bucket dirs", "bucket", name, "err", err)
			return s3err.Wrap(s3err.CodeInternalError, "failed to create bucket", err)
		}
	}
	return nil
}

func (b *FilesystemBackend) DeleteBucket(ctx context.Context, name string) *s3err.Error {
	exists, err := b.registry.bucketExists(ctx, name)
	if err != nil {
		return s3err.Wrap(s3err.CodeInternalError, "failed to check bucket", err)
	}
	if !exists {
		return s3err.New(s3err.CodeNoSuchBucket, "The specified bucket does not exist.")
	}

	empty, err := b.bucketIsEmpty(name)
	if err != nil {
		return s3err.Wrap(s3err.CodeInternalError, "failed to inspect bucket", err)
	}
	if !empty {
		return s3err.New(s3err.CodeBucketNotEmpty, "The bucket you tried to delete is not empty.")
	}

	if err := b.registry.deleteBucket(ctx, name); err != nil {
		return s3err.Wrap(s3err.CodeInternalError, "failed to delete bucket", err)
	}
	if err := os.RemoveAll(b.bucketDir(name)); err != nil {
		slog.Error("remove bucket dir", "bucket", name, "err", err)
	}
	return nil
}

func (b *FilesystemBackend) bucketIsEmpty(name string) (bool, error) {
	rows, err := b.registry.listMultipartUploads(context.Background(), name)
	if err != nil {
		return false, err
	}
	if len(rows) > 0 {
		return false, nil
	}

	empty := true
	err = filepath.WalkDir(b.bucketDir(name), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == b.bucketDir(name) {
			return nil
		}
		if d.IsDir() {
			if isReservedDir(filepath.Base(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		empty = false
		return filepath.SkipAll
	})
	return empty, err
}

func isReservedDir(name string) bool {
	return name == tmpDirName || name == metaDirName || name == uploadsDirName
}

func (b *FilesystemBackend) HeadBucket(ctx context.Context, name string) (bool, *s3err.Error) {
	exists, err := b.registry.bucketExists(ctx, name)
	if err != nil {
		return false, s3err.Wrap(s3err.CodeInternalError, "failed to check bucket", err)
	}
	return exists, nil
}

func (b *FilesystemBackend) ListBuckets(ctx context.Context) ([]BucketInfo, *s3err.Error) {
	list, err := b.registry.listBuckets(ctx)
	if err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to list buckets", err)
	}
	return list, nil
}

// isValidBucketName implements the S3 bucket naming rules (spec.md §3),
// grounded on the teacher's pkg/core/server.go isValidBucketName.
func isValidBucketName(name string) bool {
	if !bucketNamePattern.MatchString(name) {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	for i := 1; i < len(name); i++ {
		if (name[i-1] == '.' && name[i] == '-') || (name[i-1] == '-' && name[i] == '.') {
			return false
		}
	}
	return net.ParseIP(name) == nil
}

// --- Object operations ---

func (b *FilesystemBackend) requireBucket(ctx context.Context, bucket string) *s3err.Error {
	exists, err := b.registry.bucketExists(ctx, bucket)
	if err != nil {
		return s3err.Wrap(s3err.CodeInternalError, "failed to check bucket", err)
	}
	if !exists {
		return s3err.New(s3err.CodeNoSuchBucket, "The specified bucket does not exist.")
	}
	return nil
}

func (b *FilesystemBackend) PutObject(ctx context.Context, in PutObjectInput) (string, *s3err.Error) {
	if serr := b.requireBucket(ctx, in.Bucket); serr != nil {
		return "", serr
	}
	destPath, serr := b.objectPath(in.Bucket, in.Key)
	if serr != nil {
		return "", serr
	}

	staged, err := b.createStagingFile(in.Bucket)
	if err != nil {
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to stage object", err)
	}
	defer cleanupStaged(&staged)

	md5sum := md5.New()
	written, err := io.Copy(staged.file, io.TeeReader(io.LimitReader(in.Body, maxObjectSize+1), md5sum))
	if err != nil {
		_ = staged.file.Close()
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to write object", err)
	}
	if written > maxObjectSize {
		_ = staged.file.Close()
		return "", s3err.New(s3err.CodeEntityTooLarge, "Your proposed upload exceeds the maximum allowed size.")
	}
	if err := staged.file.Close(); err != nil {
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to flush object", err)
	}
	staged.file = nil

	if in.Size >= 0 && in.Size != written {
		return "", s3err.New(s3err.CodeInvalidRequest, "declared Content-Length did not match bytes written")
	}

	etagHex := hex.EncodeToString(md5sum.Sum(nil))

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to create object directory", err)
	}
	if err := moveFile(staged.path, destPath); err != nil {
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to publish object", err)
	}
	staged.committed = true

	now := time.Now().UTC()
	if err := b.writeSidecar(in.Bucket, in.Key, sidecar{
		ContentType:     in.ContentType,
		ContentEncoding: in.ContentEncoding,
		UserMetadata:    in.UserMetadata,
		CannedACL:       in.CannedACL,
		ETag:            etagHex,
		Size:            written,
		LastModified:    now,
	}); err != nil {
		slog.Error("write sidecar", "bucket", in.Bucket, "key", in.Key, "err", err)
		return "", s3err.Wrap(s3err.CodeInternalError, "failed to write object metadata", err)
	}

	return quoteETag(etagHex), nil
}

func quoteETag(hexDigest string) string { return `"` + hexDigest + `"` }

func (b *FilesystemBackend) resolveMeta(bucket, key string) (*ObjectMeta, error) {
	objPath, serr := b.objectPath(bucket, key)
	if serr != nil {
		return nil, serr
	}
	info, err := os.Stat(objPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, os.ErrNotExist
	}

	meta := &ObjectMeta{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
		ContentType:  "application/octet-stream",
	}

	sc, err := b.readSidecar(bucket, key)
	switch {
	case err == nil:
		meta.ContentType = sc.ContentType
		meta.ContentEncoding = sc.ContentEncoding
		meta.UserMetadata = sc.UserMetadata
		meta.CannedACL = sc.CannedACL
		meta.ETag = quoteETag(sc.ETag)
		meta.Size = sc.Size
		meta.LastModified = sc.LastModified
	case os.IsNotExist(err):
		// No sidecar: recompute the ETag on demand (spec.md §4.5).
		etagHex, hashErr := hashFile(objPath)
		if hashErr != nil {
			return nil, hashErr
		}
		meta.ETag = quoteETag(etagHex)
	default:
		return nil, err
	}

	return meta, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (b *FilesystemBackend) HeadObject(ctx context.Context, bucket, key string) (*ObjectMeta, *s3err.Error) {
	if serr := b.requireBucket(ctx, bucket); serr != nil {
		return nil, serr
	}
	meta, err := b.resolveMeta(bucket, key)
	if err != nil {
		if serr, ok := err.(*s3err.Error); ok {
			return nil, serr
		}
		if os.IsNotExist(err) {
			return nil, s3err.New(s3err.CodeNoSuchKey, "The specified key does not exist.")
		}
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to stat object", err)
	}
	return meta, nil
}

func (b *FilesystemBackend) GetObject(ctx context.Context, bucket, key string, rng *ByteRange) (*GetObjectOutput, *s3err.Error) {
	if serr := b.requireBucket(ctx, bucket); serr != nil {
		return nil, serr
	}
	meta, err := b.resolveMeta(bucket, key)
	if err != nil {
		if serr, ok := err.(*s3err.Error); ok {
			return nil, serr
		}
		if os.IsNotExist(err) {
			return nil, s3err.New(s3err.CodeNoSuchKey, "The specified key does not exist.")
		}
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to stat object", err)
	}

	objPath, serr := b.objectPath(bucket, key)
	if serr != nil {
		return nil, serr
	}
	f, openErr := os.Open(objPath)
	if openErr != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to open object", openErr)
	}

	var body io.ReadCloser = f
	if rng != nil {
		if rng.Start < 0 || rng.End >= meta.Size || rng.End < rng.Start {
			_ = f.Close()
			return nil, s3err.New(s3err.CodeInvalidRange, "The requested range is not satisfiable.")
		}
		if _, seekErr := f.Seek(rng.Start, io.SeekStart); seekErr != nil {
			_ = f.Close()
			return nil, s3err.Wrap(s3err.CodeInternalError, "failed to seek object", seekErr)
		}
		body = struct {
			io.Reader
			io.Closer
		}{io.LimitReader(f, rng.Len()), f}
	}

	return &GetObjectOutput{
		ObjectMeta: *meta,
		Body:       body,
		Range:      rng,
		TotalSize:  meta.Size,
	}, nil
}

func (b *FilesystemBackend) DeleteObject(ctx context.Context, bucket, key string) (bool, *s3err.Error) {
	if serr := b.requireBucket(ctx, bucket); serr != nil {
		return false, serr
	}
	objPath, serr := b.objectPath(bucket, key)
	if serr != nil {
		return false, serr
	}

	_, statErr := os.Stat(objPath)
	existed := statErr == nil

	if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
		return false, s3err.Wrap(s3err.CodeInternalError, "failed to delete object", err)
	}
	if err := b.removeSidecar(bucket, key); err != nil {
		slog.Error("remove sidecar", "bucket", bucket, "key", key, "err", err)
	}
	return existed, nil
}

// DeleteObjects deletes each key independently, reporting per-key success
// or failure (spec.md §5: "processed per-key independently; partial
// success is permitted").
func (b *FilesystemBackend) DeleteObjects(ctx context.Context, bucket string, keys []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(keys))
	for _, key := range keys {
		_, serr := b.DeleteObject(ctx, bucket, key)
		results = append(results, DeleteResult{Key: key, Deleted: serr == nil, Err: serr})
	}
	return results
}

func (b *FilesystemBackend) CopyObject(ctx context.Context, in CopyObjectInput) (*CopyObjectOutput, *s3err.Error) {
	if serr := b.requireBucket(ctx, in.SrcBucket); serr != nil {
		return nil, serr
	}
	if serr := b.requireBucket(ctx, in.DstBucket); serr != nil {
		return nil, serr
	}

	srcMeta, err := b.resolveMeta(in.SrcBucket, in.SrcKey)
	if err != nil {
		if serr, ok := err.(*s3err.Error); ok {
			return nil, serr
		}
		if os.IsNotExist(err) {
			return nil, s3err.New(s3err.CodeInvalidCopySource, "The specified copy source does not exist.")
		}
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to stat copy source", err)
	}

	srcPath, serr := b.objectPath(in.SrcBucket, in.SrcKey)
	if serr != nil {
		return nil, serr
	}
	dstPath, serr := b.objectPath(in.DstBucket, in.DstKey)
	if serr != nil {
		return nil, serr
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to create destination directory", err)
	}
	if err := copyFile(srcPath, dstPath); err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to copy object", err)
	}

	now := time.Now().UTC()
	sc := sidecar{
		ContentType:     srcMeta.ContentType,
		ContentEncoding: srcMeta.ContentEncoding,
		UserMetadata:    srcMeta.UserMetadata,
		CannedACL:       srcMeta.CannedACL,
		ETag:            strings.Trim(srcMeta.ETag, `"`),
		Size:            srcMeta.Size,
		LastModified:    now,
	}
	if in.MetadataDirective == "REPLACE" {
		sc.ContentType = in.ContentType
		sc.ContentEncoding = in.ContentEncoding
		sc.UserMetadata = in.UserMetadata
	}
	if err := b.writeSidecar(in.DstBucket, in.DstKey, sc); err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to write destination metadata", err)
	}

	return &CopyObjectOutput{ETag: quoteETag(sc.ETag), LastModified: now}, nil
}

// ListObjectsV2 walks the bucket subtree in lexicographic order, applying
// prefix/delimiter/continuation-token semantics (spec.md §4.5).
func (b *FilesystemBackend) ListObjectsV2(ctx context.Context, in ListObjectsV2Input) (*ListObjectsV2Output, *s3err.Error) {
	if serr := b.requireBucket(ctx, in.Bucket); serr != nil {
		return nil, serr
	}

	maxKeys := in.MaxKeys
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}

	startAfter := in.StartAfter
	if in.ContinuationToken != "" {
		decoded, err := decodeContinuationToken(in.ContinuationToken)
		if err != nil {
			return nil, s3err.New(s3err.CodeInvalidArgument, "The continuation token provided is incorrect")
		}
		startAfter = decoded
	}

	var allKeys []string
	root := b.bucketDir(in.Bucket)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if isReservedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(rel, in.Prefix) {
			return nil
		}
		if rel <= startAfter {
			return nil
		}
		allKeys = append(allKeys, rel)
		return nil
	})
	if err != nil {
		return nil, s3err.Wrap(s3err.CodeInternalError, "failed to list objects", err)
	}
	sort.Strings(allKeys)

	out := &ListObjectsV2Output{}
	seenPrefixes := make(map[string]bool)
	count := 0
	for i, key := range allKeys {
		if count >= maxKeys {
			out.IsTruncated = true
			out.NextContinuationToken = encodeContinuationToken(allKeys[i-1])
			break
		}

		if in.Delimiter != "" {
			rest := key[len(in.Prefix):]
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

		meta, metaErr := b.resolveMeta(in.Bucket, key)
		if metaErr != nil {
			continue
		}
		out.Contents = append(out.Contents, ObjectEntry{
			Key:          key,
			Size:         meta.Size,
			ETag:         meta.ETag,
			LastModified: meta.LastModified,
		})
		count++
	}

	sort.Strings(out.CommonPrefixes)
	return out, nil
}

func encodeContinuationToken(key string) string {
	return base64.URLEncoding.EncodeToString([]byte(key))
}

func decodeContinuationToken(token string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
