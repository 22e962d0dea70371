package service

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"depot/internal/canonical"
	"depot/internal/classify"
	"depot/internal/s3err"
	"depot/internal/s3xml"
	"depot/internal/storage"
)

func copyBody(w http.ResponseWriter, body io.Reader) (int64, error) {
	return io.Copy(w, body)
}

// handleObjectPut dispatches PutObject, CopyObject, UploadPart, and
// UploadPartCopy — every S3 operation addressed as PUT on an object path.
func (s *Server) handleObjectPut(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	switch classify.ClassifyObject(r.Method, q, r.Header) {
	case classify.OpUploadPartCopy:
		s.handleUploadPartCopy(w, r, bucket, key)
	case classify.OpUploadPart:
		s.handleUploadPart(w, r, bucket, key)
	case classify.OpCopyObject:
		s.handleCopyObject(w, r, bucket, key)
	default:
		s.handlePutObject(w, r, bucket, key)
	}
}

func requestBodySize(r *http.Request) int64 {
	if v := r.Header.Get("X-Amz-Decoded-Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return r.ContentLength
}

func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	etag, serr := s.cfg.Engine.PutObject(r.Context(), storage.PutObjectInput{
		Bucket:          bucket,
		Key:             key,
		Body:            r.Body,
		Size:            requestBodySize(r),
		ContentType:     r.Header.Get("Content-Type"),
		ContentEncoding: r.Header.Get("Content-Encoding"),
		UserMetadata:    classify.UserMetadata(r.Header),
		CannedACL:       classify.CannedACL(r.Header),
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}
	w.Header().Set("ETag", etag)
	setRequestIDHeaders(w, r)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCopyObject(w http.ResponseWriter, r *http.Request, dstBucket, dstKey string) {
	src, ok := classify.ParseCopySource(r.Header.Get("X-Amz-Copy-Source"))
	if !ok {
		writeError(w, r, s3err.New(s3err.CodeInvalidCopySource, "The x-amz-copy-source header is malformed.").WithResource(r.URL.Path))
		return
	}

	out, serr := s.cfg.Engine.CopyObject(r.Context(), storage.CopyObjectInput{
		SrcBucket:         src.Bucket,
		SrcKey:            src.Key,
		DstBucket:         dstBucket,
		DstKey:            dstKey,
		MetadataDirective: classify.MetadataDirective(r.Header),
		ContentType:       r.Header.Get("Content-Type"),
		ContentEncoding:   r.Header.Get("Content-Encoding"),
		UserMetadata:      classify.UserMetadata(r.Header),
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}

	writeXML(w, r, s3xml.CopyObjectResult{
		XMLNS:        s3xml.Namespace,
		ETag:         out.ETag,
		LastModified: formatLastModified(out.LastModified),
	})
}

// handleObjectGet dispatches GetObject and ListParts, both addressed as
// GET on an object path.
func (s *Server) handleObjectGet(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	if classify.ClassifyObject(r.Method, q, r.Header) == classify.OpListParts {
		s.handleListParts(w, r, bucket, key)
		return
	}
	s.handleGetObject(w, r, bucket, key)
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	// The byte range must be resolved against the object's real size, but
	// the storage trait only accepts an already-resolved range — HeadObject
	// gives us that size without paying for a second body stream on error.
	rangeHeader := r.Header.Get("Range")
	var rng *storage.ByteRange
	if rangeHeader != "" {
		meta, serr := s.cfg.Engine.HeadObject(r.Context(), bucket, key)
		if serr != nil {
			writeError(w, r, serr)
			return
		}
		parsed, err := canonical.ParseRange(rangeHeader, meta.Size)
		if err != nil {
			writeError(w, r, s3err.New(s3err.CodeInvalidRange, "The requested range is not satisfiable.").WithResource(r.URL.Path))
			return
		}
		rng = parsed
	}

	out, serr := s.cfg.Engine.GetObject(r.Context(), bucket, key, rng)
	if serr != nil {
		writeError(w, r, serr)
		return
	}
	defer out.Body.Close()

	w.Header().Set("Content-Type", out.ContentType)
	if out.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", out.ContentEncoding)
	}
	w.Header().Set("ETag", out.ETag)
	w.Header().Set("Last-Modified", formatLastModified(out.LastModified))
	w.Header().Set("Accept-Ranges", "bytes")
	writeUserMetadata(w, out.UserMetadata)
	setRequestIDHeaders(w, r)

	if out.Range != nil {
		w.Header().Set("Content-Range", contentRangeHeader(*out.Range, out.TotalSize))
		w.Header().Set("Content-Length", strconv.FormatInt(out.Range.Len(), 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(out.TotalSize, 10))
		w.WriteHeader(http.StatusOK)
	}
	_, _ = copyBody(w, out.Body)
}

func contentRangeHeader(rng storage.ByteRange, total int64) string {
	var b strings.Builder
	b.WriteString("bytes ")
	b.WriteString(strconv.FormatInt(rng.Start, 10))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(rng.End, 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatInt(total, 10))
	return b.String()
}

func (s *Server) handleHeadObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	meta, serr := s.cfg.Engine.HeadObject(r.Context(), bucket, key)
	if serr != nil {
		writeError(w, r, serr)
		return
	}
	w.Header().Set("Content-Type", meta.ContentType)
	if meta.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", meta.ContentEncoding)
	}
	w.Header().Set("ETag", meta.ETag)
	w.Header().Set("Last-Modified", formatLastModified(meta.LastModified))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	writeUserMetadata(w, meta.UserMetadata)
	setRequestIDHeaders(w, r)
	w.WriteHeader(http.StatusOK)
}

// handleObjectDelete dispatches DeleteObject and AbortMultipartUpload,
// both addressed as DELETE on an object path.
func (s *Server) handleObjectDelete(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	if classify.ClassifyObject(r.Method, q, r.Header) == classify.OpAbortMultipartUpload {
		s.handleAbortMultipartUpload(w, r, bucket, key, classify.UploadID(q))
		return
	}

	if _, serr := s.cfg.Engine.DeleteObject(r.Context(), bucket, key); serr != nil {
		writeError(w, r, serr)
		return
	}
	writeNoContent(w, r)
}

// handleObjectPost dispatches CreateMultipartUpload and
// CompleteMultipartUpload, both addressed as POST on an object path.
func (s *Server) handleObjectPost(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	switch classify.ClassifyObject(r.Method, q, r.Header) {
	case classify.OpCreateMultipartUpload:
		s.handleCreateMultipartUpload(w, r, bucket, key)
	case classify.OpCompleteMultipartUpload:
		s.handleCompleteMultipartUpload(w, r, bucket, key, classify.UploadID(q))
	default:
		writeError(w, r, s3err.New(s3err.CodeNotImplemented, "A header or query parameter in the request is not supported.").WithResource(r.URL.Path))
	}
}
