package service

import (
	"net/http"

	"depot/internal/canonical"
	"depot/internal/classify"
	"depot/internal/s3err"
	"depot/internal/s3xml"
	"depot/internal/storage"
)

func (s *Server) handleCreateMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	uploadID, serr := s.cfg.Engine.CreateMultipartUpload(r.Context(), storage.CreateMultipartUploadInput{
		Bucket:          bucket,
		Key:             key,
		ContentType:     r.Header.Get("Content-Type"),
		ContentEncoding: r.Header.Get("Content-Encoding"),
		UserMetadata:    classify.UserMetadata(r.Header),
		CannedACL:       classify.CannedACL(r.Header),
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}
	writeXML(w, r, s3xml.InitiateMultipartUploadResult{
		XMLNS:    s3xml.Namespace,
		Bucket:   bucket,
		Key:      key,
		UploadID: uploadID,
	})
}

func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request, bucket, key string) {
	q := r.URL.Query()
	partNumber, ok := classify.PartNumber(q)
	if !ok {
		writeError(w, r, s3err.New(s3err.CodeInvalidArgument, "partNumber is required").WithResource(r.URL.Path))
		return
	}

	etag, serr := s.cfg.Engine.UploadPart(r.Context(), storage.UploadPartInput{
		Bucket:     bucket,
		Key:        key,
		UploadID:   classify.UploadID(q),
		PartNumber: partNumber,
		Body:       r.Body,
		Size:       requestBodySize(r),
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}
	w.Header().Set("ETag", etag)
	setRequestIDHeaders(w, r)
	w.WriteHeader(http.StatusOK)
}

// handleUploadPartCopy stages a part sourced from another object. The
// storage trait has no dedicated copy-into-part primitive (spec.md §4.4
// only names whole-object CopyObject), so this composes the two
// primitives it does expose: a full GetObject read of the source feeds
// directly into UploadPart's body stream, which still only touches disk
// once on the destination side.
func (s *Server) handleUploadPartCopy(w http.ResponseWriter, r *http.Request, bucket, key string) {
	q := r.URL.Query()
	partNumber, ok := classify.PartNumber(q)
	if !ok {
		writeError(w, r, s3err.New(s3err.CodeInvalidArgument, "partNumber is required").WithResource(r.URL.Path))
		return
	}

	src, ok := classify.ParseCopySource(r.Header.Get("X-Amz-Copy-Source"))
	if !ok {
		writeError(w, r, s3err.New(s3err.CodeInvalidCopySource, "The x-amz-copy-source header is malformed.").WithResource(r.URL.Path))
		return
	}

	var rng *storage.ByteRange
	if rangeHeader := r.Header.Get("X-Amz-Copy-Source-Range"); rangeHeader != "" {
		meta, serr := s.cfg.Engine.HeadObject(r.Context(), src.Bucket, src.Key)
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

	srcObj, serr := s.cfg.Engine.GetObject(r.Context(), src.Bucket, src.Key, rng)
	if serr != nil {
		writeError(w, r, serr)
		return
	}
	defer srcObj.Body.Close()

	size := srcObj.TotalSize
	if rng != nil {
		size = rng.Len()
	}

	etag, serr := s.cfg.Engine.UploadPart(r.Context(), storage.UploadPartInput{
		Bucket:     bucket,
		Key:        key,
		UploadID:   classify.UploadID(q),
		PartNumber: partNumber,
		Body:       srcObj.Body,
		Size:       size,
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}

	writeXML(w, r, s3xml.CopyObjectResult{
		XMLNS:        s3xml.Namespace,
		ETag:         etag,
		LastModified: formatLastModified(srcObj.LastModified),
	})
}

func (s *Server) handleCompleteMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, key, uploadID string) {
	var req s3xml.CompleteMultipartUpload
	if err := s3xml.Decode(r.Body, &req); err != nil {
		writeError(w, r, s3err.Wrap(s3err.CodeMalformedXML, "The XML you provided was not well-formed.", err).WithResource(r.URL.Path))
		return
	}

	parts := make([]storage.CompletedPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, storage.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	out, serr := s.cfg.Engine.CompleteMultipartUpload(r.Context(), bucket, key, uploadID, parts)
	if serr != nil {
		writeError(w, r, serr)
		return
	}

	writeXML(w, r, s3xml.CompleteMultipartUploadResult{
		XMLNS:    s3xml.Namespace,
		Location: r.URL.Scheme + "://" + r.Host + "/" + bucket + "/" + key,
		Bucket:   bucket,
		Key:      key,
		ETag:     out.ETag,
	})
}

func (s *Server) handleAbortMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, key, uploadID string) {
	if serr := s.cfg.Engine.AbortMultipartUpload(r.Context(), bucket, key, uploadID); serr != nil {
		writeError(w, r, serr)
		return
	}
	writeNoContent(w, r)
}

func (s *Server) handleListParts(w http.ResponseWriter, r *http.Request, bucket, key string) {
	q := r.URL.Query()
	uploadID := classify.UploadID(q)

	out, serr := s.cfg.Engine.ListParts(r.Context(), bucket, key, uploadID, classify.MaxParts(q), classify.PartNumberMarker(q))
	if serr != nil {
		writeError(w, r, serr)
		return
	}

	result := s3xml.ListPartsResult{
		XMLNS:                s3xml.Namespace,
		Bucket:               bucket,
		Key:                  key,
		UploadID:             uploadID,
		PartNumberMarker:     classify.PartNumberMarker(q),
		NextPartNumberMarker: out.NextPartNumberMarker,
		MaxParts:             classify.MaxParts(q),
		IsTruncated:          out.IsTruncated,
	}
	for _, p := range out.Parts {
		result.Parts = append(result.Parts, s3xml.Part{
			PartNumber:   p.PartNumber,
			LastModified: formatLastModified(p.LastModified),
			ETag:         p.ETag,
			Size:         p.Size,
		})
	}
	writeXML(w, r, result)
}
