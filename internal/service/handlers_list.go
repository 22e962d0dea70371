package service

import (
	"encoding/base64"
	"net/http"

	"depot/internal/classify"
	"depot/internal/s3err"
	"depot/internal/s3xml"
	"depot/internal/storage"
)

// encodeMarkerAsToken/decodeTokenAsMarker translate between ListObjects
// v1's plain-string marker and storage.FilesystemBackend's opaque
// continuation token, which is simply a base64 encoding of the same "last
// returned key" value.
func encodeMarkerAsToken(marker string) string {
	return base64.URLEncoding.EncodeToString([]byte(marker))
}

func decodeTokenAsMarker(token string) string {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func objectSummaries(entries []storage.ObjectEntry) []s3xml.ObjectSummary {
	out := make([]s3xml.ObjectSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, s3xml.ObjectSummary{
			Key:          e.Key,
			LastModified: formatLastModified(e.LastModified),
			ETag:         e.ETag,
			Size:         e.Size,
			StorageClass: "STANDARD",
		})
	}
	return out
}

func commonPrefixes(prefixes []string) []s3xml.CommonPrefix {
	out := make([]s3xml.CommonPrefix, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, s3xml.CommonPrefix{Prefix: p})
	}
	return out
}

func (s *Server) handleListObjectsV2(w http.ResponseWriter, r *http.Request, bucket string) {
	p := classify.ParseListObjectsParams(r.URL.Query())

	out, serr := s.cfg.Engine.ListObjectsV2(r.Context(), storage.ListObjectsV2Input{
		Bucket:            bucket,
		Prefix:            p.Prefix,
		Delimiter:         p.Delimiter,
		StartAfter:        p.StartAfter,
		MaxKeys:           p.MaxKeys,
		ContinuationToken: p.ContinuationToken,
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}

	result := s3xml.ListBucketResultV2{
		XMLNS:                 s3xml.Namespace,
		Name:                  bucket,
		Prefix:                p.Prefix,
		Delimiter:             p.Delimiter,
		KeyCount:              len(out.Contents) + len(out.CommonPrefixes),
		MaxKeys:               p.MaxKeys,
		IsTruncated:           out.IsTruncated,
		ContinuationToken:     p.ContinuationToken,
		NextContinuationToken: out.NextContinuationToken,
		StartAfter:            p.StartAfter,
		Contents:              objectSummaries(out.Contents),
		CommonPrefixes:        commonPrefixes(out.CommonPrefixes),
	}
	writeXML(w, r, result)
}

// handleListObjectsV1 answers the legacy ListObjects API by driving the
// same engine method ListObjectsV2 uses: v1's "marker" and v2's
// "continuation-token" both mean "resume strictly after this key", so the
// marker is encoded as a continuation token (storage.FilesystemBackend's
// token is an opaque encoding of the last-returned key either way).
func (s *Server) handleListObjectsV1(w http.ResponseWriter, r *http.Request, bucket string) {
	p := classify.ParseListObjectsParams(r.URL.Query())

	var token string
	if p.Marker != "" {
		token = encodeMarkerAsToken(p.Marker)
	}

	out, serr := s.cfg.Engine.ListObjectsV2(r.Context(), storage.ListObjectsV2Input{
		Bucket:            bucket,
		Prefix:            p.Prefix,
		Delimiter:         p.Delimiter,
		MaxKeys:           p.MaxKeys,
		ContinuationToken: token,
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}

	result := s3xml.ListBucketResult{
		XMLNS:          s3xml.Namespace,
		Name:           bucket,
		Prefix:         p.Prefix,
		Marker:         p.Marker,
		Delimiter:      p.Delimiter,
		MaxKeys:        p.MaxKeys,
		IsTruncated:    out.IsTruncated,
		Contents:       objectSummaries(out.Contents),
		CommonPrefixes: commonPrefixes(out.CommonPrefixes),
	}
	if out.IsTruncated {
		result.NextMarker = decodeTokenAsMarker(out.NextContinuationToken)
	}
	writeXML(w, r, result)
}

func (s *Server) handleListMultipartUploads(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	out, serr := s.cfg.Engine.ListMultipartUploads(r.Context(), storage.ListMultipartUploadsInput{
		Bucket:         bucket,
		Prefix:         q.Get("prefix"),
		Delimiter:      q.Get("delimiter"),
		MaxUploads:     classify.MaxUploads(q),
		KeyMarker:      q.Get("key-marker"),
		UploadIDMarker: q.Get("upload-id-marker"),
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}

	result := s3xml.ListMultipartUploadsResult{
		XMLNS:              s3xml.Namespace,
		Bucket:             bucket,
		KeyMarker:          q.Get("key-marker"),
		UploadIDMarker:     q.Get("upload-id-marker"),
		NextKeyMarker:      out.NextKeyMarker,
		NextUploadIDMarker: out.NextUploadIDMarker,
		MaxUploads:         classify.MaxUploads(q),
		IsTruncated:        out.IsTruncated,
	}
	for _, u := range out.Uploads {
		result.Uploads = append(result.Uploads, s3xml.MultipartUploadEntry{
			Key:       u.Key,
			UploadID:  u.UploadID,
			Initiated: formatLastModified(u.Initiated),
		})
	}
	writeXML(w, r, result)
}

func (s *Server) handleDeleteObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	var req s3xml.Delete
	if err := s3xml.Decode(r.Body, &req); err != nil {
		writeError(w, r, s3err.Wrap(s3err.CodeMalformedXML, "The XML you provided was not well-formed.", err).WithResource(r.URL.Path))
		return
	}

	keys := make([]string, 0, len(req.Objects))
	for _, obj := range req.Objects {
		keys = append(keys, obj.Key)
	}

	results := s.cfg.Engine.DeleteObjects(r.Context(), bucket, keys)

	result := s3xml.DeleteResult{XMLNS: s3xml.Namespace}
	for _, res := range results {
		if res.Err != nil {
			result.Errors = append(result.Errors, s3xml.DeleteError{
				Key:     res.Key,
				Code:    string(res.Err.Code),
				Message: res.Err.Message,
			})
			continue
		}
		if !req.Quiet {
			result.Deleted = append(result.Deleted, s3xml.DeletedObject{Key: res.Key})
		}
	}
	writeXML(w, r, result)
}
