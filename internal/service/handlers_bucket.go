package service

import (
	"io"
	"net/http"

	"depot/internal/classify"
	"depot/internal/s3err"
	"depot/internal/s3xml"
)

const maxBucketNameLen = 63

func validateBucketName(name string) *s3err.Error {
	if name == "" || len(name) > maxBucketNameLen {
		return s3err.New(s3err.CodeInvalidBucketName, "The specified bucket is not valid.")
	}
	return nil
}

func (s *Server) listBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.cfg.Engine.ListBuckets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := s3xml.ListAllMyBucketsResult{
		XMLNS: s3xml.Namespace,
		Owner: s3xml.Owner{ID: "depot", DisplayName: "depot"},
	}
	for _, b := range buckets {
		result.Buckets = append(result.Buckets, s3xml.BucketEntry{
			Name:         b.Name,
			CreationDate: formatLastModified(b.Created),
		})
	}
	writeXML(w, r, result)
}

func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if serr := validateBucketName(bucket); serr != nil {
		writeError(w, r, serr.WithResource(r.URL.Path))
		return
	}

	// A CreateBucketConfiguration body may be present (region constraint);
	// depot is single-region, so it's read and discarded rather than
	// rejected outright.
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64*1024))

	if serr := s.cfg.Engine.CreateBucket(r.Context(), bucket); serr != nil {
		writeError(w, r, serr)
		return
	}
	w.Header().Set("Location", "/"+bucket)
	writeNoContent(w, r)
}

func (s *Server) handleHeadBucket(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	exists, serr := s.cfg.Engine.HeadBucket(r.Context(), bucket)
	if serr != nil {
		writeError(w, r, serr)
		return
	}
	if !exists {
		writeError(w, r, s3err.New(s3err.CodeNoSuchBucket, "The specified bucket does not exist.").WithResource(r.URL.Path))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if serr := s.cfg.Engine.DeleteBucket(r.Context(), bucket); serr != nil {
		writeError(w, r, serr)
		return
	}
	writeNoContent(w, r)
}

// handleBucketGet dispatches GetBucketLocation, ListObjects(V1/V2), and
// ListMultipartUploads, all addressed as GET on a bucket path.
func (s *Server) handleBucketGet(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	q := r.URL.Query()

	switch classify.ClassifyBucket(r.Method, q) {
	case classify.OpGetBucketLocation:
		s.handleGetBucketLocation(w, r, bucket)
	case classify.OpListObjectsV2:
		s.handleListObjectsV2(w, r, bucket)
	case classify.OpListObjectsV1:
		s.handleListObjectsV1(w, r, bucket)
	case classify.OpListMultipartUploads:
		s.handleListMultipartUploads(w, r, bucket)
	default:
		writeError(w, r, s3err.New(s3err.CodeNotImplemented, "A header or query parameter in the request is not supported.").WithResource(r.URL.Path))
	}
}

func (s *Server) handleGetBucketLocation(w http.ResponseWriter, r *http.Request, bucket string) {
	if exists, serr := s.cfg.Engine.HeadBucket(r.Context(), bucket); serr != nil {
		writeError(w, r, serr)
		return
	} else if !exists {
		writeError(w, r, s3err.New(s3err.CodeNoSuchBucket, "The specified bucket does not exist.").WithResource(r.URL.Path))
		return
	}
	region := s.cfg.Region
	if region == "us-east-1" {
		region = ""
	}
	writeXML(w, r, s3xml.LocationConstraint{XMLNS: s3xml.Namespace, Region: region})
}

// handleBucketPost dispatches DeleteObjects (POST ?delete) and the browser
// form-upload API (plain POST to the bucket URL).
func (s *Server) handleBucketPost(w http.ResponseWriter, r *http.Request) {
	switch classify.ClassifyBucket(r.Method, r.URL.Query()) {
	case classify.OpDeleteObjects:
		s.handleDeleteObjects(w, r, r.PathValue("bucket"))
	case classify.OpPostFormUpload:
		s.handlePostFormUpload(w, r, r.PathValue("bucket"))
	default:
		writeError(w, r, s3err.New(s3err.CodeNotImplemented, "A header or query parameter in the request is not supported.").WithResource(r.URL.Path))
	}
}
