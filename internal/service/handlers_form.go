package service

import (
	"net/http"
	"strings"
	"time"

	"depot/internal/formupload"
	"depot/internal/s3err"
	"depot/internal/sigv4"
	"depot/internal/storage"
)

// handlePostFormUpload implements the browser HTML-form upload API
// (spec.md §4.3): a policy-signed multipart/form-data POST directly to
// the bucket URL, answered with 204 (or a 3xx redirect if the form names
// a success_action_redirect, which depot does not implement — it always
// answers 204 per spec.md's Non-goals around POST policy redirects). This
// route is exempt from the server's blanket SigV4 middleware
// (requireAuthentication); it authorizes itself here via the form's own
// policy and x-amz-signature fields once the body is decoded.
func (s *Server) handlePostFormUpload(w http.ResponseWriter, r *http.Request, bucket string) {
	up, serr := formupload.Parse(r)
	if serr != nil {
		writeError(w, r, serr.WithResource(r.URL.Path))
		return
	}

	key := up.Key()
	if key == "" {
		writeError(w, r, s3err.New(s3err.CodeInvalidArgument, "the form is missing a key field").WithResource(r.URL.Path))
		return
	}

	policy := up.Fields["policy"]
	if policy == "" {
		writeError(w, r, s3err.New(s3err.CodeInvalidArgument, "the form is missing a policy field").WithResource(r.URL.Path))
		return
	}
	if serr := formupload.ValidatePolicy(policy, bucket, key, up.Fields["content-type"], up.Fields, r.ContentLength, time.Now()); serr != nil {
		writeError(w, r, serr.WithResource(r.URL.Path))
		return
	}
	if credEngine, ok := s.cfg.Auth.(*sigv4.SigV4Engine); ok {
		if serr := formupload.VerifySignature(credEngine.Credential, up.Fields, policy); serr != nil {
			writeError(w, r, serr.WithResource(r.URL.Path))
			return
		}
	}

	etag, serr := s.cfg.Engine.PutObject(r.Context(), storage.PutObjectInput{
		Bucket:       bucket,
		Key:          key,
		Body:         up.File,
		Size:         -1,
		ContentType:  up.Fields["content-type"],
		UserMetadata: formMetadata(up.Fields),
		CannedACL:    up.Fields["acl"],
	})
	if serr != nil {
		writeError(w, r, serr)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Location", "/"+bucket+"/"+key)
	setRequestIDHeaders(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// formMetadata extracts x-amz-meta-* form fields the same way
// classify.UserMetadata extracts them from headers.
func formMetadata(fields map[string]string) map[string]string {
	var meta map[string]string
	const prefix = "x-amz-meta-"
	for name, value := range fields {
		name = strings.ToLower(name)
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[name[len(prefix):]] = value
	}
	return meta
}
