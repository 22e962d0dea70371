package service

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"depot/internal/classify"
	"depot/internal/s3err"
)

// responseWriterWrapper intercepts WriteHeader to record the status code
// for logging, identical in shape to the teacher's internal/core
// ResponseWriterWrapper.
type responseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.WrittenResponseCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// logRequest is middleware that logs incoming HTTP requests, grounded on
// the teacher's internal/core.LogRequest.
func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		writer := responseWriterWrapper{ResponseWriter: w}

		next.ServeHTTP(&writer, r)

		elapsed := time.Since(start)
		attrs := []any{
			slog.Group("user", "ip", r.RemoteAddr),
			slog.Group("request",
				"proto", r.Proto,
				"method", r.Method,
				"url", r.URL.String(),
				"duration_ms", float64(elapsed)/float64(time.Millisecond),
				"status_code", writer.WrittenResponseCode,
			),
		}

		switch {
		case writer.WrittenResponseCode >= 500:
			slog.Error("request", attrs...)
		case writer.WrittenResponseCode >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	})
}

// requireAuthentication enforces SigV4 authentication on every request via
// the configured sigv4.Engine (an AnonymousEngine when no credential is
// configured, per spec.md §4.2), except a browser POST-policy form upload
// (spec.md §4.3): that request carries no Authorization header or SigV4
// query params at all — its policy/signature live in form fields the mux
// hasn't parsed yet at this point in the pipeline, so handlePostFormUpload
// authorizes it itself via formupload.ValidatePolicy/VerifySignature once
// the body is decoded. Grounded on the teacher's
// internal/core.RequireAuthentication, but actually enforcing SigV4
// instead of only checking for the header's presence.
func (s *Server) requireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isFormUploadRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		identity, authErr := s.cfg.Auth.AuthenticateRequest(r, time.Now())
		if authErr != nil {
			writeError(w, r, authErr)
			return
		}
		_ = identity
		next.ServeHTTP(w, r)
	})
}

// isFormUploadRequest reports whether r is a plain POST to a bucket URL
// (no object key, no "delete" subresource) — the only shape a browser
// POST-policy form upload can take. Path is already path-style by the time
// this runs, since virtualHostedRewrite and slashFix precede
// requireAuthentication in the middleware chain.
func isFormUploadRequest(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	path := strings.Trim(r.URL.Path, "/")
	if path == "" || strings.Contains(path, "/") {
		return false
	}
	return classify.ClassifyBucket(r.Method, r.URL.Query()) == classify.OpPostFormUpload
}

// slashFix trims a single trailing slash from the path (so "/bucket/"
// routes as "/bucket"), matching the teacher's internal/core.SlashFix.
// The root path "/" and requests whose query mentions "uploads" are left
// as they are. Consecutive slashes inside the path are not collapsed, and
// the trim applies to object-key paths too, so a key ending in "/" loses
// that slash.
func slashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") && !strings.Contains(r.URL.RawQuery, "uploads") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a panicking handler into an S3 InternalError response
// instead of crashing the listener goroutine, matching the teacher's
// internal/core.Recoverer.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				slog.Error("panic in handler", "error", rvr)
				writeError(w, r, s3err.New(s3err.CodeInternalError, "We encountered an internal error. Please try again."))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// virtualHostedRewrite implements SPEC_FULL §4.7's virtual-hosted-style
// pre-routing: when Host carries the bucket as a leading label (detected
// via the configured base domain), it rewrites the request path to the
// path-style equivalent ("/bucket/key") so the rest of the pipeline stays
// path-style-only, matching the teacher's http.ServeMux route table.
func (s *Server) virtualHostedRewrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BaseDomain == "" {
			next.ServeHTTP(w, r)
			return
		}

		host := r.Host
		if colon := strings.IndexByte(host, ':'); colon >= 0 {
			host = host[:colon]
		}

		suffix := "." + s.cfg.BaseDomain
		if strings.HasSuffix(host, suffix) {
			bucket := strings.TrimSuffix(host, suffix)
			if bucket != "" && !strings.Contains(bucket, ".") {
				key := strings.TrimPrefix(r.URL.Path, "/")
				r.URL.Path = "/" + bucket
				if key != "" {
					r.URL.Path += "/" + key
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}
