package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"depot/internal/s3err"
)

const imfFixdate = "Mon, 02 Jan 2006 15:04:05 GMT"

// requestIDFor mints an opaque x-amz-request-id the way the response
// builder must surface on every response, success or error (spec.md
// §4.6).
func requestIDFor(r *http.Request) string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf[:])
}

// id2For mints the opaque x-amz-id-2 companion header spec.md §4.6
// requires alongside x-amz-request-id on every response — real S3 uses it
// to name the specific frontend host that served the request, which
// depot has no equivalent of, so this is just a second independent random
// token rather than a decoded/derived value.
func id2For(r *http.Request) string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	}
	return base64.StdEncoding.EncodeToString(buf[:])
}

// setRequestIDHeaders sets both of the x-amz-*-id response headers every
// response (success or error) must carry, and returns the request ID for
// callers that also need it in a response body (writeError's <Error>
// document echoes it back per spec.md §4.6).
func setRequestIDHeaders(w http.ResponseWriter, r *http.Request) string {
	requestID := requestIDFor(r)
	w.Header().Set("x-amz-request-id", requestID)
	w.Header().Set("x-amz-id-2", id2For(r))
	return requestID
}

// writeError serializes err as an S3 <Error> XML document with the
// matching HTTP status (spec.md §4.6, §7).
func writeError(w http.ResponseWriter, r *http.Request, err *s3err.Error) {
	if err.Resource == "" {
		err = err.WithResource(r.URL.Path)
	}
	w.Header().Set("Content-Type", "application/xml")
	requestID := setRequestIDHeaders(w, r)
	w.WriteHeader(err.Status())
	_, _ = w.Write(err.XML(requestID))
}

// writeXML serializes v as an XML document with a 200 OK status.
func writeXML(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/xml")
	setRequestIDHeaders(w, r)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(v)
}

// writeNoContent answers with 204 and no body, used for DeleteObject and
// similar operations (spec.md §4.6).
func writeNoContent(w http.ResponseWriter, r *http.Request) {
	setRequestIDHeaders(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// writeUserMetadata echoes x-amz-meta-* headers back on GetObject/
// HeadObject responses, normalized to lowercase (spec.md §9).
func writeUserMetadata(w http.ResponseWriter, meta map[string]string) {
	for k, v := range meta {
		w.Header().Set("x-amz-meta-"+k, v)
	}
}

func formatLastModified(t time.Time) string {
	return t.UTC().Format(imfFixdate)
}
