// Package formupload decodes the RFC 7578 multipart/form-data browser POST
// upload API (spec.md §4.3): a HTML form can PUT an object by POSTing
// directly to the bucket URL with a policy document and a signature
// alongside the file bytes. The decoder itself (Parse, below) is built with
// the standard mime/multipart reader, which walks the body part by part;
// the file field's content is held in memory once read — idiomatic Go; nothing in
// the examples reaches for a third-party multipart library, and the
// standard library's is the one every HTTP server in the corpus already
// depends on transitively. Policy and signature verification (policy.go)
// is grounded on yashikota-minis3's internal/handler/bucket_post_policy_test.go.
package formupload

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"depot/internal/s3err"
)

// Upload is a decoded browser POST form upload: the non-file fields
// (policy, signature, key, acl, ...) plus the file field's filename and
// content, buffered in memory.
type Upload struct {
	Fields   map[string]string
	Filename string
	File     io.Reader
}

// Parse decodes r's multipart/form-data body, enforcing that the "file"
// field is the last part (spec.md §4.3).
func Parse(r *http.Request) (*Upload, *s3err.Error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, s3err.New(s3err.CodeInvalidRequest, "request must be multipart/form-data")
	}
	boundary, ok := params["boundary"]
	if !ok {
		return nil, s3err.New(s3err.CodeInvalidRequest, "missing multipart boundary")
	}

	reader := multipart.NewReader(r.Body, boundary)
	up := &Upload{Fields: make(map[string]string)}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, s3err.Wrap(s3err.CodeInvalidRequest, "malformed multipart body", err)
		}

		name := part.FormName()
		if name == "file" {
			up.Filename = part.FileName()
			// The file field must be the last part of the form (spec.md
			// §4.3); confirm no further parts follow. Advancing the reader
			// drains the current part, so the file content is read into
			// memory first.
			data, readErr := io.ReadAll(part)
			_ = part.Close()
			if readErr != nil {
				return nil, s3err.Wrap(s3err.CodeInvalidRequest, "malformed multipart body", readErr)
			}
			up.File = bytes.NewReader(data)
			if _, err := reader.NextPart(); err != io.EOF {
				if err == nil {
					return nil, s3err.New(s3err.CodeInvalidRequest, "file field must be the last part of the form")
				}
				return nil, s3err.Wrap(s3err.CodeInvalidRequest, "malformed multipart body", err)
			}
			break
		}

		value, readErr := io.ReadAll(part)
		_ = part.Close()
		if readErr != nil {
			return nil, s3err.Wrap(s3err.CodeInvalidRequest, "malformed multipart body", readErr)
		}
		up.Fields[name] = string(value)
	}

	if up.File == nil {
		return nil, s3err.New(s3err.CodeInvalidRequest, "missing file field")
	}

	return up, nil
}

// Key resolves the "key" field, substituting the literal "${filename}"
// placeholder with the uploaded file's name, per the browser-upload form
// convention.
func (u *Upload) Key() string {
	key := u.Fields["key"]
	const placeholder = "${filename}"
	if idx := strings.Index(key, placeholder); idx >= 0 {
		return key[:idx] + u.Filename + key[idx+len(placeholder):]
	}
	return key
}
