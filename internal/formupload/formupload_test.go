package formupload_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"depot/internal/formupload"
	"depot/internal/s3err"
)

// buildForm constructs a multipart/form-data request body with the given
// ordered text fields followed by a file part named "file", mirroring the
// shape a real browser upload form posts (spec.md §4.3).
func buildForm(t *testing.T, fields map[string]string, fieldOrder []string, filename, fileContent string) *http.Request {
	t.Helper()
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)

	for _, name := range fieldOrder {
		require.NoError(t, w.WriteField(name, fields[name]))
	}

	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(fileContent))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/my-bucket", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestParse_Success(t *testing.T) {
	req := buildForm(t, map[string]string{
		"key":       "uploads/${filename}",
		"policy":    "base64-policy-doc",
		"signature": "deadbeef",
	}, []string{"key", "policy", "signature"}, "photo.jpg", "binary-ish-content")

	up, serr := formupload.Parse(req)
	require.Nil(t, serr)
	require.Equal(t, "photo.jpg", up.Filename)
	require.Equal(t, "base64-policy-doc", up.Fields["policy"])
	require.Equal(t, "deadbeef", up.Fields["signature"])
	require.Equal(t, "uploads/photo.jpg", up.Key())

	body := make([]byte, len("binary-ish-content"))
	n, err := up.File.Read(body)
	require.NoError(t, err)
	require.Equal(t, "binary-ish-content", string(body[:n]))
}

func TestParse_RejectsNonMultipartContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/my-bucket", bytes.NewReader([]byte("irrelevant")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, serr := formupload.Parse(req)
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidRequest, serr.Code)
}

func TestParse_RejectsMissingFileField(t *testing.T) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	require.NoError(t, w.WriteField("key", "some-key"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/my-bucket", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	_, serr := formupload.Parse(req)
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidRequest, serr.Code)
}

func TestParse_RejectsFieldsAfterFile(t *testing.T) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	require.NoError(t, w.WriteField("key", "some-key"))

	fw, err := w.CreateFormFile("file", "f.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("content"))
	require.NoError(t, err)

	require.NoError(t, w.WriteField("trailer", "should-not-be-here"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/my-bucket", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	_, serr := formupload.Parse(req)
	require.NotNil(t, serr)
	require.Equal(t, s3err.CodeInvalidRequest, serr.Code)
}

func TestUpload_Key_NoPlaceholder(t *testing.T) {
	up := &formupload.Upload{Fields: map[string]string{"key": "fixed/path.txt"}, Filename: "ignored.txt"}
	require.Equal(t, "fixed/path.txt", up.Key())
}
