package service

import (
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetRequestIDHeaders_SetsBothAmzIDHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/bucket/key", nil)

	requestID := setRequestIDHeaders(w, r)

	require.Equal(t, requestID, w.Header().Get("x-amz-request-id"))
	require.NotEmpty(t, w.Header().Get("x-amz-id-2"))

	_, err := base64.StdEncoding.DecodeString(w.Header().Get("x-amz-id-2"))
	require.NoError(t, err)
}

func TestRequestIDFor_AndID2For_AreIndependent(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	require.NotEqual(t, requestIDFor(r), id2For(r))
}
