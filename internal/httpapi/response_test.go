// internal/httpapi/response_test.go

package httpapi

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackingWriterWriteHeaderIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := &trackingWriter{ResponseWriter: rec}

	tw.WriteHeader(204)
	tw.WriteHeader(500)

	assert.Equal(t, 204, rec.Code)
	assert.Equal(t, 204, tw.status)
}

func TestTrackingWriterWriteImplicitlyWritesOKHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := &trackingWriter{ResponseWriter: rec}

	_, err := tw.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}

func TestWriteJSONNilDataOnlyWritesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, 204, nil)

	assert.Equal(t, 204, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWriteJSONEncodesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, 200, map[string]string{"a": "b"})

	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"a":"b"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestWriteErrorWrapsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, 400, "bad request")

	assert.Equal(t, 400, rec.Code)
	assert.JSONEq(t, `{"message":"bad request"}`, rec.Body.String())
}
