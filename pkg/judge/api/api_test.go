package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oimasterkafuu/judge-server/pkg/judge/cache"
	"github.com/oimasterkafuu/judge-server/pkg/judge/pipeline"
	"github.com/oimasterkafuu/judge-server/pkg/judge/sandbox"
	"github.com/oimasterkafuu/judge-server/pkg/judge/scheduler"
)

func newTestServer(t *testing.T) (*Server, *cache.Cache, *scheduler.Scheduler) {
	t.Helper()
	c, err := cache.New(cache.Config{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	sched := scheduler.New(scheduler.Config{Concurrency: 1})
	handlers := &pipeline.Handlers{Cache: c, Sandbox: sandbox.NewMockSandbox(), ScratchRoot: t.TempDir()}
	handlers.RegisterAll(sched)

	return NewServer(c, sched, nil, nil, "secret"), c, sched
}

func TestHealthRequiresNoAuth(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingTokenConfigurationIs500(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.Token = ""
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWrongTokenIs401(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status?token=wrong", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusWithValidToken(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func doMultipartUpload(t *testing.T, s *Server, fieldType, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if fieldType != "" {
		require.NoError(t, w.WriteField("type", fieldType))
	}
	fw, err := w.CreateFormFile("file", "source.cpp")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doMultipartUpload(t, s, "", "int main(){}")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	id, ok := body["cacheId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	req := httptest.NewRequest(http.MethodGet, "/cache/"+id, nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
	require.Equal(t, "int main(){}", rec2.Body.String())
}

func TestUploadInvalidTypeIs400(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doMultipartUpload(t, s, "bogus", "x")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompileMissingSourceHandleIs400(t *testing.T) {
	s, _, _ := newTestServer(t)
	payload, _ := json.Marshal(pipeline.CompileInput{SourceCacheID: "does-not-exist"})
	req := httptest.NewRequest(http.MethodPost, "/compile", bytes.NewReader(payload))
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompileEnqueuesTask(t *testing.T) {
	s, c, _ := newTestServer(t)
	id, err := c.Put(cache.TypeSource, []byte("int main(){}"), cache.Metadata{Filename: "a.cpp"})
	require.NoError(t, err)

	payload, _ := json.Marshal(pipeline.CompileInput{SourceCacheID: id})
	req := httptest.NewRequest(http.MethodPost, "/compile", bytes.NewReader(payload))
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	taskID, ok := body["taskId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, taskID)
	require.Equal(t, "pending", body["status"])

	req2 := httptest.NewRequest(http.MethodGet, "/task/"+taskID, nil)
	req2.Header.Set("X-Auth-Token", "secret")
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestGetUnknownTaskIs404(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/task/unknown-id", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetUnknownCacheIs404(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cache/unknown-id", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
