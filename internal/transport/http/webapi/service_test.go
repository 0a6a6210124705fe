package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radubobirnac/vocallocal-sub003/internal/domain/transcribe"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/config"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
	httptransport "github.com/radubobirnac/vocallocal-sub003/internal/transport/http"
)

type fakeProcessor struct {
	fileOutcome transcribe.JobOutcome
	fileErr     error
	chunkText   string
	chunkErr    error
	lastFile    transcribe.FileRequest
}

func (f *fakeProcessor) ProcessFile(_ context.Context, req transcribe.FileRequest) (transcribe.JobOutcome, error) {
	f.lastFile = req
	return f.fileOutcome, f.fileErr
}

func (f *fakeProcessor) ProcessChunk(context.Context, transcribe.ChunkRequest) (string, error) {
	return f.chunkText, f.chunkErr
}

type fakeUsageReader struct {
	used float64
	err  error
}

func (f *fakeUsageReader) RollingUsage(context.Context, string, string) (float64, error) {
	return f.used, f.err
}

func newTestServer(t *testing.T, processor Processor, usageReader UsageReader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	router, err := httptransport.Build(httptransport.Options{
		Config: cfg,
		Logger: logging.Discard(),
	})
	require.NoError(t, err)

	service, err := NewService(cfg, processor, usageReader, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, service.Register(context.Background(), router.API))
	return router.Engine
}

func multipartUpload(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "speech.mp3")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake audio bytes"))
	require.NoError(t, err)

	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httptransport.APIResponse {
	t.Helper()
	var resp httptransport.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTranscribeEndpoint(t *testing.T) {
	processor := &fakeProcessor{
		fileOutcome: transcribe.JobOutcome{
			OrderedText:    []string{"hello", "world"},
			SucceededCount: 2,
			Status:         transcribe.StatusSuccess,
		},
	}
	engine := newTestServer(t, processor, &fakeUsageReader{})

	body, contentType := multipartUpload(t, map[string]string{"language": "en"})
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-User-Plan", "basic")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "hello world", data["text"])
	assert.Equal(t, false, data["test_mode"])
	assert.Equal(t, "u1", processor.lastFile.UserID)
	assert.Equal(t, "basic", processor.lastFile.Plan)
	assert.Equal(t, "en", processor.lastFile.Language)
	assert.NotEmpty(t, processor.lastFile.Asset.Data)
}

func TestTranscribeEndpointPartialSuccess(t *testing.T) {
	processor := &fakeProcessor{
		fileOutcome: transcribe.JobOutcome{
			OrderedText:    []string{"hello", "", "again"},
			SucceededCount: 2,
			FailedIndices:  []int{1},
			Status:         transcribe.StatusPartialSuccess,
		},
	}
	engine := newTestServer(t, processor, &fakeUsageReader{})

	body, contentType := multipartUpload(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "u1")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "partial transcripts still return 200")
	data := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, "partial_success", data["status"])
	assert.Equal(t, []interface{}{float64(1)}, data["failed_indices"])
}

func TestTranscribeEndpointMissingUser(t *testing.T) {
	engine := newTestServer(t, &fakeProcessor{}, &fakeUsageReader{})

	body, contentType := multipartUpload(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscribeEndpointMissingFile(t *testing.T) {
	engine := newTestServer(t, &fakeProcessor{}, &fakeUsageReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", bytes.NewBufferString(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	req.Header.Set("X-User-ID", "u1")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscribeEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limited", errors.New(errors.KindRateLimit, "meter", "rate limited, retry shortly"), http.StatusTooManyRequests},
		{"quota exhausted", errors.New(errors.KindQuota, "meter", "quota exhausted, retry tomorrow or upgrade"), http.StatusForbidden},
		{"provider down", errors.New(errors.KindProvider, "pipeline", "could not process audio"), http.StatusBadGateway},
		{"bad input", errors.New(errors.KindInvalidInput, "pipeline", "empty audio asset"), http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestServer(t, &fakeProcessor{fileErr: tc.err}, &fakeUsageReader{})

			body, contentType := multipartUpload(t, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("X-User-ID", "u1")

			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.False(t, decodeResponse(t, rec).Success)
		})
	}
}

func TestTranscribeChunkEndpoint(t *testing.T) {
	engine := newTestServer(t, &fakeProcessor{chunkText: "partial transcript"}, &fakeUsageReader{})

	body, contentType := multipartUpload(t, map[string]string{"chunk_index": "2"})
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe_chunk", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "u1")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, "partial transcript", data["text"])
	assert.Equal(t, float64(2), data["chunk_index"])
	assert.Equal(t, "success", data["status"])
}

func TestTranscribeEndpointEchoesTestMode(t *testing.T) {
	processor := &fakeProcessor{
		fileOutcome: transcribe.JobOutcome{
			OrderedText:    []string{"canned"},
			SucceededCount: 1,
			Status:         transcribe.StatusSuccess,
		},
	}
	engine := newTestServer(t, processor, &fakeUsageReader{})

	body, contentType := multipartUpload(t, map[string]string{"test_mode": "true"})
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "u1")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, true, data["test_mode"])
	assert.True(t, processor.lastFile.TestMode)
}

func TestUsageEndpoint(t *testing.T) {
	engine := newTestServer(t, &fakeProcessor{}, &fakeUsageReader{used: 12.5})

	req := httptest.NewRequest(http.MethodGet, "/api/usage?user_id=u1", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, 12.5, data["used_credits"])
}

func TestHealthEndpoint(t *testing.T) {
	engine := newTestServer(t, &fakeProcessor{}, &fakeUsageReader{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}
