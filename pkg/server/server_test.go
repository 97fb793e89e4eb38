package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/compiler-explorer/explain/pkg/errors"
	"github.com/compiler-explorer/explain/pkg/explain"
	"github.com/compiler-explorer/explain/pkg/llms"
	"github.com/compiler-explorer/explain/pkg/prompt"
	"github.com/compiler-explorer/explain/pkg/service"
)

type stubClient struct {
	response *llms.Response
	err      error
}

func (s *stubClient) Generate(ctx context.Context, spec *prompt.MessageSpec) (*llms.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func newTestServer(t *testing.T, client llms.Client, config Config) *Server {
	t.Helper()
	if client == nil {
		client = &stubClient{response: &llms.Response{
			Content:      "The function squares its argument.",
			InputTokens:  100,
			OutputTokens: 30,
		}}
	}
	svc := service.New(prompt.Default(), client, nil)
	srv, err := NewServer(svc, config)
	require.NoError(t, err)
	return srv
}

func requestBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(explain.ExplainRequest{
		Language: "c++",
		Compiler: "g132",
		Code:     "int square(int num) { return num * num; }",
		Asm: []explain.AssemblyItem{
			{Text: "square(int):"},
			{Text: "  imul edi, edi", Source: &explain.SourceMapping{Line: 1}},
			{Text: "  mov eax, edi"},
			{Text: "  ret"},
		},
		InstructionSet: "amd64",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestGetRootReturnsOptions(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var options explain.AvailableOptions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &options))
	assert.Len(t, options.Audience, 3)
	assert.Len(t, options.Explanation, 3)
}

func TestPostRootExplains(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", requestBody(t)))

	require.Equal(t, http.StatusOK, rec.Code)

	var response explain.ExplainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "success", response.Status)
	assert.Equal(t, "The function squares its argument.", response.Explanation)
	require.NotNil(t, response.Usage)
	assert.Equal(t, 130, response.Usage.TotalTokens)
}

func TestPostRootRejectsBadJSON(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/",
		bytes.NewBufferString("{not json")))

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var response explain.ExplainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "error", response.Status)
	assert.NotEmpty(t, response.Message)
}

func TestPostRootValidationFailure(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	body, err := json.Marshal(map[string]any{"language": "c++"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBuffer(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostRootGenerationFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limited", errs.New(errs.RateLimitExceeded, "slow down"), http.StatusTooManyRequests},
		{"generation failed", errs.New(errs.GenerationFailed, "model unavailable"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubClient{err: tt.err}, Config{})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", requestBody(t)))

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHealthcheck(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})
}

func TestRootPathPrefix(t *testing.T) {
	srv := newTestServer(t, nil, Config{RootPath: "/beta"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/beta/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/beta/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
