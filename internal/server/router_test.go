package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/revuhq/revu/internal/auth"
	"github.com/revuhq/revu/internal/config"
	"github.com/revuhq/revu/internal/core"
	"github.com/revuhq/revu/internal/llm"
	"github.com/revuhq/revu/internal/llm/mocks"
	"github.com/revuhq/revu/internal/review"
	"github.com/revuhq/revu/internal/storage"
	"github.com/revuhq/revu/internal/tasks"
)

// newTestServer wires the full HTTP surface against the in-memory store and a
// scripted model, close to how the real app assembles it.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctrl := gomock.NewController(t)
	model := mocks.NewMockModel(ctrl)
	model.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "language detection expert"):
				return "python", nil
			case strings.Contains(prompt, "conducting a code review"):
				return `{"reviews": [{"code": "1: x", "review": "Rename x.", "line_number": 1}]}`, nil
			default:
				return "```python\nrenamed = 1\n```", nil
			}
		}).AnyTimes()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prompts, err := llm.NewPromptManager()
	require.NoError(t, err)

	cfg := &config.Config{
		ServerPort: "0",
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 168 * time.Hour,
		},
		Review: config.ReviewConfig{
			MaxUploadBytes: 1 << 20,
			TaskWorkers:    1,
		},
		Languages: core.DefaultLanguages(),
	}

	store := storage.NewMemoryStore()
	pipeline := review.NewPipeline(model, prompts, 0, logger)
	svc := review.NewService(store, pipeline, cfg.Languages, logger)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	taskMgr := tasks.NewManager(cfg.Review.TaskWorkers, logger)
	t.Cleanup(taskMgr.Stop)

	ts := httptest.NewServer(NewRouter(cfg, svc, store, tokens, taskMgr, logger))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func registerAndLogin(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()
	resp, _ := doJSON(t, ts, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": username, "password": "pass123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, ts, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": username, "password": "pass123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRouter_HealthIsPublic(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_ReviewRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/review/history", "/api/review/file", "/api/tasks/some-id"} {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "path %s", path)
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "alice", "password": "pass123"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate username conflicts.
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing fields.
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "  ", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown user and wrong password get the same answer.
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "ghost", "password": "pass123"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := doJSON(t, ts, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "alice", "password": "pass123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
	refresh, _ := body["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	resp, body = doJSON(t, ts, http.MethodPost, "/api/auth/refresh", "",
		map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	// An access token is not a refresh token.
	access, _ := body["token"].(string)
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/auth/refresh", "",
		map[string]string{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadFlow(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")

	resp, body := doJSON(t, ts, http.MethodPost, "/api/review/upload", token,
		map[string]any{"code": "x = 1\n", "filename": "main.py"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_new_version"])
	assert.Equal(t, "New version created", body["message"])

	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "python", result["language"])
	assert.Equal(t, float64(1), result["version"])
	assert.NotEmpty(t, result["code_lines"])

	// Resubmitting identical content reuses the stored version.
	resp, body = doJSON(t, ts, http.MethodPost, "/api/review/upload", token,
		map[string]any{"code": "x = 1\n", "filename": "main.py"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_new_version"])
	assert.Equal(t, "Using existing version (no changes detected)", body["message"])

	// Empty code is rejected before any model call.
	resp, body = doJSON(t, ts, http.MethodPost, "/api/review/upload", token,
		map[string]any{"code": "   \n", "filename": "main.py"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "code provided is empty", body["error"])

	// Omitted filename falls back to the default.
	resp, body = doJSON(t, ts, http.MethodPost, "/api/review/upload", token,
		map[string]any{"code": "y = 2\n"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unnamed_file.txt", body["filename"])
}

func TestUploadMultipart(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")

	upload := func(filename, content string) (*http.Response, map[string]any) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("filepath", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/review/upload", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp, body
	}

	resp, body := upload("script.py", "x = 1\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "script.py", body["filename"])
	assert.Equal(t, true, body["is_new_version"])

	resp, body = upload("notes.txt", "hello\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid file type")

	resp, body = upload("binary.py", "\xff\xfe\x00broken")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "UTF-8")
}

func TestHistoryGetRemove(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")

	for i := 1; i <= 2; i++ {
		resp, _ := doJSON(t, ts, http.MethodPost, "/api/review/upload", token,
			map[string]any{"code": fmt.Sprintf("x = %d\n", i), "filename": "main.py"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/review/history", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	var history []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	_ = resp.Body.Close()
	require.Len(t, history, 2)
	assert.Equal(t, float64(2), history[0]["version"], "latest version first")

	resp, body := doJSON(t, ts, http.MethodGet, "/api/review/file?filename=main.py", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["version"])
	assert.Equal(t, true, body["has_previous_version"])

	resp, body = doJSON(t, ts, http.MethodGet, "/api/review/file?filename=main.py&version=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/review/file?filename=main.py&version=9", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/review/file", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, ts, http.MethodPost, "/api/review/remove?filename=main.py&version=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/review/remove?filename=main.py&version=1", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/review/remove?filename=main.py", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsyncUpload(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")

	resp, body := doJSON(t, ts, http.MethodPost, "/api/review/upload", token,
		map[string]any{"code": "x = 1\n", "filename": "main.py", "async": true})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	taskID, _ := body["task_id"].(string)
	require.NotEmpty(t, taskID)

	deadline := time.After(5 * time.Second)
	for {
		resp, body = doJSON(t, ts, http.MethodGet, "/api/tasks/"+taskID, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		status, _ := body["status"].(string)
		if status == "done" {
			result, ok := body["result"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, true, result["is_new_version"])
			break
		}
		require.NotEqual(t, "failed", status, "task failed: %v", body["error"])
		select {
		case <-deadline:
			t.Fatalf("task %s never finished, last status %q", taskID, status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Unknown ids answer with the sentinel, not an HTTP error.
	resp, body = doJSON(t, ts, http.MethodGet, "/api/tasks/does-not-exist", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "not_found", body["status"])
}
