package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/revuhq/revu/internal/auth"
	"github.com/revuhq/revu/internal/config"
	"github.com/revuhq/revu/internal/core"
	"github.com/revuhq/revu/internal/review"
	"github.com/revuhq/revu/internal/tasks"
)

const (
	defaultFilename = "unnamed_file.txt"
	uploadFileField = "filepath"

	taskStatusReviewing tasks.Status = "reviewing"
)

// ReviewHandler serves the code-review API. It owns request parsing and
// upload validation; everything past that boundary is the review service.
type ReviewHandler struct {
	cfg     *config.Config
	svc     *review.Service
	taskMgr *tasks.Manager
	logger  *slog.Logger
}

// NewReviewHandler creates a ReviewHandler.
func NewReviewHandler(cfg *config.Config, svc *review.Service, taskMgr *tasks.Manager, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{cfg: cfg, svc: svc, taskMgr: taskMgr, logger: logger}
}

type uploadRequest struct {
	Code     string `json:"code"`
	Filename string `json:"filename"`
	Async    bool   `json:"async"`
}

type uploadResponse struct {
	Result       *review.VersionPayload `json:"result"`
	IsNewVersion bool                   `json:"is_new_version"`
	Filename     string                 `json:"filename"`
	Message      string                 `json:"message"`
}

// Upload accepts code as a JSON payload or a multipart file upload, runs the
// review, and stores the result. With "async": true the work runs on the
// task pool and the response is a task id to poll.
func (h *ReviewHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	code, filename, async, err := h.extractCode(w, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if async {
		h.uploadAsync(w, userID, filename, code)
		return
	}

	result, isNew, err := h.svc.Submit(r.Context(), userID, filename, code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildUploadResponse(result, isNew, filename))
}

func (h *ReviewHandler) uploadAsync(w http.ResponseWriter, userID int64, filename, code string) {
	taskID, err := h.taskMgr.Start(func(ctx context.Context, update func(tasks.Status)) (any, error) {
		update(taskStatusReviewing)
		result, isNew, err := h.svc.Submit(ctx, userID, filename, code)
		if err != nil {
			return nil, err
		}
		return buildUploadResponse(result, isNew, filename), nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func buildUploadResponse(result *review.VersionPayload, isNew bool, filename string) uploadResponse {
	message := "Using existing version (no changes detected)"
	if isNew {
		message = "New version created"
	}
	return uploadResponse{
		Result:       result,
		IsNewVersion: isNew,
		Filename:     filename,
		Message:      message,
	}
}

// extractCode pulls (code, filename, async) out of the request based on its
// content type. Empty code is rejected here, before any model call.
func (h *ReviewHandler) extractCode(w http.ResponseWriter, r *http.Request) (code, filename string, async bool, err error) {
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var req uploadRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			return "", "", false, core.ValidationError("invalid JSON body", decodeErr)
		}
		if strings.TrimSpace(req.Code) == "" {
			return "", "", false, core.ValidationError("code provided is empty", core.ErrEmptyCode)
		}
		filename = req.Filename
		if filename == "" {
			filename = defaultFilename
		}
		return req.Code, filename, req.Async, nil

	case strings.HasPrefix(contentType, "multipart/form-data"):
		return h.extractCodeFromFile(w, r)

	default:
		return "", "", false, core.ValidationError("unsupported content type", nil)
	}
}

func (h *ReviewHandler) extractCodeFromFile(w http.ResponseWriter, r *http.Request) (code, filename string, async bool, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Review.MaxUploadBytes)
	if parseErr := r.ParseMultipartForm(h.cfg.Review.MaxUploadBytes); parseErr != nil {
		return "", "", false, core.ValidationError("failed to parse file upload", parseErr)
	}

	file, header, openErr := r.FormFile(uploadFileField)
	if openErr != nil {
		return "", "", false, core.ValidationError("no file found to review", openErr)
	}
	defer func() { _ = file.Close() }()

	filename = header.Filename
	if filename == "" {
		return "", "", false, core.ValidationError("empty file submitted", nil)
	}
	if !h.cfg.Languages.AllowedForFile(filename) {
		return "", "", false, core.ValidationError(
			fmt.Sprintf("invalid file type. Allowed extensions: %s", strings.Join(h.cfg.Languages.Extensions(), ", ")), nil)
	}

	data, readErr := io.ReadAll(file)
	if readErr != nil {
		return "", "", false, core.ValidationError("failed to read uploaded file", readErr)
	}
	if !utf8.Valid(data) {
		return "", "", false, core.ValidationError("file could not be decoded as UTF-8 text", nil)
	}
	code = string(data)
	if strings.TrimSpace(code) == "" {
		return "", "", false, core.ValidationError("code provided is empty", core.ErrEmptyCode)
	}

	async = r.FormValue("async") == "true"
	return code, filename, async, nil
}

// History returns the caller's full review history, latest version first per
// file.
func (h *ReviewHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	payloads, err := h.svc.History(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payloads)
}

// GetFile returns one review by filename and optional version (defaulting to
// the latest).
func (h *ReviewHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeError(w, http.StatusBadRequest, "'filename' is required")
		return
	}

	var version *int
	if raw := r.URL.Query().Get("version"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "'version' must be an integer")
			return
		}
		version = &n
	}

	payload, err := h.svc.Get(r.Context(), filename, version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Remove deletes one exact (filename, version).
func (h *ReviewHandler) Remove(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	rawVersion := r.URL.Query().Get("version")
	if filename == "" || rawVersion == "" {
		writeError(w, http.StatusBadRequest, "both 'filename' and 'version' are required")
		return
	}
	version, err := strconv.Atoi(rawVersion)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'version' must be an integer")
		return
	}

	removed, err := h.svc.Remove(r.Context(), filename, version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}
