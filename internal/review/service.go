package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/revuhq/revu/internal/core"
	"github.com/revuhq/revu/internal/storage"
)

// VersionPayload is the JSON-serializable shape of a stored review version as
// returned to callers. CodeLines is only populated when a fresh pipeline
// result is merged in; cached and historical reads omit it.
type VersionPayload struct {
	ID                 int64              `json:"id"`
	Filename           string             `json:"filename"`
	Language           string             `json:"language"`
	CreatedAt          string             `json:"created_at"`
	Version            int                `json:"version"`
	HasPreviousVersion bool               `json:"has_previous_version"`
	Reviews            []core.LineComment `json:"reviews"`
	RefactoredCode     *string            `json:"refactored_code"`
	CodeLines          []core.CodeLine    `json:"code_lines,omitempty"`
}

// RemovedPayload describes a deleted version.
type RemovedPayload struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Version  int    `json:"version"`
}

// Service is the use-case layer: it decides whether a submission needs a new
// version, runs the pipeline only when it does, and goes through the store
// for everything else. All dependencies are injected; there is no package
// state.
type Service struct {
	store     storage.Store
	pipeline  *Pipeline
	languages core.Languages
	logger    *slog.Logger
}

// NewService creates the review service.
func NewService(store storage.Store, pipeline *Pipeline, languages core.Languages, logger *slog.Logger) *Service {
	if store == nil {
		panic("store cannot be nil")
	}
	if pipeline == nil {
		panic("pipeline cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Service{
		store:     store,
		pipeline:  pipeline,
		languages: languages,
		logger:    logger,
	}
}

// Submit creates a new review version for (owner, filename, code), or returns
// the latest stored version untouched when the content fingerprint matches it.
// The returned bool reports whether a new version was created.
//
// A degraded pipeline result is never persisted: the submission fails loudly
// instead of storing error text as if it were a review.
func (s *Service) Submit(ctx context.Context, ownerID int64, filename, code string) (*VersionPayload, bool, error) {
	contentHash := Fingerprint(code)

	latest, err := s.store.LatestVersion(ctx, filename)
	if err != nil {
		return nil, false, core.NewServiceError(http.StatusInternalServerError, "failed to read review history", err)
	}

	if latest != nil && latest.ContentHash == contentHash {
		s.logger.Info("no changes detected, returning existing version",
			"filename", filename, "version", latest.Version)
		return payloadFromVersion(latest), false, nil
	}

	result, ok := s.pipeline.Run(ctx, code)
	if !ok {
		reason := ""
		if len(result.Comments) > 0 {
			reason = result.Comments[0].Review
		}
		return nil, false, core.NewServiceError(http.StatusInternalServerError,
			"failed to generate AI review for the code", errors.New(reason))
	}

	if _, err := s.store.GetUserByID(ctx, ownerID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, false, core.NotFoundError(fmt.Sprintf("user %d not found", ownerID))
		}
		return nil, false, core.NewServiceError(http.StatusInternalServerError, "failed to resolve owner", err)
	}

	version, err := core.NewReviewVersion(s.languages, filename, result.Language, code,
		result.RefactoredCode, contentHash, ownerID, result.Comments)
	if err != nil {
		return nil, false, err
	}

	stored, err := s.store.AppendVersion(ctx, version)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, false, core.NotFoundError(fmt.Sprintf("user %d not found", ownerID))
		}
		return nil, false, core.NewServiceError(http.StatusInternalServerError, "failed to save review to database", err)
	}

	s.logger.Info("created review version",
		"filename", filename, "version", stored.Version, "language", stored.Language)

	payload := payloadFromVersion(stored)
	payload.CodeLines = result.CodeLines
	return payload, true, nil
}

// History returns every version owned by ownerID, filename ascending and
// version descending.
func (s *Service) History(ctx context.Context, ownerID int64) ([]*VersionPayload, error) {
	if _, err := s.store.GetUserByID(ctx, ownerID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError(fmt.Sprintf("user %d not found", ownerID))
		}
		return nil, core.NewServiceError(http.StatusInternalServerError, "failed to resolve owner", err)
	}

	versions, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, core.NewServiceError(http.StatusInternalServerError, "failed to retrieve review history", err)
	}

	payloads := make([]*VersionPayload, 0, len(versions))
	for _, v := range versions {
		payloads = append(payloads, payloadFromVersion(v))
	}
	return payloads, nil
}

// Get returns one version of a file; a nil version means the latest.
func (s *Service) Get(ctx context.Context, filename string, version *int) (*VersionPayload, error) {
	var (
		v   *core.ReviewVersion
		err error
	)
	if version == nil {
		v, err = s.store.LatestVersion(ctx, filename)
		if err == nil && v == nil {
			err = fmt.Errorf("no reviews for %q: %w", filename, core.ErrNotFound)
		}
	} else {
		v, err = s.store.GetByFilenameAndVersion(ctx, filename, *version)
	}
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError(fmt.Sprintf("review not found for %s", filename))
		}
		return nil, core.NewServiceError(http.StatusInternalServerError, "failed to retrieve review", err)
	}
	return payloadFromVersion(v), nil
}

// Remove deletes one exact (filename, version) and its comments. Sibling
// versions are left alone: no renumbering, no parent repair.
func (s *Service) Remove(ctx context.Context, filename string, version int) (*RemovedPayload, error) {
	v, err := s.store.GetByFilenameAndVersion(ctx, filename, version)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError(fmt.Sprintf("no review found for %s version %d", filename, version))
		}
		return nil, core.NewServiceError(http.StatusInternalServerError, "failed to retrieve review", err)
	}

	deleted, err := s.store.DeleteByFilenameAndVersion(ctx, filename, version)
	if err != nil {
		return nil, core.NewServiceError(http.StatusInternalServerError, "failed to remove review", err)
	}
	if !deleted {
		return nil, core.NotFoundError(fmt.Sprintf("no review found for %s version %d", filename, version))
	}

	return &RemovedPayload{ID: v.ID, Filename: filename, Version: version}, nil
}

func payloadFromVersion(v *core.ReviewVersion) *VersionPayload {
	reviews := v.Comments
	if reviews == nil {
		reviews = []core.LineComment{}
	}
	var refactored *string
	if v.RefactoredCode != "" {
		r := v.RefactoredCode
		refactored = &r
	}
	return &VersionPayload{
		ID:                 v.ID,
		Filename:           v.Filename,
		Language:           v.Language,
		CreatedAt:          v.CreatedAt.UTC().Format(time.RFC3339),
		Version:            v.Version,
		HasPreviousVersion: v.ParentID != nil,
		Reviews:            reviews,
		RefactoredCode:     refactored,
	}
}
