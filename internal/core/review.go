package core

import (
	"time"
)

// User represents an account that owns review history.
type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// LineComment is a single piece of review feedback tied to a line of the
// original code. Line numbers are not bounds-checked against the source; the
// model occasionally points past the last line and we keep those comments.
type LineComment struct {
	LineNumber int    `db:"line_number" json:"line_number"`
	Code       string `db:"code"        json:"code"`
	Review     string `db:"review"      json:"review"`
}

// ReviewVersion is one immutable entry in a file's review history. Versions
// for the same filename form a singly-linked chain through ParentID, numbered
// contiguously from 1. All fields are fixed at creation.
type ReviewVersion struct {
	ID             int64     `db:"id"`
	Filename       string    `db:"filename"`
	Language       string    `db:"language"`
	OriginalCode   string    `db:"original_code"`
	RefactoredCode string    `db:"refactored_code"`
	ContentHash    string    `db:"content_hash"`
	Version        int       `db:"version"`
	ParentID       *int64    `db:"parent_id"`
	OwnerID        int64     `db:"user_id"`
	CreatedAt      time.Time `db:"created_at"`

	Comments []LineComment `db:"-"`
}

// NewReviewVersion validates the inputs that the store cannot, chiefly the
// language gate. Version number and parent are assigned by the store when the
// record is appended.
func NewReviewVersion(langs Languages, filename, language, originalCode, refactoredCode, contentHash string, ownerID int64, comments []LineComment) (*ReviewVersion, error) {
	if !langs.IsSupported(language) {
		return nil, &ServiceError{
			Message: "unsupported language: " + language,
			Code:    400,
			Err:     ErrInvalidLanguage,
		}
	}
	return &ReviewVersion{
		Filename:       filename,
		Language:       language,
		OriginalCode:   originalCode,
		RefactoredCode: refactoredCode,
		ContentHash:    contentHash,
		OwnerID:        ownerID,
		Comments:       comments,
	}, nil
}

// HasPreviousVersion reports whether this version supersedes an earlier one.
func (v *ReviewVersion) HasPreviousVersion() bool {
	return v.ParentID != nil
}
