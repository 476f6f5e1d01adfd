// Package storage implements the versioned artifact store that holds review
// history and its line comments.
package storage

import (
	"context"

	"github.com/revuhq/revu/internal/core"
)

// Store defines the interface for all database operations. Version-chain
// invariants live behind AppendVersion: the store, not the caller, assigns
// version numbers and parent references, and it must serialize the
// read-latest/compute/insert sequence per filename.
type Store interface {
	// LatestVersion returns the highest-numbered version for filename, or
	// nil when the filename has no history.
	LatestVersion(ctx context.Context, filename string) (*core.ReviewVersion, error)

	// AppendVersion persists v as the next version of v.Filename, together
	// with all its comments, atomically. It sets v's ID, Version, ParentID,
	// and CreatedAt. Appending for an unknown owner fails with
	// core.ErrNotFound.
	AppendVersion(ctx context.Context, v *core.ReviewVersion) (*core.ReviewVersion, error)

	// GetByID returns the version with its comments, or core.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*core.ReviewVersion, error)

	// GetByFilenameAndVersion returns one exact version with its comments,
	// or core.ErrNotFound.
	GetByFilenameAndVersion(ctx context.Context, filename string, version int) (*core.ReviewVersion, error)

	// ListByOwner returns all versions owned by ownerID, filename ascending
	// then version descending (latest first per file), comments included.
	ListByOwner(ctx context.Context, ownerID int64) ([]*core.ReviewVersion, error)

	// DeleteByFilenameAndVersion removes one version and its comments.
	// Sibling versions keep their parent references even when they dangle.
	// Returns false when nothing matched.
	DeleteByFilenameAndVersion(ctx context.Context, filename string, version int) (bool, error)

	// DeleteOwner removes a user and cascades to all owned versions and
	// their comments.
	DeleteOwner(ctx context.Context, ownerID int64) error

	// CreateUser stores a new account; core.ErrUsernameTaken on duplicates.
	CreateUser(ctx context.Context, username, passwordHash string) (*core.User, error)

	// GetUserByID returns the user or core.ErrNotFound.
	GetUserByID(ctx context.Context, id int64) (*core.User, error)

	// GetUserByUsername returns the user or core.ErrNotFound.
	GetUserByUsername(ctx context.Context, username string) (*core.User, error)
}
