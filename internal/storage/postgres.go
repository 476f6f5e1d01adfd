package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/revuhq/revu/internal/core"
)

// Postgres error codes we classify into the domain taxonomy.
const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed Store.
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) LatestVersion(ctx context.Context, filename string) (*core.ReviewVersion, error) {
	var v core.ReviewVersion
	err := s.db.GetContext(ctx, &v, `
		SELECT id, filename, language, original_code, COALESCE(refactored_code, '') AS refactored_code,
		       content_hash, version, parent_id, user_id, created_at
		FROM review_versions
		WHERE filename = $1
		ORDER BY version DESC
		LIMIT 1`, filename)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest version for %q: %w", filename, err)
	}
	if err := s.loadComments(ctx, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// AppendVersion is the single correctness-critical section of the system: the
// advisory lock serializes read-latest, compute-next, and insert per filename
// so concurrent submissions can never claim the same version number.
func (s *postgresStore) AppendVersion(ctx context.Context, v *core.ReviewVersion) (*core.ReviewVersion, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, v.Filename); err != nil {
		return nil, fmt.Errorf("acquiring filename lock: %w", err)
	}

	var latestID int64
	var latestVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT id, version FROM review_versions
		WHERE filename = $1
		ORDER BY version DESC
		LIMIT 1`, v.Filename).Scan(&latestID, &latestVersion)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		v.Version = 1
		v.ParentID = nil
	case err != nil:
		return nil, fmt.Errorf("reading latest version: %w", err)
	default:
		v.Version = latestVersion + 1
		parent := latestID
		v.ParentID = &parent
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO review_versions (filename, language, original_code, refactored_code, content_hash, version, parent_id, user_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
		RETURNING id, created_at`,
		v.Filename, v.Language, v.OriginalCode, v.RefactoredCode, v.ContentHash, v.Version, v.ParentID, v.OwnerID,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
			return nil, fmt.Errorf("owner %d does not exist: %w", v.OwnerID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("inserting review version: %w", err)
	}

	for _, c := range v.Comments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO line_comments (version_id, line_number, code, review)
			VALUES ($1, $2, $3, $4)`,
			v.ID, c.LineNumber, c.Code, c.Review); err != nil {
			return nil, fmt.Errorf("inserting line comment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing review version: %w", err)
	}
	return v, nil
}

func (s *postgresStore) GetByID(ctx context.Context, id int64) (*core.ReviewVersion, error) {
	return s.getOne(ctx, `WHERE id = $1`, id)
}

func (s *postgresStore) GetByFilenameAndVersion(ctx context.Context, filename string, version int) (*core.ReviewVersion, error) {
	return s.getOne(ctx, `WHERE filename = $1 AND version = $2`, filename, version)
}

func (s *postgresStore) getOne(ctx context.Context, where string, args ...any) (*core.ReviewVersion, error) {
	var v core.ReviewVersion
	query := `
		SELECT id, filename, language, original_code, COALESCE(refactored_code, '') AS refactored_code,
		       content_hash, version, parent_id, user_id, created_at
		FROM review_versions ` + where
	if err := s.db.GetContext(ctx, &v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("review version: %w", core.ErrNotFound)
		}
		return nil, fmt.Errorf("querying review version: %w", err)
	}
	if err := s.loadComments(ctx, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *postgresStore) ListByOwner(ctx context.Context, ownerID int64) ([]*core.ReviewVersion, error) {
	var versions []*core.ReviewVersion
	err := s.db.SelectContext(ctx, &versions, `
		SELECT id, filename, language, original_code, COALESCE(refactored_code, '') AS refactored_code,
		       content_hash, version, parent_id, user_id, created_at
		FROM review_versions
		WHERE user_id = $1
		ORDER BY filename ASC, version DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing versions for owner %d: %w", ownerID, err)
	}
	for _, v := range versions {
		if err := s.loadComments(ctx, v); err != nil {
			return nil, err
		}
	}
	return versions, nil
}

func (s *postgresStore) DeleteByFilenameAndVersion(ctx context.Context, filename string, version int) (bool, error) {
	// Comments cascade via the FK; the version row is enough.
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM review_versions
		WHERE filename = $1 AND version = $2`, filename, version)
	if err != nil {
		return false, fmt.Errorf("deleting review version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking delete result: %w", err)
	}
	return affected > 0, nil
}

func (s *postgresStore) DeleteOwner(ctx context.Context, ownerID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("deleting owner %d: %w", ownerID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("owner %d: %w", ownerID, core.ErrNotFound)
	}
	return nil
}

func (s *postgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*core.User, error) {
	var u core.User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, password_hash, created_at`,
		username, passwordHash,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, fmt.Errorf("username %q: %w", username, core.ErrUsernameTaken)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &u, nil
}

func (s *postgresStore) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	var u core.User
	err := s.db.GetContext(ctx, &u, `SELECT id, username, password_hash, created_at FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

func (s *postgresStore) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	var u core.User
	err := s.db.GetContext(ctx, &u, `SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

func (s *postgresStore) loadComments(ctx context.Context, v *core.ReviewVersion) error {
	err := s.db.SelectContext(ctx, &v.Comments, `
		SELECT line_number, code, review
		FROM line_comments
		WHERE version_id = $1
		ORDER BY id ASC`, v.ID)
	if err != nil {
		return fmt.Errorf("loading comments for version %d: %w", v.ID, err)
	}
	return nil
}
