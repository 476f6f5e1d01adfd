package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/revuhq/revu/internal/core"
)

// memoryStore is an in-process Store used by the CLI's local review mode and
// by tests. It honors the same contract as the Postgres store; the mutex is
// held across the whole append so version numbering stays serialized per
// filename (and, cheaply, across all of them).
type memoryStore struct {
	mu            sync.Mutex
	users         map[int64]*core.User
	byFilename    map[string][]*core.ReviewVersion
	nextUserID    int64
	nextVersionID int64
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		users:      make(map[int64]*core.User),
		byFilename: make(map[string][]*core.ReviewVersion),
	}
}

func (s *memoryStore) LatestVersion(_ context.Context, filename string) (*core.ReviewVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneVersion(s.latestLocked(filename)), nil
}

// latestLocked assumes s.mu is held. Versions are appended in order, so the
// last element is the highest-numbered one.
func (s *memoryStore) latestLocked(filename string) *core.ReviewVersion {
	chain := s.byFilename[filename]
	if len(chain) == 0 {
		return nil
	}
	return chain[len(chain)-1]
}

func (s *memoryStore) AppendVersion(_ context.Context, v *core.ReviewVersion) (*core.ReviewVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[v.OwnerID]; !ok {
		return nil, fmt.Errorf("owner %d does not exist: %w", v.OwnerID, core.ErrNotFound)
	}

	if latest := s.latestLocked(v.Filename); latest != nil {
		v.Version = latest.Version + 1
		parent := latest.ID
		v.ParentID = &parent
	} else {
		v.Version = 1
		v.ParentID = nil
	}

	s.nextVersionID++
	v.ID = s.nextVersionID
	v.CreatedAt = time.Now().UTC()

	s.byFilename[v.Filename] = append(s.byFilename[v.Filename], cloneVersion(v))
	return v, nil
}

func (s *memoryStore) GetByID(_ context.Context, id int64) (*core.ReviewVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chain := range s.byFilename {
		for _, v := range chain {
			if v.ID == id {
				return cloneVersion(v), nil
			}
		}
	}
	return nil, fmt.Errorf("review version %d: %w", id, core.ErrNotFound)
}

func (s *memoryStore) GetByFilenameAndVersion(_ context.Context, filename string, version int) (*core.ReviewVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.byFilename[filename] {
		if v.Version == version {
			return cloneVersion(v), nil
		}
	}
	return nil, fmt.Errorf("review version %s v%d: %w", filename, version, core.ErrNotFound)
}

func (s *memoryStore) ListByOwner(_ context.Context, ownerID int64) ([]*core.ReviewVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*core.ReviewVersion
	for _, chain := range s.byFilename {
		for _, v := range chain {
			if v.OwnerID == ownerID {
				out = append(out, cloneVersion(v))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Filename != out[j].Filename {
			return out[i].Filename < out[j].Filename
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

func (s *memoryStore) DeleteByFilenameAndVersion(_ context.Context, filename string, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.byFilename[filename]
	for i, v := range chain {
		if v.Version == version {
			s.byFilename[filename] = append(chain[:i:i], chain[i+1:]...)
			if len(s.byFilename[filename]) == 0 {
				delete(s.byFilename, filename)
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) DeleteOwner(_ context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[ownerID]; !ok {
		return fmt.Errorf("owner %d: %w", ownerID, core.ErrNotFound)
	}
	delete(s.users, ownerID)

	for filename, chain := range s.byFilename {
		kept := chain[:0]
		for _, v := range chain {
			if v.OwnerID != ownerID {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(s.byFilename, filename)
		} else {
			s.byFilename[filename] = kept
		}
	}
	return nil
}

func (s *memoryStore) CreateUser(_ context.Context, username, passwordHash string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return nil, fmt.Errorf("username %q: %w", username, core.ErrUsernameTaken)
		}
	}

	s.nextUserID++
	u := &core.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	out := *u
	return &out, nil
}

func (s *memoryStore) GetUserByID(_ context.Context, id int64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (s *memoryStore) GetUserByUsername(_ context.Context, username string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
}

func cloneVersion(v *core.ReviewVersion) *core.ReviewVersion {
	if v == nil {
		return nil
	}
	out := *v
	if v.ParentID != nil {
		parent := *v.ParentID
		out.ParentID = &parent
	}
	out.Comments = append([]core.LineComment(nil), v.Comments...)
	return &out
}
