package review

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/revuhq/revu/internal/core"
	"github.com/revuhq/revu/internal/llm"
	"github.com/revuhq/revu/internal/llm/mocks"
	"github.com/revuhq/revu/internal/storage"
)

// scriptedModel answers each pipeline stage by recognizing its prompt, so a
// full Submit can run against the real pipeline without a live LLM. calls
// counts completions to let tests prove the cache short-circuit.
func scriptedModel(t *testing.T, ctrl *gomock.Controller, language string, calls *atomic.Int64) *mocks.MockModel {
	t.Helper()
	model := mocks.NewMockModel(ctrl)
	model.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, prompt string) (string, error) {
			calls.Add(1)
			switch {
			case strings.Contains(prompt, "language detection expert"):
				return language, nil
			case strings.Contains(prompt, "conducting a code review"):
				return `{"reviews": [{"code": "1: x", "review": "Rename x.", "line_number": 1}]}`, nil
			case strings.Contains(prompt, "code improvement"):
				return "```" + language + "\nrenamed = 1\n```", nil
			default:
				return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
			}
		}).AnyTimes()
	return model
}

func newTestService(t *testing.T, model llm.Model) (*Service, storage.Store, int64) {
	t.Helper()
	prompts, err := llm.NewPromptManager()
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	owner, err := store.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)

	pipeline := NewPipeline(model, prompts, 0, testLogger())
	return NewService(store, pipeline, core.DefaultLanguages(), testLogger()), store, owner.ID
}

func TestServiceSubmit_CreatesFirstVersion(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, _, ownerID := newTestService(t, scriptedModel(t, ctrl, "python", &calls))

	payload, created, err := svc.Submit(context.Background(), ownerID, "main.py", "x = 1\n")
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, 1, payload.Version)
	assert.False(t, payload.HasPreviousVersion)
	assert.Equal(t, "python", payload.Language)
	require.Len(t, payload.Reviews, 1)
	require.NotNil(t, payload.RefactoredCode)
	assert.Equal(t, "renamed = 1", *payload.RefactoredCode)
	assert.NotEmpty(t, payload.CodeLines)
}

func TestServiceSubmit_IdenticalContentIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, _, ownerID := newTestService(t, scriptedModel(t, ctrl, "python", &calls))
	ctx := context.Background()

	first, created, err := svc.Submit(ctx, ownerID, "main.py", "x = 1\n")
	require.NoError(t, err)
	require.True(t, created)
	callsAfterFirst := calls.Load()

	second, created, err := svc.Submit(ctx, ownerID, "main.py", "x = 1\n")
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, callsAfterFirst, calls.Load(), "cached submission must not hit the model")
	assert.Empty(t, second.CodeLines, "cached reads omit code lines")
}

func TestServiceSubmit_ChangedContentChainsVersions(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, store, ownerID := newTestService(t, scriptedModel(t, ctrl, "python", &calls))
	ctx := context.Background()

	v1, _, err := svc.Submit(ctx, ownerID, "main.py", "x = 1\n")
	require.NoError(t, err)
	v2, created, err := svc.Submit(ctx, ownerID, "main.py", "x = 2\n")
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.HasPreviousVersion)

	stored, err := store.GetByID(ctx, v2.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ParentID)
	assert.Equal(t, v1.ID, *stored.ParentID)
}

func TestServiceSubmit_SameContentDifferentFilesAreIndependent(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, _, ownerID := newTestService(t, scriptedModel(t, ctrl, "python", &calls))
	ctx := context.Background()

	a, created, err := svc.Submit(ctx, ownerID, "a.py", "x = 1\n")
	require.NoError(t, err)
	require.True(t, created)

	b, created, err := svc.Submit(ctx, ownerID, "b.py", "x = 1\n")
	require.NoError(t, err)

	assert.True(t, created, "same content under a new filename is a new artifact")
	assert.Equal(t, 1, b.Version)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestServiceSubmit_UnsupportedLanguageRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, store, ownerID := newTestService(t, scriptedModel(t, ctrl, "cobol", &calls))
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, ownerID, "main.cbl", "MOVE 1 TO X.")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidLanguage))

	latest, err := store.LatestVersion(ctx, "main.cbl")
	require.NoError(t, err)
	assert.Nil(t, latest, "rejected submissions must not be persisted")
}

func TestServiceSubmit_DegradedResultNotPersisted(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mocks.NewMockModel(ctrl)
	model.EXPECT().Complete(gomock.Any(), gomock.Any()).
		Return("", errors.New("model unavailable")).AnyTimes()

	svc, store, ownerID := newTestService(t, model)
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, ownerID, "main.py", "x = 1\n")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, core.StatusCode(err))

	var svcErr *core.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "failed to generate AI review for the code", svcErr.Message)

	latest, err := store.LatestVersion(ctx, "main.py")
	require.NoError(t, err)
	assert.Nil(t, latest, "degraded results must never become versions")
}

func TestServiceSubmit_UnknownOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, _, _ := newTestService(t, scriptedModel(t, ctrl, "python", &calls))

	_, _, err := svc.Submit(context.Background(), 9999, "main.py", "x = 1\n")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, core.StatusCode(err))
}

func TestServiceSubmit_ConcurrentDistinctContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, store, ownerID := newTestService(t, scriptedModel(t, ctrl, "python", &calls))
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, errs[i] = svc.Submit(ctx, ownerID, "race.py", fmt.Sprintf("x = %d\n", i))
		}()
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "submission %d", i)
	}

	versions, err := store.ListByOwner(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, versions, n)

	seen := make(map[int]bool, n)
	for _, v := range versions {
		assert.False(t, seen[v.Version], "duplicate version %d", v.Version)
		seen[v.Version] = true
		assert.GreaterOrEqual(t, v.Version, 1)
		assert.LessOrEqual(t, v.Version, n)
	}
}

func TestServiceGet(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, _, ownerID := newTestService(t, scriptedModel(t, ctrl, "python", &calls))
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, ownerID, "main.py", "x = 1\n")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, ownerID, "main.py", "x = 2\n")
	require.NoError(t, err)

	latest, err := svc.Get(ctx, "main.py", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	one := 1
	v1, err := svc.Get(ctx, "main.py", &one)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	three := 3
	_, err = svc.Get(ctx, "main.py", &three)
	assert.Equal(t, http.StatusNotFound, core.StatusCode(err))

	_, err = svc.Get(ctx, "ghost.py", nil)
	assert.Equal(t, http.StatusNotFound, core.StatusCode(err))
}

func TestServiceHistory_Ordering(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, _, ownerID := newTestService(t, scriptedModel(t, ctrl, "python", &calls))
	ctx := context.Background()

	for _, sub := range []struct{ file, code string }{
		{"b.py", "b = 1\n"},
		{"a.py", "a = 1\n"},
		{"a.py", "a = 2\n"},
	} {
		_, _, err := svc.Submit(ctx, ownerID, sub.file, sub.code)
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, "a.py", history[0].Filename)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, "a.py", history[1].Filename)
	assert.Equal(t, 1, history[1].Version)
	assert.Equal(t, "b.py", history[2].Filename)

	_, err = svc.History(ctx, 9999)
	assert.Equal(t, http.StatusNotFound, core.StatusCode(err))
}

func TestServiceRemove_MiddleVersionLeavesChainAlone(t *testing.T) {
	ctrl := gomock.NewController(t)
	var calls atomic.Int64
	svc, store, ownerID := newTestService(t, scriptedModel(t, ctrl, "python", &calls))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, _, err := svc.Submit(ctx, ownerID, "main.py", fmt.Sprintf("x = %d\n", i))
		require.NoError(t, err)
	}

	removed, err := svc.Remove(ctx, "main.py", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed.Version)

	// Versions 1 and 3 survive untouched; v3 keeps its now-dangling parent.
	two := 2
	_, err = svc.Get(ctx, "main.py", &two)
	assert.Equal(t, http.StatusNotFound, core.StatusCode(err))

	v3, err := store.GetByFilenameAndVersion(ctx, "main.py", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.NotNil(t, v3.ParentID)

	// The next submission still continues from the highest survivor.
	payload, created, err := svc.Submit(ctx, ownerID, "main.py", "x = 4\n")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 4, payload.Version)

	_, err = svc.Remove(ctx, "main.py", 2)
	assert.Equal(t, http.StatusNotFound, core.StatusCode(err))
}
