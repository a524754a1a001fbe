package versions

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/offerlane/arbiter/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "versions.db"), nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func payload(s string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"body":%q}`, s))
}

func TestCreateVersionAssignsSequence(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	first, err := s.CreateVersion(ctx, domain.KindOfferOutline, scope, payload("a"), false)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Version)
	require.False(t, first.IsActive)
	require.NoError(t, first.Validate())

	second, err := s.CreateVersion(ctx, domain.KindOfferOutline, scope, payload("b"), false)
	require.NoError(t, err)
	require.Equal(t, int64(2), second.Version)
	require.NotEqual(t, first.ID, second.ID)

	// Scopes number independently.
	other, err := s.CreateVersion(ctx, domain.KindOfferOutline, domain.NewScope("u1", 2), payload("c"), false)
	require.NoError(t, err)
	require.Equal(t, int64(1), other.Version)
}

func TestCreateVersionValidatesInput(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.CreateVersion(ctx, "", domain.NewScope("u1", 1), payload("a"), false)
	require.True(t, domain.IsValidation(err))

	_, err = s.CreateVersion(ctx, domain.KindOfferOutline, domain.Scope{}, payload("a"), false)
	require.True(t, domain.IsValidation(err))

	_, err = s.CreateVersion(ctx, domain.KindOfferOutline, domain.NewScope("u1", 1), nil, false)
	require.True(t, domain.IsValidation(err))

	_, err = s.CreateVersion(ctx, domain.KindOfferOutline, domain.NewScope("u1", 1), json.RawMessage(`{"body":`), false)
	require.True(t, domain.IsValidation(err))
}

func TestCreateWithActivationReplacesActive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	a, err := s.CreateVersion(ctx, domain.KindMessagingStrategy, scope, payload("a"), true)
	require.NoError(t, err)
	require.True(t, a.IsActive)

	b, err := s.CreateVersion(ctx, domain.KindMessagingStrategy, scope, payload("b"), true)
	require.NoError(t, err)
	require.True(t, b.IsActive)

	active, exists, err := s.GetActive(ctx, domain.KindMessagingStrategy, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, b.ID, active.ID)
	require.JSONEq(t, string(payload("b")), string(active.Content))

	// History preserved: A still exists, inactive, content untouched.
	olderA, err := s.GetVersion(ctx, domain.KindMessagingStrategy, scope, a.ID)
	require.NoError(t, err)
	require.False(t, olderA.IsActive)
	require.JSONEq(t, string(payload("a")), string(olderA.Content))
}

func TestActivateExistingVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	a, err := s.CreateVersion(ctx, domain.KindSalesPageDraft, scope, payload("a"), true)
	require.NoError(t, err)
	b, err := s.CreateVersion(ctx, domain.KindSalesPageDraft, scope, payload("b"), true)
	require.NoError(t, err)

	require.NoError(t, s.Activate(ctx, domain.KindSalesPageDraft, scope, a.ID))

	active, exists, err := s.GetActive(ctx, domain.KindSalesPageDraft, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, a.ID, active.ID)

	reloadedB, err := s.GetVersion(ctx, domain.KindSalesPageDraft, scope, b.ID)
	require.NoError(t, err)
	require.False(t, reloadedB.IsActive)
	require.JSONEq(t, string(payload("b")), string(reloadedB.Content))
}

func TestActivateIsIdempotentForCurrentActive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	a, err := s.CreateVersion(ctx, domain.KindSalesPageDraft, scope, payload("a"), true)
	require.NoError(t, err)

	require.NoError(t, s.Activate(ctx, domain.KindSalesPageDraft, scope, a.ID))

	active, exists, err := s.GetActive(ctx, domain.KindSalesPageDraft, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, a.ID, active.ID)
}

func TestActivateUnknownTargetIsNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	err := s.Activate(ctx, domain.KindSalesPageDraft, scope, "no-such-id")
	require.True(t, domain.IsNotFound(err))

	// A record in another owner's scope is invisible here.
	foreign, err := s.CreateVersion(ctx, domain.KindSalesPageDraft, domain.NewScope("u2", 1), payload("x"), false)
	require.NoError(t, err)
	err = s.Activate(ctx, domain.KindSalesPageDraft, scope, foreign.ID)
	require.True(t, domain.IsNotFound(err))
}

func TestDeactivateLeavesScopeWithNoActive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	_, err := s.CreateVersion(ctx, domain.KindContentPlan, scope, payload("a"), true)
	require.NoError(t, err)

	require.NoError(t, s.Deactivate(ctx, domain.KindContentPlan, scope))

	_, exists, err := s.GetActive(ctx, domain.KindContentPlan, scope)
	require.NoError(t, err)
	require.False(t, exists)

	// Deactivating an empty scope is a no-op.
	require.NoError(t, s.Deactivate(ctx, domain.KindContentPlan, scope))
}

func TestDeactivateRejectedForExactlyOneActiveKinds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	a, err := s.CreateVersion(ctx, domain.KindMessagingStrategy, scope, payload("a"), true)
	require.NoError(t, err)

	err = s.Deactivate(ctx, domain.KindMessagingStrategy, scope)
	require.True(t, domain.IsValidation(err))

	active, exists, err := s.GetActive(ctx, domain.KindMessagingStrategy, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, a.ID, active.ID)
}

func TestGetActiveEmptyScope(t *testing.T) {
	s := newStore(t)

	record, exists, err := s.GetActive(context.Background(), domain.KindOfferWorkspace, domain.NewScope("u1", 1))
	require.NoError(t, err)
	require.False(t, exists)
	require.Nil(t, record)
}

func TestKindsPartitionScopes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	_, err := s.CreateVersion(ctx, domain.KindOfferOutline, scope, payload("outline"), true)
	require.NoError(t, err)
	_, err = s.CreateVersion(ctx, domain.KindSalesPageDraft, scope, payload("draft"), true)
	require.NoError(t, err)

	outline, exists, err := s.GetActive(ctx, domain.KindOfferOutline, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, string(payload("outline")), string(outline.Content))

	draft, exists, err := s.GetActive(ctx, domain.KindSalesPageDraft, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, string(payload("draft")), string(draft.Content))
}

func TestListVersionsNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	for i := 1; i <= 5; i++ {
		_, err := s.CreateVersion(ctx, domain.KindContentPlan, scope, payload(fmt.Sprintf("v%d", i)), i == 5)
		require.NoError(t, err)
	}

	records, err := s.ListVersions(ctx, domain.KindContentPlan, scope, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, record := range records {
		require.Equal(t, int64(5-i), record.Version)
	}
	require.True(t, records[0].IsActive)
	require.False(t, records[1].IsActive)
}

func TestListVersionsPagination(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	for i := 1; i <= 5; i++ {
		_, err := s.CreateVersion(ctx, domain.KindContentPlan, scope, payload(fmt.Sprintf("v%d", i)), false)
		require.NoError(t, err)
	}

	page, err := s.ListVersions(ctx, domain.KindContentPlan, scope, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, int64(5), page[0].Version)

	page, err = s.ListVersions(ctx, domain.KindContentPlan, scope, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, int64(3), page[0].Version)

	page, err = s.ListVersions(ctx, domain.KindContentPlan, scope, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, int64(1), page[0].Version)
}

func TestCountVersions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	count, err := s.CountVersions(ctx, domain.KindOfferOutline, scope)
	require.NoError(t, err)
	require.Zero(t, count)

	for i := 0; i < 3; i++ {
		_, err := s.CreateVersion(ctx, domain.KindOfferOutline, scope, payload("x"), false)
		require.NoError(t, err)
	}

	count, err = s.CountVersions(ctx, domain.KindOfferOutline, scope)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestDeleteVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	a, err := s.CreateVersion(ctx, domain.KindSalesPageDraft, scope, payload("a"), true)
	require.NoError(t, err)
	_, err = s.CreateVersion(ctx, domain.KindSalesPageDraft, scope, payload("b"), false)
	require.NoError(t, err)

	// Deleting the active record leaves the scope with no active; the
	// sibling is never promoted implicitly.
	require.NoError(t, s.DeleteVersion(ctx, domain.KindSalesPageDraft, scope, a.ID))
	_, exists, err := s.GetActive(ctx, domain.KindSalesPageDraft, scope)
	require.NoError(t, err)
	require.False(t, exists)

	err = s.DeleteVersion(ctx, domain.KindSalesPageDraft, scope, a.ID)
	require.True(t, domain.IsNotFound(err))
}

func TestDeleteActiveRejectedForExactlyOneActiveKinds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	a, err := s.CreateVersion(ctx, domain.KindOfferWorkspace, scope, payload("a"), true)
	require.NoError(t, err)
	b, err := s.CreateVersion(ctx, domain.KindOfferWorkspace, scope, payload("b"), false)
	require.NoError(t, err)

	// Siblings remain, so the active record cannot go.
	err = s.DeleteVersion(ctx, domain.KindOfferWorkspace, scope, a.ID)
	require.True(t, domain.IsConflict(err))

	active, exists, err := s.GetActive(ctx, domain.KindOfferWorkspace, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, a.ID, active.ID)

	// Inactive siblings delete freely.
	require.NoError(t, s.DeleteVersion(ctx, domain.KindOfferWorkspace, scope, b.ID))

	// The last record may go, emptying the scope.
	require.NoError(t, s.DeleteVersion(ctx, domain.KindOfferWorkspace, scope, a.ID))
	count, err := s.CountVersions(ctx, domain.KindOfferWorkspace, scope)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestDeleteActiveAfterHandoff(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	a, err := s.CreateVersion(ctx, domain.KindMessagingStrategy, scope, payload("a"), true)
	require.NoError(t, err)
	b, err := s.CreateVersion(ctx, domain.KindMessagingStrategy, scope, payload("b"), false)
	require.NoError(t, err)

	require.NoError(t, s.Activate(ctx, domain.KindMessagingStrategy, scope, b.ID))
	require.NoError(t, s.DeleteVersion(ctx, domain.KindMessagingStrategy, scope, a.ID))

	active, exists, err := s.GetActive(ctx, domain.KindMessagingStrategy, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, b.ID, active.ID)
}

func TestConcurrentActivationsLeaveOneActive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	const writers = 50
	var created int64
	var conflicts int64
	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateVersion(ctx, domain.KindMessagingStrategy, scope, payload(fmt.Sprintf("w%d", i)), true)
			switch {
			case err == nil:
				atomic.AddInt64(&created, 1)
			case domain.IsConflict(err):
				atomic.AddInt64(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(writers), created+conflicts)
	require.GreaterOrEqual(t, created, int64(1))

	var activeCount int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(1) FROM content_versions
		  WHERE kind = ? AND owner_id = ? AND scope_key = ? AND is_active = 1`,
		domain.KindMessagingStrategy, scope.OwnerID, scope.ScopeKey,
	).Scan(&activeCount))
	require.LessOrEqual(t, activeCount, 1)

	_, exists, err := s.GetActive(ctx, domain.KindMessagingStrategy, scope)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDefensiveReadSurvivesBypassWrite(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	scope := domain.NewScope("u1", 1)

	a, err := s.CreateVersion(ctx, domain.KindContentPlan, scope, payload("a"), true)
	require.NoError(t, err)
	b, err := s.CreateVersion(ctx, domain.KindContentPlan, scope, payload("b"), false)
	require.NoError(t, err)

	// Simulate a direct write bypassing the store: drop the index, force a
	// second active, and make b the most recently updated.
	_, err = s.db.Exec(`DROP INDEX content_versions_one_active`)
	require.NoError(t, err)
	_, err = s.db.Exec(
		`UPDATE content_versions SET is_active = 1, updated_at = datetime('now', '+1 hour') WHERE id = ?`,
		b.ID)
	require.NoError(t, err)

	active, exists, err := s.GetActive(ctx, domain.KindContentPlan, scope)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, b.ID, active.ID)
	_ = a
}
