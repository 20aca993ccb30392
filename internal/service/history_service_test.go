package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stashd/stashd-backend/internal/common"
	"github.com/stashd/stashd-backend/internal/domain"
	"github.com/stashd/stashd-backend/internal/repository"
	"github.com/stashd/stashd-backend/pkg/diffpatch"
	"github.com/stashd/stashd-backend/pkg/logger"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitStructured("test")
}

const (
	testUser = "user-1"
	testNote = "note-1"
)

type testEnv struct {
	repo    *fakeHistoryRepo
	store   *fakeEntityStore
	history HistoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := &fakeHistoryRepo{}
	store := newFakeEntityStore("notes")
	stores := repository.EntityStores{
		domain.EntityBookmark: newFakeEntityStore("bookmarks"),
		domain.EntityNote:     store,
		domain.EntityPrompt:   newFakeEntityStore("prompts"),
	}
	history := NewHistoryService(repo, stores, diffpatch.New(), nil)
	return &testEnv{repo: repo, store: store, history: history}
}

func strPtr(s string) *string { return &s }

// record is a test helper for one versioned or audit write; it keeps
// the fake live store in sync the way the content service would.
func (e *testEnv) record(t *testing.T, action domain.HistoryAction, current, previous *string, limits *domain.TierLimits) *domain.HistoryRecord {
	t.Helper()
	rec, err := e.history.RecordAction(RecordActionInput{
		UserID:          testUser,
		EntityType:      domain.EntityNote,
		EntityID:        testNote,
		Action:          action,
		CurrentContent:  current,
		PreviousContent: previous,
		Metadata:        domain.Metadata{"title": "a note"},
		Provenance:      domain.Provenance{Source: "web", AuthType: "jwt", TokenPrefix: "eyJhbGci"},
		Limits:          limits,
	})
	require.NoError(t, err)
	if action.Versioned() {
		if _, ok := e.store.live[testNote]; !ok {
			require.NoError(t, e.store.Insert(testUser, testNote, current, nil))
		} else {
			require.NoError(t, e.store.UpdateContent(testUser, testNote, current, nil))
		}
	}
	return rec
}

func TestRecordActionCreateInvariant(t *testing.T) {
	env := newTestEnv(t)

	rec := env.record(t, domain.ActionCreate, strPtr("A"), nil, nil)

	require.NotNil(t, rec.Version)
	assert.Equal(t, 1, *rec.Version)
	require.NotNil(t, rec.ContentSnapshot)
	assert.Equal(t, "A", *rec.ContentSnapshot)
	assert.Nil(t, rec.ContentDiff)
}

func TestRecordActionCreateWithNilContent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.record(t, domain.ActionCreate, nil, nil, nil)

	// Create is always a full anchor, even when empty.
	require.NotNil(t, rec.ContentSnapshot)
	assert.Equal(t, "", *rec.ContentSnapshot)
	assert.Nil(t, rec.ContentDiff)
}

func TestRecordActionAuditHasNoVersion(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, domain.ActionCreate, strPtr("A"), nil, nil)

	rec := env.record(t, domain.ActionDelete, nil, nil, nil)

	assert.Nil(t, rec.Version)
	assert.Nil(t, rec.ContentSnapshot)
	assert.Nil(t, rec.ContentDiff)
	assert.Equal(t, "a note", rec.MetadataSnapshot.String("title"))

	// The next versioned action continues the sequence at 2.
	next := env.record(t, domain.ActionUpdate, strPtr("AB"), strPtr("A"), nil)
	require.NotNil(t, next.Version)
	assert.Equal(t, 2, *next.Version)
}

func TestRecordActionContentChangeStoresReverseDiff(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, domain.ActionCreate, strPtr("hello"), nil, nil)

	rec := env.record(t, domain.ActionUpdate, strPtr("hello world"), strPtr("hello"), nil)

	assert.Nil(t, rec.ContentSnapshot)
	require.NotNil(t, rec.ContentDiff)

	// The stored patch transforms this version's content backward.
	codec := diffpatch.New()
	older, _, err := codec.Apply(*rec.ContentDiff, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello", older)
}

func TestRecordActionMetadataOnlyStoresNoContent(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, domain.ActionCreate, strPtr("same"), nil, nil)

	rec := env.record(t, domain.ActionUpdate, strPtr("same"), strPtr("same"), nil)

	assert.Nil(t, rec.ContentSnapshot)
	assert.Nil(t, rec.ContentDiff)
}

func TestRecordActionSnapshotBoundary(t *testing.T) {
	env := newTestEnv(t)
	content := "v1"
	env.record(t, domain.ActionCreate, strPtr(content), nil, nil)

	// Advance to version 9 with content changes.
	for v := 2; v <= 9; v++ {
		next := fmt.Sprintf("v%d", v)
		env.record(t, domain.ActionUpdate, strPtr(next), strPtr(content), nil)
		content = next
	}

	// Content change at the boundary: dual storage.
	changed := env.record(t, domain.ActionUpdate, strPtr("v10"), strPtr(content), nil)
	require.NotNil(t, changed.Version)
	assert.Equal(t, 10, *changed.Version)
	require.NotNil(t, changed.ContentSnapshot)
	assert.Equal(t, "v10", *changed.ContentSnapshot)
	assert.NotNil(t, changed.ContentDiff)
}

func TestRecordActionMetadataOnlyAtBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, domain.ActionCreate, strPtr("fixed"), nil, nil)
	for v := 2; v <= 9; v++ {
		env.record(t, domain.ActionUpdate, strPtr("fixed"), strPtr("fixed"), nil)
	}

	rec := env.record(t, domain.ActionUpdate, strPtr("fixed"), strPtr("fixed"), nil)

	require.NotNil(t, rec.Version)
	assert.Equal(t, 10, *rec.Version)
	// Anchor stored even though nothing changed; no diff.
	require.NotNil(t, rec.ContentSnapshot)
	assert.Equal(t, "fixed", *rec.ContentSnapshot)
	assert.Nil(t, rec.ContentDiff)
}

func TestRecordActionRetriesOnDuplicateVersion(t *testing.T) {
	env := newTestEnv(t)
	env.repo.insertErrs = []error{
		&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"},
		&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"},
	}

	rec := env.record(t, domain.ActionCreate, strPtr("A"), nil, nil)

	require.NotNil(t, rec.Version)
	assert.Equal(t, 1, *rec.Version)
	assert.Equal(t, 3, env.repo.inserts)
}

func TestRecordActionExhaustsRetries(t *testing.T) {
	env := newTestEnv(t)
	dup := &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	env.repo.insertErrs = []error{dup, dup, dup}

	_, err := env.history.RecordAction(RecordActionInput{
		UserID:         testUser,
		EntityType:     domain.EntityNote,
		EntityID:       testNote,
		Action:         domain.ActionCreate,
		CurrentContent: strPtr("A"),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrVersionConflict)
	assert.Equal(t, 3, env.repo.inserts)
}

func TestRecordActionOtherIntegrityErrorNoRetry(t *testing.T) {
	env := newTestEnv(t)
	fk := &mysqldriver.MySQLError{Number: 1452, Message: "foreign key constraint fails"}
	env.repo.insertErrs = []error{fk}

	_, err := env.history.RecordAction(RecordActionInput{
		UserID:         testUser,
		EntityType:     domain.EntityNote,
		EntityID:       testNote,
		Action:         domain.ActionCreate,
		CurrentContent: strPtr("A"),
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrVersionConflict)
	assert.Equal(t, 1, env.repo.inserts)
}

func TestRecordActionPruneTrigger(t *testing.T) {
	env := newTestEnv(t)
	maxHistory := 5
	limits := &domain.TierLimits{MaxHistoryPerEntity: &maxHistory, RetentionDays: 90}

	content := "v1"
	env.record(t, domain.ActionCreate, strPtr(content), nil, limits)
	env.record(t, domain.ActionArchive, nil, nil, nil)
	for v := 2; v <= 10; v++ {
		next := fmt.Sprintf("v%d", v)
		env.record(t, domain.ActionUpdate, strPtr(next), strPtr(content), limits)
		content = next
	}

	// The write at v10 hit the prune check and trimmed to the limit.
	count, err := env.repo.CountVersioned(testUser, domain.EntityNote, testNote)
	require.NoError(t, err)
	assert.Equal(t, int64(maxHistory), count)

	// Remaining versioned records are the newest; the audit record survives.
	_, err = env.repo.FindByVersion(testUser, domain.EntityNote, testNote, 5)
	assert.Error(t, err)
	rec, err := env.repo.FindByVersion(testUser, domain.EntityNote, testNote, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, *rec.Version)

	var audits int
	for _, r := range env.repo.records {
		if !r.Action.Versioned() {
			audits++
		}
	}
	assert.Equal(t, 1, audits)
}

func TestRecordActionNoPruneWithoutLimits(t *testing.T) {
	env := newTestEnv(t)
	content := "v1"
	env.record(t, domain.ActionCreate, strPtr(content), nil, nil)
	for v := 2; v <= 12; v++ {
		next := fmt.Sprintf("v%d", v)
		env.record(t, domain.ActionUpdate, strPtr(next), strPtr(content), nil)
		content = next
	}

	count, err := env.repo.CountVersioned(testUser, domain.EntityNote, testNote)
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
}

func TestRecordActionRejectsUnknownEntity(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.history.RecordAction(RecordActionInput{
		UserID:     testUser,
		EntityType: "folder",
		EntityID:   testNote,
		Action:     domain.ActionCreate,
	})

	assert.ErrorIs(t, err, common.ErrInvalidEntity)
}

func TestPruneToLimit(t *testing.T) {
	env := newTestEnv(t)
	content := "v1"
	env.record(t, domain.ActionCreate, strPtr(content), nil, nil)
	env.record(t, domain.ActionDelete, nil, nil, nil)
	env.record(t, domain.ActionUndelete, nil, nil, nil)
	for v := 2; v <= 8; v++ {
		next := fmt.Sprintf("v%d", v)
		env.record(t, domain.ActionUpdate, strPtr(next), strPtr(content), nil)
		content = next
	}

	deleted, err := env.history.PruneToLimit(testUser, domain.EntityNote, testNote, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	count, err := env.repo.CountVersioned(testUser, domain.EntityNote, testNote)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Oldest are gone, newest remain.
	_, err = env.repo.FindByVersion(testUser, domain.EntityNote, testNote, 5)
	assert.Error(t, err)
	_, err = env.repo.FindByVersion(testUser, domain.EntityNote, testNote, 6)
	assert.NoError(t, err)

	// No-op when already under the target.
	deleted, err = env.history.PruneToLimit(testUser, domain.EntityNote, testNote, 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestGetEntityHistoryOrderAndTotal(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, domain.ActionCreate, strPtr("A"), nil, nil)
	time.Sleep(2 * time.Millisecond)
	env.record(t, domain.ActionArchive, nil, nil, nil)
	time.Sleep(2 * time.Millisecond)
	env.record(t, domain.ActionUpdate, strPtr("AB"), strPtr("A"), nil)

	records, total, err := env.history.GetEntityHistory(testUser, domain.EntityNote, testNote, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 2)
	// Newest first; audit and versioned interleaved chronologically.
	assert.Equal(t, domain.ActionUpdate, records[0].Action)
	assert.Equal(t, domain.ActionArchive, records[1].Action)
}

func TestGetUserHistoryFilters(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, domain.ActionCreate, strPtr("A"), nil, nil)
	env.record(t, domain.ActionUpdate, strPtr("AB"), strPtr("A"), nil)
	env.record(t, domain.ActionDelete, nil, nil, nil)

	// Action filter.
	records, total, err := env.history.GetUserHistory(testUser, domain.HistoryFilter{
		Actions: []domain.HistoryAction{domain.ActionCreate, domain.ActionUpdate},
	}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 2)

	// Entity type filter that matches nothing.
	_, total, err = env.history.GetUserHistory(testUser, domain.HistoryFilter{
		EntityTypes: []domain.EntityType{domain.EntityPrompt},
	}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	// Empty filter means no filter.
	_, total, err = env.history.GetUserHistory(testUser, domain.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestGetHistoryAtVersion(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, domain.ActionCreate, strPtr("A"), nil, nil)

	rec, found, err := env.history.GetHistoryAtVersion(testUser, domain.EntityNote, testNote, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.ActionCreate, rec.Action)

	_, found, err = env.history.GetHistoryAtVersion(testUser, domain.EntityNote, testNote, 2)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = env.history.GetHistoryAtVersion(testUser, domain.EntityNote, testNote, 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteEntityHistory(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, domain.ActionCreate, strPtr("A"), nil, nil)
	env.record(t, domain.ActionUpdate, strPtr("AB"), strPtr("A"), nil)
	env.record(t, domain.ActionDelete, nil, nil, nil)

	deleted, err := env.history.DeleteEntityHistory(testUser, domain.EntityNote, testNote)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	_, total, err := env.history.GetEntityHistory(testUser, domain.EntityNote, testNote, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}
