package service

import (
	"fmt"
	"time"

	"github.com/stashd/stashd-backend/internal/common"
	"github.com/stashd/stashd-backend/internal/domain"
	"github.com/stashd/stashd-backend/internal/repository"
	"github.com/stashd/stashd-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// SnapshotInterval is the version boundary at which a full content
	// snapshot is stored alongside (or instead of) the reverse diff, so
	// reconstruction never walks more than SnapshotInterval-1 patches.
	SnapshotInterval = 10

	// PruneCheckInterval controls how often a versioned write checks the
	// per-entity history cap.
	PruneCheckInterval = 10

	// maxVersionRetries bounds the optimistic allocate-and-insert loop.
	maxVersionRetries = 3
)

// PatchCodec computes and applies reverse content patches.
type PatchCodec interface {
	Make(newer, older string) string
	Apply(patch, newer string) (string, []bool, error)
}

// RecordActionInput carries everything the write path needs for one
// mutation. PreviousContent is the content value before the action.
type RecordActionInput struct {
	UserID          string
	EntityType      domain.EntityType
	EntityID        string
	Action          domain.HistoryAction
	CurrentContent  *string
	PreviousContent *string
	Metadata        domain.Metadata
	Provenance      domain.Provenance
	// Limits enables count-based pruning when non-nil.
	Limits *domain.TierLimits
}

// ReconstructResult is the outcome of rebuilding content at a version.
// Found is false for unknown versions; Warnings lists corrupted diffs
// that were skipped during the walk.
type ReconstructResult struct {
	Found    bool     `json:"found"`
	Content  *string  `json:"content,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// VersionDiffResult is the before/after view of a single version.
type VersionDiffResult struct {
	Found          bool            `json:"found"`
	BeforeContent  *string         `json:"before_content,omitempty"`
	AfterContent   *string         `json:"after_content,omitempty"`
	BeforeMetadata domain.Metadata `json:"before_metadata,omitempty"`
	AfterMetadata  domain.Metadata `json:"after_metadata,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// HistoryService is the content history engine: the append-only write
// path, reconstruction, version diffing and pruning.
type HistoryService interface {
	// RecordAction appends one history record for a mutation
	RecordAction(in RecordActionInput) (*domain.HistoryRecord, error)
	// GetEntityHistory lists one entity's history, newest first
	GetEntityHistory(userID string, entityType domain.EntityType, entityID string, limit, offset int) ([]domain.HistoryRecord, int64, error)
	// GetUserHistory lists a user's history across entities with filters
	GetUserHistory(userID string, filter domain.HistoryFilter, limit, offset int) ([]domain.HistoryRecord, int64, error)
	// GetHistoryAtVersion returns the record at an exact version
	GetHistoryAtVersion(userID string, entityType domain.EntityType, entityID string, version int) (*domain.HistoryRecord, bool, error)
	// ReconstructContentAtVersion rebuilds content at a past version
	ReconstructContentAtVersion(userID string, entityType domain.EntityType, entityID string, version int) (ReconstructResult, error)
	// GetVersionDiff resolves before/after content and metadata for a version
	GetVersionDiff(userID string, entityType domain.EntityType, entityID string, version int) (VersionDiffResult, error)
	// PruneToLimit deletes the oldest versioned records beyond targetCount
	PruneToLimit(userID string, entityType domain.EntityType, entityID string, targetCount int) (int64, error)
	// DeleteEntityHistory hard-deletes all history for an entity
	DeleteEntityHistory(userID string, entityType domain.EntityType, entityID string) (int64, error)
}

type historyService struct {
	repo   repository.HistoryRepository
	stores repository.EntityStores
	codec  PatchCodec
	now    func() time.Time
	log    zerolog.Logger
}

// NewHistoryService creates a HistoryService with explicit dependencies.
// now may be nil, defaulting to time.Now.
func NewHistoryService(repo repository.HistoryRepository, stores repository.EntityStores, codec PatchCodec, now func() time.Time) HistoryService {
	if now == nil {
		now = time.Now
	}
	return &historyService{
		repo:   repo,
		stores: stores,
		codec:  codec,
		now:    now,
		log:    logger.WithComponent("history"),
	}
}

// RecordAction appends one history record. Versioned actions allocate
// the next version number optimistically: the allocate-and-insert runs
// in a nested transaction scope and is retried up to maxVersionRetries
// times when another writer wins the unique index race. Any other
// integrity violation propagates on the first attempt.
func (s *historyService) RecordAction(in RecordActionInput) (*domain.HistoryRecord, error) {
	if !in.EntityType.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntity, in.EntityType)
	}
	if !in.Action.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidAction, in.Action)
	}

	if !in.Action.Versioned() {
		// Audit actions: no version, no content fields, no prune check.
		rec := s.newRecord(in)
		if err := s.repo.Insert(rec); err != nil {
			return nil, err
		}
		historyWritesTotal.WithLabelValues(string(in.Action)).Inc()
		return rec, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		rec := s.newRecord(in)
		err := s.repo.Transaction(func(tx repository.HistoryRepository) error {
			version, err := tx.NextVersion(in.UserID, in.EntityType, in.EntityID)
			if err != nil {
				return err
			}
			rec.Version = &version
			s.applyContentStrategy(rec, in, version)

			if err := tx.Insert(rec); err != nil {
				return err
			}
			return s.maybePrune(tx, in, version)
		})
		if err == nil {
			historyWritesTotal.WithLabelValues(string(in.Action)).Inc()
			return rec, nil
		}
		if !repository.IsDuplicateVersion(err) {
			return nil, err
		}
		versionConflictsTotal.Inc()
		s.log.Debug().
			Str("entity_type", string(in.EntityType)).
			Str("entity_id", in.EntityID).
			Int("attempt", attempt+1).
			Msg("version allocation conflict, retrying")
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", common.ErrVersionConflict, maxVersionRetries, lastErr)
}

func (s *historyService) newRecord(in RecordActionInput) *domain.HistoryRecord {
	return &domain.HistoryRecord{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		EntityType:       in.EntityType,
		EntityID:         in.EntityID,
		Action:           in.Action,
		MetadataSnapshot: in.Metadata,
		Source:           in.Provenance.Source,
		AuthType:         in.Provenance.AuthType,
		TokenPrefix:      in.Provenance.TokenPrefix,
		CreatedAt:        s.now(),
	}
}

// applyContentStrategy decides snapshot vs diff vs neither for a
// versioned record. Null content diffs as the empty string.
func (s *historyService) applyContentStrategy(rec *domain.HistoryRecord, in RecordActionInput, version int) {
	if in.Action == domain.ActionCreate {
		// v1 is always a full anchor, even for empty content.
		snapshot := deref(in.CurrentContent)
		rec.ContentSnapshot = &snapshot
		return
	}

	current := deref(in.CurrentContent)
	previous := deref(in.PreviousContent)

	if current == previous {
		// Metadata-only change. At snapshot boundaries the unchanged
		// content is stored anyway as a reconstruction anchor.
		if version%SnapshotInterval == 0 {
			rec.ContentSnapshot = &current
		}
		return
	}

	patch := s.codec.Make(current, previous)
	rec.ContentDiff = &patch
	if version%SnapshotInterval == 0 {
		// Dual storage: reconstruction can stop here without climbing.
		rec.ContentSnapshot = &current
	}
}

// maybePrune enforces the per-entity cap every PruneCheckInterval
// versioned writes, inside the same transaction as the triggering
// insert. Only reachable for versioned actions.
func (s *historyService) maybePrune(tx repository.HistoryRepository, in RecordActionInput, version int) error {
	if in.Limits == nil || in.Limits.MaxHistoryPerEntity == nil {
		return nil
	}
	if version%PruneCheckInterval != 0 {
		return nil
	}
	limit := *in.Limits.MaxHistoryPerEntity
	count, err := tx.CountVersioned(in.UserID, in.EntityType, in.EntityID)
	if err != nil {
		return err
	}
	if count <= int64(limit) {
		return nil
	}
	deleted, err := tx.DeleteOldestVersioned(in.UserID, in.EntityType, in.EntityID, int(count)-limit)
	if err != nil {
		return err
	}
	historyPrunedTotal.Add(float64(deleted))
	s.log.Info().
		Str("entity_type", string(in.EntityType)).
		Str("entity_id", in.EntityID).
		Int64("deleted", deleted).
		Msg("pruned history to tier limit")
	return nil
}

func (s *historyService) GetEntityHistory(userID string, entityType domain.EntityType, entityID string, limit, offset int) ([]domain.HistoryRecord, int64, error) {
	if !entityType.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", common.ErrInvalidEntity, entityType)
	}
	return s.repo.FindByEntity(userID, entityType, entityID, limit, offset)
}

func (s *historyService) GetUserHistory(userID string, filter domain.HistoryFilter, limit, offset int) ([]domain.HistoryRecord, int64, error) {
	return s.repo.FindByUser(userID, filter, limit, offset)
}

func (s *historyService) GetHistoryAtVersion(userID string, entityType domain.EntityType, entityID string, version int) (*domain.HistoryRecord, bool, error) {
	if !entityType.Valid() || version <= 0 {
		return nil, false, nil
	}
	rec, err := s.repo.FindByVersion(userID, entityType, entityID, version)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

// PruneToLimit deletes the oldest versioned records until at most
// targetCount remain. Audit records are never deleted.
func (s *historyService) PruneToLimit(userID string, entityType domain.EntityType, entityID string, targetCount int) (int64, error) {
	if targetCount < 0 {
		targetCount = 0
	}
	count, err := s.repo.CountVersioned(userID, entityType, entityID)
	if err != nil {
		return 0, err
	}
	excess := int(count) - targetCount
	if excess <= 0 {
		return 0, nil
	}
	deleted, err := s.repo.DeleteOldestVersioned(userID, entityType, entityID, excess)
	if err != nil {
		return 0, err
	}
	historyPrunedTotal.Add(float64(deleted))
	return deleted, nil
}

func (s *historyService) DeleteEntityHistory(userID string, entityType domain.EntityType, entityID string) (int64, error) {
	if !entityType.Valid() {
		return 0, fmt.Errorf("%w: %q", common.ErrInvalidEntity, entityType)
	}
	return s.repo.DeleteByEntity(userID, entityType, entityID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
