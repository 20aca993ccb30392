package service

import (
	"fmt"

	"github.com/stashd/stashd-backend/internal/common"
	"github.com/stashd/stashd-backend/internal/domain"
	"github.com/stashd/stashd-backend/internal/repository"
	"github.com/stashd/stashd-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContentInput is the write payload for a content item.
type ContentInput struct {
	Content  *string         `json:"content"`
	Metadata domain.Metadata `json:"metadata"`
}

// ContentService owns the CRUD lifecycle of bookmarks, notes and
// prompts, and records every mutation into the history engine.
type ContentService interface {
	// Create inserts a new item and records v1
	Create(userID string, entityType domain.EntityType, in ContentInput, prov domain.Provenance) (string, *domain.HistoryRecord, error)
	// Update modifies an item and records an update action
	Update(userID string, entityType domain.EntityType, entityID string, in ContentInput, prov domain.Provenance) (*domain.HistoryRecord, error)
	// Get returns the live item content/metadata
	Get(userID string, entityType domain.EntityType, entityID string) (*domain.LiveContent, bool, error)
	// Delete soft-deletes an item (audit record, history preserved)
	Delete(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error
	// Undelete restores a soft-deleted item (audit record)
	Undelete(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error
	// Archive / Unarchive toggle the archived flag (audit records)
	Archive(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error
	Unarchive(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error
	// RestoreVersion rewinds content to a past version as a new version
	RestoreVersion(userID string, entityType domain.EntityType, entityID string, version int, prov domain.Provenance) (*domain.HistoryRecord, error)
	// Purge hard-deletes the item and all of its history
	Purge(userID string, entityType domain.EntityType, entityID string) (int64, error)
}

type contentService struct {
	stores  repository.EntityStores
	history HistoryService
	tiers   repository.TierResolver
	log     zerolog.Logger
}

// NewContentService creates a ContentService.
func NewContentService(stores repository.EntityStores, history HistoryService, tiers repository.TierResolver) ContentService {
	return &contentService{
		stores:  stores,
		history: history,
		tiers:   tiers,
		log:     logger.WithComponent("content"),
	}
}

func (s *contentService) store(entityType domain.EntityType) (repository.EntityStore, error) {
	store, ok := s.stores.For(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntity, entityType)
	}
	return store, nil
}

func (s *contentService) limits(userID string) *domain.TierLimits {
	limits, err := s.tiers.Limits(userID)
	if err != nil {
		// A failed tier lookup disables pruning for this write; the
		// record itself must not be lost.
		s.log.Warn().Err(err).Str("user_id", userID).Msg("tier lookup failed, writing without limits")
		return nil
	}
	return &limits
}

func (s *contentService) Create(userID string, entityType domain.EntityType, in ContentInput, prov domain.Provenance) (string, *domain.HistoryRecord, error) {
	store, err := s.store(entityType)
	if err != nil {
		return "", nil, err
	}
	entityID := uuid.NewString()
	if err := store.Insert(userID, entityID, in.Content, in.Metadata); err != nil {
		return "", nil, err
	}
	rec, err := s.history.RecordAction(RecordActionInput{
		UserID:         userID,
		EntityType:     entityType,
		EntityID:       entityID,
		Action:         domain.ActionCreate,
		CurrentContent: in.Content,
		Metadata:       in.Metadata,
		Provenance:     prov,
		Limits:         s.limits(userID),
	})
	if err != nil {
		return "", nil, err
	}
	return entityID, rec, nil
}

func (s *contentService) Update(userID string, entityType domain.EntityType, entityID string, in ContentInput, prov domain.Provenance) (*domain.HistoryRecord, error) {
	store, err := s.store(entityType)
	if err != nil {
		return nil, err
	}
	previous, found, err := store.GetLive(userID, entityID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrNotFound
	}
	if err := store.UpdateContent(userID, entityID, in.Content, in.Metadata); err != nil {
		return nil, err
	}
	return s.history.RecordAction(RecordActionInput{
		UserID:          userID,
		EntityType:      entityType,
		EntityID:        entityID,
		Action:          domain.ActionUpdate,
		CurrentContent:  in.Content,
		PreviousContent: previous.Content,
		Metadata:        in.Metadata,
		Provenance:      prov,
		Limits:          s.limits(userID),
	})
}

func (s *contentService) Get(userID string, entityType domain.EntityType, entityID string) (*domain.LiveContent, bool, error) {
	store, err := s.store(entityType)
	if err != nil {
		return nil, false, err
	}
	return store.GetLive(userID, entityID)
}

// auditAction runs a lifecycle mutation and records the matching audit
// action. Audit records carry the metadata snapshot for identification
// but never content.
func (s *contentService) auditAction(userID string, entityType domain.EntityType, entityID string, action domain.HistoryAction, mutate func(repository.EntityStore) error, prov domain.Provenance) error {
	store, err := s.store(entityType)
	if err != nil {
		return err
	}
	live, found, err := store.GetLive(userID, entityID)
	if err != nil {
		return err
	}
	if !found {
		return common.ErrNotFound
	}
	if err := mutate(store); err != nil {
		return err
	}
	_, err = s.history.RecordAction(RecordActionInput{
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Metadata:   live.Metadata,
		Provenance: prov,
	})
	return err
}

func (s *contentService) Delete(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error {
	return s.auditAction(userID, entityType, entityID, domain.ActionDelete, func(store repository.EntityStore) error {
		return store.SoftDelete(userID, entityID)
	}, prov)
}

func (s *contentService) Undelete(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error {
	return s.auditAction(userID, entityType, entityID, domain.ActionUndelete, func(store repository.EntityStore) error {
		return store.Undelete(userID, entityID)
	}, prov)
}

func (s *contentService) Archive(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error {
	return s.auditAction(userID, entityType, entityID, domain.ActionArchive, func(store repository.EntityStore) error {
		return store.SetArchived(userID, entityID, true)
	}, prov)
}

func (s *contentService) Unarchive(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error {
	return s.auditAction(userID, entityType, entityID, domain.ActionUnarchive, func(store repository.EntityStore) error {
		return store.SetArchived(userID, entityID, false)
	}, prov)
}

// RestoreVersion reconstructs a past version and writes it back as a
// new `restore` version on top of the chain; history is never rewound
// in place.
func (s *contentService) RestoreVersion(userID string, entityType domain.EntityType, entityID string, version int, prov domain.Provenance) (*domain.HistoryRecord, error) {
	store, err := s.store(entityType)
	if err != nil {
		return nil, err
	}
	live, found, err := store.GetLive(userID, entityID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrNotFound
	}
	reconstructed, err := s.history.ReconstructContentAtVersion(userID, entityType, entityID, version)
	if err != nil {
		return nil, err
	}
	if !reconstructed.Found {
		return nil, common.ErrNotFound
	}
	if err := store.UpdateContent(userID, entityID, reconstructed.Content, live.Metadata); err != nil {
		return nil, err
	}
	return s.history.RecordAction(RecordActionInput{
		UserID:          userID,
		EntityType:      entityType,
		EntityID:        entityID,
		Action:          domain.ActionRestore,
		CurrentContent:  reconstructed.Content,
		PreviousContent: live.Content,
		Metadata:        live.Metadata,
		Provenance:      prov,
		Limits:          s.limits(userID),
	})
}

// Purge removes the live row and every history record for the entity.
// Returns the number of history rows deleted.
func (s *contentService) Purge(userID string, entityType domain.EntityType, entityID string) (int64, error) {
	store, err := s.store(entityType)
	if err != nil {
		return 0, err
	}
	if err := store.HardDelete(userID, entityID); err != nil {
		return 0, err
	}
	return s.history.DeleteEntityHistory(userID, entityType, entityID)
}
