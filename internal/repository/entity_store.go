package repository

import (
	"errors"

	"github.com/stashd/stashd-backend/internal/domain"

	"gorm.io/gorm"
)

// EntityStore is the live-entity collaborator for one entity type: the
// history engine reads current content through it and the cleanup jobs
// use its table for the orphan anti-join. Lookups include soft-deleted
// rows; a soft-deleted item still owns its history.
type EntityStore interface {
	// LiveTable returns the physical table name
	LiveTable() string
	// GetLive returns current content/metadata; found is false only when
	// the row is fully absent
	GetLive(userID, entityID string) (*domain.LiveContent, bool, error)
	// Insert creates a new live row
	Insert(userID, entityID string, content *string, meta domain.Metadata) error
	// UpdateContent updates content and metadata on the live row
	UpdateContent(userID, entityID string, content *string, meta domain.Metadata) error
	// SoftDelete marks the row deleted without removing it
	SoftDelete(userID, entityID string) error
	// Undelete clears the soft-delete mark
	Undelete(userID, entityID string) error
	// SetArchived toggles the archived flag
	SetArchived(userID, entityID string, archived bool) error
	// HardDelete removes the row permanently
	HardDelete(userID, entityID string) error
}

// EntityStores routes by entity type. Dispatch is a closed table, not
// runtime type inspection.
type EntityStores map[domain.EntityType]EntityStore

// NewEntityStores builds the dispatch table over one DB handle.
func NewEntityStores(db *gorm.DB) EntityStores {
	return EntityStores{
		domain.EntityBookmark: &bookmarkStore{db: db},
		domain.EntityNote:     &noteStore{db: db},
		domain.EntityPrompt:   &promptStore{db: db},
	}
}

// For returns the store for an entity type.
func (s EntityStores) For(t domain.EntityType) (EntityStore, bool) {
	store, ok := s[t]
	return store, ok
}

type bookmarkStore struct {
	db *gorm.DB
}

func (s *bookmarkStore) LiveTable() string { return domain.Bookmark{}.TableName() }

func (s *bookmarkStore) GetLive(userID, entityID string) (*domain.LiveContent, bool, error) {
	var b domain.Bookmark
	err := s.db.Unscoped().Where("id = ? AND user_id = ?", entityID, userID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	meta := domain.Metadata{"title": b.Title, "url": b.URL}
	for k, v := range b.Meta {
		meta[k] = v
	}
	return &domain.LiveContent{Content: b.Content, Metadata: meta}, true, nil
}

func (s *bookmarkStore) Insert(userID, entityID string, content *string, meta domain.Metadata) error {
	return s.db.Create(&domain.Bookmark{
		ID:      entityID,
		UserID:  userID,
		URL:     meta.String("url"),
		Title:   meta.String("title"),
		Content: content,
		Meta:    meta,
	}).Error
}

func (s *bookmarkStore) UpdateContent(userID, entityID string, content *string, meta domain.Metadata) error {
	return s.db.Model(&domain.Bookmark{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Updates(map[string]interface{}{
			"url":     meta.String("url"),
			"title":   meta.String("title"),
			"content": content,
			"meta":    meta,
		}).Error
}

func (s *bookmarkStore) SoftDelete(userID, entityID string) error {
	return s.db.Where("id = ? AND user_id = ?", entityID, userID).Delete(&domain.Bookmark{}).Error
}

func (s *bookmarkStore) Undelete(userID, entityID string) error {
	return s.db.Unscoped().Model(&domain.Bookmark{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Update("deleted_at", nil).Error
}

func (s *bookmarkStore) SetArchived(userID, entityID string, archived bool) error {
	return s.db.Model(&domain.Bookmark{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Update("archived", archived).Error
}

func (s *bookmarkStore) HardDelete(userID, entityID string) error {
	return s.db.Unscoped().Where("id = ? AND user_id = ?", entityID, userID).Delete(&domain.Bookmark{}).Error
}

type noteStore struct {
	db *gorm.DB
}

func (s *noteStore) LiveTable() string { return domain.Note{}.TableName() }

func (s *noteStore) GetLive(userID, entityID string) (*domain.LiveContent, bool, error) {
	var n domain.Note
	err := s.db.Unscoped().Where("id = ? AND user_id = ?", entityID, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	meta := domain.Metadata{"title": n.Title}
	for k, v := range n.Meta {
		meta[k] = v
	}
	return &domain.LiveContent{Content: n.Content, Metadata: meta}, true, nil
}

func (s *noteStore) Insert(userID, entityID string, content *string, meta domain.Metadata) error {
	return s.db.Create(&domain.Note{
		ID:      entityID,
		UserID:  userID,
		Title:   meta.String("title"),
		Content: content,
		Meta:    meta,
	}).Error
}

func (s *noteStore) UpdateContent(userID, entityID string, content *string, meta domain.Metadata) error {
	return s.db.Model(&domain.Note{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Updates(map[string]interface{}{
			"title":   meta.String("title"),
			"content": content,
			"meta":    meta,
		}).Error
}

func (s *noteStore) SoftDelete(userID, entityID string) error {
	return s.db.Where("id = ? AND user_id = ?", entityID, userID).Delete(&domain.Note{}).Error
}

func (s *noteStore) Undelete(userID, entityID string) error {
	return s.db.Unscoped().Model(&domain.Note{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Update("deleted_at", nil).Error
}

func (s *noteStore) SetArchived(userID, entityID string, archived bool) error {
	return s.db.Model(&domain.Note{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Update("archived", archived).Error
}

func (s *noteStore) HardDelete(userID, entityID string) error {
	return s.db.Unscoped().Where("id = ? AND user_id = ?", entityID, userID).Delete(&domain.Note{}).Error
}

type promptStore struct {
	db *gorm.DB
}

func (s *promptStore) LiveTable() string { return domain.Prompt{}.TableName() }

func (s *promptStore) GetLive(userID, entityID string) (*domain.LiveContent, bool, error) {
	var p domain.Prompt
	err := s.db.Unscoped().Where("id = ? AND user_id = ?", entityID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	meta := domain.Metadata{"title": p.Title}
	for k, v := range p.Meta {
		meta[k] = v
	}
	return &domain.LiveContent{Content: p.Content, Metadata: meta}, true, nil
}

func (s *promptStore) Insert(userID, entityID string, content *string, meta domain.Metadata) error {
	return s.db.Create(&domain.Prompt{
		ID:      entityID,
		UserID:  userID,
		Title:   meta.String("title"),
		Content: content,
		Meta:    meta,
	}).Error
}

func (s *promptStore) UpdateContent(userID, entityID string, content *string, meta domain.Metadata) error {
	return s.db.Model(&domain.Prompt{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Updates(map[string]interface{}{
			"title":   meta.String("title"),
			"content": content,
			"meta":    meta,
		}).Error
}

func (s *promptStore) SoftDelete(userID, entityID string) error {
	return s.db.Where("id = ? AND user_id = ?", entityID, userID).Delete(&domain.Prompt{}).Error
}

func (s *promptStore) Undelete(userID, entityID string) error {
	return s.db.Unscoped().Model(&domain.Prompt{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Update("deleted_at", nil).Error
}

func (s *promptStore) SetArchived(userID, entityID string, archived bool) error {
	return s.db.Model(&domain.Prompt{}).
		Where("id = ? AND user_id = ?", entityID, userID).
		Update("archived", archived).Error
}

func (s *promptStore) HardDelete(userID, entityID string) error {
	return s.db.Unscoped().Where("id = ? AND user_id = ?", entityID, userID).Delete(&domain.Prompt{}).Error
}
