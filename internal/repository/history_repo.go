package repository

import (
	"errors"
	"time"

	"github.com/stashd/stashd-backend/internal/domain"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// HistoryRepository handles content history data operations. All
// version-scoped methods are keyed by (userID, entityType, entityID).
type HistoryRepository interface {
	// Transaction runs fn against a transactional repository. Nested
	// calls use savepoints, so a failed inner scope can be retried
	// without losing the outer transaction.
	Transaction(fn func(tx HistoryRepository) error) error
	// Insert persists a new history record
	Insert(rec *domain.HistoryRecord) error
	// NextVersion returns the next version number for an entity (1 if none)
	NextVersion(userID string, entityType domain.EntityType, entityID string) (int, error)
	// LatestVersion returns the highest versioned number for an entity (0 if none)
	LatestVersion(userID string, entityType domain.EntityType, entityID string) (int, error)
	// FindByVersion returns the versioned record at an exact version
	FindByVersion(userID string, entityType domain.EntityType, entityID string, version int) (*domain.HistoryRecord, error)
	// NearestAnchor returns the snapshot-bearing record with the
	// smallest version >= minVersion, or nil when none exists
	NearestAnchor(userID string, entityType domain.EntityType, entityID string, minVersion int) (*domain.HistoryRecord, error)
	// VersionedBetween returns versioned records with from <= version <= to,
	// ordered by version descending
	VersionedBetween(userID string, entityType domain.EntityType, entityID string, from, to int) ([]domain.HistoryRecord, error)
	// CountVersioned returns the number of versioned records for an entity
	CountVersioned(userID string, entityType domain.EntityType, entityID string) (int64, error)
	// DeleteOldestVersioned removes the n lowest-versioned records for an
	// entity, leaving audit records untouched
	DeleteOldestVersioned(userID string, entityType domain.EntityType, entityID string, n int) (int64, error)
	// FindByEntity returns history for one entity ordered by created_at
	// descending, plus the total count
	FindByEntity(userID string, entityType domain.EntityType, entityID string, limit, offset int) ([]domain.HistoryRecord, int64, error)
	// FindByUser returns filtered cross-entity history for a user
	FindByUser(userID string, filter domain.HistoryFilter, limit, offset int) ([]domain.HistoryRecord, int64, error)
	// DeleteByEntity hard-deletes all history for an entity
	DeleteByEntity(userID string, entityType domain.EntityType, entityID string) (int64, error)
	// DeleteCreatedBefore removes all of a user's history strictly older
	// than cutoff
	DeleteCreatedBefore(userID string, cutoff time.Time) (int64, error)
	// ListUserIDs returns distinct user IDs with history, ordered,
	// strictly after afterUserID (keyset pagination: deletions cannot
	// shift the window)
	ListUserIDs(afterUserID string, limit int) ([]string, error)
	// DeleteOrphaned removes history rows of one entity type whose
	// owning row is absent from liveTable (soft-deleted rows count as
	// present)
	DeleteOrphaned(entityType domain.EntityType, liveTable string) (int64, error)
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// IsDuplicateVersion reports whether err is a uniqueness violation on
// insert, i.e. another writer won the race for this version number.
// Foreign-key and other integrity errors are not duplicates and must
// propagate.
func IsDuplicateVersion(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func (r *historyRepository) Transaction(fn func(tx HistoryRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&historyRepository{db: tx})
	})
}

func (r *historyRepository) Insert(rec *domain.HistoryRecord) error {
	return r.db.Create(rec).Error
}

func (r *historyRepository) NextVersion(userID string, entityType domain.EntityType, entityID string) (int, error) {
	latest, err := r.LatestVersion(userID, entityType, entityID)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

func (r *historyRepository) LatestVersion(userID string, entityType domain.EntityType, entityID string) (int, error) {
	var maxVersion *int
	err := r.db.Model(&domain.HistoryRecord{}).
		Where("user_id = ? AND entity_type = ? AND entity_id = ? AND version IS NOT NULL", userID, entityType, entityID).
		Select("MAX(version)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	if maxVersion == nil {
		return 0, nil
	}
	return *maxVersion, nil
}

func (r *historyRepository) FindByVersion(userID string, entityType domain.EntityType, entityID string, version int) (*domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	err := r.db.Where("user_id = ? AND entity_type = ? AND entity_id = ? AND version = ?", userID, entityType, entityID, version).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *historyRepository) NearestAnchor(userID string, entityType domain.EntityType, entityID string, minVersion int) (*domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	err := r.db.Where("user_id = ? AND entity_type = ? AND entity_id = ? AND version >= ? AND content_snapshot IS NOT NULL",
		userID, entityType, entityID, minVersion).
		Order("version ASC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *historyRepository) VersionedBetween(userID string, entityType domain.EntityType, entityID string, from, to int) ([]domain.HistoryRecord, error) {
	var recs []domain.HistoryRecord
	err := r.db.Where("user_id = ? AND entity_type = ? AND entity_id = ? AND version >= ? AND version <= ?",
		userID, entityType, entityID, from, to).
		Order("version DESC").
		Find(&recs).Error
	return recs, err
}

func (r *historyRepository) CountVersioned(userID string, entityType domain.EntityType, entityID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.HistoryRecord{}).
		Where("user_id = ? AND entity_type = ? AND entity_id = ? AND version IS NOT NULL", userID, entityType, entityID).
		Count(&count).Error
	return count, err
}

func (r *historyRepository) DeleteOldestVersioned(userID string, entityType domain.EntityType, entityID string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	// MySQL supports ORDER BY + LIMIT on DELETE directly.
	result := r.db.Where("user_id = ? AND entity_type = ? AND entity_id = ? AND version IS NOT NULL",
		userID, entityType, entityID).
		Order("version ASC").
		Limit(n).
		Delete(&domain.HistoryRecord{})
	return result.RowsAffected, result.Error
}

func (r *historyRepository) FindByEntity(userID string, entityType domain.EntityType, entityID string, limit, offset int) ([]domain.HistoryRecord, int64, error) {
	query := r.db.Model(&domain.HistoryRecord{}).
		Where("user_id = ? AND entity_type = ? AND entity_id = ?", userID, entityType, entityID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []domain.HistoryRecord
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	return recs, total, err
}

func (r *historyRepository) FindByUser(userID string, filter domain.HistoryFilter, limit, offset int) ([]domain.HistoryRecord, int64, error) {
	query := r.db.Model(&domain.HistoryRecord{}).Where("user_id = ?", userID)

	if len(filter.EntityTypes) > 0 {
		query = query.Where("entity_type IN ?", filter.EntityTypes)
	}
	if len(filter.Actions) > 0 {
		query = query.Where("action IN ?", filter.Actions)
	}
	if len(filter.Sources) > 0 {
		query = query.Where("source IN ?", filter.Sources)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []domain.HistoryRecord
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	return recs, total, err
}

func (r *historyRepository) DeleteByEntity(userID string, entityType domain.EntityType, entityID string) (int64, error) {
	result := r.db.Where("user_id = ? AND entity_type = ? AND entity_id = ?", userID, entityType, entityID).
		Delete(&domain.HistoryRecord{})
	return result.RowsAffected, result.Error
}

func (r *historyRepository) DeleteCreatedBefore(userID string, cutoff time.Time) (int64, error) {
	// Strictly older than cutoff: rows created exactly at the cutoff
	// instant are retained.
	result := r.db.Where("user_id = ? AND created_at < ?", userID, cutoff).
		Delete(&domain.HistoryRecord{})
	return result.RowsAffected, result.Error
}

func (r *historyRepository) ListUserIDs(afterUserID string, limit int) ([]string, error) {
	var userIDs []string
	err := r.db.Model(&domain.HistoryRecord{}).
		Distinct("user_id").
		Where("user_id > ?", afterUserID).
		Order("user_id ASC").
		Limit(limit).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}

func (r *historyRepository) DeleteOrphaned(entityType domain.EntityType, liveTable string) (int64, error) {
	// liveTable comes from the closed entity dispatch table, never from
	// user input. The anti-join ignores soft deletion: any physical row
	// in the live table keeps its history.
	result := r.db.Exec(
		"DELETE FROM content_history WHERE entity_type = ? AND NOT EXISTS ("+
			"SELECT 1 FROM "+liveTable+" e WHERE e.id = content_history.entity_id AND e.user_id = content_history.user_id)",
		entityType,
	)
	return result.RowsAffected, result.Error
}
