package service

import (
	"time"

	"github.com/stashd/stashd-backend/internal/domain"
	"github.com/stashd/stashd-backend/internal/repository"
	"github.com/stashd/stashd-backend/pkg/logger"

	"github.com/rs/zerolog"
)

// userBatchSize bounds how many users are held in memory per cleanup
// iteration.
const userBatchSize = 100

// CleanupStats aggregates the outcome of one cleanup run. A non-zero
// Failures count means some users or entity types were skipped; the
// run itself still completed.
type CleanupStats struct {
	UsersProcessed int              `json:"users_processed"`
	ExpiredDeleted int64            `json:"expired_deleted"`
	OrphansDeleted int64            `json:"orphans_deleted"`
	RecordsDeleted int64            `json:"records_deleted"`
	Failures       int              `json:"failures"`
	PerUser        map[string]int64 `json:"per_user,omitempty"`
	PerEntityType  map[string]int64 `json:"per_entity_type,omitempty"`
}

// Merge folds other into s.
func (s *CleanupStats) Merge(other CleanupStats) {
	s.UsersProcessed += other.UsersProcessed
	s.ExpiredDeleted += other.ExpiredDeleted
	s.OrphansDeleted += other.OrphansDeleted
	s.RecordsDeleted += other.RecordsDeleted
	s.Failures += other.Failures
	for k, v := range other.PerUser {
		if s.PerUser == nil {
			s.PerUser = map[string]int64{}
		}
		s.PerUser[k] += v
	}
	for k, v := range other.PerEntityType {
		if s.PerEntityType == nil {
			s.PerEntityType = map[string]int64{}
		}
		s.PerEntityType[k] += v
	}
}

// Summary returns a flattened key/value view for logs and responses.
func (s *CleanupStats) Summary() map[string]interface{} {
	return map[string]interface{}{
		"users_processed": s.UsersProcessed,
		"expired_deleted": s.ExpiredDeleted,
		"orphans_deleted": s.OrphansDeleted,
		"records_deleted": s.RecordsDeleted,
		"failures":        s.Failures,
	}
}

// CleanupService runs the batch retention and orphan jobs. It is meant
// to run single-flight per job; the jobs scheduler guards it with a
// redis lock when one is available.
type CleanupService interface {
	// CleanupExpiredHistory deletes history older than each user's tier
	// retention window
	CleanupExpiredHistory(now time.Time) (CleanupStats, error)
	// CleanupOrphanedHistory deletes history whose owning entity row is
	// fully absent
	CleanupOrphanedHistory() (CleanupStats, error)
	// RunCleanup runs both jobs and merges their stats
	RunCleanup(now time.Time) (CleanupStats, error)
}

type cleanupService struct {
	repo   repository.HistoryRepository
	stores repository.EntityStores
	tiers  repository.TierResolver
	log    zerolog.Logger
}

// NewCleanupService creates a CleanupService.
func NewCleanupService(repo repository.HistoryRepository, stores repository.EntityStores, tiers repository.TierResolver) CleanupService {
	return &cleanupService{
		repo:   repo,
		stores: stores,
		tiers:  tiers,
		log:    logger.WithComponent("cleanup"),
	}
}

// CleanupExpiredHistory walks users with history in keyset batches and
// deletes everything strictly older than now minus the user's tier
// retention. One user's failure is counted and the batch continues.
func (s *cleanupService) CleanupExpiredHistory(now time.Time) (CleanupStats, error) {
	stats := CleanupStats{PerUser: map[string]int64{}}

	cursor := ""
	for {
		users, err := s.repo.ListUserIDs(cursor, userBatchSize)
		if err != nil {
			return stats, err
		}
		if len(users) == 0 {
			break
		}
		for _, userID := range users {
			stats.UsersProcessed++
			limits, err := s.tiers.Limits(userID)
			if err != nil {
				stats.Failures++
				s.log.Error().Err(err).Str("user_id", userID).Msg("tier lookup failed, skipping user")
				continue
			}
			cutoff := now.AddDate(0, 0, -limits.RetentionDays)
			deleted, err := s.repo.DeleteCreatedBefore(userID, cutoff)
			if err != nil {
				stats.Failures++
				s.log.Error().Err(err).Str("user_id", userID).Msg("expired history delete failed, skipping user")
				continue
			}
			if deleted > 0 {
				stats.PerUser[userID] = deleted
			}
			stats.ExpiredDeleted += deleted
			stats.RecordsDeleted += deleted
		}
		cursor = users[len(users)-1]
		if len(users) < userBatchSize {
			break
		}
	}

	cleanupDeletedTotal.WithLabelValues("expired").Add(float64(stats.ExpiredDeleted))
	s.log.Info().
		Int("users", stats.UsersProcessed).
		Int64("deleted", stats.ExpiredDeleted).
		Int("failures", stats.Failures).
		Msg("expired history cleanup finished")
	return stats, nil
}

// CleanupOrphanedHistory removes history rows whose (entity_type,
// entity_id) no longer exists in the live table at all. Soft-deleted
// rows still exist and keep their history.
func (s *cleanupService) CleanupOrphanedHistory() (CleanupStats, error) {
	stats := CleanupStats{PerEntityType: map[string]int64{}}

	for _, entityType := range domain.AllEntityTypes() {
		store, ok := s.stores.For(entityType)
		if !ok {
			continue
		}
		deleted, err := s.repo.DeleteOrphaned(entityType, store.LiveTable())
		if err != nil {
			stats.Failures++
			s.log.Error().Err(err).Str("entity_type", string(entityType)).Msg("orphan cleanup failed, skipping type")
			continue
		}
		stats.PerEntityType[string(entityType)] = deleted
		stats.OrphansDeleted += deleted
		stats.RecordsDeleted += deleted
	}

	cleanupDeletedTotal.WithLabelValues("orphaned").Add(float64(stats.OrphansDeleted))
	s.log.Info().
		Int64("deleted", stats.OrphansDeleted).
		Int("failures", stats.Failures).
		Msg("orphan history cleanup finished")
	return stats, nil
}

func (s *cleanupService) RunCleanup(now time.Time) (CleanupStats, error) {
	stats, err := s.CleanupExpiredHistory(now)
	if err != nil {
		return stats, err
	}
	orphanStats, err := s.CleanupOrphanedHistory()
	stats.Merge(orphanStats)
	return stats, err
}
