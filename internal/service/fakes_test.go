package service

import (
	"sort"
	"sync"
	"time"

	"github.com/stashd/stashd-backend/internal/domain"
	"github.com/stashd/stashd-backend/internal/repository"

	"gorm.io/gorm"
)

// fakeHistoryRepo is an in-memory HistoryRepository with the same
// semantics as the MySQL implementation, including strict-inequality
// retention and version uniqueness.
type fakeHistoryRepo struct {
	mu      sync.Mutex
	records []*domain.HistoryRecord

	// insertErrs is a FIFO of errors returned by Insert before real
	// inserts resume; used to simulate constraint violations.
	insertErrs []error
	inserts    int

	// liveRows marks "entityType/entityID" keys whose live row still
	// exists (soft-deleted included) for DeleteOrphaned.
	liveRows map[string]bool
}

var _ repository.HistoryRepository = (*fakeHistoryRepo)(nil)

func (f *fakeHistoryRepo) Transaction(fn func(tx repository.HistoryRepository) error) error {
	return fn(f)
}

func (f *fakeHistoryRepo) Insert(rec *domain.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		if err != nil {
			return err
		}
	}
	cp := *rec
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeHistoryRepo) entityRecords(userID string, entityType domain.EntityType, entityID string) []*domain.HistoryRecord {
	var out []*domain.HistoryRecord
	for _, r := range f.records {
		if r.UserID == userID && r.EntityType == entityType && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeHistoryRepo) NextVersion(userID string, entityType domain.EntityType, entityID string) (int, error) {
	latest, err := f.LatestVersion(userID, entityType, entityID)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

func (f *fakeHistoryRepo) LatestVersion(userID string, entityType domain.EntityType, entityID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := 0
	for _, r := range f.entityRecords(userID, entityType, entityID) {
		if r.Version != nil && *r.Version > latest {
			latest = *r.Version
		}
	}
	return latest, nil
}

func (f *fakeHistoryRepo) FindByVersion(userID string, entityType domain.EntityType, entityID string, version int) (*domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.entityRecords(userID, entityType, entityID) {
		if r.Version != nil && *r.Version == version {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeHistoryRepo) NearestAnchor(userID string, entityType domain.EntityType, entityID string, minVersion int) (*domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.HistoryRecord
	for _, r := range f.entityRecords(userID, entityType, entityID) {
		if r.Version == nil || r.ContentSnapshot == nil || *r.Version < minVersion {
			continue
		}
		if best == nil || *r.Version < *best.Version {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeHistoryRepo) VersionedBetween(userID string, entityType domain.EntityType, entityID string, from, to int) ([]domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.HistoryRecord
	for _, r := range f.entityRecords(userID, entityType, entityID) {
		if r.Version != nil && *r.Version >= from && *r.Version <= to {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Version > *out[j].Version })
	return out, nil
}

func (f *fakeHistoryRepo) CountVersioned(userID string, entityType domain.EntityType, entityID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, r := range f.entityRecords(userID, entityType, entityID) {
		if r.Version != nil {
			count++
		}
	}
	return count, nil
}

func (f *fakeHistoryRepo) DeleteOldestVersioned(userID string, entityType domain.EntityType, entityID string, n int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var versioned []*domain.HistoryRecord
	for _, r := range f.entityRecords(userID, entityType, entityID) {
		if r.Version != nil {
			versioned = append(versioned, r)
		}
	}
	sort.Slice(versioned, func(i, j int) bool { return *versioned[i].Version < *versioned[j].Version })
	if n > len(versioned) {
		n = len(versioned)
	}
	doomed := map[*domain.HistoryRecord]bool{}
	for _, r := range versioned[:n] {
		doomed[r] = true
	}
	return f.deleteWhere(func(r *domain.HistoryRecord) bool { return doomed[r] }), nil
}

func (f *fakeHistoryRepo) FindByEntity(userID string, entityType domain.EntityType, entityID string, limit, offset int) ([]domain.HistoryRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.HistoryRecord
	for _, r := range f.entityRecords(userID, entityType, entityID) {
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeHistoryRepo) FindByUser(userID string, filter domain.HistoryFilter, limit, offset int) ([]domain.HistoryRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.HistoryRecord
	for _, r := range f.records {
		if r.UserID != userID || !matchesFilter(r, filter) {
			continue
		}
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func matchesFilter(r *domain.HistoryRecord, filter domain.HistoryFilter) bool {
	contains := func(values []string, v string) bool {
		for _, x := range values {
			if x == v {
				return true
			}
		}
		return false
	}
	if len(filter.EntityTypes) > 0 {
		ok := false
		for _, t := range filter.EntityTypes {
			if t == r.EntityType {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if len(filter.Actions) > 0 {
		ok := false
		for _, a := range filter.Actions {
			if a == r.Action {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if len(filter.Sources) > 0 && !contains(filter.Sources, r.Source) {
		return false
	}
	if filter.From != nil && r.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && r.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}

func (f *fakeHistoryRepo) DeleteByEntity(userID string, entityType domain.EntityType, entityID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteWhere(func(r *domain.HistoryRecord) bool {
		return r.UserID == userID && r.EntityType == entityType && r.EntityID == entityID
	}), nil
}

func (f *fakeHistoryRepo) DeleteCreatedBefore(userID string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteWhere(func(r *domain.HistoryRecord) bool {
		return r.UserID == userID && r.CreatedAt.Before(cutoff)
	}), nil
}

func (f *fakeHistoryRepo) ListUserIDs(afterUserID string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var users []string
	for _, r := range f.records {
		if r.UserID > afterUserID && !seen[r.UserID] {
			seen[r.UserID] = true
			users = append(users, r.UserID)
		}
	}
	sort.Strings(users)
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (f *fakeHistoryRepo) DeleteOrphaned(entityType domain.EntityType, liveTable string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.liveRows == nil {
		return 0, nil
	}
	return f.deleteWhere(func(r *domain.HistoryRecord) bool {
		return r.EntityType == entityType && !f.liveRows[string(entityType)+"/"+r.EntityID]
	}), nil
}

// fakeEntityStore is an in-memory EntityStore for one entity type.
type fakeEntityStore struct {
	table string
	// live maps entityID to current state; absent means hard-deleted.
	live map[string]*fakeLiveRow
}

type fakeLiveRow struct {
	content     *string
	meta        domain.Metadata
	softDeleted bool
	archived    bool
}

var _ repository.EntityStore = (*fakeEntityStore)(nil)

func newFakeEntityStore(table string) *fakeEntityStore {
	return &fakeEntityStore{table: table, live: map[string]*fakeLiveRow{}}
}

func (s *fakeEntityStore) LiveTable() string { return s.table }

func (s *fakeEntityStore) GetLive(userID, entityID string) (*domain.LiveContent, bool, error) {
	row, ok := s.live[entityID]
	if !ok {
		return nil, false, nil
	}
	return &domain.LiveContent{Content: row.content, Metadata: row.meta}, true, nil
}

func (s *fakeEntityStore) Insert(userID, entityID string, content *string, meta domain.Metadata) error {
	s.live[entityID] = &fakeLiveRow{content: content, meta: meta}
	return nil
}

func (s *fakeEntityStore) UpdateContent(userID, entityID string, content *string, meta domain.Metadata) error {
	if row, ok := s.live[entityID]; ok {
		row.content = content
		row.meta = meta
	}
	return nil
}

func (s *fakeEntityStore) SoftDelete(userID, entityID string) error {
	if row, ok := s.live[entityID]; ok {
		row.softDeleted = true
	}
	return nil
}

func (s *fakeEntityStore) Undelete(userID, entityID string) error {
	if row, ok := s.live[entityID]; ok {
		row.softDeleted = false
	}
	return nil
}

func (s *fakeEntityStore) SetArchived(userID, entityID string, archived bool) error {
	if row, ok := s.live[entityID]; ok {
		row.archived = archived
	}
	return nil
}

func (s *fakeEntityStore) HardDelete(userID, entityID string) error {
	delete(s.live, entityID)
	return nil
}

// fakeTierResolver returns fixed limits per user.
type fakeTierResolver struct {
	limits map[string]domain.TierLimits
	errs   map[string]error
	def    domain.TierLimits
}

var _ repository.TierResolver = (*fakeTierResolver)(nil)

func (f *fakeTierResolver) Limits(userID string) (domain.TierLimits, error) {
	if err, ok := f.errs[userID]; ok {
		return domain.TierLimits{}, err
	}
	if l, ok := f.limits[userID]; ok {
		return l, nil
	}
	return f.def, nil
}

// deleteWhere removes matching records; caller holds the lock.
func (f *fakeHistoryRepo) deleteWhere(match func(*domain.HistoryRecord) bool) int64 {
	var kept []*domain.HistoryRecord
	var deleted int64
	for _, r := range f.records {
		if match(r) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.records = kept
	return deleted
}
