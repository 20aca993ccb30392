package service

import (
	"errors"
	"fmt"

	"github.com/stashd/stashd-backend/internal/domain"

	"gorm.io/gorm"
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ReconstructContentAtVersion rebuilds the exact content at a past
// version by walking reverse diffs down from the nearest anchor at or
// above the target. Corrupted diffs are skipped with a warning and the
// walk continues on the unmodified working content; reconstruction
// never fails because of a bad patch.
func (s *historyService) ReconstructContentAtVersion(userID string, entityType domain.EntityType, entityID string, version int) (ReconstructResult, error) {
	if !entityType.Valid() || version <= 0 {
		return ReconstructResult{}, nil
	}

	latest, err := s.repo.LatestVersion(userID, entityType, entityID)
	if err != nil {
		return ReconstructResult{}, err
	}
	if latest == 0 || version > latest {
		return ReconstructResult{}, nil
	}

	// Fast path: the latest version is by definition the live row's
	// current content. No patch application, so it is always consistent
	// with the entity table.
	if version == latest {
		if store, ok := s.stores.For(entityType); ok {
			live, found, err := store.GetLive(userID, entityID)
			if err != nil {
				return ReconstructResult{}, err
			}
			if found {
				return ReconstructResult{Found: true, Content: live.Content}, nil
			}
			// Live row hard-deleted but history still present: fall
			// through to the anchor walk.
		}
	}

	target, err := s.repo.FindByVersion(userID, entityType, entityID, version)
	if err != nil {
		if isNotFound(err) {
			return ReconstructResult{}, nil
		}
		return ReconstructResult{}, err
	}
	if target.IsAnchor() {
		content := *target.ContentSnapshot
		return ReconstructResult{Found: true, Content: &content}, nil
	}

	anchorVersion, content, ok, err := s.pickAnchor(userID, entityType, entityID, version, latest)
	if err != nil {
		return ReconstructResult{}, err
	}
	if !ok {
		// Entity permanently removed and no snapshot survives.
		return ReconstructResult{}, nil
	}

	var warnings []string
	if anchorVersion > version {
		// Walk anchor..target+1 descending, applying each record's
		// reverse diff. Metadata-only records carry no diff and are
		// skipped silently.
		recs, err := s.repo.VersionedBetween(userID, entityType, entityID, version+1, anchorVersion)
		if err != nil {
			return ReconstructResult{}, err
		}
		for _, rec := range recs {
			if rec.ContentDiff == nil {
				continue
			}
			older, _, applyErr := s.codec.Apply(*rec.ContentDiff, content)
			if applyErr != nil {
				warnings = append(warnings, fmt.Sprintf("corrupted diff at v%d", *rec.Version))
				continue
			}
			content = older
		}
	}
	return ReconstructResult{Found: true, Content: &content, Warnings: warnings}, nil
}

// pickAnchor selects the reconstruction starting point for a target
// version: the stored snapshot with the smallest version >= target, or
// the live row's content standing in as an anchor at the latest
// version when no stored snapshot exists above the target.
func (s *historyService) pickAnchor(userID string, entityType domain.EntityType, entityID string, version, latest int) (int, string, bool, error) {
	anchor, err := s.repo.NearestAnchor(userID, entityType, entityID, version)
	if err != nil {
		return 0, "", false, err
	}
	if anchor != nil {
		return *anchor.Version, *anchor.ContentSnapshot, true, nil
	}

	store, ok := s.stores.For(entityType)
	if !ok {
		return 0, "", false, nil
	}
	live, found, err := store.GetLive(userID, entityID)
	if err != nil {
		return 0, "", false, err
	}
	if !found {
		return 0, "", false, nil
	}
	return latest, deref(live.Content), true, nil
}

// GetVersionDiff resolves the before/after view of one version.
// BeforeContent comes from the version's own reverse diff, so it works
// even when the predecessor row has been pruned. BeforeMetadata is the
// predecessor's stored snapshot and is nil once that row is gone;
// metadata has no diff chain to recover it from.
func (s *historyService) GetVersionDiff(userID string, entityType domain.EntityType, entityID string, version int) (VersionDiffResult, error) {
	if !entityType.Valid() || version <= 0 {
		return VersionDiffResult{}, nil
	}

	rec, err := s.repo.FindByVersion(userID, entityType, entityID, version)
	if err != nil {
		if isNotFound(err) {
			return VersionDiffResult{}, nil
		}
		return VersionDiffResult{}, err
	}

	result := VersionDiffResult{
		Found:         true,
		AfterMetadata: rec.MetadataSnapshot,
	}

	// A version represents a content change when it carries a reverse
	// diff, or when it is the create record. Metadata-only versions have
	// no after-content.
	contentChange := rec.ContentDiff != nil || rec.Action == domain.ActionCreate
	if contentChange {
		after, err := s.ReconstructContentAtVersion(userID, entityType, entityID, version)
		if err != nil {
			return VersionDiffResult{}, err
		}
		result.AfterContent = after.Content
		result.Warnings = after.Warnings

		if rec.ContentDiff != nil {
			before, _, applyErr := s.codec.Apply(*rec.ContentDiff, deref(after.Content))
			if applyErr != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("corrupted diff at v%d", version))
			} else {
				result.BeforeContent = &before
			}
		}
	}

	if version > 1 {
		pred, err := s.repo.FindByVersion(userID, entityType, entityID, version-1)
		if err != nil && !isNotFound(err) {
			return VersionDiffResult{}, err
		}
		if err == nil {
			result.BeforeMetadata = pred.MetadataSnapshot
		}
	}
	return result, nil
}
