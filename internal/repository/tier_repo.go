package repository

import (
	"errors"
	"fmt"

	"github.com/stashd/stashd-backend/internal/domain"

	"gorm.io/gorm"
)

// TierResolver resolves per-user history limits.
type TierResolver interface {
	// Limits returns the resolved limits for a user, falling back to the
	// default tier when the user has no tier row
	Limits(userID string) (domain.TierLimits, error)
}

type tierRepository struct {
	db          *gorm.DB
	policies    map[string]domain.TierLimits
	defaultTier string
}

// NewTierRepository creates a TierResolver backed by the user_tiers
// table and a tier-name -> limits policy map.
func NewTierRepository(db *gorm.DB, policies map[string]domain.TierLimits, defaultTier string) (TierResolver, error) {
	if _, ok := policies[defaultTier]; !ok {
		return nil, fmt.Errorf("default tier %q has no policy", defaultTier)
	}
	return &tierRepository{db: db, policies: policies, defaultTier: defaultTier}, nil
}

func (r *tierRepository) Limits(userID string) (domain.TierLimits, error) {
	tier := r.defaultTier
	var row domain.UserTier
	err := r.db.Where("user_id = ?", userID).First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TierLimits{}, err
	}
	if err == nil && row.Tier != "" {
		tier = row.Tier
	}
	limits, ok := r.policies[tier]
	if !ok {
		// Unknown tier name in the table: treat as default rather than
		// failing the caller's write.
		limits = r.policies[r.defaultTier]
	}
	return limits, nil
}
