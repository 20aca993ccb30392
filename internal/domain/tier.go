package domain

// UserTier maps a user to a named tier. Users without a row resolve to
// the default tier.
type UserTier struct {
	UserID string `gorm:"column:user_id;primaryKey;size:36" json:"user_id"`
	Tier   string `gorm:"column:tier;size:30" json:"tier"`
}

func (UserTier) TableName() string { return "user_tiers" }

// TierLimits are the resolved history limits for one user.
// MaxHistoryPerEntity nil means no per-entity cap (no pruning).
type TierLimits struct {
	MaxHistoryPerEntity *int `json:"max_history_per_entity,omitempty" yaml:"max_history_per_entity,omitempty"`
	RetentionDays       int  `json:"history_retention_days" yaml:"history_retention_days"`
}
