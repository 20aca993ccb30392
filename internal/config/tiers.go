package config

import (
	"fmt"
	"os"

	"github.com/stashd/stashd-backend/internal/domain"

	"gopkg.in/yaml.v3"
)

// defaultTierPolicies apply when no policy file is present.
func defaultTierPolicies() map[string]domain.TierLimits {
	free := 50
	pro := 200
	return map[string]domain.TierLimits{
		"free": {MaxHistoryPerEntity: &free, RetentionDays: 90},
		"pro":  {MaxHistoryPerEntity: &pro, RetentionDays: 365},
		// Unlimited versions per entity; retention still applies.
		"team": {RetentionDays: 730},
	}
}

// LoadTierPolicies reads the tier policy yaml. A missing file falls
// back to the built-in defaults; a malformed file is an error.
func LoadTierPolicies(path string) (map[string]domain.TierLimits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultTierPolicies(), nil
		}
		return nil, err
	}

	var policies map[string]domain.TierLimits
	if err := yaml.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("parsing tier policy %s: %w", path, err)
	}
	if len(policies) == 0 {
		return defaultTierPolicies(), nil
	}
	return policies, nil
}
