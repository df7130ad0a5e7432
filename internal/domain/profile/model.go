package profile

import (
	"context"
	"strings"
)

// Profile is the subset of a user profile this service reads to decide
// post-processing behavior.
type Profile struct {
	ID                 string
	Email              string
	SubscriptionTier   string
	SubscriptionStatus string
}

// Store reads user profiles.
type Store interface {
	// GetByUserID returns nil when no profile exists for the user.
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
}

// IsFreeTier reports whether the user's output gets a watermark. A
// missing profile, a missing tier, and the trial tier all count as
// free.
func (p *Profile) IsFreeTier() bool {
	if p == nil {
		return true
	}
	tier := strings.ToLower(strings.TrimSpace(p.SubscriptionTier))
	return tier == "" || tier == "free" || tier == "trial"
}

// Tier returns the tier name used in diagnostics, falling back to the
// subscription status when the tier column is empty.
func (p *Profile) Tier() string {
	if p == nil {
		return "free"
	}
	if tier := strings.TrimSpace(p.SubscriptionTier); tier != "" {
		return tier
	}
	if status := strings.TrimSpace(p.SubscriptionStatus); status != "" {
		return status
	}
	return "free"
}
