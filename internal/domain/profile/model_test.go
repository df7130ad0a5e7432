package profile_test

import (
	"testing"

	"mediaforge/services/generation-api/internal/domain/profile"
)

func TestIsFreeTier(t *testing.T) {
	tests := []struct {
		name string
		prof *profile.Profile
		want bool
	}{
		{name: "nil profile", prof: nil, want: true},
		{name: "empty tier", prof: &profile.Profile{}, want: true},
		{name: "free", prof: &profile.Profile{SubscriptionTier: "free"}, want: true},
		{name: "trial", prof: &profile.Profile{SubscriptionTier: "trial"}, want: true},
		{name: "case and whitespace", prof: &profile.Profile{SubscriptionTier: "  Free "}, want: true},
		{name: "pro", prof: &profile.Profile{SubscriptionTier: "pro"}, want: false},
		{name: "enterprise", prof: &profile.Profile{SubscriptionTier: "enterprise"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prof.IsFreeTier(); got != tt.want {
				t.Errorf("IsFreeTier() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTier(t *testing.T) {
	tests := []struct {
		name string
		prof *profile.Profile
		want string
	}{
		{name: "nil profile", prof: nil, want: "free"},
		{name: "tier set", prof: &profile.Profile{SubscriptionTier: "pro"}, want: "pro"},
		{
			name: "falls back to status",
			prof: &profile.Profile{SubscriptionStatus: "active"},
			want: "active",
		},
		{name: "both empty", prof: &profile.Profile{}, want: "free"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prof.Tier(); got != tt.want {
				t.Errorf("Tier() = %q, want %q", got, tt.want)
			}
		})
	}
}
