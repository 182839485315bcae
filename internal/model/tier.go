package model

// Tier names
const (
	TierFree    = "free"
	TierStarter = "starter"
	TierPro     = "pro"
	TierAgency  = "agency"
)

// Unlimited is the monthly limit sentinel for tiers without a quota
const Unlimited = -1

// TierPolicy is the static policy attached to a tier
type TierPolicy struct {
	MonthlyLimit   int
	MaxActivations int
	Features       []string
}

var tiers = map[string]TierPolicy{
	TierFree: {
		MonthlyLimit:   0,
		MaxActivations: 1,
		Features:       []string{"compress"},
	},
	TierStarter: {
		MonthlyLimit:   1000,
		MaxActivations: 1,
		Features:       []string{"compress", "webp", "resize"},
	},
	TierPro: {
		MonthlyLimit:   10000,
		MaxActivations: 3,
		Features:       []string{"compress", "webp", "resize", "bulk_optimize", "priority_queue"},
	},
	TierAgency: {
		MonthlyLimit:   Unlimited,
		MaxActivations: 10,
		Features:       []string{"compress", "webp", "resize", "bulk_optimize", "priority_queue", "white_label", "multi_site"},
	},
}

// Policy returns the policy for tier
func Policy(tier string) (TierPolicy, bool) {
	p, ok := tiers[tier]
	if !ok {
		return TierPolicy{}, false
	}
	p.Features = append([]string(nil), p.Features...)
	return p, true
}

// ValidTier reports whether tier is known
func ValidTier(tier string) bool {
	_, ok := tiers[tier]
	return ok
}
