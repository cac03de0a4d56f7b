package entitlements

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanFree Plan = "Free"
	PlanLite Plan = "Lite"
	PlanPro  Plan = "Pro"
)

// Prices in minor currency units (paise).
const (
	PriceLite int64 = 99900
	PricePro  int64 = 290000
)

// Limit returns the usage quota granted by a plan.
func Limit(p Plan) int {
	switch p {
	case PlanPro:
		return 10000
	case PlanLite:
		return 1000
	default:
		return 3
	}
}

// Price returns the full price of a plan in minor units. Free is 0.
func Price(p Plan) int64 {
	switch p {
	case PlanPro:
		return PricePro
	case PlanLite:
		return PriceLite
	default:
		return 0
	}
}

// Normalize maps arbitrary plan strings onto a known tier, defaulting to Free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "lite":
		return PlanLite
	case "pro":
		return PlanPro
	default:
		return PlanFree
	}
}

// Rank orders the tiers for upgrade/downgrade comparisons.
func Rank(p Plan) int {
	switch p {
	case PlanPro:
		return 2
	case PlanLite:
		return 1
	default:
		return 0
	}
}

// ChargeAmount computes the chargeable amount in minor units for an upgrade.
// Lite is only reachable from Free and always costs the full Lite price.
// Pro costs the Lite/Pro difference when coming from Lite (pro-rata),
// the full Pro price otherwise. Callers validate the transition first.
func ChargeAmount(from, to Plan) int64 {
	if to == PlanLite {
		return PriceLite
	}
	if from == PlanLite {
		return PricePro - PriceLite
	}
	return PricePro
}

// UpgradedUsage is the post-upgrade counter state computed for a paid transition.
type UpgradedUsage struct {
	UsageCount int
	UsageLimit int
}

// PostUpgradeUsage computes counter state after an upgrade. Coming from Free
// the counter resets and the quota is the target plan's. Coming from Lite to
// Pro, unused Lite quota is carried forward on top of the fresh Pro quota.
func PostUpgradeUsage(from, to Plan, currentUsageCount int) UpgradedUsage {
	if from == PlanFree {
		return UpgradedUsage{UsageCount: 0, UsageLimit: Limit(to)}
	}
	remaining := Limit(PlanLite) - currentUsageCount
	if remaining < 0 {
		remaining = 0
	}
	return UpgradedUsage{UsageCount: 0, UsageLimit: remaining + Limit(PlanPro)}
}

// IsSubscriptionActive reports whether a stored expiry still entitles the
// account. A paid plan whose expiry has passed is inactive for gating, but
// the stored plan field is never proactively downgraded.
func IsSubscriptionActive(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && expiresAt.After(now)
}
