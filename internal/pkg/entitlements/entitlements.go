package entitlements

import (
	"strings"
	"time"

	"github.com/Shah039zaib/b2automate/app/models"
)

// Plan is the billing tier category written to Tenant.AIPlan.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Tier is the AI model-access tier written to Tenant.AITier.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierBasic   Tier = "BASIC"
	TierPro     Tier = "PRO"
	TierPremium Tier = "PREMIUM"
)

// State is the entitlement snapshot a plan grants.
type State struct {
	Plan         Plan `json:"ai_plan"`
	Tier         Tier `json:"ai_tier"`
	DailyLimit   int  `json:"ai_daily_limit"`
	MonthlyLimit int  `json:"ai_monthly_limit"`
}

// Free is the baseline shape every tenant falls back to on loss of paid status.
var Free = State{
	Plan:         PlanFree,
	Tier:         TierFree,
	DailyLimit:   50,
	MonthlyLimit: 1000,
}

// NormalizePlan maps free-form plan names onto known plans; unknown values are free.
func NormalizePlan(plan string) Plan {
	switch p := Plan(strings.ToLower(strings.TrimSpace(plan))); p {
	case PlanStarter, PlanPro, PlanEnterprise:
		return p
	default:
		return PlanFree
	}
}

// NormalizeTier maps free-form tier names onto known tiers; unknown values are FREE.
func NormalizeTier(tier string) Tier {
	switch t := Tier(strings.ToUpper(strings.TrimSpace(tier))); t {
	case TierBasic, TierPro, TierPremium:
		return t
	default:
		return TierFree
	}
}

// FromPlan returns the entitlement granted by a catalog plan. Negative limits
// in the catalog are clamped to zero.
func FromPlan(p *models.BillingPlan) State {
	if p == nil {
		return Free
	}
	return State{
		Plan:         NormalizePlan(p.AIPlan),
		Tier:         NormalizeTier(p.AITier),
		DailyLimit:   nonNegative(p.AIDailyLimit),
		MonthlyLimit: nonNegative(p.AIMonthlyLimit),
	}
}

// Apply overwrites the tenant's entitlement with s and unconditionally resets
// usage. Applying the same state twice yields the same limits and zeroed
// counters; only the reset timestamp and epoch move.
func Apply(t *models.Tenant, s State, now time.Time) {
	t.AIPlan = string(s.Plan)
	t.AITier = string(s.Tier)
	t.AIDailyLimit = nonNegative(s.DailyLimit)
	t.AIMonthlyLimit = nonNegative(s.MonthlyLimit)
	t.AIDailyUsage = 0
	t.AIMonthlyUsage = 0
	t.AIUsageResetAt = now
	t.AIUsageEpoch++
}

// Snapshot reads the current entitlement back from a tenant.
func Snapshot(t *models.Tenant) State {
	return State{
		Plan:         NormalizePlan(t.AIPlan),
		Tier:         NormalizeTier(t.AITier),
		DailyLimit:   t.AIDailyLimit,
		MonthlyLimit: t.AIMonthlyLimit,
	}
}

// IsFree reports whether s is the baseline free entitlement.
func (s State) IsFree() bool {
	return s == Free
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
