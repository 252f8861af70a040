package license

// PlanType represents the subscription plan type
type PlanType string

const (
	PlanFree PlanType = "free"
	PlanPro  PlanType = "pro"
	PlanTeam PlanType = "team"
)

// planLimits maps each plan to its monthly clarification quota.
var planLimits = map[PlanType]int{
	PlanFree: 5,
	PlanPro:  50,
	PlanTeam: 200,
}

// MonthlyLimit returns the quota for the plan. Unknown plans fall back to the
// free tier.
func (p PlanType) MonthlyLimit() int {
	if limit, ok := planLimits[p]; ok {
		return limit
	}
	return planLimits[PlanFree]
}

// IsValid checks if the plan type is known.
func (p PlanType) IsValid() bool {
	_, ok := planLimits[p]
	return ok
}

// String returns the string representation of the plan type
func (p PlanType) String() string { return string(p) }

// ParsePlan normalizes a plan identifier, defaulting unknown values to pro
// (the payment provider records the plan in subscription metadata, and a
// missing value there means a paid checkout).
func ParsePlan(s string) PlanType {
	switch PlanType(s) {
	case PlanFree, PlanPro, PlanTeam:
		return PlanType(s)
	}
	return PlanPro
}
