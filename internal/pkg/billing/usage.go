package billing

import (
	"context"

	"github.com/Shah039zaib/b2automate/app/models"
	"github.com/Shah039zaib/b2automate/internal/pkg/metrics"
)

const consumeAttempts = 3

// UsageCounter charges AI requests against a tenant's daily and monthly caps.
// Increments are fenced on the tenant's usage epoch, so a request that raced
// an entitlement change never lands on the freshly reset counters.
type UsageCounter struct {
	repo Repository
}

// NewUsageCounter creates a usage counter over repo.
func NewUsageCounter(repo Repository) *UsageCounter {
	return &UsageCounter{repo: repo}
}

// Consume records one AI request for tenantID, or returns
// ErrUsageLimitReached when either cap is exhausted.
func (u *UsageCounter) Consume(ctx context.Context, tenantID uint) (*models.Tenant, error) {
	for attempt := 0; attempt < consumeAttempts; attempt++ {
		t, err := u.repo.FindTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if t.AIDailyUsage >= t.AIDailyLimit || t.AIMonthlyUsage >= t.AIMonthlyLimit {
			metrics.ObserveUsageConsume("limited")
			return t, withDetail(ErrUsageLimitReached, "tenant %d used %d/%d today, %d/%d this month",
				t.ID, t.AIDailyUsage, t.AIDailyLimit, t.AIMonthlyUsage, t.AIMonthlyLimit)
		}
		ok, err := u.repo.IncrementUsage(ctx, tenantID, t.AIUsageEpoch)
		if err != nil {
			return nil, err
		}
		if ok {
			t.AIDailyUsage++
			t.AIMonthlyUsage++
			metrics.ObserveUsageConsume("ok")
			return t, nil
		}
		// The epoch moved or someone took the last unit; re-read and retry.
	}
	metrics.ObserveUsageConsume("contended")
	return nil, withDetail(ErrUsageContended, "tenant %d", tenantID)
}
