package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shah039zaib/b2automate/app/models"
)

func validSubmission(tenantID, planID uint) ManualPaymentSubmission {
	return ManualPaymentSubmission{
		TenantID:       tenantID,
		PlanID:         planID,
		Method:         "Bank_Transfer",
		SenderName:     " Jane Doe ",
		SenderAccount:  "PK00TEST0001",
		TransactionRef: "TX-991",
		ProofReference: "proofs/2026/03/tx-991.png",
		CouponCode:     "launch10",
		OriginalPrice:  4900,
		FinalPrice:     4410,
	}
}

func submitPayment(t *testing.T, f *fixture, tenantID, planID uint) *models.ManualPayment {
	t.Helper()
	p, err := f.manual.Submit(context.Background(), validSubmission(tenantID, planID))
	require.NoError(t, err)
	return p
}

type stubProofs struct {
	ok  bool
	err error
}

func (s stubProofs) Exists(context.Context, string) (bool, error) { return s.ok, s.err }

func TestSubmitCreatesPendingPayment(t *testing.T) {
	f := newFixture(t)

	p := submitPayment(t, f, f.tenant.ID, f.pro.ID)
	assert.NotZero(t, p.ID)
	assert.Len(t, p.Reference, 36)
	assert.Equal(t, models.ManualPaymentStatusPending, p.Status)
	assert.Equal(t, models.ManualPaymentMethodBankTransfer, p.Method)
	assert.Equal(t, "Jane Doe", p.SenderName)
	assert.Equal(t, "LAUNCH10", p.CouponCode)
	assert.Equal(t, int64(4410), p.FinalPrice)

	stored := f.store.payment(p.ID)
	assert.Equal(t, models.ManualPaymentStatusPending, stored.Status)
	assert.Nil(t, stored.ReviewedBy)

	// Submitting alone grants nothing.
	assert.Equal(t, "free", f.store.tenant(f.tenant.ID).AIPlan)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(s *ManualPaymentSubmission)
		want   *Error
	}{
		{name: "missing sender", mutate: func(s *ManualPaymentSubmission) { s.SenderName = "  " }, want: ErrInvalidSubmission},
		{name: "unknown method", mutate: func(s *ManualPaymentSubmission) { s.Method = "cash" }, want: ErrInvalidSubmission},
		{name: "missing proof", mutate: func(s *ManualPaymentSubmission) { s.ProofReference = "" }, want: ErrInvalidSubmission},
		{name: "negative price", mutate: func(s *ManualPaymentSubmission) { s.OriginalPrice = -1 }, want: ErrInvalidSubmission},
		{name: "final above original", mutate: func(s *ManualPaymentSubmission) { s.FinalPrice = 5000 }, want: ErrInvalidSubmission},
		{name: "unknown tenant", mutate: func(s *ManualPaymentSubmission) { s.TenantID = 777 }, want: ErrTenantNotFound},
		{name: "unknown plan", mutate: func(s *ManualPaymentSubmission) { s.PlanID = 777 }, want: ErrPlanNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSubmission(f.tenant.ID, f.pro.ID)
			tt.mutate(&in)
			_, err := f.manual.Submit(ctx, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSubmitRejectsInactivePlan(t *testing.T) {
	f := newFixture(t)
	legacy := f.store.addPlan(models.BillingPlan{Name: "Legacy", AIPlan: "pro", AITier: "PRO", AIDailyLimit: 1, AIMonthlyLimit: 1})

	_, err := f.manual.Submit(context.Background(), validSubmission(f.tenant.ID, legacy.ID))
	assert.True(t, errors.Is(err, ErrPlanNotFound))
}

func TestSubmitChecksProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manual = NewManualPayments(f.ledger, stubProofs{ok: false})
	_, err := f.manual.Submit(ctx, validSubmission(f.tenant.ID, f.pro.ID))
	assert.True(t, errors.Is(err, ErrInvalidSubmission))

	f.manual = NewManualPayments(f.ledger, stubProofs{err: errors.New("s3 unavailable")})
	_, err = f.manual.Submit(ctx, validSubmission(f.tenant.ID, f.pro.ID))
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestApproveGrantsPlanForPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := submitPayment(t, f, f.tenant.ID, f.pro.ID)

	approved, err := f.manual.Approve(ctx, p.ID, "reviewer-1", strPtr("receipt matches"))
	require.NoError(t, err)
	assert.Equal(t, models.ManualPaymentStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "reviewer-1", *approved.ReviewedBy)

	stored := f.store.payment(p.ID)
	assert.Equal(t, models.ManualPaymentStatusApproved, stored.Status)
	require.NotNil(t, stored.ReviewedAt)
	assert.Equal(t, f.clock.Now(), *stored.ReviewedAt)

	tenant := f.store.tenant(f.tenant.ID)
	assert.Equal(t, "pro", tenant.AIPlan)
	assert.Zero(t, tenant.AIDailyUsage)

	sub, ok := f.store.subscriptionOf(f.tenant.ID)
	require.True(t, ok)
	assert.Equal(t, models.BillingProviderManual, sub.Provider)
	assert.Equal(t, manualSubscriptionID(p.ID), sub.ProviderSubscriptionID)
	require.NotNil(t, sub.ManualPaymentID)
	assert.Equal(t, p.ID, *sub.ManualPaymentID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), *sub.CurrentPeriodEnd)

	assert.Equal(t, []string{AuditSubscriptionCreated, AuditManualPaymentApproved}, f.store.auditTypes(f.tenant.ID))
	actor := f.store.auditActor(f.tenant.ID, AuditManualPaymentApproved)
	require.NotNil(t, actor)
	assert.Equal(t, "reviewer-1", *actor)
	assert.Equal(t, "receipt matches", f.store.auditMetadata(f.tenant.ID, AuditManualPaymentApproved)["note"])
	assertConsistent(t, f, f.tenant.ID)

	assert.Eventually(t, func() bool {
		kinds := f.notifier.kinds()
		return len(kinds) == 1 && kinds[0] == NoticeManualApproved
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Pro"}, f.notifier.planNames())
}

func TestRejectLeavesEntitlementAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := submitPayment(t, f, f.tenant.ID, f.pro.ID)

	rejected, err := f.manual.Reject(ctx, p.ID, "reviewer-2", strPtr("blurry screenshot"))
	require.NoError(t, err)
	assert.Equal(t, models.ManualPaymentStatusRejected, rejected.Status)

	assert.Equal(t, f.tenant, f.store.tenant(f.tenant.ID))
	_, ok := f.store.subscriptionOf(f.tenant.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{AuditManualPaymentRejected}, f.store.auditTypes(f.tenant.ID))
	assert.Empty(t, f.cache.ids())
}

func TestReviewIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := submitPayment(t, f, f.tenant.ID, f.pro.ID)

	_, err := f.manual.Approve(ctx, p.ID, "reviewer-1", nil)
	require.NoError(t, err)
	epoch := f.store.tenant(f.tenant.ID).AIUsageEpoch

	_, err = f.manual.Approve(ctx, p.ID, "reviewer-1", nil)
	assert.True(t, errors.Is(err, ErrAlreadyReviewed))
	_, err = f.manual.Reject(ctx, p.ID, "reviewer-2", nil)
	assert.True(t, errors.Is(err, ErrAlreadyReviewed))
	assert.True(t, IsConflict(err))

	assert.Equal(t, models.ManualPaymentStatusApproved, f.store.payment(p.ID).Status)
	assert.Equal(t, epoch, f.store.tenant(f.tenant.ID).AIUsageEpoch)
}

func TestConcurrentApproveSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	p := submitPayment(t, f, f.tenant.ID, f.pro.ID)

	const reviewers = 8
	errs := make([]error, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manual.Approve(context.Background(), p.ID, "reviewer", nil)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadyReviewed), "got %v", err)
	}
	assert.Equal(t, 1, ok)

	approvals := 0
	for _, typ := range f.store.auditTypes(f.tenant.ID) {
		if typ == AuditManualPaymentApproved {
			approvals++
		}
	}
	assert.Equal(t, 1, approvals)
	assert.Equal(t, uint64(1), f.store.tenant(f.tenant.ID).AIUsageEpoch)
}

func TestApproveWithVanishedPlanStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := submitPayment(t, f, f.tenant.ID, f.pro.ID)

	f.store.mu.Lock()
	delete(f.store.plans, f.pro.ID)
	f.store.mu.Unlock()

	_, err := f.manual.Approve(ctx, p.ID, "reviewer-1", nil)
	assert.True(t, errors.Is(err, ErrPlanNotFound))
	assert.Equal(t, models.ManualPaymentStatusPending, f.store.payment(p.ID).Status)
	assert.Empty(t, f.store.auditTypes(f.tenant.ID))
}

func TestReviewInputErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := submitPayment(t, f, f.tenant.ID, f.pro.ID)

	_, err := f.manual.Approve(ctx, p.ID, "   ", nil)
	assert.True(t, errors.Is(err, ErrInvalidSubmission))

	_, err = f.manual.Approve(ctx, 99999, "reviewer-1", nil)
	assert.True(t, errors.Is(err, ErrPaymentNotFound))

	got, err := f.manual.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ManualPaymentStatusPending, got.Status)
}

func TestApproveReplacesProviderSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateFromPayment(ctx, f.tenant.ID, f.starter.ID, providerDesc("sub_1", "canceled"))
	require.NoError(t, err)

	p := submitPayment(t, f, f.tenant.ID, f.pro.ID)
	_, err = f.manual.Approve(ctx, p.ID, "reviewer-1", nil)
	require.NoError(t, err)

	sub, ok := f.store.subscriptionOf(f.tenant.ID)
	require.True(t, ok)
	assert.Equal(t, models.BillingProviderManual, sub.Provider)
	assert.Equal(t, "stripe/sub_1", f.store.auditMetadata(f.tenant.ID, AuditSubscriptionCreated)["superseded"])
	assertConsistent(t, f, f.tenant.ID)
}
