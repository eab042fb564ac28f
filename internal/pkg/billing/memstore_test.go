package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Shah039zaib/b2automate/app/models"
)

// memStore is an in-memory Repository. A transaction holds the store mutex
// for its whole duration, which is stricter than row locks but gives the same
// serialization for a single tenant. Failed transactions restore a snapshot.
type memStore struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID uint

	plans    map[uint]models.BillingPlan
	tenants  map[uint]models.Tenant
	subs     map[uint]models.BillingSubscription
	payments map[uint]models.ManualPayment
	events   map[uint]models.BillingWebhookEvent
	audits   []models.AuditLog

	failOn map[string]error
}

type memRepo struct {
	s    *memStore
	inTx bool
}

type memSnapshot struct {
	nextID   uint
	plans    map[uint]models.BillingPlan
	tenants  map[uint]models.Tenant
	subs     map[uint]models.BillingSubscription
	payments map[uint]models.ManualPayment
	events   map[uint]models.BillingWebhookEvent
	audits   []models.AuditLog
}

var errInjected = errors.New("injected failure")

func newMemStore(now func() time.Time) *memStore {
	if now == nil {
		now = time.Now
	}
	return &memStore{
		now:      now,
		nextID:   100,
		plans:    map[uint]models.BillingPlan{},
		tenants:  map[uint]models.Tenant{},
		subs:     map[uint]models.BillingSubscription{},
		payments: map[uint]models.ManualPayment{},
		events:   map[uint]models.BillingWebhookEvent{},
		failOn:   map[string]error{},
	}
}

func (s *memStore) repo() Repository { return &memRepo{s: s} }

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		nextID:   s.nextID,
		plans:    make(map[uint]models.BillingPlan, len(s.plans)),
		tenants:  make(map[uint]models.Tenant, len(s.tenants)),
		subs:     make(map[uint]models.BillingSubscription, len(s.subs)),
		payments: make(map[uint]models.ManualPayment, len(s.payments)),
		events:   make(map[uint]models.BillingWebhookEvent, len(s.events)),
		audits:   append([]models.AuditLog(nil), s.audits...),
	}
	for k, v := range s.plans {
		snap.plans[k] = v
	}
	for k, v := range s.tenants {
		snap.tenants[k] = v
	}
	for k, v := range s.subs {
		snap.subs[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.nextID = snap.nextID
	s.plans = snap.plans
	s.tenants = snap.tenants
	s.subs = snap.subs
	s.payments = snap.payments
	s.events = snap.events
	s.audits = snap.audits
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

// --- test helpers, all take the lock; audit lookups return the latest match ---

func (s *memStore) fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, method)
		return
	}
	s.failOn[method] = err
}

func (s *memStore) addPlan(p models.BillingPlan) models.BillingPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.plans[p.ID] = p
	return p
}

func (s *memStore) addTenant(t models.Tenant) models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	if t.AIPlan == "" {
		t.AIPlan, t.AITier, t.AIDailyLimit, t.AIMonthlyLimit = "free", "FREE", 50, 1000
	}
	s.tenants[t.ID] = t
	return t
}

func (s *memStore) addSubscription(sub models.BillingSubscription) models.BillingSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = s.id()
	}
	s.subs[sub.ID] = sub
	return sub
}

func (s *memStore) tenant(id uint) models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenants[id]
}

func (s *memStore) setTenant(t models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *memStore) subscriptionOf(tenantID uint) (models.BillingSubscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.TenantID == tenantID {
			return sub, true
		}
	}
	return models.BillingSubscription{}, false
}

func (s *memStore) payment(id uint) models.ManualPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id]
}

func (s *memStore) eventByProviderID(provider, eventID string) (models.BillingWebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Provider == provider && e.ProviderEventID == eventID {
			return e, true
		}
	}
	return models.BillingWebhookEvent{}, false
}

func (s *memStore) auditTypes(tenantID uint) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.audits {
		if a.TenantID == tenantID {
			out = append(out, a.EventType)
		}
	}
	return out
}

func (s *memStore) auditMetadata(tenantID uint, eventType string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.audits) - 1; i >= 0; i-- {
		if a := s.audits[i]; a.TenantID == tenantID && a.EventType == eventType {
			meta := map[string]interface{}{}
			_ = json.Unmarshal([]byte(a.Metadata), &meta)
			return meta
		}
	}
	return nil
}

func (s *memStore) auditActor(tenantID uint, eventType string) *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.audits) - 1; i >= 0; i-- {
		if a := s.audits[i]; a.TenantID == tenantID && a.EventType == eventType {
			return a.ActorID
		}
	}
	return nil
}

// --- Repository ---

func (r *memRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *memRepo) injected(method string) error {
	return r.s.failOn[method]
}

func (r *memRepo) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := r.s.snapshot()
	if err := fn(&memRepo{s: r.s, inTx: true}); err != nil {
		r.s.restore(snap)
		return err
	}
	return nil
}

func (r *memRepo) FindPlan(_ context.Context, planID uint) (*models.BillingPlan, error) {
	defer r.lock()()
	p, ok := r.s.plans[planID]
	if !ok {
		return nil, withDetail(ErrPlanNotFound, "id=%d", planID)
	}
	return &p, nil
}

func (r *memRepo) FindTenant(_ context.Context, tenantID uint) (*models.Tenant, error) {
	defer r.lock()()
	return r.findTenant(tenantID)
}

func (r *memRepo) LockTenant(_ context.Context, tenantID uint) (*models.Tenant, error) {
	defer r.lock()()
	if err := r.injected("LockTenant"); err != nil {
		return nil, err
	}
	return r.findTenant(tenantID)
}

func (r *memRepo) findTenant(tenantID uint) (*models.Tenant, error) {
	t, ok := r.s.tenants[tenantID]
	if !ok {
		return nil, withDetail(ErrTenantNotFound, "id=%d", tenantID)
	}
	return &t, nil
}

func (r *memRepo) FindTenantByCustomerID(_ context.Context, customerID string) (*models.Tenant, error) {
	defer r.lock()()
	for _, t := range r.s.tenants {
		if t.BillingCustomerID == customerID {
			t := t
			return &t, nil
		}
	}
	return nil, withDetail(ErrTenantNotFound, "customer=%s", customerID)
}

func (r *memRepo) SaveTenantEntitlement(_ context.Context, tenant *models.Tenant) error {
	defer r.lock()()
	if err := r.injected("SaveTenantEntitlement"); err != nil {
		return err
	}
	t, ok := r.s.tenants[tenant.ID]
	if !ok {
		return withDetail(ErrInvariantViolation, "entitlement write matched no tenant id=%d", tenant.ID)
	}
	t.AIPlan, t.AITier = tenant.AIPlan, tenant.AITier
	t.AIDailyLimit, t.AIMonthlyLimit = tenant.AIDailyLimit, tenant.AIMonthlyLimit
	t.AIDailyUsage, t.AIMonthlyUsage = tenant.AIDailyUsage, tenant.AIMonthlyUsage
	t.AIUsageResetAt, t.AIUsageEpoch = tenant.AIUsageResetAt, tenant.AIUsageEpoch
	r.s.tenants[t.ID] = t
	return nil
}

func (r *memRepo) IncrementUsage(_ context.Context, tenantID uint, epoch uint64) (bool, error) {
	defer r.lock()()
	t, ok := r.s.tenants[tenantID]
	if !ok || t.AIUsageEpoch != epoch || t.AIDailyUsage >= t.AIDailyLimit || t.AIMonthlyUsage >= t.AIMonthlyLimit {
		return false, nil
	}
	t.AIDailyUsage++
	t.AIMonthlyUsage++
	r.s.tenants[tenantID] = t
	return true, nil
}

func (r *memRepo) FindSubscriptionByTenant(_ context.Context, tenantID uint) (*models.BillingSubscription, error) {
	defer r.lock()()
	for _, sub := range r.s.subs {
		if sub.TenantID == tenantID {
			sub := sub
			return &sub, nil
		}
	}
	return nil, withDetail(ErrSubscriptionNotFound, "tenant=%d", tenantID)
}

func (r *memRepo) FindSubscriptionByProviderID(_ context.Context, provider, subscriptionID string, _ bool) (*models.BillingSubscription, error) {
	defer r.lock()()
	for _, sub := range r.s.subs {
		if sub.Provider == provider && sub.ProviderSubscriptionID == subscriptionID {
			sub := sub
			return &sub, nil
		}
	}
	return nil, withDetail(ErrSubscriptionNotFound, "%s/%s", provider, subscriptionID)
}

func (r *memRepo) SaveSubscription(_ context.Context, sub *models.BillingSubscription) error {
	defer r.lock()()
	if err := r.injected("SaveSubscription"); err != nil {
		return err
	}
	for _, other := range r.s.subs {
		if other.ID == sub.ID {
			continue
		}
		if other.TenantID == sub.TenantID {
			return errors.New("duplicate key ux_billing_subscriptions_tenant")
		}
		if other.Provider == sub.Provider && other.ProviderSubscriptionID == sub.ProviderSubscriptionID {
			return errors.New("duplicate key ux_billing_subscriptions_provider_subid")
		}
	}
	if sub.ID == 0 {
		sub.ID = r.s.id()
		sub.CreatedAt = r.s.now()
	}
	sub.UpdatedAt = r.s.now()
	r.s.subs[sub.ID] = *sub
	return nil
}

func (r *memRepo) DeleteSubscription(_ context.Context, id uint) error {
	defer r.lock()()
	delete(r.s.subs, id)
	return nil
}

func (r *memRepo) ListExpiredManualSubscriptions(_ context.Context, before time.Time, limit int) ([]models.BillingSubscription, error) {
	defer r.lock()()
	var out []models.BillingSubscription
	for _, sub := range r.s.subs {
		if sub.Provider == models.BillingProviderManual && isEntitlingStatus(sub.Status) &&
			sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.Before(before) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentPeriodEnd.Before(*out[j].CurrentPeriodEnd) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) CreateManualPayment(_ context.Context, payment *models.ManualPayment) error {
	defer r.lock()()
	payment.ID = r.s.id()
	payment.CreatedAt = r.s.now()
	payment.UpdatedAt = payment.CreatedAt
	r.s.payments[payment.ID] = *payment
	return nil
}

func (r *memRepo) FindManualPayment(_ context.Context, id uint) (*models.ManualPayment, error) {
	defer r.lock()()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, withDetail(ErrPaymentNotFound, "id=%d", id)
	}
	return &p, nil
}

func (r *memRepo) ResolveManualPayment(_ context.Context, id uint, status, reviewerID string, note *string, at time.Time) (bool, error) {
	defer r.lock()()
	p, ok := r.s.payments[id]
	if !ok || p.Status != models.ManualPaymentStatusPending {
		return false, nil
	}
	reviewer := reviewerID
	p.Status = status
	p.ReviewedBy = &reviewer
	p.ReviewNote = note
	p.ReviewedAt = &at
	r.s.payments[id] = p
	return true, nil
}

func (r *memRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	defer r.lock()()
	if err := r.injected("CreateWebhookEventIfNotExists"); err != nil {
		return false, nil, err
	}
	for _, e := range r.s.events {
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			e := e
			return false, &e, nil
		}
	}
	event.ID = r.s.id()
	event.CreatedAt = r.s.now()
	r.s.events[event.ID] = *event
	stored := *event
	return true, &stored, nil
}

func (r *memRepo) ClaimWebhookEvent(_ context.Context, id uint, at time.Time) (bool, error) {
	defer r.lock()()
	e, ok := r.s.events[id]
	if !ok || e.ProcessedAt != nil {
		return false, nil
	}
	e.ProcessedAt = &at
	e.ProcessingError = ""
	e.Attempts++
	r.s.events[id] = e
	return true, nil
}

func (r *memRepo) RecordWebhookFailure(_ context.Context, id uint, processingError string) error {
	defer r.lock()()
	e, ok := r.s.events[id]
	if !ok || e.ProcessedAt != nil {
		return nil
	}
	e.ProcessingError = processingError
	e.Attempts++
	r.s.events[id] = e
	return nil
}

func (r *memRepo) ListDeferredWebhookEvents(_ context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.BillingWebhookEvent, error) {
	defer r.lock()()
	var out []models.BillingWebhookEvent
	for _, e := range r.s.events {
		if e.ProcessedAt == nil && e.CreatedAt.Before(createdBefore) && e.Attempts < maxAttempts {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	defer r.lock()()
	if err := r.injected("CreateAuditLog"); err != nil {
		return err
	}
	entry.ID = r.s.id()
	entry.CreatedAt = r.s.now()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

// --- collaborators ---

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) kinds() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NoticeKind, 0, len(n.notices))
	for _, notice := range n.notices {
		out = append(out, notice.Kind)
	}
	return out
}

func (n *recordingNotifier) planNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.notices))
	for _, notice := range n.notices {
		out = append(out, notice.PlanName)
	}
	return out
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []uint
}

func (c *recordingCache) InvalidateEntitlement(_ context.Context, tenantID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, tenantID)
	return nil
}

func (c *recordingCache) ids() []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint(nil), c.invalidated...)
}
