package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/internal/repository"
)

var (
	testNow   = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	testAdmin = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

func fixedClock() func() time.Time { return func() time.Time { return testNow } }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

type enrollmentStoreStub struct {
	items     map[string]*models.Enrollment
	updates   []*models.Enrollment
	updateErr error
}

func newEnrollmentStore(items ...*models.Enrollment) *enrollmentStoreStub {
	s := &enrollmentStoreStub{items: map[string]*models.Enrollment{}}
	for _, e := range items {
		s.items[e.ID] = e
	}
	return s
}

func (s *enrollmentStoreStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := s.items[id]; ok {
		return e.Clone(), nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentStoreStub) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Enrollment, error) {
	for _, e := range s.items {
		if e.SubscriptionID() == subscriptionID {
			return e.Clone(), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentStoreStub) UpdateBilling(ctx context.Context, e *models.Enrollment) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, e.Clone())
	s.items[e.ID] = e.Clone()
	return nil
}

func (s *enrollmentStoreStub) last() *models.Enrollment {
	if len(s.updates) == 0 {
		return nil
	}
	return s.updates[len(s.updates)-1]
}

type payerStoreStub struct {
	payers  map[string]*models.Payer
	methods map[string][]models.PaymentMethod
	linked  map[string]string
}

func newPayerStore(payer *models.Payer, methods ...models.PaymentMethod) *payerStoreStub {
	return &payerStoreStub{
		payers:  map[string]*models.Payer{payer.ID: payer},
		methods: map[string][]models.PaymentMethod{payer.ID: methods},
		linked:  map[string]string{},
	}
}

func (s *payerStoreStub) FindByID(ctx context.Context, id string) (*models.Payer, error) {
	if p, ok := s.payers[id]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *payerStoreStub) LinkCustomer(ctx context.Context, payerID, customerID string) error {
	s.linked[payerID] = customerID
	return nil
}

func (s *payerStoreStub) ListActivePaymentMethods(ctx context.Context, payerID string) ([]models.PaymentMethod, error) {
	return s.methods[payerID], nil
}

type feeStoreStub struct {
	settings map[string]*models.CourseFeeSettings
}

func (s *feeStoreStub) FindByCourseID(ctx context.Context, courseID string) (*models.CourseFeeSettings, error) {
	if st, ok := s.settings[courseID]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

func monthlyFees() *feeStoreStub {
	return &feeStoreStub{settings: map[string]*models.CourseFeeSettings{
		"course-1": {
			CourseID:        "course-1",
			BillingCycle:    models.BillingCycleMonthly,
			FeeAmount:       decimal.NewFromInt(120),
			Currency:        "usd",
			StripeProductID: strPtr("prod_1"),
			StripePriceID:   strPtr("price_1"),
		},
	}}
}

type auditRecorder struct {
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditRecorder) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type notifierStub struct {
	events []models.SubscriptionEvent
}

func (n *notifierStub) Notify(ctx context.Context, event models.SubscriptionEvent) {
	n.events = append(n.events, event)
}

type cacheStub struct {
	details     map[string]*models.SubscriptionDetails
	invalidated []string
}

func newCacheStub() *cacheStub {
	return &cacheStub{details: map[string]*models.SubscriptionDetails{}}
}

func (c *cacheStub) GetSubscription(ctx context.Context, enrollmentID string) (*models.SubscriptionDetails, bool) {
	d, ok := c.details[enrollmentID]
	return d, ok
}

func (c *cacheStub) SetSubscription(ctx context.Context, enrollmentID string, details *models.SubscriptionDetails) {
	c.details[enrollmentID] = details
}

func (c *cacheStub) InvalidateSubscription(ctx context.Context, enrollmentID string) {
	delete(c.details, enrollmentID)
	c.invalidated = append(c.invalidated, enrollmentID)
}

// providerStub records calls and returns canned results.
type providerStub struct {
	calls []string

	createResult  *models.SubscriptionCreateResult
	createOpts    models.SubscriptionCreateOptions
	cancelResult  *models.CancellationResult
	details       *models.SubscriptionDetails
	confirmation  *models.PaymentConfirmation
	customer      *models.ProviderCustomer
	feeChange     FeeChange
	schedule      models.SchedulePayload
	resumedMethod string

	errs map[string]error
}

func newProviderStub() *providerStub {
	return &providerStub{errs: map[string]error{}}
}

func (p *providerStub) record(op string) error {
	p.calls = append(p.calls, op)
	return p.errs[op]
}

func (p *providerStub) CreateSubscription(ctx context.Context, opts models.SubscriptionCreateOptions) (*models.SubscriptionCreateResult, error) {
	p.createOpts = opts
	if err := p.record("create"); err != nil {
		return nil, err
	}
	if p.createResult != nil {
		return p.createResult, nil
	}
	return &models.SubscriptionCreateResult{SubscriptionID: "sub_new", Status: models.SubscriptionStatusActive, StartDate: testNow}, nil
}

func (p *providerStub) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*models.CancellationResult, error) {
	op := "cancel"
	if immediate {
		op = "cancel_now"
	}
	if err := p.record(op); err != nil {
		return nil, err
	}
	if p.cancelResult != nil {
		return p.cancelResult, nil
	}
	return &models.CancellationResult{Immediately: immediate}, nil
}

func (p *providerStub) UndoCancellation(ctx context.Context, subscriptionID string) error {
	return p.record("undo")
}

func (p *providerStub) UpdateSchedule(ctx context.Context, subscriptionID string, payload models.SchedulePayload) error {
	p.schedule = payload
	return p.record("schedule")
}

func (p *providerStub) UpdateFee(ctx context.Context, change FeeChange) error {
	p.feeChange = change
	return p.record("fee")
}

func (p *providerStub) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*models.SubscriptionDetails, error) {
	if err := p.record("details"); err != nil {
		return nil, err
	}
	if p.details == nil {
		return &models.SubscriptionDetails{SubscriptionID: subscriptionID, Status: models.SubscriptionStatusActive}, nil
	}
	d := *p.details
	return &d, nil
}

func (p *providerStub) FindCustomerByEmail(ctx context.Context, email string) (*models.ProviderCustomer, error) {
	if err := p.record("find_customer"); err != nil {
		return nil, err
	}
	return p.customer, nil
}

func (p *providerStub) CreateCustomer(ctx context.Context, email, name string) (*models.ProviderCustomer, error) {
	if err := p.record("create_customer"); err != nil {
		return nil, err
	}
	return &models.ProviderCustomer{ID: "cus_new", Email: email, Name: name}, nil
}

func (p *providerStub) ConfirmPayment(ctx context.Context, subscriptionID string) (*models.PaymentConfirmation, error) {
	if err := p.record("confirm"); err != nil {
		return nil, err
	}
	if p.confirmation != nil {
		return p.confirmation, nil
	}
	return &models.PaymentConfirmation{Success: true}, nil
}

func (p *providerStub) PauseCollection(ctx context.Context, subscriptionID string) error {
	return p.record("pause")
}

func (p *providerStub) ResumeCollection(ctx context.Context, subscriptionID, paymentMethodID string) error {
	p.resumedMethod = paymentMethodID
	return p.record("resume")
}

type orderStoreStub struct {
	orders  map[string]*models.Order
	created []*models.Order
	reviews []repository.ReviewOrderParams
}

func newOrderStore(orders ...models.Order) *orderStoreStub {
	s := &orderStoreStub{orders: map[string]*models.Order{}}
	for i := range orders {
		o := orders[i]
		s.orders[o.ID] = &o
	}
	return s
}

func (s *orderStoreStub) FindByID(ctx context.Context, id string) (*models.Order, error) {
	if o, ok := s.orders[id]; ok {
		copy := *o
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *orderStoreStub) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = "order-new"
	}
	s.created = append(s.created, order)
	s.orders[order.ID] = order
	return nil
}

func (s *orderStoreStub) Review(ctx context.Context, params repository.ReviewOrderParams) error {
	o, ok := s.orders[params.ID]
	if !ok || o.Status != models.OrderStatusPending {
		return sql.ErrNoRows
	}
	s.reviews = append(s.reviews, params)
	o.Status = params.Status
	return nil
}

func (s *orderStoreStub) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.orders {
		if o.EnrollmentID == enrollmentID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func baseEnrollment() *models.Enrollment {
	return &models.Enrollment{
		ID:          "enr-1",
		StudentID:   "student-1",
		PayerID:     "payer-1",
		CourseID:    "course-1",
		StartDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Fee:         decimal.NewFromInt(120),
		Currency:    "usd",
		PaymentMode: models.PaymentModeAutomatic,
		Timezone:    "UTC",
		Version:     1,
	}
}

func activeEnrollment() *models.Enrollment {
	e := baseEnrollment()
	e.StripeSubscriptionID = strPtr("sub_1")
	e.SubscriptionStatus = models.SubscriptionStatusActive
	e.NextPaymentAt = timePtr(time.Date(2024, 3, 15, 7, 23, 0, 0, time.UTC))
	e.ProrationBehavior = models.ProrationCreateProrations
	return e
}

func linkedPayer() *models.Payer {
	return &models.Payer{ID: "payer-1", FullName: "Dana Reyes", Email: "dana@example.com", StripeCustomerID: strPtr("cus_1")}
}

func cardMethod() models.PaymentMethod {
	return models.PaymentMethod{ID: "pm-row-1", PayerID: "payer-1", ProviderMethodID: "pm_card_1", IsDefault: true, Active: true}
}
