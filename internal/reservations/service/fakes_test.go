package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	reserrors "agenda/internal/reservations/errors"
	"agenda/internal/reservations/repository"
	"agenda/internal/reservations/validator"
	mongotx "agenda/pkg/db/mongo"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/logger"
	"agenda/pkg/model"
	"agenda/pkg/outbox"
	"agenda/pkg/sealer"
)

// memStore backs every fake repository. Save and Update enforce the active
// slot uniqueness the way the partial index does.
type memStore struct {
	mu sync.Mutex

	reservations map[string]*model.Reservation
	services     map[string]*model.Service
	resources    map[string]*model.Resource
	blackouts    []model.Blackout
	standings    map[string]*model.ClientStanding
	customers    map[string]*model.Customer
	dayLocks     map[string]int
	nextID       int

	recordVisitErr error
	visitErrs      []error
	findErrs       []error
	finds          int
	saveErrs       []error
}

func newMemStore() *memStore {
	return &memStore{
		reservations: map[string]*model.Reservation{},
		services:     map[string]*model.Service{},
		resources:    map[string]*model.Resource{},
		standings:    map[string]*model.ClientStanding{},
		customers:    map[string]*model.Customer{},
		dayLocks:     map[string]int{},
	}
}

func key(parts ...string) string {
	k := ""
	for i, p := range parts {
		if i > 0 {
			k += "|"
		}
		k += p
	}
	return k
}

type memSnapshot struct {
	reservations map[string]model.Reservation
	customers    map[string]model.Customer
	dayLocks     map[string]int
	nextID       int
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		reservations: map[string]model.Reservation{},
		customers:    map[string]model.Customer{},
		dayLocks:     map[string]int{},
		nextID:       m.nextID,
	}
	for k, v := range m.reservations {
		s.reservations[k] = *v
	}
	for k, v := range m.customers {
		s.customers[k] = *v
	}
	for k, v := range m.dayLocks {
		s.dayLocks[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations = map[string]*model.Reservation{}
	for k, v := range s.reservations {
		r := v
		m.reservations[k] = &r
	}
	m.customers = map[string]*model.Customer{}
	for k, v := range s.customers {
		c := v
		m.customers[k] = &c
	}
	m.dayLocks = s.dayLocks
	m.nextID = s.nextID
}

func (m *memStore) reservation(id string) model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.reservations[id]
}

func (m *memStore) countHolding(tenantID, resourceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reservations {
		if r.TenantID == tenantID && r.ResourceID == resourceID && r.HoldsSlot() {
			n++
		}
	}
	return n
}

type memReservations struct{ store *memStore }

func (f memReservations) FindByID(_ context.Context, _ mongotx.TxContext, tenantID, id string) (*model.Reservation, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r, ok := f.store.reservations[id]
	if !ok || r.TenantID != tenantID {
		return nil, fmt.Errorf("reservation %s: %w", id, reserrors.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (f memReservations) FindByResourceAndDate(_ context.Context, _ mongotx.TxContext, tenantID, resourceID, date string) ([]*model.Reservation, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.store.finds < len(f.store.findErrs) {
		err := f.store.findErrs[f.store.finds]
		f.store.finds++
		if err != nil {
			return nil, err
		}
	}
	var out []*model.Reservation
	for _, r := range f.store.reservations {
		if r.TenantID == tenantID && r.ResourceID == resourceID && r.Slot.Date() == date {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f memReservations) slotTaken(r *model.Reservation) bool {
	if !r.HoldsSlot() {
		return false
	}
	for id, other := range f.store.reservations {
		if id == r.ID || !other.HoldsSlot() {
			continue
		}
		if other.TenantID == r.TenantID && other.ResourceID == r.ResourceID &&
			other.Slot.Date() == r.Slot.Date() && other.Slot.StartTime() == r.Slot.StartTime() {
			return true
		}
	}
	return false
}

func (f memReservations) Save(_ context.Context, _ mongotx.TxContext, r *model.Reservation) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.saveErrs) > 0 {
		err := f.store.saveErrs[0]
		f.store.saveErrs = f.store.saveErrs[1:]
		return err
	}
	if f.slotTaken(r) {
		return fmt.Errorf("%w: E11000 duplicate key", reserrors.ErrSlotTaken)
	}
	f.store.nextID++
	r.ID = "res-" + strconv.Itoa(f.store.nextID)
	cp := *r
	f.store.reservations[r.ID] = &cp
	return nil
}

func (f memReservations) Update(_ context.Context, _ mongotx.TxContext, r *model.Reservation) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if _, ok := f.store.reservations[r.ID]; !ok {
		return reserrors.ErrNotFound
	}
	if f.slotTaken(r) {
		return fmt.Errorf("%w: E11000 duplicate key", reserrors.ErrSlotTaken)
	}
	cp := *r
	f.store.reservations[r.ID] = &cp
	return nil
}

type memServices struct{ store *memStore }

func (f memServices) FindByID(_ context.Context, _ mongotx.TxContext, tenantID, id string) (*model.Service, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	s, ok := f.store.services[key(tenantID, id)]
	if !ok {
		return nil, reserrors.ErrServiceNotFound
	}
	cp := *s
	return &cp, nil
}

type memResources struct{ store *memStore }

func (f memResources) FindByID(_ context.Context, tenantID, id string) (*model.Resource, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r, ok := f.store.resources[key(tenantID, id)]
	if !ok {
		return nil, reserrors.ErrResourceNotFound
	}
	cp := *r
	return &cp, nil
}

type memBlackouts struct{ store *memStore }

func (f memBlackouts) Validate(_ context.Context, _ mongotx.TxContext, q repository.BlackoutQuery) error {
	f.store.mu.Lock()
	var relevant []model.Blackout
	for _, b := range f.store.blackouts {
		if b.TenantID == q.TenantID {
			relevant = append(relevant, b)
		}
	}
	f.store.mu.Unlock()
	return repository.CheckBlackouts(relevant, q)
}

type memStanding struct {
	store *memStore
	now   func() time.Time
}

func (f memStanding) Check(_ context.Context, _ mongotx.TxContext, tenantID string, email model.Email) error {
	if email == "" {
		return nil
	}
	f.store.mu.Lock()
	standing := f.store.standings[key(tenantID, string(email))]
	f.store.mu.Unlock()
	return repository.CheckStanding(standing, f.now())
}

type memCustomers struct{ store *memStore }

func (f memCustomers) RecordVisit(_ context.Context, _ mongotx.TxContext, tenantID, customerID string, email model.Email, name string, at time.Time) (string, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.store.recordVisitErr != nil {
		return "", f.store.recordVisitErr
	}
	if len(f.store.visitErrs) > 0 {
		err := f.store.visitErrs[0]
		f.store.visitErrs = f.store.visitErrs[1:]
		return "", err
	}
	k := key(tenantID, customerID)
	if customerID == "" {
		k = key(tenantID, string(email))
	}
	c, ok := f.store.customers[k]
	if !ok {
		if customerID != "" {
			return "", fmt.Errorf("customer %q: %w", customerID, reserrors.ErrCustomerNotFound)
		}
		c = &model.Customer{ID: k, TenantID: tenantID, Email: email, Name: name}
		f.store.customers[k] = c
	}
	c.VisitCount++
	c.LastVisitAt = &at
	return c.ID, nil
}

func (f memCustomers) IncrementReservations(_ context.Context, tenantID string, email model.Email) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	k := key(tenantID, string(email))
	c, ok := f.store.customers[k]
	if !ok {
		c = &model.Customer{ID: k, TenantID: tenantID, Email: email}
		f.store.customers[k] = c
	}
	c.ReservationCount++
	return nil
}

type memDayLocks struct{ store *memStore }

func (f memDayLocks) Touch(_ context.Context, _ mongotx.TxContext, tenantID, resourceID, date string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.dayLocks[repository.DayLockID(tenantID, resourceID, date)]++
	return nil
}

// fakeRunner mirrors TransactionManager's retry contract. In serial mode
// units of work run one at a time and a failed attempt restores the store.
type fakeRunner struct {
	store      *memStore
	serial     bool
	maxRetries int

	mu       sync.Mutex
	attempts int
}

func (r *fakeRunner) RunInTransaction(ctx context.Context, operation string, fn mongotx.UnitOfWork, _ ...mongotx.Option) error {
	limit := r.maxRetries
	if limit <= 0 {
		limit = mongotx.DefaultMaxRetries
	}

	var lastErr error
	for n := 1; n <= limit; n++ {
		err := r.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !apperrors.Retryable(apperrors.KindOf(err)) {
			return &mongotx.TransactionError{Operation: operation, Attempts: n, Err: err}
		}
		lastErr = err
	}
	return &mongotx.TransactionError{
		Operation: operation,
		Attempts:  limit,
		Err:       apperrors.TransientStorage("The system is busy, please try again", lastErr),
	}
}

func (r *fakeRunner) attempt(ctx context.Context, fn mongotx.UnitOfWork) error {
	r.mu.Lock()
	r.attempts++
	if !r.serial {
		r.mu.Unlock()
		return mongotx.Classify(fn(ctx, mongotx.TxContext{}))
	}
	defer r.mu.Unlock()

	snap := r.store.snapshot()
	if err := fn(ctx, mongotx.TxContext{}); err != nil {
		r.store.restore(snap)
		return mongotx.Classify(err)
	}
	return nil
}

func (r *fakeRunner) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

type recordingOutbox struct {
	mu    sync.Mutex
	tasks []outbox.Task
	err   error
}

func (o *recordingOutbox) Enqueue(name, tenantID, reference string, fn outbox.TaskFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.tasks = append(o.tasks, outbox.Task{Name: name, TenantID: tenantID, Reference: reference, Run: fn})
	return nil
}

func (o *recordingOutbox) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.tasks))
	for _, t := range o.tasks {
		names = append(names, t.Name)
	}
	return names
}

func (o *recordingOutbox) RunAll(ctx context.Context) []error {
	o.mu.Lock()
	tasks := append([]outbox.Task(nil), o.tasks...)
	o.mu.Unlock()
	var errs []error
	for _, t := range tasks {
		errs = append(errs, t.Run(ctx))
	}
	return errs
}

type recordingEmails struct {
	mu            sync.Mutex
	confirmations []string
	reviews       map[string]string
}

func (e *recordingEmails) SendConfirmation(_ context.Context, r *model.Reservation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.confirmations = append(e.confirmations, r.ID)
	return nil
}

func (e *recordingEmails) SendReviewRequest(_ context.Context, r *model.Reservation, token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reviews == nil {
		e.reviews = map[string]string{}
	}
	e.reviews[r.ID] = token
	return nil
}

type fixture struct {
	store   *memStore
	runner  *fakeRunner
	outbox  *recordingOutbox
	emails  *recordingEmails
	service ReservationService
	sealer  *sealer.Sealer
	now     time.Time
}

const (
	tenantA    = "tenant-a"
	barberID   = "barber-1"
	haircutID  = "haircut"
	shaveID    = "shave"
	fixtureDay = "2025-06-10"
)

// newFixture seeds one resource with two services and freezes the clock at
// 2025-06-09 09:00 UTC.
func newFixture(serial bool) *fixture {
	store := newMemStore()
	now := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)

	price, _ := model.NewMoney("25.00")
	store.services[key(tenantA, haircutID)] = &model.Service{ID: haircutID, TenantID: tenantA, Name: "Haircut", DurationMin: 30, Price: price, Active: true}
	store.services[key(tenantA, shaveID)] = &model.Service{ID: shaveID, TenantID: tenantA, Name: "Shave", DurationMin: 45, Price: price, Active: true}
	store.resources[key(tenantA, barberID)] = &model.Resource{
		ID:          barberID,
		TenantID:    tenantA,
		Name:        "Barber",
		Active:      true,
		StartOfDay:  "09:00",
		EndOfDay:    "12:00",
		WorkingDays: []model.Weekday{model.Monday, model.Tuesday},
	}

	s, err := sealer.New(sealer.DefaultKey)
	if err != nil {
		panic(err)
	}

	f := &fixture{
		store:  store,
		runner: &fakeRunner{store: store, serial: serial},
		outbox: &recordingOutbox{},
		emails: &recordingEmails{},
		sealer: s,
		now:    now,
	}
	clock := func() time.Time { return f.now }
	log := logger.NewNop()

	f.service = NewReservationService(Dependencies{
		Reservations: memReservations{store},
		Services:     memServices{store},
		Resources:    memResources{store},
		Customers:    memCustomers{store},
		DayLocks:     memDayLocks{store},
		Blackouts:    memBlackouts{store},
		Standing:     memStanding{store: store, now: clock},
		Tx:           f.runner,
		Outbox:       f.outbox,
		Emails:       f.emails,
		Counter:      NewCustomerCounter(memCustomers{store}),
		Validator:    validator.NewReservationValidator(log),
		Sealer:       s,
		Log:          log,
		Now:          clock,
	})
	return f
}

func createRequest(start string) *model.CreateReservationRequest {
	return &model.CreateReservationRequest{
		ResourceID:    barberID,
		ServiceID:     haircutID,
		CustomerName:  "Ana Lopez",
		CustomerEmail: "ana@example.com",
		Date:          fixtureDay,
		StartTime:     start,
	}
}
