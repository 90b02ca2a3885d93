package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/waqasameen944/Bus-Booking-System/internal/config"
	"github.com/waqasameen944/Bus-Booking-System/internal/model"
	"github.com/waqasameen944/Bus-Booking-System/internal/repository"
)

// memSchedules is an in-memory ScheduleStore with the same uniqueness
// rules as the MySQL schema.  Dates are stored as UTC midnight, the way
// DATE columns come back from the driver.
type memSchedules struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[string]*model.ScheduleEntry
	byID    map[uint64]*model.ScheduleEntry
	seats   map[uint64]map[int]uint64 // schedule id -> seat -> booking id

	// occupyHook runs before the occupation is applied.  A non-nil error
	// aborts the call.
	occupyHook func(ctx context.Context, scheduleID uint64, seat int, bookingID uint64) error
	creates    int
}

func newMemSchedules() *memSchedules {
	return &memSchedules{
		entries: map[string]*model.ScheduleEntry{},
		byID:    map[uint64]*model.ScheduleEntry{},
		seats:   map[uint64]map[int]uint64{},
	}
}

func scheduleKey(date time.Time, slot model.TimeSlot) string {
	return model.DateString(date) + "/" + string(slot)
}

func (m *memSchedules) snapshot(e *model.ScheduleEntry) *model.ScheduleEntry {
	cp := *e
	cp.Occupied = nil
	for seat, bid := range m.seats[e.ID] {
		cp.Occupied = append(cp.Occupied, model.OccupiedSeat{SeatNumber: seat, BookingID: bid})
	}
	sort.Slice(cp.Occupied, func(i, j int) bool { return cp.Occupied[i].SeatNumber < cp.Occupied[j].SeatNumber })
	cp.AvailableSeats = cp.TotalSeats - len(cp.Occupied)
	return &cp
}

func (m *memSchedules) Get(ctx context.Context, date time.Time, slot model.TimeSlot) (*model.ScheduleEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[scheduleKey(date, slot)]
	if !ok {
		return nil, repository.ErrScheduleNotFound
	}
	return m.snapshot(e), nil
}

func (m *memSchedules) Create(ctx context.Context, date time.Time, slot model.TimeSlot, totalSeats int, priceCents int64) (*model.ScheduleEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scheduleKey(date, slot)
	if _, ok := m.entries[k]; ok {
		return nil, repository.ErrDuplicateSchedule
	}
	m.nextID++
	m.creates++
	e := &model.ScheduleEntry{
		ID:         m.nextID,
		Date:       time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		TimeSlot:   slot,
		TotalSeats: totalSeats,
		PriceCents: priceCents,
		Status:     model.ScheduleActive,
	}
	m.entries[k] = e
	m.byID[e.ID] = e
	m.seats[e.ID] = map[int]uint64{}
	return m.snapshot(e), nil
}

func (m *memSchedules) OccupySeat(ctx context.Context, scheduleID uint64, seat int, bookingID uint64) (*model.ScheduleEntry, error) {
	if m.occupyHook != nil {
		if err := m.occupyHook(ctx, scheduleID, seat, bookingID); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.occupy(scheduleID, seat, bookingID)
}

// occupy applies an occupation directly, bypassing the hook.
func (m *memSchedules) occupy(scheduleID uint64, seat int, bookingID uint64) (*model.ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[scheduleID]
	if !ok {
		return nil, repository.ErrScheduleNotFound
	}
	taken := m.seats[scheduleID]
	if len(taken) >= e.TotalSeats {
		return nil, repository.ErrSeatUnavailable
	}
	if _, ok := taken[seat]; ok {
		return nil, repository.ErrSeatAlreadyTaken
	}
	taken[seat] = bookingID
	return m.snapshot(e), nil
}

func (m *memSchedules) ReleaseSeat(ctx context.Context, scheduleID uint64, seat int) (*model.ScheduleEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[scheduleID]
	if !ok {
		return nil, repository.ErrScheduleNotFound
	}
	delete(m.seats[scheduleID], seat)
	return m.snapshot(e), nil
}

func (m *memSchedules) ListRange(ctx context.Context, from, to time.Time) ([]model.ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := model.DateString(from), model.DateString(to)
	var out []model.ScheduleEntry
	for _, e := range m.byID {
		d := model.DateString(e.Date)
		if d >= lo && d <= hi {
			out = append(out, *m.snapshot(e))
		}
	}
	order := map[model.TimeSlot]int{model.SlotMorning: 0, model.SlotNoon: 1, model.SlotEvening: 2}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return order[out[i].TimeSlot] < order[out[j].TimeSlot]
	})
	return out, nil
}

func (m *memSchedules) Occupants(ctx context.Context, scheduleID uint64) ([]model.SeatOccupant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SeatOccupant
	for seat, bid := range m.seats[scheduleID] {
		out = append(out, model.SeatOccupant{SeatNumber: seat, BookingID: bid})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

func (m *memSchedules) available(date time.Time, slot model.TimeSlot) int {
	e, err := m.Get(context.Background(), date, slot)
	if err != nil {
		return -1
	}
	return e.AvailableSeats
}

// memBookings is an in-memory BookingRepository.
type memBookings struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Booking

	// afterCreate runs once the row is stored; its error is returned
	// with b.ID set, like a read-back failure in the MySQL store.
	afterCreate func(ctx context.Context, b *model.Booking) error
}

func newMemBookings() *memBookings {
	return &memBookings{rows: map[uint64]*model.Booking{}}
}

func (m *memBookings) Create(ctx context.Context, b *model.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.insert(b); err != nil {
		return err
	}
	if m.afterCreate != nil {
		return m.afterCreate(ctx, b)
	}
	return nil
}

func (m *memBookings) insert(b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.BookingCode == b.BookingCode {
			return repository.ErrDuplicateBookingCode
		}
	}
	m.nextID++
	b.ID = m.nextID
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	cp.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
	m.rows[b.ID] = &cp
	return nil
}

func (m *memBookings) find(match func(*model.Booking) bool) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if match(r) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (m *memBookings) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return m.find(func(b *model.Booking) bool { return b.ID == id })
}

func (m *memBookings) GetByCode(ctx context.Context, code string) (*model.Booking, error) {
	return m.find(func(b *model.Booking) bool { return b.BookingCode == code })
}

func (m *memBookings) GetByProviderPaymentID(ctx context.Context, pid string) (*model.Booking, error) {
	return m.find(func(b *model.Booking) bool { return b.ProviderPaymentID != nil && *b.ProviderPaymentID == pid })
}

func (m *memBookings) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrBookingNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memBookings) UpdateStatus(ctx context.Context, id uint64, from, to model.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Status != from {
		return repository.ErrNoRowsChanged
	}
	r.Status = to
	return nil
}

func (m *memBookings) UpdatePaymentStatus(ctx context.Context, id uint64, from, to model.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.PaymentStatus != from {
		return repository.ErrNoRowsChanged
	}
	r.PaymentStatus = to
	return nil
}

func (m *memBookings) BindProviderPayment(ctx context.Context, id uint64, pid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return repository.ErrBookingNotFound
	}
	r.ProviderPaymentID = &pid
	return nil
}

func (m *memBookings) CompletePayment(ctx context.Context, pid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ProviderPaymentID != nil && *r.ProviderPaymentID == pid && r.PaymentStatus == model.PaymentPending {
			r.PaymentStatus = model.PaymentCompleted
			r.EmailSent = true
			r.AdminNotified = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memBookings) ListBySchedule(ctx context.Context, date time.Time, slot model.TimeSlot) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, r := range m.rows {
		if model.DateString(r.Date) == model.DateString(date) && r.TimeSlot == slot {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memBookings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// recordingNotifier counts dispatched notifications.
type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	alerts    []string
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, b model.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, b.BookingCode)
	return nil
}

func (n *recordingNotifier) AdminAlert(_ context.Context, b model.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, b.BookingCode)
	return nil
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmed), len(n.alerts)
}

// stubProvider is a PaymentProvider with canned answers.
// Created intents start open; setState moves them.
type stubProvider struct {
	mu        sync.Mutex
	next      int
	states    map[string]IntentState
	succeeded bool
	err       error
}

func (p *stubProvider) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	if p.err != nil {
		return Intent{}, p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := fmt.Sprintf("pi_%s_%d", req.BookingCode, p.next)
	if p.states == nil {
		p.states = map[string]IntentState{}
	}
	p.states[id] = IntentOpen
	return Intent{ProviderPaymentID: id, ClientSecret: id + "_secret", State: IntentOpen}, nil
}

func (p *stubProvider) GetIntent(_ context.Context, id string) (Intent, error) {
	if p.err != nil {
		return Intent{}, p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[id]
	if !ok {
		return Intent{}, fmt.Errorf("no such intent %s", id)
	}
	return Intent{ProviderPaymentID: id, ClientSecret: id + "_secret", State: st}, nil
}

func (p *stubProvider) setState(id string, st IntentState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[id] = st
}

func (p *stubProvider) Succeeded(context.Context, string) (bool, error) {
	return p.succeeded, p.err
}

// memCache is an in-memory AvailabilityCache.
type memCache struct {
	mu          sync.Mutex
	items       map[string][]model.SlotAvailability
	invalidated []string
}

func newMemCache() *memCache { return &memCache{items: map[string][]model.SlotAvailability{}} }

func (c *memCache) Get(_ context.Context, date string) ([]model.SlotAvailability, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[date]
	return v, ok
}

func (c *memCache) Set(_ context.Context, date string, slots []model.SlotAvailability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[date] = slots
}

func (c *memCache) Invalidate(_ context.Context, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, date)
	c.invalidated = append(c.invalidated, date)
}

// keyedLock is a minimal per-key Locker for tests.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLock) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock, nil
}

// env wires every core component against in-memory storage with a fixed
// clock.
type env struct {
	cfg       config.BookingConfig
	now       time.Time
	schedules *memSchedules
	repo      *memBookings
	cache     *memCache
	ledger    *Ledger
	bookings  *BookingStore
	orch      *Orchestrator
	notifier  *recordingNotifier
	provider  *stubProvider
	payments  *PaymentAdapter
	logs      *test.Hook
}

// testNow is 2030-01-10 12:00 UTC.
var testNow = time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	e := &env{
		cfg:       config.DefaultBooking(),
		now:       testNow,
		schedules: newMemSchedules(),
		repo:      newMemBookings(),
		cache:     newMemCache(),
		notifier:  &recordingNotifier{},
		provider:  &stubProvider{succeeded: true},
		logs:      hook,
	}
	e.ledger = NewLedger(e.schedules, e.cfg, e.cache)
	e.bookings = NewBookingStore(e.repo, e.cfg)
	e.orch = NewOrchestrator(e.ledger, e.bookings, &keyedLock{}, e.cfg, logger)
	e.payments = NewPaymentAdapter(e.bookings, e.provider, e.notifier, "usd", logger)
	e.setNow(testNow)
	return e
}

func (e *env) setNow(now time.Time) {
	e.now = now
	clock := func() time.Time { return now }
	e.ledger.now = clock
	e.bookings.now = clock
	e.orch.now = clock
}

func (e *env) request(date string, slot model.TimeSlot, name string) ReservationRequest {
	return ReservationRequest{
		Date:     date,
		TimeSlot: string(slot),
		Passenger: model.Passenger{
			Name:  name,
			Email: "passenger@example.com",
			Phone: "5551234567",
		},
	}
}

// integrityEntries returns the log entries flagged for reconciliation.
func (e *env) integrityEntries() []logrus.Entry {
	var out []logrus.Entry
	for _, en := range e.logs.AllEntries() {
		if v, ok := en.Data["integrity"].(bool); ok && v {
			out = append(out, *en)
		}
	}
	return out
}

func day0(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}
