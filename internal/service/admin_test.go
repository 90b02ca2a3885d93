package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
)

var (
	admin    = model.Principal{ID: 1, Role: model.RoleAdmin}
	customer = model.Principal{ID: 2, Role: model.RoleUser}
)

func TestUpdateStatusRequiresAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Guarded"))
	require.NoError(t, err)

	_, err = e.orch.UpdateStatus(ctx, customer, b.ID, model.BookingCancelled)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = e.orch.ScheduleOverview(ctx, customer, nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateStatusComplete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Done"))
	require.NoError(t, err)

	done, err := e.orch.UpdateStatus(ctx, admin, b.ID, model.BookingCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, done.Status)
	// Completed bookings keep their seat.
	assert.Equal(t, 14, e.schedules.available(day0(travel), model.SlotMorning))

	_, err = e.orch.UpdateStatus(ctx, admin, b.ID, model.BookingCancelled)
	assert.True(t, IsInvalidTransition(err))
	_, err = e.orch.UpdateStatus(ctx, admin, b.ID, model.BookingCompleted)
	assert.True(t, IsInvalidTransition(err))
	_, err = e.orch.Cancel(ctx, b.BookingCode)
	assert.True(t, IsInvalidTransition(err))
}

func TestUpdateStatusCancelBypassesWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Late"))
	require.NoError(t, err)

	e.setNow(time.Date(2030, 1, 14, 22, 0, 0, 0, time.UTC))
	_, err = e.orch.Cancel(ctx, b.BookingCode)
	require.ErrorIs(t, err, ErrCancellationWindowClosed)

	cancelled, err := e.orch.UpdateStatus(ctx, admin, b.ID, model.BookingCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Equal(t, 15, e.schedules.available(day0(travel), model.SlotMorning))

	_, err = e.orch.UpdateStatus(ctx, admin, b.ID, model.BookingCancelled)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestUpdateStatusRejectsBadTargets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Target"))
	require.NoError(t, err)

	_, err = e.orch.UpdateStatus(ctx, admin, b.ID, model.BookingConfirmed)
	assert.True(t, IsInvalidTransition(err))

	_, err = e.orch.UpdateStatus(ctx, admin, b.ID, "archived")
	assert.True(t, IsValidation(err))

	_, err = e.orch.UpdateStatus(ctx, admin, 4242, model.BookingCompleted)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestScheduleOverview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first, err := e.orch.Reserve(ctx, e.request(travel, model.SlotNoon, "Ada"))
	require.NoError(t, err)
	_, err = e.orch.Reserve(ctx, e.request("2030-01-10", model.SlotEvening, "Today"))
	require.NoError(t, err)
	_, err = e.orch.Reserve(ctx, e.request("2030-01-20", model.SlotMorning, "Far Away"))
	require.NoError(t, err)

	week, err := e.orch.ScheduleOverview(ctx, admin, nil)
	require.NoError(t, err)
	require.Len(t, week, 2)
	assert.Equal(t, "2030-01-10", week[0].Date)
	assert.Equal(t, model.SlotEvening, week[0].TimeSlot)
	assert.Equal(t, "2030-01-15", week[1].Date)
	assert.Equal(t, "12:00 PM - 03:00 PM", week[1].Label)

	d := day0(travel)
	one, err := e.orch.ScheduleOverview(ctx, admin, &d)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 14, one[0].AvailableSeats)
	require.Len(t, one[0].Occupants, 1)
	assert.Equal(t, first.ID, one[0].Occupants[0].BookingID)
	assert.Equal(t, 1, one[0].Occupants[0].SeatNumber)

	// Reading never creates entries.
	empty := day0("2030-01-12")
	none, err := e.orch.ScheduleOverview(ctx, admin, &empty)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReconcileReportsEveryMismatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reserve := func(name string) *model.Booking {
		b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, name))
		require.NoError(t, err)
		return b
	}
	healthy := reserve("Healthy")
	cancelled := reserve("Cancelled")
	seatless := reserve("Seatless")

	entry, err := e.schedules.Get(ctx, day0(travel), model.SlotMorning)
	require.NoError(t, err)
	require.NoError(t, e.repo.UpdateStatus(ctx, cancelled.ID, model.BookingConfirmed, model.BookingCancelled))
	_, err = e.schedules.ReleaseSeat(ctx, entry.ID, seatless.SeatNumber)
	require.NoError(t, err)
	_, err = e.schedules.occupy(entry.ID, 5, 999)
	require.NoError(t, err)
	_, err = e.schedules.occupy(entry.ID, 9, healthy.ID)
	require.NoError(t, err)
	orphan := &model.Booking{
		BookingCode: "BUS000001ORF", Date: day0(travel), TimeSlot: model.SlotNoon,
		SeatNumber: 1, Status: model.BookingConfirmed, PaymentStatus: model.PaymentPending,
	}
	require.NoError(t, e.repo.Create(ctx, orphan))

	issues, err := e.orch.Reconcile(ctx, day0(travel))
	require.NoError(t, err)

	kinds := make([]string, len(issues))
	for i, is := range issues {
		kinds[i] = is.Kind
		assert.Equal(t, travel, is.Date)
	}
	assert.Equal(t, []string{
		IssueSeatOfCancelled,
		IssueSeatWithoutBooking,
		IssueSeatMismatch,
		IssueBookingWithoutSeat,
		IssueBookingWithoutLedger,
	}, kinds)
	assert.Equal(t, uint64(999), issues[1].BookingID)
	assert.Equal(t, healthy.BookingCode, issues[2].BookingCode)
	assert.Equal(t, seatless.BookingCode, issues[3].BookingCode)
	assert.Equal(t, orphan.BookingCode, issues[4].BookingCode)
	assert.Len(t, e.integrityEntries(), len(issues))
}

func TestReconcileCleanLedger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Clean"))
	require.NoError(t, err)
	_, err = e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Also Clean"))
	require.NoError(t, err)
	_, err = e.orch.Cancel(ctx, b.BookingCode)
	require.NoError(t, err)

	issues, err := e.orch.Reconcile(ctx, day0(travel))
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.NotNil(t, issues)
}

func TestReconcileWaitsForReservationInFlight(t *testing.T) {
	e := newEnv(t)
	type result struct {
		issues []model.IntegrityIssue
		err    error
	}
	done := make(chan result, 1)
	e.schedules.occupyHook = func(_ context.Context, _ uint64, _ int, _ uint64) error {
		go func() {
			issues, err := e.orch.Reconcile(context.Background(), day0(travel))
			done <- result{issues, err}
		}()
		select {
		case <-done:
			t.Error("reconcile ran while the slot was locked")
		case <-time.After(50 * time.Millisecond):
		}
		return nil
	}

	_, err := e.orch.Reserve(context.Background(), e.request(travel, model.SlotMorning, "In Flight"))
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Empty(t, r.issues)
	case <-time.After(time.Second):
		t.Fatal("reconcile did not finish")
	}
	assert.Empty(t, e.integrityEntries())
}

func TestRunReconcilerStopsWithContext(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.orch.RunReconciler(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
