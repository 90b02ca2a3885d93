// Package queue defines message payloads exchanged over the message broker.
package queue

import (
    "time"

    "github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// Queue names.  Both are durable.
const (
    BookingConfirmedQueue = "booking.confirmed"
    AdminAlertQueue       = "booking.admin_alert"
)

// BookingConfirmedEvent is published once per booking when its payment
// completes.  It carries everything the notification consumer needs to
// write the passenger confirmation without querying the database.
type BookingConfirmedEvent struct {
    BookingID      uint64 `json:"booking_id"`
    BookingCode    string `json:"booking_code"`
    PassengerName  string `json:"passenger_name"`
    PassengerEmail string `json:"passenger_email"`
    TravelDate     string `json:"travel_date"`
    TimeSlot       string `json:"time_slot"`
    SlotLabel      string `json:"slot_label"`
    SeatNumber     int    `json:"seat_number"`
    AmountCents    int64  `json:"amount_cents"`
    ConfirmedAt    string `json:"confirmed_at"`
}

// AdminAlertEvent tells the operator about a paid booking.
type AdminAlertEvent struct {
    BookingConfirmedEvent
    Kind string `json:"kind"`
}

// NewBookingConfirmedEvent builds the event for b.  label is the display
// label of the booking's time slot.
func NewBookingConfirmedEvent(b model.Booking, label string, at time.Time) BookingConfirmedEvent {
    return BookingConfirmedEvent{
        BookingID:      b.ID,
        BookingCode:    b.BookingCode,
        PassengerName:  b.Passenger.Name,
        PassengerEmail: b.Passenger.Email,
        TravelDate:     model.DateString(b.Date),
        TimeSlot:       string(b.TimeSlot),
        SlotLabel:      label,
        SeatNumber:     b.SeatNumber,
        AmountCents:    b.AmountCents,
        ConfirmedAt:    at.UTC().Format(time.RFC3339),
    }
}
