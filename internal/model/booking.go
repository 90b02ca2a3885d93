package model

import "time"

// BookingStatus is the lifecycle axis of a booking.
type BookingStatus string

const (
    BookingConfirmed BookingStatus = "confirmed"
    BookingCancelled BookingStatus = "cancelled"
    BookingCompleted BookingStatus = "completed"
)

// PaymentStatus is the payment axis of a booking, independent of status.
type PaymentStatus string

const (
    PaymentPending   PaymentStatus = "pending"
    PaymentCompleted PaymentStatus = "completed"
    PaymentFailed    PaymentStatus = "failed"
    PaymentRefunded  PaymentStatus = "refunded"
)

// Passenger is a denormalized copy of the traveller's contact details.
type Passenger struct {
    Name  string `json:"name" validate:"required,min=2"`
    Email string `json:"email" validate:"required,email_format"`
    Phone string `json:"phone" validate:"required,phone_digits"`
}

// Booking is the durable record of one seat reservation.  Rows are never
// deleted once visible; the only delete path is the compensating rollback
// of a reservation whose seat could not be occupied.
//
// Fields:
//  ID                – bookings.id.
//  BookingCode       – unique human-facing identifier.
//  Date, TimeSlot    – ledger entry the seat belongs to.
//  SeatNumber        – seat in [1, totalSeats], immutable.
//  AmountCents       – price plus service fee, fixed at creation.
//  ProviderPaymentID – payment handle bound before charging (nullable).
//  EmailSent         – confirmation email dispatched.
//  AdminNotified     – admin alert dispatched.
type Booking struct {
    ID                uint64        `json:"id"`
    BookingCode       string        `json:"bookingCode"`
    Date              time.Time     `json:"date"`
    TimeSlot          TimeSlot      `json:"timeSlot"`
    Passenger         Passenger     `json:"passenger"`
    SeatNumber        int           `json:"seatNumber"`
    AmountCents       int64         `json:"amountCents"`
    PaymentStatus     PaymentStatus `json:"paymentStatus"`
    ProviderPaymentID *string       `json:"providerPaymentId,omitempty"`
    Status            BookingStatus `json:"status"`
    EmailSent         bool          `json:"emailSent"`
    AdminNotified     bool          `json:"adminNotified"`
    CreatedAt         time.Time     `json:"createdAt"`
    UpdatedAt         time.Time     `json:"updatedAt"`
}

// BookingFilter narrows an admin booking listing.  Zero values mean "any".
type BookingFilter struct {
    Date          *time.Time
    TimeSlot      TimeSlot
    Status        BookingStatus
    PaymentStatus PaymentStatus
    Page          int
    Limit         int
}

// BookingPage is one page of an admin listing.
type BookingPage struct {
    Items      []Booking `json:"items"`
    Total      int       `json:"total"`
    Page       int       `json:"page"`
    Limit      int       `json:"limit"`
    TotalPages int       `json:"totalPages"`
}

// DashboardStats summarises bookings and revenue for the admin dashboard.
// Percentages are rounded to one decimal place.
type DashboardStats struct {
    TotalBookings         int     `json:"totalBookings"`
    TodayBookings         int     `json:"todayBookings"`
    TotalRevenueCents     int64   `json:"totalRevenueCents"`
    PendingPayments       int     `json:"pendingPayments"`
    WeeklyGrowth          float64 `json:"weeklyGrowth"`
    AverageBookingsPerDay float64 `json:"averageBookingsPerDay"`
    OccupancyRate         float64 `json:"occupancyRate"`
    RevenueGrowth         float64 `json:"revenueGrowth"`
}

// IntegrityIssue describes one mismatch between the ledger and bookings.
type IntegrityIssue struct {
    Kind        string   `json:"kind"`
    Date        string   `json:"date"`
    TimeSlot    TimeSlot `json:"timeSlot"`
    SeatNumber  int      `json:"seatNumber"`
    BookingID   uint64   `json:"bookingId"`
    BookingCode string   `json:"bookingCode,omitempty"`
}

// Principal is the authenticated caller supplied by the auth middleware.
type Principal struct {
    ID   uint64
    Role string
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
