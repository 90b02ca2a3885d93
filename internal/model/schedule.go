package model

import "time"

// TimeSlot identifies one of the three fixed daily departure windows.
type TimeSlot string

const (
    SlotMorning TimeSlot = "morning"
    SlotNoon    TimeSlot = "noon"
    SlotEvening TimeSlot = "evening"
)

// TimeSlots lists every slot in departure order.  Availability listings
// and schedule overviews iterate this slice so results are stable.
var TimeSlots = []TimeSlot{SlotMorning, SlotNoon, SlotEvening}

// Valid reports whether s is one of the fixed slots.
func (s TimeSlot) Valid() bool {
    switch s {
    case SlotMorning, SlotNoon, SlotEvening:
        return true
    }
    return false
}

// ScheduleStatus is informational only; seat math never consults it.
type ScheduleStatus string

const (
    ScheduleActive    ScheduleStatus = "active"
    ScheduleCancelled ScheduleStatus = "cancelled"
    ScheduleCompleted ScheduleStatus = "completed"
)

// OccupiedSeat pairs a seat number with the booking holding it.
type OccupiedSeat struct {
    SeatNumber int    `json:"seatNumber"`
    BookingID  uint64 `json:"bookingId"`
}

// ScheduleEntry is the seat inventory for one (date, time slot) pair.
// There is exactly one entry per pair; it is created lazily on the first
// availability check or reservation attempt.
//
// Fields:
//  ID             – bus_schedules.id.
//  Date           – travel date normalized to midnight.
//  TimeSlot       – departure window.
//  TotalSeats     – seat count fixed at creation.
//  AvailableSeats – always TotalSeats minus len(Occupied).
//  PriceCents     – base seat price fixed at creation.
//  Status         – informational schedule status.
//  Occupied       – seats taken, ordered by seat number.
type ScheduleEntry struct {
    ID             uint64         `json:"id"`
    Date           time.Time      `json:"date"`
    TimeSlot       TimeSlot       `json:"timeSlot"`
    TotalSeats     int            `json:"totalSeats"`
    AvailableSeats int            `json:"availableSeats"`
    PriceCents     int64          `json:"priceCents"`
    Status         ScheduleStatus `json:"status"`
    Occupied       []OccupiedSeat `json:"occupied"`
    CreatedAt      time.Time      `json:"createdAt"`
    UpdatedAt      time.Time      `json:"updatedAt"`
}

// IsOccupied reports whether seat is already taken.
func (e *ScheduleEntry) IsOccupied(seat int) bool {
    for _, o := range e.Occupied {
        if o.SeatNumber == seat {
            return true
        }
    }
    return false
}

// LowestFreeSeat returns the lowest seat number in [1, TotalSeats] that is
// not occupied, or 0 when the entry is full.
func (e *ScheduleEntry) LowestFreeSeat() int {
    taken := make(map[int]struct{}, len(e.Occupied))
    for _, o := range e.Occupied {
        taken[o.SeatNumber] = struct{}{}
    }
    for n := 1; n <= e.TotalSeats; n++ {
        if _, ok := taken[n]; !ok {
            return n
        }
    }
    return 0
}

// SlotAvailability is one row of an availability listing.
type SlotAvailability struct {
    TimeSlot       TimeSlot `json:"timeSlot"`
    Label          string   `json:"label"`
    AvailableSeats int      `json:"availableSeats"`
    TotalSeats     int      `json:"totalSeats"`
    PriceCents     int64    `json:"priceCents"`
}

// SeatOccupant is an occupied seat enriched with the booking details shown
// in the admin schedule overview.
type SeatOccupant struct {
    SeatNumber     int    `json:"seatNumber"`
    BookingID      uint64 `json:"bookingId"`
    BookingCode    string `json:"bookingCode,omitempty"`
    PassengerName  string `json:"passengerName,omitempty"`
    PassengerEmail string `json:"passengerEmail,omitempty"`
}

// ScheduleOverview is a ledger entry together with its occupants.
type ScheduleOverview struct {
    Date           string         `json:"date"`
    TimeSlot       TimeSlot       `json:"timeSlot"`
    Label          string         `json:"label"`
    TotalSeats     int            `json:"totalSeats"`
    AvailableSeats int            `json:"availableSeats"`
    PriceCents     int64          `json:"priceCents"`
    Status         ScheduleStatus `json:"status"`
    Occupants      []SeatOccupant `json:"occupants"`
}

// DateString renders a travel date as YYYY-MM-DD.
func DateString(t time.Time) string { return t.Format("2006-01-02") }
