package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// ReservationRequest is the input of Orchestrator.Reserve.
type ReservationRequest struct {
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot  string          `json:"timeSlot" validate:"required,time_slot"`
	Passenger model.Passenger `json:"passenger"`
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)
)

// fieldMessages maps a json field path to the message shown for any
// failure on that field.
var fieldMessages = map[string]string{
	"date":            "Valid date is required",
	"timeSlot":        "Valid time slot is required",
	"passenger.name":  "Name must be at least 2 characters",
	"passenger.email": "Valid email is required",
	"passenger.phone": "Valid phone number is required",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so field paths match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("email_format", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone_digits", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("time_slot", func(fl validator.FieldLevel) bool {
		return model.TimeSlot(fl.Field().String()).Valid()
	})
	return v
}

// normalizePassenger trims every field and lower-cases the email.
func normalizePassenger(p model.Passenger) model.Passenger {
	return model.Passenger{
		Name:  strings.TrimSpace(p.Name),
		Email: strings.ToLower(strings.TrimSpace(p.Email)),
		Phone: strings.TrimSpace(p.Phone),
	}
}

// validateReservation checks every field of req and returns the parsed
// travel date.  All failing fields are reported together in one
// *ValidationError.  A request whose only problem is a date before today
// fails with ErrPastDate instead.
func validateReservation(req ReservationRequest, today time.Time, loc *time.Location) (time.Time, *ReservationRequest, error) {
	req.Date = strings.TrimSpace(req.Date)
	req.TimeSlot = strings.TrimSpace(req.TimeSlot)
	req.Passenger = normalizePassenger(req.Passenger)

	var fields []FieldError
	seen := map[string]bool{}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return time.Time{}, nil, err
		}
		for _, fe := range verrs {
			path := fe.Namespace()
			// Drop the leading struct name: "ReservationRequest.passenger.name".
			if i := strings.Index(path, "."); i >= 0 {
				path = path[i+1:]
			}
			if seen[path] {
				continue
			}
			seen[path] = true
			fields = append(fields, FieldError{Field: path, Message: messageFor(path)})
		}
	}

	var date time.Time
	if !seen["date"] {
		d, err := time.ParseInLocation("2006-01-02", req.Date, loc)
		if err != nil {
			fields = append(fields, FieldError{Field: "date", Message: messageFor("date")})
		} else if d.Before(today) {
			if len(fields) == 0 {
				return time.Time{}, nil, ErrPastDate
			}
			fields = append(fields, FieldError{Field: "date", Message: ErrPastDate.Error()})
		} else {
			date = d
		}
	}
	if len(fields) > 0 {
		return time.Time{}, nil, &ValidationError{Fields: fields}
	}
	return date, &req, nil
}

func messageFor(path string) string {
	if m, ok := fieldMessages[path]; ok {
		return m
	}
	return "invalid value"
}

// ParseDate parses a YYYY-MM-DD date in loc.  A malformed value is a
// *ValidationError on the date field.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, &ValidationError{Fields: []FieldError{{Field: "date", Message: messageFor("date")}}}
	}
	return d, nil
}
