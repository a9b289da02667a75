package models

import (
	"time"

	"github.com/lib/pq"
)

// Seat and locker bounds. Zero is the "unassigned" sentinel for both and is
// exempt from conflict checks.
const (
	SeatUnassigned   = 0
	MaxSeatNumber    = 136
	LockerUnassigned = 0
	MaxLockerNumber  = 100
)

// Student represents a member holding a seat, time slots and optionally a
// locker, along with fee tracking fields.
type Student struct {
	ID                         string         `db:"id" json:"id"`
	RegistrationNumber         string         `db:"registration_number" json:"registration_number"`
	FullName                   string         `db:"full_name" json:"full_name"`
	FatherName                 string         `db:"father_name" json:"father_name"`
	ContactNumber              string         `db:"contact_number" json:"contact_number"`
	Address                    string         `db:"address" json:"address"`
	SeatNumber                 int            `db:"seat_number" json:"seat_number"`
	TimeSlots                  pq.StringArray `db:"time_slots" json:"time_slots"`
	LockerNumber               int            `db:"locker_number" json:"locker_number"`
	AmountPaid                 float64        `db:"amount_paid" json:"amount_paid"`
	AmountDue                  *float64       `db:"amount_due" json:"amount_due,omitempty"`
	AdmissionAmount            float64        `db:"admission_amount" json:"admission_amount"`
	FeesPaidTillDate           time.Time      `db:"fees_paid_till_date" json:"fees_paid_till_date"`
	AdmissionDate              time.Time      `db:"admission_date" json:"admission_date"`
	PaymentExpectedDate        time.Time      `db:"payment_expected_date" json:"payment_expected_date"`
	PaymentExpectedDateChanged int            `db:"payment_expected_date_changed" json:"payment_expected_date_changed"`
	Active                     bool           `db:"active" json:"active"`
	OwnerID                    *string        `db:"owner_id" json:"owner_id,omitempty"`
	CreatedAt                  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time      `db:"updated_at" json:"updated_at"`
}

// Slots returns the record's time slots as typed values.
func (s *Student) Slots() []Slot {
	return SlotsFromStrings(s.TimeSlots)
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	Active     *bool
	SeatNumber *int
	Slot       string
	DueBefore  *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
