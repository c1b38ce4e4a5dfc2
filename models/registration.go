package models

import "time"

// RegistrationStatus mirrors the registration ENUM in the database.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// PaymentStatus is carried on registrations as data only; payment
// processing happens outside this service.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Registration is one user's entry for one tournament. At most one active
// (non-cancelled) registration may exist per (tournament, user) pair; the
// database enforces this with a partial unique index. Cancellation is a
// soft status change, rows are never hard-deleted.
type Registration struct {
	ID            string             `json:"id" db:"id"`
	TournamentID  int                `json:"tournament_id" db:"tournament_id"`
	UserID        int                `json:"user_id" db:"user_id"`
	Status        RegistrationStatus `json:"status" db:"status"`
	PaymentStatus PaymentStatus      `json:"payment_status" db:"payment_status"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// Active reports whether the registration still counts toward the
// tournament's participant total.
func (r *Registration) Active() bool {
	return r != nil && r.Status != RegistrationCancelled
}
