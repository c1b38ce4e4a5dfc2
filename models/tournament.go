package models

import "time"

// TournamentStatus mirrors the tournament lifecycle ENUM in the database.
// Transitions are monotonic except for explicit cancellation.
type TournamentStatus string

const (
	StatusUpcoming           TournamentStatus = "upcoming"
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusOngoing            TournamentStatus = "ongoing"
	StatusCompleted          TournamentStatus = "completed"
	StatusCancelled          TournamentStatus = "cancelled"
)

// ManagementStatus is the organizer-controlled gate, independent of the
// lifecycle status. Anything other than "open" blocks registration.
type ManagementStatus string

const (
	ManagementOpen      ManagementStatus = "open"
	ManagementLocked    ManagementStatus = "locked"
	ManagementOngoing   ManagementStatus = "ongoing"
	ManagementCompleted ManagementStatus = "completed"
)

// Tournament represents a pool tournament.
type Tournament struct {
	ID                  int              `json:"id" db:"id"`
	Name                string           `json:"name" db:"name"`
	Description         *string          `json:"description,omitempty" db:"description"`
	ClubID              *int             `json:"club_id,omitempty" db:"club_id"`
	OrganizerID         int              `json:"organizer_id" db:"organizer_id"`
	MaxParticipants     int              `json:"max_participants" db:"max_participants"`
	CurrentParticipants int              `json:"current_participants" db:"current_participants"`
	RegistrationStart   time.Time        `json:"registration_start" db:"registration_start"`
	RegistrationEnd     time.Time        `json:"registration_end" db:"registration_end"`
	StartTime           time.Time        `json:"start_time" db:"start_time"`
	Status              TournamentStatus `json:"status" db:"status"`
	ManagementStatus    ManagementStatus `json:"management_status" db:"management_status"`
	MinRank             *RankCode        `json:"min_rank,omitempty" db:"min_rank"`
	MaxRank             *RankCode        `json:"max_rank,omitempty" db:"max_rank"`
	MinAge              *int             `json:"min_age,omitempty" db:"min_age"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
}

// IsTerminal reports whether the tournament can no longer change status.
func (s TournamentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// lifecycleOrder positions the forward-only statuses. Cancellation sits
// outside the ordering: it is reachable from any non-terminal status.
var lifecycleOrder = map[TournamentStatus]int{
	StatusUpcoming:           0,
	StatusRegistrationOpen:   1,
	StatusRegistrationClosed: 2,
	StatusOngoing:            3,
	StatusCompleted:          4,
}

// Precedes reports whether s sits strictly earlier than other on the
// lifecycle ordering. Cancelled neither precedes nor follows anything.
func (s TournamentStatus) Precedes(other TournamentStatus) bool {
	a, okA := lifecycleOrder[s]
	b, okB := lifecycleOrder[other]
	return okA && okB && a < b
}

// StatusesPreceding returns every status strictly earlier than status on
// the lifecycle ordering, in no particular order.
func StatusesPreceding(status TournamentStatus) []TournamentStatus {
	limit, ok := lifecycleOrder[status]
	if !ok {
		return nil
	}
	out := make([]TournamentStatus, 0, limit)
	for s, ord := range lifecycleOrder {
		if ord < limit {
			out = append(out, s)
		}
	}
	return out
}
