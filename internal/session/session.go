package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")

	// ErrActiveSessionExists is returned by stores that enforce the
	// one-active-session-per-machine constraint at write time.
	ErrActiveSessionExists = errors.New("machine already has an active session")
)

// Duration bounds for a booking, in minutes.
const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 180
)

// Session represents a washing machine booking
type Session struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	PhoneNumber     string    `json:"phoneNumber"`
	MachineNumber   int       `json:"machineNumber"`
	StartTime       time.Time `json:"startTime"`
	DurationMinutes int       `json:"duration"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EndTime returns when the booked window closes.
func (s *Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// IsExpired reports whether the booked window has elapsed at the given instant.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.EndTime())
}

// Input carries the fields a caller supplies when booking a machine.
// StartTime is optional; the zero value means "now".
type Input struct {
	Name            string    `json:"name"`
	PhoneNumber     string    `json:"phoneNumber"`
	MachineNumber   int       `json:"machineNumber"`
	DurationMinutes int       `json:"duration"`
	StartTime       time.Time `json:"startTime,omitempty"`
}

// ValidationError reports every input field that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid session input: " + strings.Join(e.Fields, ", ")
}

// Validate checks the invariants for a new booking. All violations are
// collected so the caller can name every bad field in one response.
func (i *Input) Validate() error {
	var fields []string

	if strings.TrimSpace(i.Name) == "" {
		fields = append(fields, "name is required")
	}
	if strings.TrimSpace(i.PhoneNumber) == "" {
		fields = append(fields, "phoneNumber is required")
	}
	if i.DurationMinutes < MinDurationMinutes {
		fields = append(fields, "duration must be at least 1 minute")
	}
	if i.DurationMinutes > MaxDurationMinutes {
		fields = append(fields, "duration cannot exceed 3 hours")
	}
	if i.MachineNumber < 1 {
		fields = append(fields, "machineNumber must be at least 1")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Repository defines the interface for session persistence
type Repository interface {
	// Create persists a new session record.
	Create(ctx context.Context, sess *Session) error

	// FindByID retrieves a session by ID.
	FindByID(ctx context.Context, id string) (*Session, error)

	// FindActiveByMachine returns the active session for a machine, or
	// ErrSessionNotFound when the machine has none.
	FindActiveByMachine(ctx context.Context, machineNumber int) (*Session, error)

	// ListAll returns sessions ordered by created_at descending,
	// optionally restricted to active ones.
	ListAll(ctx context.Context, activeOnly bool) ([]*Session, error)

	// ListActive returns every active session, one access path per
	// machine-status read.
	ListActive(ctx context.Context) ([]*Session, error)

	// DeleteByID removes a session record permanently.
	DeleteByID(ctx context.Context, id string) error

	// MarkInactive flips is_active to false. Applying it to an already
	// inactive session is a no-op success.
	MarkInactive(ctx context.Context, id string) error

	// MarkExpired deactivates every active session whose window closed
	// before now, returning how many rows were flipped.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)

	// PurgeInactiveBefore deletes inactive history older than the cutoff.
	PurgeInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
