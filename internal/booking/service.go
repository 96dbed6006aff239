// Copyright 2026 The HostelHub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hostelhub/hostelhub/internal/audit"
	"github.com/hostelhub/hostelhub/internal/observability/logger"
	"github.com/hostelhub/hostelhub/internal/observability/metrics"
	"github.com/hostelhub/hostelhub/internal/session"
	"go.opentelemetry.io/otel/metric"
)

// Domain errors
var (
	ErrMachineInUse = errors.New("machine already in use")
)

// Policy holds the booking rules the service applies.
type Policy struct {
	TotalMachines    int
	MachinesPerFloor int
}

// Service derives machine status from session records and enforces booking
// admission control.
type Service struct {
	repo        session.Repository
	auditLogger audit.Logger
	policy      Policy

	bookingsCreated  metric.Int64Counter
	bookingsRejected metric.Int64Counter
	sessionsExpired  metric.Int64Counter
}

// NewService creates a new booking service
func NewService(repo session.Repository, auditLogger audit.Logger, meter *metrics.Meter, policy Policy) *Service {
	s := &Service{
		repo:        repo,
		auditLogger: auditLogger,
		policy:      policy,
	}

	var err error
	if s.bookingsCreated, err = meter.CreateCounter("bookings_created_total", "Sessions successfully created"); err != nil {
		slog.Warn("failed to create counter", logger.Error(err))
	}
	if s.bookingsRejected, err = meter.CreateCounter("bookings_rejected_total", "Booking attempts rejected by admission control"); err != nil {
		slog.Warn("failed to create counter", logger.Error(err))
	}
	if s.sessionsExpired, err = meter.CreateCounter("sessions_expired_total", "Sessions deactivated after their window elapsed"); err != nil {
		slog.Warn("failed to create counter", logger.Error(err))
	}

	return s
}

// Book validates the input, runs the conflict check for the requested
// machine, and persists a new active session.
//
// The conflict rule compares only the existing active session's start time
// against the end of the requested window. An expired session that has not
// been deactivated yet therefore still blocks the machine until the expiry
// sweep (or a status read) flips it. Deliberate: matches the booking
// behavior clients already rely on.
func (s *Service) Book(ctx context.Context, in session.Input) (*session.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	startTime := in.StartTime
	if startTime.IsZero() {
		startTime = now
	}
	requestedEnd := now.Add(time.Duration(in.DurationMinutes) * time.Minute)

	existing, err := s.repo.FindActiveByMachine(ctx, in.MachineNumber)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check machine availability: %w", err)
	}
	if existing != nil && existing.StartTime.Before(requestedEnd) {
		if s.bookingsRejected != nil {
			s.bookingsRejected.Add(ctx, 1)
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:          audit.TypeBookingRejected,
			SessionID:     existing.ID,
			MachineNumber: in.MachineNumber,
			Resource:      "session",
			Metadata:      map[string]any{"requested_duration": in.DurationMinutes},
		})
		return nil, ErrMachineInUse
	}

	sess := &session.Session{
		ID:              uuid.NewString(),
		Name:            in.Name,
		PhoneNumber:     in.PhoneNumber,
		MachineNumber:   in.MachineNumber,
		StartTime:       startTime,
		DurationMinutes: in.DurationMinutes,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		// The partial unique index closes the check-then-create race;
		// losing that race is the same conflict as the explicit check.
		if errors.Is(err, session.ErrActiveSessionExists) {
			if s.bookingsRejected != nil {
				s.bookingsRejected.Add(ctx, 1)
			}
			return nil, ErrMachineInUse
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.bookingsCreated != nil {
		s.bookingsCreated.Add(ctx, 1)
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:          audit.TypeBookingCreated,
		SessionID:     sess.ID,
		MachineNumber: sess.MachineNumber,
		Resource:      "session",
		Metadata:      map[string]any{"duration": sess.DurationMinutes},
	})

	return sess, nil
}

// Release deletes a session, freeing its machine immediately. Used both for
// pickup after a finished wash and for ending a session early.
func (s *Service) Release(ctx context.Context, id string) error {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:          audit.TypeSessionReleased,
		SessionID:     sess.ID,
		MachineNumber: sess.MachineNumber,
		Resource:      "session",
	})

	return nil
}

// Sessions lists booking records, newest first.
func (s *Service) Sessions(ctx context.Context, activeOnly bool) ([]*session.Session, error) {
	return s.repo.ListAll(ctx, activeOnly)
}

// MachineStatuses derives the status board at the current wall-clock time.
// Sessions observed past their end time are reported as waiting_pickup and
// then lazily deactivated; the derivation itself never depends on the flag
// having been flipped.
func (s *Service) MachineStatuses(ctx context.Context) ([]MachineView, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	now := time.Now()
	views := MergeMachineViews(active, s.policy.TotalMachines, s.policy.MachinesPerFloor, now)

	for _, sess := range active {
		if !sess.IsExpired(now) {
			continue
		}
		// At-least-once, idempotent; a failure only delays the flip until
		// the next read or sweep.
		if err := s.repo.MarkInactive(ctx, sess.ID); err != nil {
			slog.WarnContext(ctx, "failed to deactivate expired session",
				logger.SessionID(sess.ID),
				logger.Error(err),
			)
			continue
		}
		if s.sessionsExpired != nil {
			s.sessionsExpired.Add(ctx, 1)
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:          audit.TypeSessionExpired,
			SessionID:     sess.ID,
			MachineNumber: sess.MachineNumber,
			Resource:      "session",
		})
	}

	return views, nil
}

// ExpireOverdue deactivates every active session whose window has closed.
// Idempotent housekeeping; safe to run on any schedule.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue sessions: %w", err)
	}
	if count > 0 {
		if s.sessionsExpired != nil {
			s.sessionsExpired.Add(ctx, count)
		}
		slog.InfoContext(ctx, "expired overdue sessions", logger.Count(count))
	}
	return count, nil
}

// PurgeHistory deletes inactive sessions older than the retention window.
func (s *Service) PurgeHistory(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	count, err := s.repo.PurgeInactiveBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge session history: %w", err)
	}
	if count > 0 {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeHistoryPurged,
			Resource: "session",
			Metadata: map[string]any{"count": count, "cutoff": cutoff},
		})
	}
	return count, nil
}
