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
	"time"

	"github.com/hostelhub/hostelhub/internal/session"
)

// Status is the derived occupancy state of a machine. It is computed from
// the machine's active session and the wall clock, never stored.
type Status string

const (
	StatusAvailable     Status = "available"
	StatusOccupied      Status = "occupied"
	StatusWaitingPickup Status = "waiting_pickup"
)

// SessionView is the subset of a session exposed in machine status responses.
// EndTime is included so clients can render remaining or elapsed time.
type SessionView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	StartTime   time.Time `json:"startTime"`
	Duration    int       `json:"duration"`
	EndTime     time.Time `json:"endTime"`
}

// MachineView is one entry of the machine status board. Floor and Position
// are presentation enrichment; they carry no booking semantics.
type MachineView struct {
	MachineNumber int          `json:"machineNumber"`
	Floor         int          `json:"floor"`
	Position      int          `json:"position"`
	Status        Status       `json:"status"`
	Session       *SessionView `json:"session"`
}

// Derive computes the status of a machine from its active session at the
// given instant. A nil session means the machine is free. The booked window
// is inclusive of its end: now == endTime is still occupied.
func Derive(sess *session.Session, now time.Time) (Status, *SessionView) {
	if sess == nil {
		return StatusAvailable, nil
	}

	view := &SessionView{
		ID:          sess.ID,
		Name:        sess.Name,
		PhoneNumber: sess.PhoneNumber,
		StartTime:   sess.StartTime,
		Duration:    sess.DurationMinutes,
		EndTime:     sess.EndTime(),
	}

	if sess.IsExpired(now) {
		return StatusWaitingPickup, view
	}
	return StatusOccupied, view
}

// Floor returns the synthetic floor of a machine number.
func Floor(machineNumber, perFloor int) int {
	return (machineNumber-1)/perFloor + 1
}

// Position returns the machine's slot on its floor, starting at 1.
func Position(machineNumber, perFloor int) int {
	return (machineNumber-1)%perFloor + 1
}

// MergeMachineViews builds the status board: one entry per configured
// machine number 1..total, plus any higher-numbered machine that holds an
// active session. When a machine somehow has several active sessions the
// most recently started one wins.
func MergeMachineViews(active []*session.Session, total, perFloor int, now time.Time) []MachineView {
	byMachine := make(map[int]*session.Session, len(active))
	extras := make([]int, 0)

	for _, sess := range active {
		n := sess.MachineNumber
		if cur, ok := byMachine[n]; ok {
			if sess.StartTime.After(cur.StartTime) {
				byMachine[n] = sess
			}
			continue
		}
		byMachine[n] = sess
		if n > total {
			extras = append(extras, n)
		}
	}

	numbers := make([]int, 0, total+len(extras))
	for n := 1; n <= total; n++ {
		numbers = append(numbers, n)
	}
	// Keep extras ordered so the board is stable between polls.
	for i := 0; i < len(extras); i++ {
		for j := i + 1; j < len(extras); j++ {
			if extras[j] < extras[i] {
				extras[i], extras[j] = extras[j], extras[i]
			}
		}
	}
	numbers = append(numbers, extras...)

	views := make([]MachineView, 0, len(numbers))
	for _, n := range numbers {
		status, view := Derive(byMachine[n], now)
		views = append(views, MachineView{
			MachineNumber: n,
			Floor:         Floor(n, perFloor),
			Position:      Position(n, perFloor),
			Status:        status,
			Session:       view,
		})
	}
	return views
}
