package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hostelhub/hostelhub/internal/audit"
	"github.com/hostelhub/hostelhub/internal/booking"
	"github.com/hostelhub/hostelhub/internal/observability/metrics"
	"github.com/hostelhub/hostelhub/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is a stateful in-memory session store so handler tests can walk
// through a whole booking lifecycle against a real router.
type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*session.Session)}
}

func (f *fakeRepo) Create(ctx context.Context, sess *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.IsActive && s.MachineNumber == sess.MachineNumber {
			return session.ErrActiveSessionExists
		}
	}
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) FindActiveByMachine(ctx context.Context, machineNumber int) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.IsActive && s.MachineNumber == machineNumber {
			cp := *s
			return &cp, nil
		}
	}
	return nil, session.ErrSessionNotFound
}

func (f *fakeRepo) ListAll(ctx context.Context, activeOnly bool) ([]*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*session.Session
	for _, s := range f.sessions {
		if activeOnly && !s.IsActive {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) ListActive(ctx context.Context) ([]*session.Session, error) {
	return f.ListAll(ctx, true)
}

func (f *fakeRepo) DeleteByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return session.ErrSessionNotFound
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeRepo) MarkInactive(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	s.IsActive = false
	s.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.sessions {
		if s.IsActive && s.IsExpired(now) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) PurgeInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if !s.IsActive && s.CreatedAt.Before(cutoff) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

// age rewinds a stored session's start time, simulating the passage of time.
func (f *fakeRepo) age(id string, by time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.StartTime = s.StartTime.Add(-by)
	}
}

func newTestRouter(t *testing.T, repo session.Repository) http.Handler {
	t.Helper()
	meter, err := metrics.New(context.Background(), metrics.Config{Enabled: false}, "test")
	require.NoError(t, err)

	svc := booking.NewService(repo, audit.NewSlogLogger(), meter, booking.Policy{
		TotalMachines:    4,
		MachinesPerFloor: 2,
	})
	h := NewHandler(svc, nil, "hostelhub-test")
	return NewRouter(h, NewRateLimiter(1000, 1000), []string{"*"})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// TestPurpose: Validates the happy-path booking flow end to end at the HTTP
// layer: a created session is echoed back and the machine shows as occupied
// on the status board.
// Scope: Handler Test
// Expected: 201 with message and session body; machine 1 occupied with the
// session attached.
// Test Case ID: HTTP-01
func TestSessionHandler_CreateAndStatus(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(t, repo)

	w, resp := doJSON(t, router, "POST", "/sessions", CreateSessionRequest{
		Name:          "Asha",
		PhoneNumber:   "9876543210",
		Duration:      30,
		MachineNumber: 1,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Session created successfully", resp["message"])

	sess, ok := resp["session"].(map[string]any)
	require.True(t, ok, "response must embed the created session")
	assert.NotEmpty(t, sess["id"])
	assert.Equal(t, "Asha", sess["name"])
	assert.Equal(t, float64(1), sess["machineNumber"])
	assert.Equal(t, float64(30), sess["duration"])
	assert.Equal(t, true, sess["isActive"])

	w, resp = doJSON(t, router, "GET", "/machine-status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	machines, ok := resp["machines"].([]any)
	require.True(t, ok)
	require.Len(t, machines, 4)

	m1 := machines[0].(map[string]any)
	assert.Equal(t, float64(1), m1["machineNumber"])
	assert.Equal(t, "occupied", m1["status"])
	assert.NotNil(t, m1["session"])

	m2 := machines[1].(map[string]any)
	assert.Equal(t, "available", m2["status"])
	assert.Nil(t, m2["session"])
}

// TestPurpose: Validates that a session past its booked window is reported
// as waiting_pickup rather than occupied or available.
// Scope: Handler Test
// Expected: status waiting_pickup with the session still attached.
// Test Case ID: HTTP-02
func TestSessionHandler_StatusWaitingPickup(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(t, repo)

	w, resp := doJSON(t, router, "POST", "/sessions", CreateSessionRequest{
		Name:          "Asha",
		PhoneNumber:   "9876543210",
		Duration:      30,
		MachineNumber: 1,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := resp["session"].(map[string]any)["id"].(string)

	// 40 minutes into a 30-minute booking.
	repo.age(id, 40*time.Minute)

	w, resp = doJSON(t, router, "GET", "/machine-status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	m1 := resp["machines"].([]any)[0].(map[string]any)
	assert.Equal(t, "waiting_pickup", m1["status"])
	assert.NotNil(t, m1["session"])
}

// TestPurpose: Validates that deleting a session frees its machine, and that
// deleting an unknown session reports the not-found message.
// Scope: Handler Test
// Expected: 200 "Session deleted successfully", then machine available;
// 404 {"message":"Session not found"} for an unknown id.
// Test Case ID: HTTP-03
func TestSessionHandler_Delete(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(t, repo)

	_, resp := doJSON(t, router, "POST", "/sessions", CreateSessionRequest{
		Name:          "Asha",
		PhoneNumber:   "9876543210",
		Duration:      30,
		MachineNumber: 1,
	})
	id := resp["session"].(map[string]any)["id"].(string)

	w, resp := doJSON(t, router, "DELETE", "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Session deleted successfully", resp["message"])

	w, resp = doJSON(t, router, "GET", "/machine-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	m1 := resp["machines"].([]any)[0].(map[string]any)
	assert.Equal(t, "available", m1["status"])
	assert.Nil(t, m1["session"])

	w, resp = doJSON(t, router, "DELETE", "/sessions/00000000-0000-0000-0000-000000000000", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Session not found", resp["message"])
}

// TestPurpose: Validates the booking conflict lifecycle: a second booking on
// an occupied machine is rejected, and succeeds again once the first
// session's window has elapsed and been observed.
// Scope: Handler Test
// Expected: 400 with the in-use message while occupied; 201 after expiry.
// Test Case ID: HTTP-04
func TestSessionHandler_ConflictThenExpiry(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(t, repo)

	_, resp := doJSON(t, router, "POST", "/sessions", CreateSessionRequest{
		Name:          "Asha",
		PhoneNumber:   "9876543210",
		Duration:      60,
		MachineNumber: 2,
	})
	id := resp["session"].(map[string]any)["id"].(string)

	retry := CreateSessionRequest{
		Name:          "Ravi",
		PhoneNumber:   "9123456780",
		Duration:      10,
		MachineNumber: 2,
	}

	w, resp := doJSON(t, router, "POST", "/sessions", retry)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "This machine is already in use for the requested duration", resp["message"])

	// Window elapsed; a status read observes the expiry and deactivates
	// the session, after which the machine is bookable again.
	repo.age(id, 61*time.Minute)
	w, _ = doJSON(t, router, "GET", "/machine-status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, router, "POST", "/sessions", retry)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Session created successfully", resp["message"])
}

// TestPurpose: Validates request validation at the HTTP boundary: malformed
// JSON and out-of-range fields are rejected with field-level messages and
// nothing is persisted.
// Scope: Handler Test
// Expected: 400 for both; session list stays empty.
// Test Case ID: HTTP-05
func TestSessionHandler_CreateValidation(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(t, repo)

	req := httptest.NewRequest("POST", "/sessions", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w2, resp := doJSON(t, router, "POST", "/sessions", CreateSessionRequest{
		Name:          "",
		PhoneNumber:   "9876543210",
		Duration:      200,
		MachineNumber: 1,
	})
	require.Equal(t, http.StatusBadRequest, w2.Code)
	msg, _ := resp["message"].(string)
	assert.Contains(t, msg, "name is required")
	assert.Contains(t, msg, "duration cannot exceed 3 hours")

	_, resp = doJSON(t, router, "GET", "/sessions", nil)
	sessions, _ := resp["sessions"]
	assert.Empty(t, sessions)
}

// TestPurpose: Validates the session listing endpoints: the full list keeps
// released history ordering newest-first, and /sessions/active filters to
// active records only.
// Scope: Handler Test
// Expected: two sessions listed, one after deactivation on the active list.
// Test Case ID: HTTP-06
func TestSessionHandler_ListSessions(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(t, repo)

	_, resp := doJSON(t, router, "POST", "/sessions", CreateSessionRequest{
		Name:          "Asha",
		PhoneNumber:   "9876543210",
		Duration:      30,
		MachineNumber: 1,
	})
	first := resp["session"].(map[string]any)["id"].(string)

	_, _ = doJSON(t, router, "POST", "/sessions", CreateSessionRequest{
		Name:          "Ravi",
		PhoneNumber:   "9123456780",
		Duration:      45,
		MachineNumber: 2,
	})

	w, resp := doJSON(t, router, "GET", "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["sessions"].([]any), 2)

	require.NoError(t, repo.MarkInactive(context.Background(), first))

	w, resp = doJSON(t, router, "GET", "/sessions/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	active := resp["sessions"].([]any)
	require.Len(t, active, 1)
	assert.Equal(t, "Ravi", active[0].(map[string]any)["name"])
}

// TestPurpose: Validates the health endpoint shape used by deployment probes.
// Scope: Handler Test
// Expected: 200 with status healthy and the configured service name.
// Test Case ID: HTTP-07
func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t, newFakeRepo())

	w, resp := doJSON(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "hostelhub-test", resp["service"])
	assert.NotEmpty(t, resp["timestamp"])
}
