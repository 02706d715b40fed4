package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/inboxrelay/internal/monitor"
	"github.com/mixelka/inboxrelay/pkg/models"
)

type fakeMonitors struct {
	mu       sync.Mutex
	startErr error
	started  []monitor.Registration
	stopped  []int64
	status   map[int64]models.MonitorStatus
	active   []models.MonitorSummary
	forceErr error
	forced   []int64
}

func (f *fakeMonitors) Start(reg monitor.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, reg)
	return nil
}

func (f *fakeMonitors) Stop(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, userID)
	return true
}

func (f *fakeMonitors) Status(userID int64) models.MonitorStatus {
	return f.status[userID]
}

func (f *fakeMonitors) ListActive() []models.MonitorSummary {
	return f.active
}

func (f *fakeMonitors) Count() int {
	return len(f.active)
}

func (f *fakeMonitors) ForcePoll(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced = append(f.forced, userID)
	return f.forceErr
}

type fakeDeliveries struct {
	list  []*models.Delivery
	limit int
	err   error
}

func (f *fakeDeliveries) ListDeliveries(ctx context.Context, chatID int64, limit int) ([]*models.Delivery, error) {
	f.limit = limit
	return f.list, f.err
}

func newTestServer(m Monitors, d Deliveries) http.Handler {
	return NewServer(ServerDeps{
		Monitors:   m,
		Deliveries: d,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestRegisterUser(t *testing.T) {
	m := &fakeMonitors{}
	h := newTestServer(m, nil)

	rec, out := do(t, h, http.MethodPost, "/register-user",
		`{"chat_id": 42, "email": "a@x.com", "token": "t1", "password": "pw"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "User registered for monitoring", out["message"])
	require.Len(t, m.started, 1)
	assert.Equal(t, monitor.Registration{UserID: 42, MailAddress: "a@x.com", Token: "t1", Secret: "pw"}, m.started[0])
}

func TestRegisterUserStringChatID(t *testing.T) {
	m := &fakeMonitors{}
	h := newTestServer(m, nil)

	rec, _ := do(t, h, http.MethodPost, "/register-user", `{"chat_id": "-1001", "email": "a@x.com", "token": "t1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, m.started, 1)
	assert.Equal(t, int64(-1001), m.started[0].UserID)
}

func TestRegisterUserMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no token", `{"chat_id": 1, "email": "a@x.com"}`},
		{"no email", `{"chat_id": 1, "token": "t"}`},
		{"no chat id", `{"email": "a@x.com", "token": "t"}`},
		{"malformed", `{"chat_id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMonitors{}
			rec, out := do(t, newTestServer(m, nil), http.MethodPost, "/register-user", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Missing required fields", out["error"])
			assert.Empty(t, m.started)
		})
	}
}

func TestRegisterUserWhileShuttingDown(t *testing.T) {
	m := &fakeMonitors{startErr: monitor.ErrClosed}

	rec, out := do(t, newTestServer(m, nil), http.MethodPost, "/register-user",
		`{"chat_id": 1, "email": "a@x.com", "token": "t"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Shutting down", out["error"])
}

func TestStopMonitoring(t *testing.T) {
	m := &fakeMonitors{}
	h := newTestServer(m, nil)

	rec, out := do(t, h, http.MethodPost, "/stop-monitoring", `{"chat_id": 9}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Monitoring stopped", out["message"])
	assert.Equal(t, []int64{9}, m.stopped)

	rec, out = do(t, h, http.MethodPost, "/stop-monitoring", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "chat_id required", out["error"])
}

func TestStatus(t *testing.T) {
	m := &fakeMonitors{status: map[int64]models.MonitorStatus{
		5: {Active: true, MailAddress: "a@x.com", MessageCount: 3},
	}}
	h := newTestServer(m, nil)

	rec, out := do(t, h, http.MethodGet, "/status/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["monitoring"])
	assert.Equal(t, "a@x.com", out["email"])
	assert.Equal(t, float64(3), out["message_count"])

	rec, out = do(t, h, http.MethodGet, "/status/6", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["monitoring"])
	assert.Contains(t, out, "email")
	assert.Nil(t, out["email"])
	assert.Equal(t, float64(0), out["message_count"])

	rec, _ = do(t, h, http.MethodGet, "/status/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActiveUsers(t *testing.T) {
	m := &fakeMonitors{active: []models.MonitorSummary{
		{UserID: 1, MailAddress: "a@x.com", Active: true},
		{UserID: 2, MailAddress: "b@x.com", Active: true},
	}}

	rec, out := do(t, newTestServer(m, nil), http.MethodGet, "/active-users", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["count"])

	users := out["users"].([]any)
	require.Len(t, users, 2)
	first := users[0].(map[string]any)
	assert.Equal(t, float64(1), first["chat_id"])
	assert.Equal(t, "a@x.com", first["email"])
	assert.Equal(t, true, first["monitoring"])
}

func TestActiveUsersEmpty(t *testing.T) {
	rec, out := do(t, newTestServer(&fakeMonitors{}, nil), http.MethodGet, "/active-users", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, out["users"])
	assert.Equal(t, float64(0), out["count"])
}

func TestCheckInbox(t *testing.T) {
	m := &fakeMonitors{}
	h := newTestServer(m, nil)

	rec, out := do(t, h, http.MethodPost, "/check-inbox", `{"chat_id": "77"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Inbox checked", out["message"])
	assert.Equal(t, []int64{77}, m.forced)
}

func TestCheckInboxUnknownUser(t *testing.T) {
	m := &fakeMonitors{forceErr: monitor.ErrNotFound}

	rec, out := do(t, newTestServer(m, nil), http.MethodPost, "/check-inbox", `{"chat_id": 1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", out["error"])
}

func TestCheckInboxFailure(t *testing.T) {
	m := &fakeMonitors{forceErr: context.DeadlineExceeded}

	rec, out := do(t, newTestServer(m, nil), http.MethodPost, "/check-inbox", `{"chat_id": 1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to check inbox", out["error"])
	assert.NotEmpty(t, out["details"])
}

func TestCheckInboxMissingChatID(t *testing.T) {
	rec, out := do(t, newTestServer(&fakeMonitors{}, nil), http.MethodPost, "/check-inbox", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "chat_id required", out["error"])
}

func TestHealth(t *testing.T) {
	m := &fakeMonitors{active: []models.MonitorSummary{{UserID: 1, MailAddress: "a@x.com", Active: true}}}

	rec, out := do(t, newTestServer(m, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", out["status"])
	assert.Equal(t, float64(1), out["active_users"])
	assert.GreaterOrEqual(t, out["uptime"].(float64), float64(0))
}

func TestDeliveries(t *testing.T) {
	d := &fakeDeliveries{list: []*models.Delivery{
		{ID: 2, ChatID: 3, MailAddress: "a@x.com", MessageID: "m2", Status: models.DeliverySent},
	}}

	rec, out := do(t, newTestServer(&fakeMonitors{}, d), http.MethodGet, "/deliveries/3?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, 5, d.limit)

	entry := out["deliveries"].([]any)[0].(map[string]any)
	assert.Equal(t, "m2", entry["message_id"])
	assert.Equal(t, "sent", entry["status"])
}

func TestDeliveriesErrors(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeMonitors{}, nil), http.MethodGet, "/deliveries/3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	d := &fakeDeliveries{err: errors.New("disk I/O error")}
	rec, _ = do(t, newTestServer(&fakeMonitors{}, d), http.MethodGet, "/deliveries/3", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = do(t, newTestServer(&fakeMonitors{}, d), http.MethodGet, "/deliveries/3?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()

	newTestServer(&fakeMonitors{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWrongMethod(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeMonitors{}, nil), http.MethodGet, "/register-user", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChatIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    ChatID
		wantErr bool
	}{
		{`123`, 123, false},
		{`"456"`, 456, false},
		{`" -7 "`, -7, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
		{`1.5`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var c ChatID
			err := json.Unmarshal([]byte(tt.in), &c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
		})
	}
}
