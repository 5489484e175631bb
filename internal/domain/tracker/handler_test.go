package tracker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/momcare/pregnancy-tracker/internal/domain/alert"
	"github.com/momcare/pregnancy-tracker/internal/domain/record"
	"github.com/momcare/pregnancy-tracker/internal/platform/kv"
)

func newTestServer(t *testing.T) (*echo.Echo, *Handler) {
	t.Helper()
	store := kv.NewMemoryStore()
	svc := NewService(store, record.NewPatientRepoKV(store), alert.NewLog(alert.NewLogRepoKV(store)))
	h := NewHandler(svc)
	h.now = func() time.Time { return time.Date(2026, 5, 18, 9, 0, 0, 0, time.UTC) }

	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, h
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createPatient(t *testing.T, e *echo.Echo) record.Patient {
	t.Helper()
	rec := do(e, http.MethodPost, "/api/v1/patients",
		`{"name":"Amina Yusuf","email":"amina@example.com","dueDate":"2026-06-01","currentWeek":30}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var p record.Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode patient: %v", err)
	}
	return p
}

func TestHandler_SubmitRecord(t *testing.T) {
	e, _ := newTestServer(t)
	p := createPatient(t, e)

	rec := do(e, http.MethodPost, "/api/v1/patients/"+p.ID+"/records",
		`{"type":"blood_pressure","fields":{"systolic":"150","diastolic":85,"heartRate":"78"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	bp, ok := body.Record.Data.(record.BloodPressure)
	if !ok || bp.Systolic != 150 || bp.Diastolic != 85 || bp.HeartRate != 78 {
		t.Errorf("unexpected record: %+v", body.Record)
	}
	if body.Notification.Severity != alert.SeverityUrgent {
		t.Errorf("expected urgent, got %s", body.Notification.Severity)
	}
}

func TestHandler_SubmitRecord_ValidationError(t *testing.T) {
	e, _ := newTestServer(t)
	p := createPatient(t, e)

	rec := do(e, http.MethodPost, "/api/v1/patients/"+p.ID+"/records",
		`{"type":"weekly_update","fields":{"weight":"60"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var ve record.ValidationError
	_ = json.Unmarshal(rec.Body.Bytes(), &ve)
	if ve.Field != "mood" {
		t.Errorf("expected mood field error, got %+v", ve)
	}

	rec = do(e, http.MethodPost, "/api/v1/patients/"+p.ID+"/records", `{"type":"heart_rate","fields":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestHandler_UnknownPatient(t *testing.T) {
	e, _ := newTestServer(t)

	for _, path := range []string{"/api/v1/patients/nope", "/api/v1/patients/nope/records", "/api/v1/patients/nope/summary"} {
		if rec := do(e, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, rec.Code)
		}
	}
	rec := do(e, http.MethodPost, "/api/v1/patients/nope/records", `{"type":"sugar_level","fields":{"level":90}}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_RegisterPatient_BadDueDate(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(e, http.MethodPost, "/api/v1/patients", `{"name":"A","dueDate":"June 1st"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dueDate") {
		t.Errorf("expected dueDate in body, got %s", rec.Body.String())
	}
}

func TestHandler_LatestRecord(t *testing.T) {
	e, _ := newTestServer(t)
	p := createPatient(t, e)
	base := "/api/v1/patients/" + p.ID

	if rec := do(e, http.MethodGet, base+"/records/latest?type=sugar_level", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any reading, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, base+"/records/latest?type=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad type, got %d", rec.Code)
	}

	do(e, http.MethodPost, base+"/records", `{"type":"sugar_level","fields":{"level":90}}`)
	do(e, http.MethodPost, base+"/records", `{"type":"sugar_level","fields":{"level":"110","testType":"random"}}`)

	rec := do(e, http.MethodGet, base+"/records/latest?type=sugar_level", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var hr record.HealthRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &hr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sl := hr.Data.(record.SugarLevel); sl.Level != 110 || sl.TestType != record.TestRandom {
		t.Errorf("unexpected latest: %+v", sl)
	}
}

func TestHandler_Summary(t *testing.T) {
	e, _ := newTestServer(t)
	p := createPatient(t, e)
	base := "/api/v1/patients/" + p.ID

	do(e, http.MethodPost, base+"/records", `{"type":"baby_movement","fields":{"count":"12","duration":"60"}}`)

	rec := do(e, http.MethodGet, base+"/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sum struct {
		CurrentWeek     int                        `json:"currentWeek"`
		ProgressPercent int                        `json:"progressPercent"`
		WeeksRemaining  int                        `json:"weeksRemaining"`
		Latest          map[string]json.RawMessage `json:"latest"`
		Recent          []json.RawMessage          `json:"recent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.CurrentWeek != 30 || sum.ProgressPercent != 75 {
		t.Errorf("unexpected progress: %+v", sum)
	}
	// 2026-05-18 to 2026-06-01 is exactly two weeks.
	if sum.WeeksRemaining != 2 {
		t.Errorf("expected 2 weeks remaining, got %d", sum.WeeksRemaining)
	}
	if _, ok := sum.Latest["baby_movement"]; !ok || len(sum.Recent) != 1 {
		t.Errorf("unexpected latest/recent: %+v", sum)
	}
}
