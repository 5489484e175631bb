package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/momcare/pregnancy-tracker/internal/config"
	"github.com/momcare/pregnancy-tracker/internal/platform/middleware"
)

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := &config.Config{
		Env:         "test",
		StoreDriver: config.DriverMemory,
		CORSOrigins: []string{"http://localhost:3000"},
		BodyLimit:   "64K",
	}
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func call(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_SubmissionFlow(t *testing.T) {
	e := testApp(t).router()

	rec := call(t, e, http.MethodPost, "/api/v1/patients", `{"name":"Amina Yusuf","currentWeek":20}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create patient: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
	var p struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &p)

	rec = call(t, e, http.MethodPost, "/api/v1/patients/"+p.ID+"/records",
		`{"type":"blood_pressure","fields":{"systolic":"118","diastolic":"76","heartRate":"70"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, e, http.MethodGet, "/api/v1/notifications?patient_id="+p.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list notifications: %d", rec.Code)
	}
	var page struct {
		Data []struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
		} `json:"data"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || page.Data[0].Message != "New blood pressure reading: 118/76" || page.Data[0].Severity != "info" {
		t.Errorf("unexpected feed %+v", page)
	}
}

func TestRouter_Health(t *testing.T) {
	e := testApp(t).router()
	rec := call(t, e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"store":"memory"`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(t, e, http.MethodGet, "/health/db", ""); rec.Code != http.StatusNotFound {
		t.Errorf("db health should not exist for the memory store, got %d", rec.Code)
	}
}

func TestRouter_BodyLimit(t *testing.T) {
	e := testApp(t).router()
	big := `{"name":"` + strings.Repeat("a", 70*1024) + `"}`
	if rec := call(t, e, http.MethodPost, "/api/v1/patients", big); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	_, err := newApp(context.Background(), &config.Config{StoreDriver: config.DriverPostgres}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for postgres without DATABASE_URL")
	}
}

func TestParseFields(t *testing.T) {
	raw, err := parseFields([]string{"systolic=150", " diastolic =85", "symptoms=nausea, fatigue", "notes="})
	if err != nil {
		t.Fatalf("parseFields: %v", err)
	}
	if raw["systolic"] != "150" || raw["diastolic"] != "85" || raw["symptoms"] != "nausea, fatigue" {
		t.Errorf("unexpected fields %v", raw)
	}
	if v, ok := raw["notes"]; !ok || v != "" {
		t.Errorf("expected empty notes, got %v", raw["notes"])
	}

	for _, bad := range []string{"systolic", "=150"} {
		if _, err := parseFields([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestNewLogger_Level(t *testing.T) {
	logger := newLogger(&config.Config{Env: "production", LogLevel: "WARN"})
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", logger.GetLevel())
	}
	logger = newLogger(&config.Config{Env: "production", LogLevel: "chatty"})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", logger.GetLevel())
	}
}

func TestRootCmd_Commands(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"serve"}, {"migrate", "up"}, {"migrate", "status"},
		{"patient", "create"}, {"patient", "summary"},
		{"record", "add"}, {"notifications", "list"}, {"notifications", "digest"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}

func TestFormatNotification(t *testing.T) {
	unread := formatNotification("2026-03-01 10:00", "urgent", "Amina", "High blood pressure reading: 150/85", false)
	if !strings.HasPrefix(unread, "* 2026-03-01 10:00 urgent") {
		t.Errorf("unexpected line %q", unread)
	}
	if read := formatNotification("t", "info", "A", "m", true); !strings.HasPrefix(read, "  t") {
		t.Errorf("unexpected line %q", read)
	}
}

func TestDataCommands_RequirePersistentStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	for _, args := range [][]string{
		{"patient", "create", "--name", "Ana"},
		{"record", "add", "--patient", "p1", "--type", "blood_pressure", "--field", "systolic=150"},
		{"notifications", "list"},
		{"notifications", "digest"},
	} {
		root := rootCmd()
		root.SetArgs(args)
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		if err := root.Execute(); !errors.Is(err, errEphemeralStore) {
			t.Errorf("%v: expected persistent store error, got %v", args, err)
		}
	}
}

func TestRequirePersistentStore(t *testing.T) {
	if err := requirePersistentStore(&config.Config{StoreDriver: config.DriverMemory}); !errors.Is(err, errEphemeralStore) {
		t.Errorf("expected error for memory driver, got %v", err)
	}
	if err := requirePersistentStore(&config.Config{StoreDriver: config.DriverPostgres}); err != nil {
		t.Errorf("unexpected error for postgres driver: %v", err)
	}
}
