package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/notifications"))
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("expected defaults, got %+v", p)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(contextFor("/notifications?limit=5&offset=10"))
	if p.Limit != 5 || p.Offset != 10 {
		t.Errorf("expected 5/10, got %+v", p)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	p := FromContext(contextFor("/notifications?limit=500&offset=-3"))
	if p.Limit != MaxLimit {
		t.Errorf("expected limit %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}

	p = FromContext(contextFor("/notifications?limit=abc"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit for bad input, got %d", p.Limit)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a", "b"}, 5, 2, 0)
	if !r.HasMore || r.Total != 5 {
		t.Errorf("unexpected response %+v", r)
	}
	r = NewResponse([]string{"e"}, 5, 2, 4)
	if r.HasMore {
		t.Error("last page should not have more")
	}
}

func TestParams_Offsets(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if p.NextOffset() != 15 {
		t.Errorf("expected next 15, got %d", p.NextOffset())
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("expected previous clamped to 0, got %d", p.PreviousOffset())
	}
	if !p.HasPrevious() || !p.HasNext(20) || p.HasNext(15) {
		t.Errorf("unexpected neighbours for %+v", p)
	}
}

func TestResponse_WithLinks(t *testing.T) {
	u, _ := url.Parse("/api/v1/notifications?patient_id=p1&limit=2&offset=2")

	r := NewResponse(nil, 7, 2, 2).WithLinks(u)
	if r.Next != "/api/v1/notifications?limit=2&offset=4&patient_id=p1" {
		t.Errorf("unexpected next %q", r.Next)
	}
	if r.Previous != "/api/v1/notifications?limit=2&offset=0&patient_id=p1" {
		t.Errorf("unexpected previous %q", r.Previous)
	}

	first := NewResponse(nil, 1, 2, 0).WithLinks(u)
	if first.Next != "" || first.Previous != "" {
		t.Errorf("single page should have no links, got %+v", first)
	}
}
