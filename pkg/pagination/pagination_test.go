package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=50&offset=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_Clamping(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"limit=500", MaxLimit, 0},
		{"limit=-3&offset=-9", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil), httptest.NewRecorder())
		p := FromContext(c)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("%s: got %+v", tt.query, p)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if r := NewResponse([]int{1}, 30, 20, 0); !r.HasMore {
		t.Error("expected has_more on first of two pages")
	}
	if r := NewResponse([]int{1}, 30, 20, 20); r.HasMore {
		t.Error("expected no more results on the last page")
	}
}

func TestParams_Offsets(t *testing.T) {
	p := Params{Limit: 20, Offset: 10}
	if p.NextOffset() != 30 {
		t.Errorf("expected next offset 30, got %d", p.NextOffset())
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("expected previous offset clamped to 0, got %d", p.PreviousOffset())
	}
	if !p.HasPrevious() {
		t.Error("expected previous page")
	}
	if p.HasNext(30) {
		t.Error("expected no next page at total 30")
	}
}

func TestParams_Links(t *testing.T) {
	u, _ := url.Parse("/api/v1/appointments?status=confirmed&limit=10&offset=10")
	links := Params{Limit: 10, Offset: 10}.Links(u, 35)
	if links == nil {
		t.Fatal("expected links")
	}
	if links.Next != "/api/v1/appointments?limit=10&offset=20&status=confirmed" {
		t.Errorf("unexpected next link %q", links.Next)
	}
	if links.Previous != "/api/v1/appointments?limit=10&offset=0&status=confirmed" {
		t.Errorf("unexpected previous link %q", links.Previous)
	}

	if l := (Params{Limit: 10}).Links(u, 5); l != nil {
		t.Errorf("expected no links for a single page, got %+v", l)
	}
}
