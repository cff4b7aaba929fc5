package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&offset=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != 5 {
		t.Errorf("expected limit 5, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=100000", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if p := FromContext(c); p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?offset=-3", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if p := FromContext(c); p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	r := Paginate(items, Params{Limit: 2, Offset: 1})
	if len(r.Data) != 2 || r.Data[0] != 2 || r.Data[1] != 3 {
		t.Errorf("unexpected page %v", r.Data)
	}
	if r.Total != 5 || !r.HasMore {
		t.Errorf("expected total 5 with more, got %d %v", r.Total, r.HasMore)
	}

	r = Paginate(items, Params{Limit: 10, Offset: 4})
	if len(r.Data) != 1 || r.HasMore {
		t.Errorf("unexpected last page %v has_more=%v", r.Data, r.HasMore)
	}
}

func TestPaginate_OffsetBeyondEnd(t *testing.T) {
	r := Paginate([]string{"a"}, Params{Limit: 10, Offset: 50})
	b, _ := json.Marshal(r)
	var decoded map[string]any
	_ = json.Unmarshal(b, &decoded)
	if data, ok := decoded["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("expected empty data array, got %s", b)
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		offset, limit, total int
		want                 bool
	}{
		{0, 10, 25, true},
		{20, 10, 25, false},
		{0, 10, 10, false},
	}
	for _, tt := range tests {
		p := Params{Limit: tt.limit, Offset: tt.offset}
		if got := p.HasNext(tt.total); got != tt.want {
			t.Errorf("HasNext(%d) with offset=%d limit=%d = %v, want %v", tt.total, tt.offset, tt.limit, got, tt.want)
		}
	}
}

func TestParams_PreviousOffset(t *testing.T) {
	if got := (Params{Limit: 10, Offset: 5}).PreviousOffset(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := (Params{Limit: 10, Offset: 30}).PreviousOffset(); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
}

func TestParams_Links_MiddlePage(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	links := p.Links("/api/v1/thyroid-panels", 30)
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(links))
	}
	if links[1].Relation != "next" || links[1].URL != "/api/v1/thyroid-panels?offset=20&limit=10" {
		t.Errorf("unexpected next link %+v", links[1])
	}
	if links[2].Relation != "previous" || links[2].URL != "/api/v1/thyroid-panels?offset=0&limit=10" {
		t.Errorf("unexpected previous link %+v", links[2])
	}
}

func TestParams_Links_ExistingQuery(t *testing.T) {
	p := Params{Limit: 5, Offset: 0}
	links := p.Links("/api/v1/vitals?type=weight", 3)
	if len(links) != 1 {
		t.Fatalf("expected only self link, got %v", links)
	}
	if links[0].URL != "/api/v1/vitals?type=weight&offset=0&limit=5" {
		t.Errorf("unexpected self link %s", links[0].URL)
	}
}
