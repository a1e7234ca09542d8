package pagination

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor(t, "?limit=50&offset=10")
	if p.Limit != 50 || p.Offset != 10 {
		t.Errorf("got %+v", p)
	}
}

func TestFromContext_Page(t *testing.T) {
	p := paramsFor(t, "?limit=10&page=3&offset=5")
	if p.Offset != 20 {
		t.Errorf("expected page 3 to override offset, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	if p := paramsFor(t, "?limit=500"); p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	if p := paramsFor(t, "?offset=-5"); p.Offset != 0 {
		t.Errorf("expected offset 0 for negative input, got %d", p.Offset)
	}
}

func TestApply(t *testing.T) {
	ds := goqu.Dialect("postgres").From("appointments").Select("id")
	sql, _, err := Params{Limit: 20, Offset: 40}.Apply(ds).ToSQL()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(sql, "LIMIT 20 OFFSET 40") {
		t.Errorf("unexpected sql %q", sql)
	}
}

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Window(items, Params{Limit: 2, Offset: 1}); len(got) != 2 || got[0] != 2 {
		t.Errorf("got %v", got)
	}
	if got := Window(items, Params{Limit: 10, Offset: 3}); len(got) != 2 {
		t.Errorf("got %v", got)
	}
	if got := Window(items, Params{Limit: 10, Offset: 9}); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

func TestNewPage(t *testing.T) {
	r := NewPage([]string{"a", "b", "c"}, 10, Params{Limit: 3})
	if r.Total != 10 || !r.HasMore {
		t.Errorf("got %+v", r)
	}

	r2 := NewPage([]string{"a", "b", "c"}, 3, Params{Limit: 3})
	if r2.HasMore {
		t.Error("expected has_more to be false when offset+limit >= total")
	}

	var none []string
	if r3 := NewPage(none, 0, Params{Limit: 3}); r3.Items == nil {
		t.Error("items should serialize as an empty array")
	}
}
