package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	}

	err := RequestTimeout(5 * time.Second)(handler)(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequestTimeout_ReturnsTimeoutOnExpiry(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	}

	err := RequestTimeout(50 * time.Millisecond)(handler)(c)
	expectStatus(t, err, http.StatusGatewayTimeout)
}

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var hasDeadline bool
	handler := func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return nil
	}

	if err := RequestTimeout(time.Second)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasDeadline {
		t.Error("expected request context to carry a deadline")
	}
}

func TestRequestTimeout_SkipsPrefixes(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/relay/recipe-chat", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var hasDeadline bool
	handler := func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		time.Sleep(30 * time.Millisecond)
		return c.NoContent(http.StatusOK)
	}

	if err := RequestTimeout(10*time.Millisecond, "/relay/")(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasDeadline {
		t.Error("skipped path should not get a deadline")
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vitals/x", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "vital not found")
	})(c)
	expectStatus(t, err, http.StatusNotFound)
}

func TestRequestTimeout_LateHandlerWritesAreDiscarded(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.Use(Logger(zerolog.Nop()))
	e.Use(RequestTimeout(20 * time.Millisecond))
	e.Use(Audit(zerolog.Nop(), "/api/v1"))

	var finished atomic.Bool
	e.POST("/api/v1/vitals", func(c echo.Context) error {
		time.Sleep(60 * time.Millisecond)
		finished.Store(true)
		return c.JSON(http.StatusCreated, map[string]string{"id": "x"})
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/vitals", strings.NewReader(`{}`)))

	if !finished.Load() {
		t.Error("expected the middleware to wait for the handler before returning")
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	dec := json.NewDecoder(rec.Body)
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["error"]; !ok {
		t.Errorf("expected error body, got %v", body)
	}
	if dec.More() {
		t.Errorf("expected a single JSON document, got trailing data %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"id"`) {
		t.Errorf("late handler output leaked into the response: %q", rec.Body.String())
	}
}

func TestRequestTimeout_CommitsBufferedResponse(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(time.Second))
	e.POST("/api/v1/vitals", func(c echo.Context) error {
		c.Response().Header().Set("Location", "/api/v1/vitals/abc")
		return c.JSON(http.StatusCreated, map[string]string{"id": "abc"})
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/vitals", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/api/v1/vitals/abc" {
		t.Errorf("expected handler header to be kept, got %q", got)
	}
	if got := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(got, echo.MIMEApplicationJSON) {
		t.Errorf("expected JSON content type, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), `"id":"abc"`) {
		t.Errorf("expected handler body, got %q", rec.Body.String())
	}
}

func TestRequestTimeout_HandlerPanicReachesRecovery(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.Use(Recovery(zerolog.Nop()))
	e.Use(RequestTimeout(time.Second))
	e.GET("/api/v1/summary", func(c echo.Context) error {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
