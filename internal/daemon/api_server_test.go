package daemon

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"roastmachine/internal/services"
)

func TestStatusForKind(t *testing.T) {
	cases := map[error]int{
		services.Wrap(services.ErrValidation, "ingress", "", "bad", nil): http.StatusBadRequest,
		services.Wrap(services.ErrNotFound, "api", "poll", "gone", nil):  http.StatusNotFound,
		services.Wrap(services.ErrTimeout, "api", "await", "slow", nil):  http.StatusGatewayTimeout,
		services.Wrap(services.ErrState, "session", "", "", nil):         http.StatusInternalServerError,
		fmt.Errorf("unclassified"):                                       http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusForKind(services.KindOf(err)); got != want {
			t.Fatalf("statusForKind(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestWithCORSShortCircuitsPreflight(t *testing.T) {
	called := false
	handler := withCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/health", nil))
	if w.Code != http.StatusNoContent || called {
		t.Fatalf("preflight: code %d, called %v", w.Code, called)
	}
	if w.Header().Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
		t.Fatalf("allow methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusTeapot || !called {
		t.Fatalf("passthrough: code %d, called %v", w.Code, called)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing allow-origin header")
	}
}
