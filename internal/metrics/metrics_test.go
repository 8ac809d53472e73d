package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/rooms/{roomId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/rooms/{roomId}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/abc12345", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/rooms/{roomId}", "418"))
	if after != before+1 {
		t.Fatalf("expected counter to increase by one, before=%v after=%v", before, after)
	}
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(softInconsistencies.WithLabelValues("send"))
	SoftInconsistency("send")
	if got := testutil.ToFloat64(softInconsistencies.WithLabelValues("send")); got != before+1 {
		t.Fatalf("expected soft inconsistency counter to increase, got %v", got)
	}

	RoomOpened()
	MemberJoined()
	if testutil.ToFloat64(activeRooms) < 1 || testutil.ToFloat64(channelMembers) < 1 {
		t.Fatalf("expected gauges to be positive")
	}
	MemberLeft()
	RoomClosed()
}

func TestHandlerExposesMetrics(t *testing.T) {
	PatchApplied(true)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "roomsync_document_patches_total") {
		t.Fatalf("expected patch counter in exposition output")
	}
}

func TestRecorderHijackUnsupported(t *testing.T) {
	rec := &responseRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatalf("expected hijack error for recorder")
	}
}
