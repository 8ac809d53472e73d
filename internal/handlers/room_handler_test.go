package handlers

import (
	"net/http"
	"testing"

	"hiroai/roomsync/internal/models"
)

func TestDocumentLastWriterWins(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPatch, "/api/v1/rooms/abc12345/", map[string]any{"code": "// old", "lastUpdatedBy": "interviewer", "timestamp": 1000})
	if rec.Code != http.StatusOK {
		t.Fatalf("first patch: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPatch, "/api/v1/rooms/abc12345/", map[string]any{"code": "// new", "lastUpdatedBy": "candidate", "timestamp": 2000})
	if rec.Code != http.StatusOK {
		t.Fatalf("second patch: %d", rec.Code)
	}
	env.do(t, http.MethodPatch, "/api/v1/rooms/abc12345/", map[string]any{"code": "// stale", "timestamp": 1500})

	doc := decode[models.RoomDocument](t, env.do(t, http.MethodGet, "/api/v1/rooms/abc12345/", nil))
	if doc.Code != "// new" || doc.LastUpdatedBy != models.RoleCandidate || doc.Timestamp != 2000 {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestGetUnknownRoomIsEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/v1/rooms/nobody/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if doc := decode[models.RoomDocument](t, rec); doc.RoomID != "nobody" || doc.Timestamp != 0 {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestPatchValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodPatch, "/api/v1/rooms/r/", map[string]any{"timestamp": 5}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/api/v1/rooms/r/", map[string]any{"code": "x", "lastUpdatedBy": "observer"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad role: expected 400, got %d", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/rooms/r/history", map[string]any{"question": "Two sum", "difficulty": "easy"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("append: %d %s", rec.Code, rec.Body.String())
	}
	id := decode[models.IDResponse](t, rec).ID

	if rec := env.do(t, http.MethodPatch, "/api/v1/rooms/r/history/"+id, map[string]any{"candidateCode": "pass"}); rec.Code != http.StatusNoContent {
		t.Fatalf("attach: %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPatch, "/api/v1/rooms/r/history/missing", map[string]any{"candidateCode": "pass"}); rec.Code != http.StatusNotFound {
		t.Fatalf("attach unknown: expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/api/v1/rooms/r/history/"+id, map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty attach: expected 400, got %d", rec.Code)
	}

	list := decode[[]models.HistoryEntry](t, env.do(t, http.MethodGet, "/api/v1/rooms/r/history", nil))
	if len(list) != 1 || list[0].CandidateCode == nil || *list[0].CandidateCode != "pass" {
		t.Fatalf("unexpected history: %+v", list)
	}
}

func TestSentEndpointsDoNotTouchTimeline(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodPost, "/api/v1/rooms/r/sent", map[string]any{"question": "Q"}); rec.Code != http.StatusCreated {
		t.Fatalf("append sent: %d", rec.Code)
	}
	sent := decode[[]models.SentQuestion](t, env.do(t, http.MethodGet, "/api/v1/rooms/r/sent", nil))
	if len(sent) != 1 || sent[0].SentBy != models.RoleInterviewer || !sent[0].IsAsked {
		t.Fatalf("unexpected sent list: %+v", sent)
	}
	if tl := decode[[]models.QuestionTimelineEntry](t, env.do(t, http.MethodGet, "/api/v1/rooms/r/timeline", nil)); len(tl) != 0 {
		t.Fatalf("timeline should be empty, got %+v", tl)
	}
}
