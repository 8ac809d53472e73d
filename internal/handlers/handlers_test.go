package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/generator"
	"hiroai/roomsync/internal/lifecycle"
	"hiroai/roomsync/internal/middleware"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/session"
	"hiroai/roomsync/internal/store"
)

type stubGenerator struct {
	question string
	feedback *models.Feedback
	err      error
}

func (s *stubGenerator) GenerateQuestion(context.Context, generator.QuestionRequest) (string, error) {
	return s.question, s.err
}

func (s *stubGenerator) EvaluateSubmission(context.Context, generator.FeedbackRequest) (*models.Feedback, error) {
	return s.feedback, s.err
}

type testEnv struct {
	store    *store.Store
	registry *session.Registry
	router   http.Handler
}

func newTestEnv(t *testing.T, gen lifecycle.Generator) *testEnv {
	t.Helper()
	log := zap.NewNop()
	st := store.New(store.NewMemoryBackend(), nil, log)
	svc := lifecycle.NewService(st, gen, log, time.Minute)
	t.Cleanup(svc.Close)
	reg := session.NewRegistry(log)

	rooms := NewRoomHandler(st, log)
	lc := NewLifecycleHandler(svc, log)
	ch := NewChannelHandler(reg, []string{"*"}, log)
	feeds := NewFeedHandler(st, []string{"*"}, log)

	r := chi.NewRouter()
	r.Route("/api/v1/rooms/{roomId}", func(r chi.Router) {
		r.Get("/", rooms.GetDocument)
		r.With(middleware.ValidateRequest[*models.DocPatch]()).Patch("/", rooms.PatchDocument)
		r.Get("/history", rooms.ListHistory)
		r.With(middleware.ValidateRequest[*models.CreateHistoryRequest]()).Post("/history", rooms.AppendHistory)
		r.With(middleware.ValidateRequest[*models.HistoryAttachment]()).Patch("/history/{entryId}", rooms.AttachHistory)
		r.Get("/sent", rooms.ListSent)
		r.With(middleware.ValidateRequest[*models.SendQuestionRequest]()).Post("/sent", rooms.AppendSent)
		r.Get("/timeline", rooms.ListTimeline)
		r.With(middleware.ValidateRequest[*models.GenerateQuestionRequest]()).Post("/questions", lc.GenerateQuestion)
		r.With(middleware.ValidateRequest[*models.SendQuestionRequest]()).Post("/questions/send", lc.SendQuestion)
		r.With(middleware.ValidateRequest[*models.SubmissionRequest]()).Post("/submissions", lc.Submit)
		r.Post("/complete", lc.Complete)
		r.Get("/channel", ch.Members)
	})
	r.Get("/ws/{roomId}", ch.ServeWS)
	r.Get("/ws/rooms/{roomId}/document", feeds.Document)
	r.Get("/ws/rooms/{roomId}/timeline", feeds.Timeline)

	return &testEnv{store: st, registry: reg, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func sampleFeedback() *models.Feedback {
	return &models.Feedback{
		Summary:         "Works",
		Scores:          models.Scores{Correctness: 8, Efficiency: 7, Quality: 8, Readability: 9, Overall: 8},
		FullExplanation: "Uses slicing.",
	}
}
