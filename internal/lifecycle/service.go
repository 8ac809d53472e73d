package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"hiroai/roomsync/internal/cache"
	"hiroai/roomsync/internal/generator"
	"hiroai/roomsync/internal/metrics"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/store"
)

var (
	ErrNoQuestion           = errors.New("no question has been generated in this room")
	ErrGeneratorUnavailable = errors.New("generator is not configured")
)

// Generator produces questions and evaluates submissions.
type Generator interface {
	GenerateQuestion(ctx context.Context, req generator.QuestionRequest) (string, error)
	EvaluateSubmission(ctx context.Context, req generator.FeedbackRequest) (*models.Feedback, error)
}

// Service drives the question lifecycle of a room. History and sent
// question writes are primary and their errors are returned; timeline
// writes are secondary and only logged when they cannot be applied.
type Service struct {
	store *store.Store
	gen   Generator
	log   *zap.Logger
	now   func() time.Time

	flight  singleflight.Group
	results *cache.TTLCache[*models.SubmissionResponse]
}

// NewService builds the service. gen may be nil, in which case only
// operations that do not need generated content work.
func NewService(st *store.Store, gen Generator, log *zap.Logger, resultTTL time.Duration) *Service {
	return &Service{
		store:   st,
		gen:     gen,
		log:     log,
		now:     time.Now,
		results: cache.New[*models.SubmissionResponse](resultTTL),
	}
}

func (s *Service) Close() { s.results.Stop() }

func (s *Service) HasGenerator() bool { return s.gen != nil }

func (s *Service) nowMillis() int64 { return s.now().UnixMilli() }

func (s *Service) soft(op, roomID, reason string, fields ...zap.Field) {
	metrics.SoftInconsistency(op)
	s.log.Warn("timeline not updated",
		append([]zap.Field{zap.String("operation", op), zap.String("room_id", roomID), zap.String("reason", reason)}, fields...)...)
}

// GenerateQuestion makes req the room's current question. When
// req.Question is empty the generator writes one.
func (s *Service) GenerateQuestion(ctx context.Context, roomID string, req models.GenerateQuestionRequest) (models.HistoryEntry, error) {
	text := req.Question
	if text == "" {
		if s.gen == nil {
			return models.HistoryEntry{}, ErrGeneratorUnavailable
		}
		doc, err := s.store.Get(ctx, roomID)
		if err != nil {
			return models.HistoryEntry{}, err
		}
		history, err := s.store.ListHistory(ctx, roomID)
		if err != nil {
			return models.HistoryEntry{}, err
		}
		previous := make([]string, 0, len(history))
		for _, h := range history {
			previous = append(previous, h.Question)
		}
		text, err = s.gen.GenerateQuestion(ctx, generator.QuestionRequest{
			QuestionType: req.QuestionType,
			Difficulty:   req.Difficulty,
			Topic:        req.Topic,
			JobContext:   doc.JobContext,
			Previous:     previous,
			RequestID:    req.RequestID,
		})
		if err != nil {
			return models.HistoryEntry{}, err
		}
	}

	ts := s.nowMillis()
	if _, err := s.store.Patch(ctx, roomID, models.DocPatch{
		Question:     &text,
		QuestionType: &req.QuestionType,
		Difficulty:   &req.Difficulty,
		Timestamp:    ts,
	}); err != nil {
		return models.HistoryEntry{}, err
	}

	entry := models.HistoryEntry{
		Question:     text,
		QuestionType: req.QuestionType,
		Difficulty:   req.Difficulty,
		Timestamp:    ts,
	}
	id, err := s.store.AppendHistory(ctx, roomID, entry)
	if err != nil {
		return models.HistoryEntry{}, err
	}
	entry.ID = id

	if _, err := s.store.AppendTimeline(ctx, roomID, models.QuestionTimelineEntry{
		Question:     text,
		QuestionType: req.QuestionType,
		Difficulty:   req.Difficulty,
		Status:       models.QuestionNotSent,
		Timestamp:    ts,
	}); err != nil {
		s.soft("generate", roomID, "append failed", zap.Error(err))
	}
	return entry, nil
}

// SendToCandidate records that the question was put to the candidate and
// moves the newest not_sent timeline entry with the same text to sent.
func (s *Service) SendToCandidate(ctx context.Context, roomID string, req models.SendQuestionRequest) (models.SentQuestion, error) {
	ts := s.nowMillis()
	sent := models.SentQuestion{
		Question:     req.Question,
		QuestionType: req.QuestionType,
		Difficulty:   req.Difficulty,
		Timestamp:    ts,
		SentBy:       req.SentBy,
		IsAsked:      true,
	}
	id, err := s.store.AppendSentQuestion(ctx, roomID, sent)
	if err != nil {
		return models.SentQuestion{}, err
	}
	sent.ID = id

	s.advance(ctx, "send", roomID, req.Question, models.TimelineTransition{
		From: models.QuestionNotSent, To: models.QuestionSent, At: ts,
	})
	return sent, nil
}

// Submission identifies where a code submission was recorded.
type Submission struct {
	EntryID  string
	Question string
	// TimelineID is the timeline entry moved to answered by this
	// submission; empty when none was.
	TimelineID string
	// Evaluated is true when the entry already carried feedback before
	// this submission.
	Evaluated bool
}

// SubmitCode attaches code to the history entry of the question under
// answer and, unless that question was already evaluated, moves its sent
// timeline entry to answered. The question under answer is the newest
// sent one; when that has no history entry, or nothing was sent, the
// code goes to the newest history entry and the timeline is left alone.
func (s *Service) SubmitCode(ctx context.Context, roomID, code string) (Submission, error) {
	history, err := s.store.ListHistory(ctx, roomID)
	if err != nil {
		return Submission{}, err
	}
	if len(history) == 0 {
		return Submission{}, ErrNoQuestion
	}
	timeline, err := s.store.ListTimeline(ctx, roomID)
	if err != nil {
		s.soft("submit", roomID, "timeline unreadable", zap.Error(err))
		timeline = nil
	}

	target := history[0]
	sent, hasSent := latestWithStatus(timeline, models.QuestionSent, "")
	matched := false
	if hasSent {
		for _, h := range history {
			if h.Question == sent.Question {
				target, matched = h, true
				break
			}
		}
	}

	if err := s.store.AttachToHistory(ctx, roomID, target.ID, models.HistoryAttachment{CandidateCode: &code}); err != nil {
		return Submission{}, err
	}
	sub := Submission{EntryID: target.ID, Question: target.Question, Evaluated: target.AIFeedback != nil}
	if sub.Evaluated {
		return sub, nil
	}
	if !matched {
		s.soft("submit", roomID, "no sent entry for question", zap.String("entry_id", target.ID))
		return sub, nil
	}

	if s.transition(ctx, "submit", roomID, sent.ID, models.TimelineTransition{
		From: models.QuestionSent, To: models.QuestionAnswered, At: s.nowMillis(), Code: &code,
	}) {
		sub.TimelineID = sent.ID
	}
	return sub, nil
}

// RecordEvaluation attaches feedback to the history entry and moves the
// timeline entry the submission answered to evaluated.
func (s *Service) RecordEvaluation(ctx context.Context, roomID string, sub Submission, fb models.Feedback) error {
	if err := s.store.AttachToHistory(ctx, roomID, sub.EntryID, models.HistoryAttachment{AIFeedback: &fb}); err != nil {
		return err
	}
	if sub.Evaluated {
		return nil
	}
	if sub.TimelineID == "" {
		s.soft("evaluate", roomID, "submission has no answered entry", zap.String("entry_id", sub.EntryID))
		return nil
	}
	s.transition(ctx, "evaluate", roomID, sub.TimelineID, models.TimelineTransition{
		From: models.QuestionAnswered, To: models.QuestionEvaluated, At: s.nowMillis(), Analysis: &fb,
	})
	return nil
}

// Evaluate submits code and, when requested, has the generator score it.
// Concurrent identical submissions share one evaluation; a retry with a
// request id that already completed gets the earlier result.
func (s *Service) Evaluate(ctx context.Context, roomID string, req models.SubmissionRequest) (*models.SubmissionResponse, error) {
	key := submissionKey(roomID, req)
	if req.RequestID != "" {
		if resp, ok := s.results.Get(key); ok {
			return resp, nil
		}
	}
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		resp, err := s.evaluate(ctx, roomID, req)
		if err != nil {
			return nil, err
		}
		if req.RequestID != "" {
			s.results.Set(key, resp)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SubmissionResponse), nil
}

func (s *Service) evaluate(ctx context.Context, roomID string, req models.SubmissionRequest) (*models.SubmissionResponse, error) {
	sub, err := s.SubmitCode(ctx, roomID, req.Code)
	if err != nil {
		return nil, err
	}
	resp := &models.SubmissionResponse{EntryID: sub.EntryID}
	if !req.WantsEvaluation() {
		return resp, nil
	}
	if s.gen == nil {
		return nil, ErrGeneratorUnavailable
	}

	doc, err := s.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListHistory(ctx, roomID)
	if err != nil {
		return nil, err
	}
	freq := generator.FeedbackRequest{
		Question:   sub.Question,
		Code:       req.Code,
		JobContext: doc.JobContext,
		RequestID:  req.RequestID,
	}
	for _, h := range history {
		if h.ID == sub.EntryID {
			freq.QuestionType, freq.Difficulty = h.QuestionType, h.Difficulty
			break
		}
	}

	fb, err := s.gen.EvaluateSubmission(ctx, freq)
	if err != nil {
		s.log.Warn("evaluation failed, submission kept",
			zap.String("room_id", roomID), zap.String("entry_id", sub.EntryID), zap.Error(err))
		return nil, err
	}
	if err := s.RecordEvaluation(ctx, roomID, sub, *fb); err != nil {
		return nil, err
	}
	resp.Feedback = fb
	return resp, nil
}

// Complete marks the interview finished.
func (s *Service) Complete(ctx context.Context, roomID string) (models.RoomDocument, error) {
	status := models.StatusCompleted
	return s.store.Patch(ctx, roomID, models.DocPatch{Status: &status, Timestamp: s.nowMillis()})
}

// advance moves the newest timeline entry in t.From whose text equals
// question.
func (s *Service) advance(ctx context.Context, op, roomID, question string, t models.TimelineTransition) {
	timeline, err := s.store.ListTimeline(ctx, roomID)
	if err != nil {
		s.soft(op, roomID, "timeline unreadable", zap.Error(err))
		return
	}
	e, ok := latestWithStatus(timeline, t.From, question)
	if !ok {
		s.soft(op, roomID, fmt.Sprintf("no %s entry for question", t.From))
		return
	}
	s.transition(ctx, op, roomID, e.ID, t)
}

func (s *Service) transition(ctx context.Context, op, roomID, entryID string, t models.TimelineTransition) bool {
	if _, err := s.store.TransitionTimeline(ctx, roomID, entryID, t); err != nil {
		s.soft(op, roomID, "transition failed", zap.String("entry_id", entryID), zap.Error(err))
		return false
	}
	return true
}

// latestWithStatus returns the newest entry in status; an empty question
// matches any text. timeline is newest first.
func latestWithStatus(timeline []models.QuestionTimelineEntry, status models.QuestionStatus, question string) (models.QuestionTimelineEntry, bool) {
	for _, e := range timeline {
		if e.Status == status && (question == "" || e.Question == question) {
			return e, true
		}
	}
	return models.QuestionTimelineEntry{}, false
}

func submissionKey(roomID string, req models.SubmissionRequest) string {
	if req.RequestID != "" {
		return roomID + ":req:" + req.RequestID
	}
	sum := sha256.Sum256([]byte(req.Code))
	return fmt.Sprintf("%s:code:%s:%t", roomID, hex.EncodeToString(sum[:8]), req.WantsEvaluation())
}
