package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hiroai/roomsync/internal/llm"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/prompts"
	"hiroai/roomsync/internal/utils"
)

// QuestionRequest describes the question to generate.
type QuestionRequest struct {
	QuestionType string
	Difficulty   string
	Topic        string
	JobContext   *models.JobContext
	Previous     []string
	RequestID    string
}

// FeedbackRequest describes a submission to evaluate.
type FeedbackRequest struct {
	Question     string
	QuestionType string
	Difficulty   string
	Code         string
	JobContext   *models.JobContext
	RequestID    string
}

// Generator turns provider text into questions and feedback.
type Generator struct {
	provider llm.Provider
	prompts  *prompts.PromptManager
	log      *zap.Logger
}

func New(provider llm.Provider, pm *prompts.PromptManager, log *zap.Logger) *Generator {
	return &Generator{provider: provider, prompts: pm, log: log}
}

func (g *Generator) Name() string { return g.provider.GetProviderName() }

func (g *Generator) GenerateQuestion(ctx context.Context, req QuestionRequest) (string, error) {
	vars := map[string]string{
		"QuestionType": strings.ReplaceAll(req.QuestionType, "_", " "),
		"Difficulty":   req.Difficulty,
		"Topic":        "",
		"Previous":     "(none)",
	}
	if req.Topic != "" {
		vars["Topic"] = "Focus on: " + req.Topic
	}
	if len(req.Previous) > 0 {
		vars["Previous"] = "- " + strings.Join(req.Previous, "\n- ")
	}
	variant := jobVariant(req.JobContext, vars)
	if req.JobContext != nil {
		background := req.JobContext.CandidateProfile
		if background == "" {
			background = req.JobContext.ResumeText
		}
		vars["CandidateBackground"] = background
	}

	prompt, err := g.prompts.BuildPrompt(prompts.KindQuestion, variant, vars)
	if err != nil {
		return "", err
	}
	resp, err := g.provider.GenerateContent(ctx, prompt, req.RequestID)
	if err != nil {
		return "", err
	}

	var out struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal([]byte(utils.StripFences(resp.Text)), &out); err != nil {
		g.log.Warn("question response not JSON", zap.String("request_id", req.RequestID), zap.Error(err))
		return "", fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	out.Question = strings.TrimSpace(out.Question)
	if out.Question == "" {
		return "", fmt.Errorf("%w: empty question", llm.ErrMalformedResponse)
	}
	return out.Question, nil
}

func (g *Generator) EvaluateSubmission(ctx context.Context, req FeedbackRequest) (*models.Feedback, error) {
	vars := map[string]string{
		"Question":     req.Question,
		"QuestionType": strings.ReplaceAll(req.QuestionType, "_", " "),
		"Difficulty":   req.Difficulty,
		"Code":         req.Code,
	}
	variant := jobVariant(req.JobContext, vars)

	prompt, err := g.prompts.BuildPrompt(prompts.KindFeedback, variant, vars)
	if err != nil {
		return nil, err
	}
	resp, err := g.provider.GenerateContent(ctx, prompt, req.RequestID)
	if err != nil {
		return nil, err
	}
	return ParseFeedback(resp.Text)
}

// ParseFeedback decodes and validates a feedback payload. Any deviation
// from the expected shape is ErrMalformedResponse.
func ParseFeedback(text string) (*models.Feedback, error) {
	var fb models.Feedback
	dec := json.NewDecoder(strings.NewReader(utils.StripFences(text)))
	if err := dec.Decode(&fb); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	if err := fb.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	if fb.Suggestion != nil && strings.TrimSpace(*fb.Suggestion) == "" {
		fb.Suggestion = nil
	}
	if fb.ScoreNote != nil && strings.TrimSpace(*fb.ScoreNote) == "" {
		fb.ScoreNote = nil
	}
	return &fb, nil
}

func jobVariant(jc *models.JobContext, vars map[string]string) string {
	if jc == nil || (jc.JobTitle == "" && jc.JobDescription == "") {
		return prompts.VariantDefault
	}
	vars["JobTitle"] = jc.JobTitle
	vars["Company"] = jc.Company
	vars["JobDescription"] = jc.JobDescription
	return "with_job_context"
}
