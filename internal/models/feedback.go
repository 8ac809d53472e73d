package models

import "fmt"

// Scores are each on a 1-10 scale. Relevance is only present when the
// room carries a job context.
type Scores struct {
	Correctness int  `json:"correctness" bson:"correctness"`
	Relevance   *int `json:"relevance,omitempty" bson:"relevance,omitempty"`
	Efficiency  int  `json:"efficiency" bson:"efficiency"`
	Quality     int  `json:"quality" bson:"quality"`
	Readability int  `json:"readability" bson:"readability"`
	Overall     int  `json:"overall" bson:"overall"`
}

// Feedback is the generator's evaluation of a submission.
type Feedback struct {
	Summary         string  `json:"summary" bson:"summary"`
	Scores          Scores  `json:"scores" bson:"scores"`
	FullExplanation string  `json:"fullExplanation" bson:"fullExplanation"`
	Suggestion      *string `json:"suggestion,omitempty" bson:"suggestion,omitempty"`
	ScoreNote       *string `json:"scoreNote,omitempty" bson:"scoreNote,omitempty"`
}

func (f *Feedback) Validate() error {
	check := func(name string, v int) error {
		if v < 1 || v > 10 {
			return &ErrorResponse{
				Code:    "invalid_score",
				Message: fmt.Sprintf("%s must be between 1 and 10, got %d", name, v),
			}
		}
		return nil
	}
	s := f.Scores
	for _, c := range []struct {
		name string
		v    int
	}{
		{"correctness", s.Correctness},
		{"efficiency", s.Efficiency},
		{"quality", s.Quality},
		{"readability", s.Readability},
		{"overall", s.Overall},
	} {
		if err := check(c.name, c.v); err != nil {
			return err
		}
	}
	if s.Relevance != nil {
		if err := check("relevance", *s.Relevance); err != nil {
			return err
		}
	}
	if f.Summary == "" {
		return &ErrorResponse{Code: "missing_summary", Message: "summary is required"}
	}
	return nil
}
