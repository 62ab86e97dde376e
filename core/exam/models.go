package exam

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/srs"
)

// Self-assessment values
const (
	NotUnderstood = "not_understood"
	Vague         = "vague"
	FairlyGood    = "fairly_good"
	VeryClear     = "very_clear"
)

var (
	assessmentLabels = map[string]string{
		NotUnderstood: "Chưa hiểu",
		Vague:         "Mơ hồ",
		FairlyGood:    "Khá ổn",
		VeryClear:     "Rất rõ",
	}

	// srsSeeds is the scheduling state a card starts from once self-assessed.
	srsSeeds = map[string]srs.Progress{
		NotUnderstood: {Status: srs.StatusLearning, IntervalDays: 0, EaseFactor: 2.2, Repetitions: 0, LearningStep: 0},
		Vague:         {Status: srs.StatusLearning, IntervalDays: 1, EaseFactor: 2.3, Repetitions: 0, LearningStep: 1},
		FairlyGood:    {Status: srs.StatusReview, IntervalDays: 3, EaseFactor: 2.5, Repetitions: 1, LearningStep: 0},
		VeryClear:     {Status: srs.StatusReview, IntervalDays: 7, EaseFactor: 2.7, Repetitions: 1, LearningStep: 0},
	}
)

// ParseSelfAssessment accepts a self-assessment code or its label.
func ParseSelfAssessment(v string) (string, bool) {
	v = core.CleanString(v)
	if _, ok := assessmentLabels[v]; ok {
		return v, true
	}
	for code, label := range assessmentLabels {
		if v == label {
			return code, true
		}
	}
	return "", false
}

func SelfAssessmentLabel(code string) string {
	return assessmentLabels[code]
}

type Detail struct {
	ID                 string     `json:"id"`
	AttemptID          string     `json:"attempt_id"`
	FlashcardID        string     `json:"flashcard"`
	UserAnswer         string     `json:"user_answer"`
	IsCorrect          bool       `json:"is_correct"`
	IsSkipped          bool       `json:"is_skipped"`
	SelfAssessment     string     `json:"user_self_assessment"`
	AssessedAt         *time.Time `json:"assessed_at"`
	AIWhatWasCorrect   string     `json:"ai_feedback_what_was_correct"`
	AIWhatWasIncorrect string     `json:"ai_feedback_what_was_incorrect"`
	AIWhatToInclude    string     `json:"ai_feedback_what_to_include"`
	Idx                int        `json:"-"`
}

type Attempt struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	TopicID             string     `json:"topic_id"`
	StartTime           time.Time  `json:"start_time"`
	CompletionTimestamp *time.Time `json:"completion_timestamp"`
	TimeSpentSeconds    int        `json:"time_spent_seconds"`
	TotalQuestions      int        `json:"total_questions"`
	CreatedAt           time.Time  `json:"created_at"` // UTC
	Details             []Detail   `json:"-"`
}

func (a Attempt) IsCompleted() bool {
	return a.CompletionTimestamp != nil
}

// Detail returns the detail of a flashcard within the attempt.
func (a Attempt) Detail(flashcardID string) (Detail, bool) {
	for _, d := range a.Details {
		if d.FlashcardID == flashcardID {
			return d, true
		}
	}
	return Detail{}, false
}

type StartResult struct {
	ID         string                `json:"id"`
	TopicID    string                `json:"topic"`
	StartTime  time.Time             `json:"start_time"`
	Flashcards []flashcard.Flashcard `json:"flashcards"`
}

type Answer struct {
	FlashcardID string `json:"flashcard_id" validate:"required"`
	UserAnswer  string `json:"user_answer"`
	IsSkipped   bool   `json:"is_skipped"`
}

func (a *Answer) Validate(validate *validator.Validate) error {
	a.FlashcardID = core.CleanString(a.FlashcardID)
	a.UserAnswer = core.CleanString(a.UserAnswer)
	return validate.Struct(a)
}

// AnswerReview is the AI feedback on an answer.
type AnswerReview struct {
	WhatWasCorrect   string `json:"ai_feedback_what_was_correct"`
	WhatWasIncorrect string `json:"ai_feedback_what_was_incorrect"`
	WhatToInclude    string `json:"ai_feedback_what_to_include"`
}

type AnswerResult struct {
	IsSkipped bool `json:"is_skipped"`
	AnswerReview
}

// ReviewRequest is an exam answer to review against its flashcard.
type ReviewRequest struct {
	Flashcard  flashcard.Flashcard
	UserAnswer string
}

type SelfAssessment struct {
	FlashcardID string `json:"flashcard_id" validate:"required"`
	Value       string `json:"self_assessment" validate:"required"`
}

func (sa *SelfAssessment) Validate(validate *validator.Validate) error {
	sa.FlashcardID = core.CleanString(sa.FlashcardID)
	sa.Value = core.CleanString(sa.Value)
	return validate.Struct(sa)
}

type SeededProgress struct {
	Status       string    `json:"status"`
	IntervalDays float64   `json:"interval_days"`
	NextReview   time.Time `json:"next_review"`
}

type SelfAssessmentResult struct {
	SelfAssessment string         `json:"self_assessment"`
	Label          string         `json:"self_assessment_label"`
	SRSProgress    SeededProgress `json:"srs_progress"`
}

// DetailView is an attempt detail along with its flashcard.
type DetailView struct {
	Detail
	SelfAssessmentLabel string                   `json:"self_assessment_label"`
	Question            string                   `json:"question"`
	Answer              string                   `json:"answer"`
	Explanation         string                   `json:"explanation"`
	FlashcardType       string                   `json:"flashcard_type"`
	Hint                string                   `json:"hint"`
	OrderingSteps       []flashcard.OrderingStep `json:"ordering_steps_items,omitempty"`
}

type AttemptView struct {
	Attempt
	TopicName     string       `json:"topic_name"`
	FormattedTime string       `json:"formatted_time"`
	Details       []DetailView `json:"details,omitempty"`
}

type HistoryFilter struct {
	TopicID string `query:"topic_id"`
	Limit   int    `query:"limit"`
	Offset  int    `query:"offset"`
}

func (hf *HistoryFilter) Clean() {
	hf.TopicID = core.CleanString(hf.TopicID)
	if hf.Limit <= 0 {
		hf.Limit = 10
	}
	if hf.Offset < 0 {
		hf.Offset = 0
	}
}

type History struct {
	TotalCount int           `json:"total_count"`
	Attempts   []AttemptView `json:"attempts"`
}

type QueryFilter struct {
	UserID        string
	TopicID       string
	CompletedOnly bool
	Limit         int
	Offset        int
}
