package question

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
)

// Question types
const (
	TypeMultipleChoice = "Multiple Choice"
	TypeSelfWrite      = "Self Write"
	TypeEssay          = "Essay"
)

var Types = []string{TypeMultipleChoice, TypeSelfWrite, TypeEssay}

type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text" validate:"required,notblank"`
	IsCorrect bool   `json:"is_correct"`
}

type RubricItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description" validate:"required,notblank"`
	MaxScore    float64 `json:"max_score" validate:"gte=0"`
	StepOrder   int     `json:"step_order"`
}

type Question struct {
	ID          string       `json:"id"`
	TopicID     string       `json:"topic_id"`
	Content     string       `json:"content"`
	Type        string       `json:"question_type"`
	Options     []Option     `json:"options"`
	AnswerKey   string       `json:"answer_key"`
	Marks       float64      `json:"marks"`
	Explanation string       `json:"explanation"`
	Hint        string       `json:"hint"`
	ImageURL    string       `json:"image"`
	Rubric      []RubricItem `json:"rubric_items"`
	CreatedAt   time.Time    `json:"created_at"` // UTC
	UpdatedAt   time.Time    `json:"updated_at"` // UTC
}

// PointValue is the number of points the question is worth in a test.
func (q Question) PointValue() float64 {
	if q.Marks > 0 {
		return q.Marks
	}
	return 1
}

// CorrectOptionID returns the ID of the first correct option, if any.
func (q Question) CorrectOptionID() string {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt.ID
		}
	}
	return ""
}

// SortedRubric returns the rubric items ordered by step order.
func (q Question) SortedRubric() []RubricItem {
	items := make([]RubricItem, len(q.Rubric))
	copy(items, q.Rubric)
	sort.SliceStable(items, func(i, j int) bool { return items[i].StepOrder < items[j].StepOrder })
	return items
}

func (q Question) HasRubricItem(id string) bool {
	for _, item := range q.Rubric {
		if item.ID == id {
			return true
		}
	}
	return false
}

// NewQuestion contains information needed to create or replace a Question.
type NewQuestion struct {
	TopicID     string       `json:"topic_id"`
	Content     string       `json:"content" validate:"required,notblank"`
	Type        string       `json:"question_type" validate:"required,oneof='Multiple Choice' 'Self Write' 'Essay'"`
	Options     []Option     `json:"options" validate:"dive"`
	AnswerKey   string       `json:"answer_key"`
	Marks       float64      `json:"marks" validate:"gte=0"`
	Explanation string       `json:"explanation"`
	Hint        string       `json:"hint"`
	ImageURL    string       `json:"image"`
	Rubric      []RubricItem `json:"rubric_items" validate:"dive"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.TopicID = core.CleanString(nq.TopicID)
	nq.Content = core.CleanString(nq.Content)
	nq.Type = core.CleanString(nq.Type)
	nq.AnswerKey = core.CleanString(nq.AnswerKey)
	for i := range nq.Options {
		nq.Options[i].Text = core.CleanString(nq.Options[i].Text)
	}
	for i := range nq.Rubric {
		nq.Rubric[i].Description = core.CleanString(nq.Rubric[i].Description)
	}

	if err := validate.Struct(nq); err != nil {
		return err
	}
	return nq.validateType()
}

// validateType checks the rules that depend on the question type.
func (nq *NewQuestion) validateType() error {
	if nq.Type != TypeMultipleChoice {
		return nil
	}
	if len(nq.Options) < 2 {
		msg := "multiple choice questions need at least 2 options"
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "options", Error: msg})
	}
	for _, opt := range nq.Options {
		if opt.IsCorrect {
			return nil
		}
	}
	msg := "multiple choice questions need at least one correct option"
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: "options", Error: msg})
}

type QueryFilter struct {
	TopicID string `query:"topic_id"`
	Type    string `query:"question_type"`
}

func (qf *QueryFilter) Clean() {
	qf.TopicID = core.CleanString(qf.TopicID)
	qf.Type = strings.TrimSpace(qf.Type)
}
