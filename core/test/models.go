package test

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearning/core"
)

// QuestionItem places a question at a position within a test.
type QuestionItem struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Idx        int    `json:"idx"`
}

type Test struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	TopicID          string         `json:"topic_id"`
	GradeLevel       string         `json:"grade_level"`
	TestType         string         `json:"test_type"`
	TimeLimitMinutes int            `json:"time_limit_minutes"`
	Instructions     string         `json:"instructions"`
	DifficultyLevel  string         `json:"difficulty_level"`
	PassingScore     float64        `json:"passing_score"` // percent
	IsActive         bool           `json:"is_active"`
	Questions        []QuestionItem `json:"questions"`
	CreatedAt        time.Time      `json:"created_at"` // UTC
	UpdatedAt        time.Time      `json:"updated_at"` // UTC
}

// Item returns the question item with the given ID.
func (t Test) Item(id string) (QuestionItem, bool) {
	for _, item := range t.Questions {
		if item.ID == id {
			return item, true
		}
	}
	return QuestionItem{}, false
}

// TimeLimit returns the time limit of the test, zero when unlimited.
func (t Test) TimeLimit() time.Duration {
	return time.Duration(t.TimeLimitMinutes) * time.Minute
}

// Summary is the metadata of a test, without its questions.
type Summary struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	TopicID          string  `json:"topic_id"`
	GradeLevel       string  `json:"grade_level"`
	TestType         string  `json:"test_type"`
	TimeLimitMinutes int     `json:"time_limit_minutes"`
	Instructions     string  `json:"instructions"`
	DifficultyLevel  string  `json:"difficulty_level"`
	PassingScore     float64 `json:"passing_score"`
	IsActive         bool    `json:"is_active"`
	QuestionCount    int     `json:"question_count"`
}

func (t Test) Summary() Summary {
	return Summary{
		ID:               t.ID,
		Title:            t.Title,
		TopicID:          t.TopicID,
		GradeLevel:       t.GradeLevel,
		TestType:         t.TestType,
		TimeLimitMinutes: t.TimeLimitMinutes,
		Instructions:     t.Instructions,
		DifficultyLevel:  t.DifficultyLevel,
		PassingScore:     t.PassingScore,
		IsActive:         t.IsActive,
		QuestionCount:    len(t.Questions),
	}
}

// Option is a multiple choice option without its correctness flag.
type Option struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// QuestionData is a question as shown to a test taker.
type QuestionData struct {
	TestQuestionDetailID string   `json:"test_question_detail_id"`
	QuestionID           string   `json:"question_id"`
	Content              string   `json:"content"`
	Image                string   `json:"image"`
	QuestionType         string   `json:"question_type"`
	Hint                 string   `json:"hint"`
	PointValue           float64  `json:"point_value"`
	QuestionOrder        int      `json:"question_order"`
	Options              []Option `json:"options,omitempty"`
}

// Data is the sanitized content of a test, ready to be taken.
type Data struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	TimeLimitMinutes int            `json:"time_limit_minutes"`
	Instructions     string         `json:"instructions"`
	Questions        []QuestionData `json:"questions"`
}

type NewQuestionItem struct {
	QuestionID string `json:"question_id" validate:"required"`
	Idx        int    `json:"idx" validate:"gte=0"`
}

// NewTest contains information needed to create or replace a Test.
type NewTest struct {
	Title            string            `json:"title" validate:"required,notblank,max=140"`
	TopicID          string            `json:"topic_id"`
	GradeLevel       string            `json:"grade_level" validate:"max=50"`
	TestType         string            `json:"test_type" validate:"max=50"`
	TimeLimitMinutes int               `json:"time_limit_minutes" validate:"gte=0"`
	Instructions     string            `json:"instructions"`
	DifficultyLevel  string            `json:"difficulty_level" validate:"max=50"`
	PassingScore     float64           `json:"passing_score" validate:"gte=0,lte=100"`
	IsActive         *bool             `json:"is_active"`
	Questions        []NewQuestionItem `json:"questions" validate:"dive"`
}

func (nt *NewTest) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.TopicID = core.CleanString(nt.TopicID)
	nt.GradeLevel = core.CleanString(nt.GradeLevel)
	nt.TestType = core.CleanString(nt.TestType)
	nt.Instructions = core.CleanString(nt.Instructions)
	nt.DifficultyLevel = core.CleanString(nt.DifficultyLevel)
	for i := range nt.Questions {
		nt.Questions[i].QuestionID = core.CleanString(nt.Questions[i].QuestionID)
	}
	return validate.Struct(nt)
}

type QueryFilter struct {
	TopicID    string `query:"topic_id"`
	GradeLevel string `query:"grade_level"`
	TestType   string `query:"test_type"`
	ActiveOnly bool
}

func (qf *QueryFilter) Clean() {
	qf.TopicID = core.CleanString(qf.TopicID)
	qf.GradeLevel = core.CleanString(qf.GradeLevel)
	qf.TestType = core.CleanString(qf.TestType)
}
