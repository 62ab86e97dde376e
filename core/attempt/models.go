package attempt

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
)

// Attempt statuses
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
	StatusToBeGraded = "To be graded"
	StatusGraded     = "Graded"
	StatusTimedOut   = "Timed Out"
)

var resultStatuses = map[string]bool{
	StatusCompleted:  true,
	StatusGraded:     true,
	StatusToBeGraded: true,
	StatusTimedOut:   true,
}

type RubricScore struct {
	ID            string  `json:"id"`
	RubricItemID  string  `json:"rubric_item_id"`
	PointsAwarded float64 `json:"points_awarded"`
	Comment       string  `json:"comment"`
}

type Answer struct {
	ID                 string        `json:"id"`
	TestQuestionItemID string        `json:"test_question_item_id"`
	QuestionID         string        `json:"question_id"`
	UserAnswer         *string       `json:"user_answer"`
	TimeSpentSeconds   int           `json:"time_spent_seconds"`
	IsCorrect          *bool         `json:"is_correct"`
	PointsAwarded      *float64      `json:"points_awarded"`
	AIScore            *float64      `json:"ai_score"`
	AIFeedback         string        `json:"ai_feedback"`
	Images             []string      `json:"images"` // file names
	SubmittedAt        *time.Time    `json:"submitted_at"`
	RubricScores       []RubricScore `json:"rubric_scores"`
}

func (a Answer) Points() float64 {
	if a.PointsAwarded == nil {
		return 0
	}
	return *a.PointsAwarded
}

func (a Answer) Text() string {
	if a.UserAnswer == nil {
		return ""
	}
	return *a.UserAnswer
}

type Attempt struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	TestID               string     `json:"test_id"`
	Status               string     `json:"status"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time"`
	RemainingTimeSeconds int        `json:"remaining_time_seconds"`
	LastViewedQuestionID string     `json:"last_viewed_question_id"`
	FinalScore           float64    `json:"final_score"`
	TotalPossibleScore   float64    `json:"total_possible_score"`
	IsPassed             bool       `json:"is_passed"`
	Feedback             string     `json:"feedback"`
	Recommendation       string     `json:"recommendation"`
	Answers              []Answer   `json:"answers"`
	CreatedAt            time.Time  `json:"created_at"` // UTC
	UpdatedAt            time.Time  `json:"updated_at"` // UTC
}

// Answer returns the answer given to a test question item.
func (a Attempt) Answer(tqiID string) (Answer, bool) {
	for _, ans := range a.Answers {
		if ans.TestQuestionItemID == tqiID {
			return ans, true
		}
	}
	return Answer{}, false
}

// TimeTakenSeconds returns nil until the attempt has ended.
func (a Attempt) TimeTakenSeconds() *int {
	if a.EndTime == nil || a.StartTime.IsZero() {
		return nil
	}
	secs := int(a.EndTime.Sub(a.StartTime).Seconds())
	return &secs
}

// AnswerText accepts any JSON scalar as an answer and keeps its text form.
type AnswerText struct {
	Value *string
}

func (at *AnswerText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		at.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		at.Value = &s
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(val)
	default:
		s = string(data)
	}
	at.Value = &s
	return nil
}

func (at AnswerText) MarshalJSON() ([]byte, error) {
	return json.Marshal(at.Value)
}

type ProgressAnswer struct {
	UserAnswer       AnswerText `json:"user_answer"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
}

// Progress is the intermediate state of an attempt saved while taking a test.
type Progress struct {
	Answers              map[string]ProgressAnswer `json:"answers"`
	RemainingTimeSeconds *int                      `json:"remaining_time_seconds"`
	LastViewedQuestion   string                    `json:"last_viewed_test_question_id"`
}

type Base64Image struct {
	Data     string `json:"data"`
	Filename string `json:"filename"`
}

type SubmittedAnswer struct {
	UserAnswer AnswerText    `json:"user_answer"`
	TimeSpent  int           `json:"time_spent"`
	Images     []Base64Image `json:"base64_images"`
}

// Submission holds the final answers of an attempt, keyed by test question item ID.
type Submission struct {
	Answers            map[string]SubmittedAnswer `json:"answers"`
	TimeLeft           *int                       `json:"time_left"`
	LastViewedQuestion string                     `json:"last_viewed_test_question_id"`
}

type StatusResult struct {
	Status    string `json:"status"`
	AttemptID string `json:"attempt_id,omitempty"`
}

type SubmitResult struct {
	Status    string  `json:"status"`
	Score     float64 `json:"score"`
	Passed    bool    `json:"passed"`
	AttemptID string  `json:"attempt_id"`
}

type SavedAnswer struct {
	UserAnswer       *string `json:"user_answer"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`
}

type SessionAttempt struct {
	ID                   string    `json:"id"`
	Status               string    `json:"status"`
	StartTime            time.Time `json:"start_time"`
	RemainingTimeSeconds int       `json:"remaining_time_seconds"`
	LastViewedQuestionID string    `json:"last_viewed_question_id"`
}

type SessionTest struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	Instructions     string `json:"instructions"`
}

// Session is everything a client needs to take or resume a test.
type Session struct {
	Attempt            SessionAttempt         `json:"attempt"`
	Test               SessionTest            `json:"test"`
	Questions          []test.QuestionData    `json:"questions"`
	SavedAnswers       map[string]SavedAnswer `json:"saved_answers"`
	TimeElapsedSeconds int                    `json:"time_elapsed_seconds"`
}

// Summary is an attempt as shown in attempt lists.
type Summary struct {
	ID               string     `json:"id"`
	TestID           string     `json:"test_id"`
	TestTitle        string     `json:"test_title,omitempty"`
	Status           string     `json:"status"`
	FinalScore       float64    `json:"final_score"`
	IsPassed         bool       `json:"is_passed"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	TimeTakenSeconds *int       `json:"time_taken_seconds"`
}

func (a Attempt) Summary() Summary {
	return Summary{
		ID:               a.ID,
		TestID:           a.TestID,
		Status:           a.Status,
		FinalScore:       a.FinalScore,
		IsPassed:         a.IsPassed,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		TimeTakenSeconds: a.TimeTakenSeconds(),
	}
}

type ResultAttempt struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	Score            float64    `json:"score"`
	Passed           bool       `json:"passed"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	TimeTakenSeconds *int       `json:"time_taken_seconds"`
}

type ResultTest struct {
	ID                    string  `json:"id"`
	Title                 string  `json:"title"`
	PassingScoreThreshold float64 `json:"passing_score_threshold"`
	TotalPossibleScore    float64 `json:"total_possible_score"`
	HasEssayQuestion      bool    `json:"has_essay_question"`
}

type ResultOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

type ResultImage struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type ResultRubricScore struct {
	RubricScoreID        string  `json:"rubric_score_id"`
	RubricItemID         string  `json:"rubric_item_id"`
	CriterionDescription string  `json:"criterion_description"`
	CriterionMaxScore    float64 `json:"criterion_max_score"`
	PointsAwardedByAI    float64 `json:"points_awarded_by_ai"`
	AIComment            string  `json:"ai_comment"`
}

// ResultQuestion pairs a test question with the answer given to it.
type ResultQuestion struct {
	QuestionID                   string              `json:"q_id"`
	TestQuestionID               string              `json:"test_question_id"`
	Content                      string              `json:"q_content"`
	Type                         string              `json:"q_type"`
	Marks                        float64             `json:"q_marks"`
	ImageURL                     string              `json:"q_image_url"`
	Options                      []ResultOption      `json:"options"`
	AnswerKeyDisplay             interface{}         `json:"answer_key_display"`
	Explanation                  string              `json:"explanation"`
	Hint                         string              `json:"hint"`
	UserAnswerText               *string             `json:"user_answer_text"`
	UserSubmittedImages          []ResultImage       `json:"user_submitted_images"`
	IsCorrect                    *bool               `json:"is_correct"`
	PointsAwardedFinal           float64             `json:"points_awarded_final"`
	PointValueInTest             float64             `json:"point_value_in_test"`
	TimeSpentSeconds             *int                `json:"time_spent_seconds"`
	AITotalScoreForQuestion      *float64            `json:"ai_total_score_for_question"`
	AIOverallFeedbackForQuestion string              `json:"ai_overall_feedback_for_question"`
	AIRubricScores               []ResultRubricScore `json:"ai_rubric_scores"`
}

type Result struct {
	Attempt                      ResultAttempt    `json:"attempt"`
	Test                         ResultTest       `json:"test"`
	QuestionsAnswers             []ResultQuestion `json:"questions_answers"`
	OverallFeedbackFromLLM       string           `json:"overall_feedback_from_llm"`
	OverallRecommendationFromLLM string           `json:"overall_recommendation_from_llm"`
}

type QueryFilter struct {
	UserID   string
	TestID   string
	Statuses []string
}

// Image is an essay answer image handed to the grader.
type Image struct {
	Filename string
	MIMEType string
	Data     []byte
}

// EssayRequest is an essay answer to grade against a rubric.
type EssayRequest struct {
	QuestionID      string
	QuestionContent string
	AnswerText      string
	Rubric          []question.RubricItem
	Images          []Image
}

// EssayGrade is the outcome of grading an essay.
type EssayGrade struct {
	TotalScoreAwarded float64
	OverallFeedback   string
	RubricScores      []RubricScore
}

// FeedbackItem summarizes one answer for overall feedback generation.
type FeedbackItem struct {
	QuestionID    string   `json:"question_id"`
	Question      string   `json:"question"`
	QuestionType  string   `json:"question_type"`
	StudentAnswer *string  `json:"student_answer"`
	IsCorrect     *bool    `json:"is_correct"`
	PointsAwarded *float64 `json:"points_awarded"`
	EssayFeedback string   `json:"essay_ai_feedback,omitempty"`
}

type FeedbackRequest struct {
	TestTitle  string         `json:"test_title"`
	TotalScore float64        `json:"total_score"`
	Answers    []FeedbackItem `json:"answers"`
}

type Feedback struct {
	Feedback       string `json:"feedback"`
	Recommendation string `json:"recommendation"`
}
