package geminisvc

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/exam"
	"github.com/trezcool/elearning/core/flashcard"
)

const essaySystem = "You are a fair and careful teacher grading a student's essay answer against a detailed rubric."

const feedbackSystem = "You are an educational assistant reviewing a student's graded test."

func reviewSystem(language string) string {
	return fmt.Sprintf(`You are an educational AI assistant analysing a student's answer.
Give specific, constructive feedback on the student's answer compared with the correct answer, split into three sections:
1. What was correct: the specific aspects the student got right.
2. What was incorrect: the specific mistakes or misunderstandings.
3. What to include: concrete improvements or missing information.
Each section must be short (2 to 4 sentences). Be educational rather than only stating right or wrong.
Write formulas in LaTeX, using \( \) inline and \[ \] for standalone formulas.
Reply with a JSON object {"what_was_correct": "...", "what_was_incorrect": "...", "what_to_include": "..."}.
Write the values in %s.`, language)
}

func essayPrompt(req attempt.EssayRequest, language string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", req.QuestionContent)
	if strings.TrimSpace(req.AnswerText) != "" {
		fmt.Fprintf(&sb, "The student's written answer:\n---\n%s\n---\n", req.AnswerText)
	} else {
		sb.WriteString("The student did not submit a written answer.\n")
	}
	if len(req.Images) > 0 {
		fmt.Fprintf(&sb, "The student's work is also attached as %d image(s).\n", len(req.Images))
	}

	sb.WriteString("\nRubric:\n")
	for _, item := range req.Rubric {
		fmt.Fprintf(&sb, "- Criterion ID: %s\n  Description: %s\n  Maximum score: %g points\n", item.ID, item.Description, item.MaxScore)
	}

	sb.WriteString(`
Instructions:
1. Read the question, the written answer and every attached image carefully.
2. Evaluate the answer against each rubric criterion.
3. Award each criterion a numeric score between 0 and its maximum. A bare final answer without any reasoning earns no points.
4. Comment briefly on each criterion to justify its score.
5. Compute the total score for this question.
6. Write a short constructive overall feedback on the whole answer.
`)
	fmt.Fprintf(&sb, "Write every comment and the feedback in %s.\n", language)
	sb.WriteString(`
Reply with a single JSON object shaped exactly like:
{
  "total_score_awarded": 0.0,
  "overall_feedback": "string",
  "rubric_scores": [
    {"rubric_item_id": "string", "points_awarded": 0.0, "comment": "string"}
  ]
}`)
	return sb.String()
}

type rubricScoreReply struct {
	RubricItemID  string  `json:"rubric_item_id"`
	PointsAwarded float64 `json:"points_awarded"`
	Comment       string  `json:"comment"`
}

type essayResponse struct {
	TotalScoreAwarded *float64            `json:"total_score_awarded"`
	OverallFeedback   string              `json:"overall_feedback"`
	RubricScores      *[]rubricScoreReply `json:"rubric_scores"`
}

// errIncompleteGrade reports a reply missing the total or the rubric scores.
var errIncompleteGrade = errors.New("essay grade is missing total_score_awarded or rubric_scores")

// grade keeps the scores of known rubric items, bounded by their maximum.
// The total is the model's own total, bounded by the rubric maximum.
func (r essayResponse) grade(req attempt.EssayRequest) (attempt.EssayGrade, error) {
	if r.TotalScoreAwarded == nil || r.RubricScores == nil {
		return attempt.EssayGrade{}, errIncompleteGrade
	}

	maxScores := make(map[string]float64, len(req.Rubric))
	var maxTotal float64
	for _, item := range req.Rubric {
		maxScores[item.ID] = item.MaxScore
		maxTotal += item.MaxScore
	}

	g := attempt.EssayGrade{
		TotalScoreAwarded: clamp(*r.TotalScoreAwarded, maxTotal),
		OverallFeedback:   strings.TrimSpace(r.OverallFeedback),
	}
	for _, rs := range *r.RubricScores {
		maxScore, ok := maxScores[rs.RubricItemID]
		if !ok {
			continue
		}
		g.RubricScores = append(g.RubricScores, attempt.RubricScore{
			RubricItemID:  rs.RubricItemID,
			PointsAwarded: clamp(rs.PointsAwarded, maxScore),
			Comment:       strings.TrimSpace(rs.Comment),
		})
	}
	return g, nil
}

func clamp(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

func feedbackPrompt(req attempt.FeedbackRequest, language string) (string, error) {
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encoding attempt for feedback")
	}
	return fmt.Sprintf(`Below are the details of a student's test attempt: each question, the student's answer, whether it was correct, the points awarded and, for essay questions, the AI grading feedback.
1. Analyse the student's overall performance. Note the topics or question types handled well or poorly. Ignore unanswered questions when judging weaknesses.
2. Identify the strengths and the knowledge or skill areas that need improvement.
3. Write a constructive overall "feedback" focused on the main weaknesses.
4. Propose a concrete "recommendation": a study plan to improve on those weaknesses.
Answer in %s with a JSON object:
{"feedback": "...", "recommendation": "..."}

Attempt data:
%s`, language, data), nil
}

func reviewPrompt(req exam.ReviewRequest) string {
	fc := req.Flashcard
	switch fc.Type {
	case flashcard.TypeConcept:
		return fmt.Sprintf("Question: %s\nCorrect answer: %s\nStudent's answer: %s\n\nThis is a concept, theorem or formula question. Evaluate the student's answer against the correct answer.",
			fc.Question, fc.Answer, req.UserAnswer)
	case flashcard.TypeFillBlank:
		return fmt.Sprintf("Question: %s\nCorrect answer: %s\nStudent's answer: %s\n\nThis is a fill in the blank question. Evaluate the student's answer against the correct answer.",
			fc.Question, fc.Answer, req.UserAnswer)
	case flashcard.TypeOrderingSteps:
		var steps strings.Builder
		for i, s := range fc.SortedSteps() {
			fmt.Fprintf(&steps, "%d. %s\n", i+1, s.Content)
		}
		return fmt.Sprintf("Question: %s\nCorrect order of the steps:\n%sStudent's answer: %s\n\nThis question asks to put steps in the correct order. Evaluate the student's answer.",
			fc.Question, steps.String(), req.UserAnswer)
	case flashcard.TypeNextStep:
		return fmt.Sprintf("Question: %s\nCorrect next step: %s\nStudent's answer: %s\n\nThis question asks for the next step in solving a problem. Evaluate whether the student identified it.",
			fc.Question, fc.Answer, req.UserAnswer)
	case flashcard.TypeShortAnswer:
		return fmt.Sprintf("Question: %s\nModel answer: %s\nStudent's answer: %s\n\nThis is an open-ended question. Evaluate the student's answer against the model answer, accepting valid alternative approaches.",
			fc.Question, fc.Answer, req.UserAnswer)
	case flashcard.TypeIdentifyError:
		return fmt.Sprintf("Question: %s\nCorrect identification of the error: %s\nStudent's answer: %s\n\nThis question asks to identify an error. Evaluate whether the student found it.",
			fc.Question, fc.Answer, req.UserAnswer)
	default:
		return fmt.Sprintf("Question: %s\nCorrect answer: %s\nStudent's answer: %s\n\nEvaluate the student's answer against the correct answer.",
			fc.Question, fc.Answer, req.UserAnswer)
	}
}

type reviewResponse struct {
	WhatWasCorrect   string `json:"what_was_correct"`
	WhatWasIncorrect string `json:"what_was_incorrect"`
	WhatToInclude    string `json:"what_to_include"`
}

func (r reviewResponse) empty() bool {
	return strings.TrimSpace(r.WhatWasCorrect+r.WhatWasIncorrect+r.WhatToInclude) == ""
}

func (r reviewResponse) review() exam.AnswerReview {
	return exam.AnswerReview{
		WhatWasCorrect:   strings.TrimSpace(r.WhatWasCorrect),
		WhatWasIncorrect: strings.TrimSpace(r.WhatWasIncorrect),
		WhatToInclude:    strings.TrimSpace(r.WhatToInclude),
	}
}

// section headings recognised in free-text reviews, by AnswerReview field
var sectionHeadings = [3]*regexp.Regexp{
	regexp.MustCompile(`(?i)what was correct`),
	regexp.MustCompile(`(?i)what was incorrect`),
	regexp.MustCompile(`(?i)what to include`),
}

var listMarker = regexp.MustCompile(`\n\s*\d+\.\s*$`)

// parseSections splits a free-text review on its section headings.
func parseSections(text string) (exam.AnswerReview, bool) {
	var starts, ends [3]int
	found := false
	for i, h := range sectionHeadings {
		starts[i], ends[i] = -1, -1
		if loc := h.FindStringIndex(text); loc != nil {
			starts[i], ends[i] = loc[0], loc[1]
			found = true
		}
	}
	if !found {
		return exam.AnswerReview{}, false
	}

	var fields [3]string
	for i := range sectionHeadings {
		if starts[i] < 0 {
			continue
		}
		stop := len(text)
		for _, o := range starts {
			if o > starts[i] && o < stop {
				stop = o
			}
		}
		body := listMarker.ReplaceAllString(text[ends[i]:stop], "")
		fields[i] = strings.TrimSpace(strings.TrimLeft(body, ":*# \t\n"))
	}
	return exam.AnswerReview{WhatWasCorrect: fields[0], WhatWasIncorrect: fields[1], WhatToInclude: fields[2]}, true
}
