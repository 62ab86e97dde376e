package geminisvc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/exam"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/question"
)

type fakeGenerator struct {
	reply string
	err   error

	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (g *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.calls++
	g.model = model
	g.contents = contents
	g.config = config
	if g.err != nil {
		return nil, g.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: g.reply}}}}},
	}, nil
}

type observation struct {
	kind string
	err  error
}

type fakeObserver struct{ seen []observation }

func (o *fakeObserver) ObserveAIRequest(kind string, err error) {
	o.seen = append(o.seen, observation{kind, err})
}

func testClient(gen generator, obs Observer) *Client {
	conf := &core.Config{}
	conf.AI.Language = "English"
	return newClient(gen, conf, obs)
}

var rubric = []question.RubricItem{
	{ID: "r1", Description: "method", MaxScore: 3},
	{ID: "r2", Description: "result", MaxScore: 2},
}

func TestClient_GradeEssay(t *testing.T) {
	t.Run("no content", func(t *testing.T) {
		gen := &fakeGenerator{}
		grade, err := testClient(gen, nil).GradeEssay(context.Background(), attempt.EssayRequest{Rubric: rubric, AnswerText: "  "})
		require.NoError(t, err)
		assert.Equal(t, attempt.FeedbackNoContent, grade.OverallFeedback)
		assert.Zero(t, grade.TotalScoreAwarded)
		assert.Zero(t, gen.calls)
	})

	t.Run("scores bounded by rubric", func(t *testing.T) {
		gen := &fakeGenerator{reply: "```json\n" + `{
			"total_score_awarded": 9,
			"overall_feedback": " good work ",
			"rubric_scores": [
				{"rubric_item_id": "r1", "points_awarded": 5, "comment": "clear"},
				{"rubric_item_id": "r2", "points_awarded": 1.5, "comment": "minor slip"},
				{"rubric_item_id": "unknown", "points_awarded": 4}
			]
		}` + "\n```"}
		obs := &fakeObserver{}
		req := attempt.EssayRequest{
			QuestionID:      "q1",
			QuestionContent: "Solve x+1=2",
			AnswerText:      "x = 1",
			Rubric:          rubric,
			Images:          []attempt.Image{{Filename: "work.png", MIMEType: "image/png", Data: []byte{1, 2}}},
		}

		grade, err := testClient(gen, obs).GradeEssay(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 5.0, grade.TotalScoreAwarded, "total is bounded by the rubric maximum")
		assert.Equal(t, "good work", grade.OverallFeedback)
		assert.Equal(t, []attempt.RubricScore{
			{RubricItemID: "r1", PointsAwarded: 3, Comment: "clear"},
			{RubricItemID: "r2", PointsAwarded: 1.5, Comment: "minor slip"},
		}, grade.RubricScores)

		require.Len(t, gen.contents, 1)
		parts := gen.contents[0].Parts
		require.Len(t, parts, 2)
		assert.Contains(t, parts[0].Text, "Criterion ID: r1")
		assert.Contains(t, parts[0].Text, "in English")
		assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
		assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
		assert.Equal(t, defaultModel, gen.model)
		assert.Equal(t, []observation{{KindEssay, nil}}, obs.seen)
	})

	t.Run("total is the model's own", func(t *testing.T) {
		gen := &fakeGenerator{reply: `{"total_score_awarded": 4, "overall_feedback": "ok", "rubric_scores": [{"rubric_item_id": "r1", "points_awarded": 1}]}`}
		grade, err := testClient(gen, nil).GradeEssay(context.Background(), attempt.EssayRequest{Rubric: rubric, AnswerText: "x"})
		require.NoError(t, err)
		assert.Equal(t, 4.0, grade.TotalScoreAwarded)
		assert.Equal(t, []attempt.RubricScore{{RubricItemID: "r1", PointsAwarded: 1}}, grade.RubricScores)
	})

	incomplete := []struct{ name, reply string }{
		{name: "missing total and rubric scores", reply: `{"overall_feedback": "Looks fine"}`},
		{name: "missing total", reply: `{"overall_feedback": "ok", "rubric_scores": []}`},
		{name: "missing rubric scores", reply: `{"total_score_awarded": 3, "overall_feedback": "ok"}`},
		{name: "null rubric scores", reply: `{"total_score_awarded": 3, "rubric_scores": null}`},
	}
	for _, tc := range incomplete {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{reply: tc.reply}
			_, err := testClient(gen, nil).GradeEssay(context.Background(), attempt.EssayRequest{Rubric: rubric, AnswerText: "x"})
			assert.ErrorIs(t, err, errIncompleteGrade)
		})
	}

	t.Run("empty rubric scores", func(t *testing.T) {
		gen := &fakeGenerator{reply: `{"total_score_awarded": 0, "overall_feedback": "off topic", "rubric_scores": []}`}
		grade, err := testClient(gen, nil).GradeEssay(context.Background(), attempt.EssayRequest{Rubric: rubric, AnswerText: "x"})
		require.NoError(t, err)
		assert.Zero(t, grade.TotalScoreAwarded)
		assert.Equal(t, "off topic", grade.OverallFeedback)
	})

	t.Run("invalid json", func(t *testing.T) {
		gen := &fakeGenerator{reply: "I cannot grade this"}
		_, err := testClient(gen, nil).GradeEssay(context.Background(), attempt.EssayRequest{Rubric: rubric, AnswerText: "x"})
		assert.Error(t, err)
	})

	t.Run("model error", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		obs := &fakeObserver{}
		_, err := testClient(&fakeGenerator{err: boom}, obs).GradeEssay(context.Background(), attempt.EssayRequest{Rubric: rubric, AnswerText: "x"})
		require.Error(t, err)
		require.Len(t, obs.seen, 1)
		assert.Error(t, obs.seen[0].err)
	})
}

func TestClient_NotConfigured(t *testing.T) {
	c, err := NewClient(context.Background(), &core.Config{}, nil)
	require.NoError(t, err)

	_, err = c.GenerateFeedback(context.Background(), attempt.FeedbackRequest{TestTitle: "Algebra"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.ReviewAnswer(context.Background(), exam.ReviewRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_GenerateFeedback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  attempt.Feedback
	}{
		{
			name:  "json",
			reply: `{"feedback": "Work on fractions.", "recommendation": "Practice daily."}`,
			want:  attempt.Feedback{Feedback: "Work on fractions.", Recommendation: "Practice daily."},
		},
		{
			name:  "fenced json",
			reply: "```JSON\n{\"feedback\": \"Solid.\", \"recommendation\": \"Keep going.\"}\n```",
			want:  attempt.Feedback{Feedback: "Solid.", Recommendation: "Keep going."},
		},
		{
			name:  "plain text",
			reply: "You did well overall.",
			want:  attempt.Feedback{Feedback: "You did well overall."},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{reply: tc.reply}
			fb, err := testClient(gen, nil).GenerateFeedback(context.Background(), attempt.FeedbackRequest{
				TestTitle: "Algebra",
				Answers:   []attempt.FeedbackItem{{QuestionID: "q1", Question: "1+1?"}},
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, fb)
			assert.Contains(t, gen.contents[0].Parts[0].Text, `"test_title": "Algebra"`)
		})
	}
}

func TestClient_ReviewAnswer(t *testing.T) {
	fc := flashcard.Flashcard{
		ID:       "fc1",
		Type:     flashcard.TypeOrderingSteps,
		Question: "Order the steps",
		OrderingSteps: []flashcard.OrderingStep{
			{Content: "second", CorrectOrder: 2},
			{Content: "first", CorrectOrder: 1},
		},
	}

	t.Run("json", func(t *testing.T) {
		gen := &fakeGenerator{reply: `{"what_was_correct": "Order", "what_was_incorrect": "", "what_to_include": "Why"}`}
		r, err := testClient(gen, nil).ReviewAnswer(context.Background(), exam.ReviewRequest{Flashcard: fc, UserAnswer: "first, second"})
		require.NoError(t, err)
		assert.Equal(t, exam.AnswerReview{WhatWasCorrect: "Order", WhatToInclude: "Why"}, r)
		assert.Contains(t, gen.contents[0].Parts[0].Text, "1. first\n2. second\n")
	})

	t.Run("sections", func(t *testing.T) {
		gen := &fakeGenerator{reply: "1. **What was correct:** the formula.\n2. What was incorrect: the sign.\n3. What to include: units."}
		r, err := testClient(gen, nil).ReviewAnswer(context.Background(), exam.ReviewRequest{Flashcard: fc, UserAnswer: "x"})
		require.NoError(t, err)
		assert.Equal(t, exam.AnswerReview{
			WhatWasCorrect:   "the formula.",
			WhatWasIncorrect: "the sign.",
			WhatToInclude:    "units.",
		}, r)
	})

	t.Run("sections after non-ascii text", func(t *testing.T) {
		gen := &fakeGenerator{reply: "İİİ Öl.\nWHAT WAS CORRECT: đúng.\nWhat Was Incorrect: sai.\nwhat to include: đơn vị."}
		r, err := testClient(gen, nil).ReviewAnswer(context.Background(), exam.ReviewRequest{Flashcard: fc, UserAnswer: "x"})
		require.NoError(t, err)
		assert.Equal(t, exam.AnswerReview{
			WhatWasCorrect:   "đúng.",
			WhatWasIncorrect: "sai.",
			WhatToInclude:    "đơn vị.",
		}, r)
	})

	t.Run("unparsable", func(t *testing.T) {
		gen := &fakeGenerator{reply: "no idea"}
		_, err := testClient(gen, nil).ReviewAnswer(context.Background(), exam.ReviewRequest{Flashcard: fc, UserAnswer: "x"})
		assert.Error(t, err)
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, extractJSON(tc.in))
	}
}
