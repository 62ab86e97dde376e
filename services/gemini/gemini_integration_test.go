//go:build integration

package geminisvc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/exam"
	"github.com/trezcool/elearning/core/flashcard"
)

func liveClient(t *testing.T) *Client {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set")
	}
	conf := &core.Config{}
	conf.AI.GeminiAPIKey = apiKey
	conf.AI.Language = "English"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := NewClient(ctx, conf, nil)
	require.NoError(t, err)
	return c
}

func TestClient_Integration_GradeEssay(t *testing.T) {
	c := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	grade, err := c.GradeEssay(ctx, attempt.EssayRequest{
		QuestionID:      "q1",
		QuestionContent: "Solve 2x + 4 = 10 and explain each step.",
		AnswerText:      "Subtract 4 from both sides: 2x = 6. Divide both sides by 2: x = 3.",
		Rubric:          rubric,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, grade.OverallFeedback)
	assert.LessOrEqual(t, grade.TotalScoreAwarded, 5.0)
}

func TestClient_Integration_ReviewAnswer(t *testing.T) {
	c := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r, err := c.ReviewAnswer(ctx, exam.ReviewRequest{
		Flashcard: flashcard.Flashcard{
			Type:     flashcard.TypeConcept,
			Question: "State the Pythagorean theorem.",
			Answer:   "In a right triangle a^2 + b^2 = c^2, c being the hypotenuse.",
		},
		UserAnswer: "a^2 + b^2 = c^2",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.WhatWasCorrect+r.WhatWasIncorrect+r.WhatToInclude)
}
