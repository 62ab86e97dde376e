package geminisvc

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/exam"
)

const (
	defaultModel    = "gemini-2.0-flash"
	defaultLanguage = "Vietnamese"

	// request kinds reported to the observer
	KindEssay    = "essay"
	KindFeedback = "feedback"
	KindReview   = "review"
)

var (
	ErrNotConfigured = errors.New("gemini api key is not configured")
	ErrEmptyResponse = errors.New("gemini returned an empty response")

	_ attempt.EssayGrader       = (*Client)(nil)
	_ attempt.FeedbackGenerator = (*Client)(nil)
	_ exam.AnswerReviewer       = (*Client)(nil)

	codeFence = regexp.MustCompile("(?im)^\\s*```(?:json\\s+)?([\\s\\S]+?)\\s*```\\s*$")
)

type (
	// generator is the part of genai.Models used here.
	generator interface {
		GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	}

	Observer interface {
		ObserveAIRequest(kind string, err error)
	}

	// Client grades essays, writes attempt feedback and reviews flashcard answers with Gemini.
	Client struct {
		gen      generator
		model    string
		language string
		limiter  *rate.Limiter
		obs      Observer
	}
)

// NewClient returns a Client for conf.AI.
// Without an API key every call fails with ErrNotConfigured, so callers fall back to their canned texts.
func NewClient(ctx context.Context, conf *core.Config, obs Observer) (*Client, error) {
	var gen generator
	if conf.AI.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  conf.AI.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating gemini client")
		}
		gen = client.Models
	}
	return newClient(gen, conf, obs), nil
}

func newClient(gen generator, conf *core.Config, obs Observer) *Client {
	limit := rate.Inf
	if conf.AI.RequestsPerSecond > 0 {
		limit = rate.Limit(conf.AI.RequestsPerSecond)
	}
	burst := conf.AI.Burst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		gen:      gen,
		model:    conf.AI.Model,
		language: conf.AI.Language,
		limiter:  rate.NewLimiter(limit, burst),
		obs:      obs,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.language == "" {
		c.language = defaultLanguage
	}
	return c
}

// generate sends parts as a single user turn and returns the text of the answer.
func (c *Client) generate(ctx context.Context, kind string, config *genai.GenerateContentConfig, parts ...*genai.Part) (text string, err error) {
	if c.obs != nil {
		defer func() { c.obs.ObserveAIRequest(kind, err) }()
	}
	if c.gen == nil {
		return "", ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "waiting for rate limiter")
	}

	result, err := c.gen.GenerateContent(ctx, c.model, []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, config)
	if err != nil {
		return "", errors.Wrapf(err, "generating %s", kind)
	}
	if result == nil {
		return "", ErrEmptyResponse
	}
	text = strings.TrimSpace(result.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) config(system string, temperature float32, maxTokens int32, jsonOutput bool) *genai.GenerateContentConfig {
	conf := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       &temperature,
		MaxOutputTokens:   maxTokens,
	}
	if jsonOutput {
		conf.ResponseMIMEType = "application/json"
	}
	return conf
}

// GradeEssay scores an essay answer against its rubric.
// An answer with neither text nor images is not sent to the model.
func (c *Client) GradeEssay(ctx context.Context, req attempt.EssayRequest) (attempt.EssayGrade, error) {
	if strings.TrimSpace(req.AnswerText) == "" && len(req.Images) == 0 {
		return attempt.EssayGrade{OverallFeedback: attempt.FeedbackNoContent}, nil
	}

	parts := []*genai.Part{{Text: essayPrompt(req, c.language)}}
	for _, img := range req.Images {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}})
	}
	text, err := c.generate(ctx, KindEssay, c.config(essaySystem, 0.3, 8192, true), parts...)
	if err != nil {
		return attempt.EssayGrade{}, err
	}

	var out essayResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return attempt.EssayGrade{}, errors.Wrap(err, "decoding essay grade")
	}
	return out.grade(req)
}

// GenerateFeedback writes the overall feedback and study recommendation of a graded attempt.
// A reply that is not valid JSON is kept verbatim as the feedback.
func (c *Client) GenerateFeedback(ctx context.Context, req attempt.FeedbackRequest) (attempt.Feedback, error) {
	prompt, err := feedbackPrompt(req, c.language)
	if err != nil {
		return attempt.Feedback{}, err
	}
	text, err := c.generate(ctx, KindFeedback, c.config(feedbackSystem, 0.4, 2048, false), &genai.Part{Text: prompt})
	if err != nil {
		return attempt.Feedback{}, err
	}

	var fb attempt.Feedback
	if err := json.Unmarshal([]byte(extractJSON(text)), &fb); err != nil {
		if err := json.Unmarshal([]byte(text), &fb); err != nil {
			return attempt.Feedback{Feedback: text}, nil
		}
	}
	if strings.TrimSpace(fb.Feedback) == "" {
		fb.Feedback = text
	}
	return fb, nil
}

// ReviewAnswer compares an exam answer with the flashcard's answer.
func (c *Client) ReviewAnswer(ctx context.Context, req exam.ReviewRequest) (exam.AnswerReview, error) {
	text, err := c.generate(ctx, KindReview, c.config(reviewSystem(c.language), 0.2, 1024, true), &genai.Part{Text: reviewPrompt(req)})
	if err != nil {
		return exam.AnswerReview{}, err
	}

	var out reviewResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err == nil && !out.empty() {
		return out.review(), nil
	}
	if r, ok := parseSections(text); ok {
		return r, nil
	}
	return exam.AnswerReview{}, errors.Errorf("unparsable answer review: %q", text)
}

// extractJSON returns the content of a fenced code block, or text itself when there is none.
func extractJSON(text string) string {
	if m := codeFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
