package exam

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/srs"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
)

// Feedback texts used when the AI review is missing or failed.
const (
	FallbackCorrect   = "No part of the answer was identified as correct."
	FallbackIncorrect = "No part of the answer was identified as incorrect."
	FallbackInclude   = "No specific suggestion for improvement."
	ReviewErrCorrect  = "We ran into an error while generating feedback."
	ReviewErrInclude  = "Please try again later or contact support."
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("exam attempt not found")
	ErrNotOwner        = core.NewPermissionError("This exam attempt does not belong to you")
	ErrCompleted       = errors.New("This exam attempt is already completed")
	ErrNoFlashcards    = errors.New("No flashcards found for this topic")
	ErrNotInAttempt    = errors.New("This flashcard is not part of the exam attempt")
	ErrInvalidAssessed = errors.New("Invalid self-assessment value")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		// CreateAttempt stores a along with its details.
		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		// GetAttempt returns the attempt with its details ordered by idx.
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		UpdateAttempt(ctx context.Context, a Attempt) error
		// SaveDetail inserts d when it has no ID, updates it otherwise.
		SaveDetail(ctx context.Context, d Detail) (Detail, error)
		// QueryAttempts returns a page of attempts, newest first, with their question count,
		// and the number of attempts matching filter.
		QueryAttempts(ctx context.Context, filter QueryFilter) ([]Attempt, int, error)
		CountAttempts(ctx context.Context, userID, topicID string) (int, error)
		// AssessedFlashcardIDs returns the distinct flashcards the user self-assessed in the topic's exams.
		AssessedFlashcardIDs(ctx context.Context, userID, topicID string) ([]string, error)
		// TimeByMonth sums the time of the user's completed attempts per creation month within year.
		TimeByMonth(ctx context.Context, userID string, year int) (map[int]int, error)
	}

	Flashcards interface {
		Get(ctx context.Context, id string) (flashcard.Flashcard, error)
		StudyCards(ctx context.Context, userID, topicID string) ([]flashcard.Flashcard, flashcard.Settings, error)
	}

	TopicGetter interface {
		GetTopic(ctx context.Context, id string) (topic.Topic, error)
	}

	ProgressSeeder interface {
		Seed(ctx context.Context, userID, flashcardID string, seed srs.Progress) (srs.Progress, error)
	}

	AnswerReviewer interface {
		ReviewAnswer(ctx context.Context, req ReviewRequest) (AnswerReview, error)
	}

	Service struct {
		repo       Repository
		flashcards Flashcards
		topics     TopicGetter
		progress   ProgressSeeder
		reviewer   AnswerReviewer
		log        core.Logger
	}
)

func NewService(
	repo Repository,
	flashcards Flashcards,
	topics TopicGetter,
	progress ProgressSeeder,
	reviewer AnswerReviewer,
	log core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(flashcards, "flashcards"),
		vala.IsNotNil(topics, "topics"),
		vala.IsNotNil(progress, "progress"),
		vala.IsNotNil(reviewer, "reviewer"),
		vala.IsNotNil(log, "log"),
	).CheckAndPanic()
	return &Service{
		repo:       repo,
		flashcards: flashcards,
		topics:     topics,
		progress:   progress,
		reviewer:   reviewer,
		log:        log,
	}
}

// Start opens an exam over the topic's cards selected by the user's settings.
func (svc *Service) Start(ctx context.Context, usr user.User, topicID string) (StartResult, error) {
	if _, err := svc.topics.GetTopic(ctx, topicID); err != nil {
		return StartResult{}, err
	}
	cards, _, err := svc.flashcards.StudyCards(ctx, usr.ID, topicID)
	if err != nil {
		return StartResult{}, err
	}
	if len(cards) == 0 {
		return StartResult{}, core.NewValidationError(ErrNoFlashcards)
	}

	now := nowFunc()
	a := Attempt{UserID: usr.ID, TopicID: topicID, StartTime: now, CreatedAt: now}
	for i, fc := range cards {
		a.Details = append(a.Details, Detail{FlashcardID: fc.ID, SelfAssessment: NotUnderstood, Idx: i})
	}
	if a, err = svc.repo.CreateAttempt(ctx, a); err != nil {
		return StartResult{}, errors.Wrap(err, "creating exam attempt")
	}
	return StartResult{ID: a.ID, TopicID: a.TopicID, StartTime: a.StartTime, Flashcards: cards}, nil
}

func (svc *Service) ownAttempt(ctx context.Context, usr user.User, id string) (Attempt, error) {
	a, err := svc.repo.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != usr.ID {
		return Attempt{}, ErrNotOwner
	}
	return a, nil
}

// SubmitAnswer records the answer to a card and asks the AI to review it.
func (svc *Service) SubmitAnswer(ctx context.Context, usr user.User, attemptID string, ans Answer) (AnswerResult, error) {
	a, err := svc.ownAttempt(ctx, usr, attemptID)
	if err != nil {
		return AnswerResult{}, err
	}
	if a.IsCompleted() {
		return AnswerResult{}, core.NewValidationError(ErrCompleted)
	}
	fc, err := svc.flashcards.Get(ctx, ans.FlashcardID)
	if err != nil {
		return AnswerResult{}, err
	}

	d, ok := a.Detail(fc.ID)
	if !ok {
		d = Detail{AttemptID: a.ID, FlashcardID: fc.ID, SelfAssessment: NotUnderstood, Idx: len(a.Details)}
	}

	if ans.IsSkipped {
		d.UserAnswer = ""
		d.IsSkipped = true
		d.AIWhatWasCorrect, d.AIWhatWasIncorrect, d.AIWhatToInclude = "", "", ""
		if _, err := svc.repo.SaveDetail(ctx, d); err != nil {
			return AnswerResult{}, errors.Wrap(err, "saving skipped answer")
		}
		return AnswerResult{IsSkipped: true}, nil
	}

	d.UserAnswer = ans.UserAnswer
	d.IsSkipped = false
	review := svc.review(ctx, fc, ans.UserAnswer)
	d.AIWhatWasCorrect = review.WhatWasCorrect
	d.AIWhatWasIncorrect = review.WhatWasIncorrect
	d.AIWhatToInclude = review.WhatToInclude
	if _, err := svc.repo.SaveDetail(ctx, d); err != nil {
		return AnswerResult{}, errors.Wrap(err, "saving answer")
	}
	return AnswerResult{AnswerReview: review}, nil
}

// review asks the AI for feedback on an answer, falling back to canned texts.
func (svc *Service) review(ctx context.Context, fc flashcard.Flashcard, answer string) AnswerReview {
	r, err := svc.reviewer.ReviewAnswer(ctx, ReviewRequest{Flashcard: fc, UserAnswer: answer})
	if err != nil {
		svc.log.Error(fmt.Sprintf("reviewing answer to flashcard %s", fc.ID), err)
		return AnswerReview{
			WhatWasCorrect:   ReviewErrCorrect,
			WhatWasIncorrect: "The AI feedback service is unavailable.",
			WhatToInclude:    ReviewErrInclude,
		}
	}
	r.WhatWasCorrect = withDefault(CleanText(r.WhatWasCorrect), FallbackCorrect)
	r.WhatWasIncorrect = withDefault(CleanText(r.WhatWasIncorrect), FallbackIncorrect)
	r.WhatToInclude = withDefault(CleanText(r.WhatToInclude), FallbackInclude)
	return r
}

// SelfAssess records how well the user knew a card and seeds its spaced repetition schedule.
// It is allowed after the attempt is completed.
func (svc *Service) SelfAssess(ctx context.Context, usr user.User, attemptID string, sa SelfAssessment) (SelfAssessmentResult, error) {
	code, ok := ParseSelfAssessment(sa.Value)
	if !ok {
		return SelfAssessmentResult{}, core.NewValidationError(
			ErrInvalidAssessed,
			core.FieldError{Field: "self_assessment", Error: ErrInvalidAssessed.Error()},
		)
	}
	a, err := svc.ownAttempt(ctx, usr, attemptID)
	if err != nil {
		return SelfAssessmentResult{}, err
	}
	if _, err := svc.flashcards.Get(ctx, sa.FlashcardID); err != nil {
		return SelfAssessmentResult{}, err
	}
	d, ok := a.Detail(sa.FlashcardID)
	if !ok {
		return SelfAssessmentResult{}, core.NewValidationError(ErrNotInAttempt)
	}

	now := nowFunc()
	d.SelfAssessment = code
	d.AssessedAt = &now
	if _, err := svc.repo.SaveDetail(ctx, d); err != nil {
		return SelfAssessmentResult{}, errors.Wrap(err, "saving self-assessment")
	}
	p, err := svc.progress.Seed(ctx, usr.ID, d.FlashcardID, srsSeeds[code])
	if err != nil {
		return SelfAssessmentResult{}, errors.Wrap(err, "seeding srs progress")
	}

	return SelfAssessmentResult{
		SelfAssessment: code,
		Label:          SelfAssessmentLabel(code),
		SRSProgress:    SeededProgress{Status: p.Status, IntervalDays: p.IntervalDays, NextReview: p.NextReview},
	}, nil
}

// Complete closes an attempt and records the time spent on it.
func (svc *Service) Complete(ctx context.Context, usr user.User, attemptID string) (Attempt, error) {
	a, err := svc.ownAttempt(ctx, usr, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.IsCompleted() {
		return Attempt{}, core.NewValidationError(ErrCompleted)
	}

	now := nowFunc()
	a.CompletionTimestamp = &now
	a.TimeSpentSeconds = int(now.Sub(a.StartTime).Seconds())
	a.TotalQuestions = len(a.Details)
	if err := svc.repo.UpdateAttempt(ctx, a); err != nil {
		return Attempt{}, errors.Wrap(err, "completing exam attempt")
	}
	svc.log.Info(fmt.Sprintf("exam %s completed by %s with %d questions", a.ID, usr.ID, a.TotalQuestions))
	return a, nil
}

// Details returns an attempt with every card and the answer given to it.
func (svc *Service) Details(ctx context.Context, usr user.User, attemptID string) (AttemptView, error) {
	a, err := svc.ownAttempt(ctx, usr, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	view := AttemptView{Attempt: a, FormattedTime: core.FormatSeconds(a.TimeSpentSeconds), Details: []DetailView{}}
	view.TotalQuestions = len(a.Details)
	if t, err := svc.topics.GetTopic(ctx, a.TopicID); err == nil {
		view.TopicName = t.Name
	} else if !core.IsNotFound(err) {
		return AttemptView{}, err
	}

	for _, d := range a.Details {
		fc, err := svc.flashcards.Get(ctx, d.FlashcardID)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return AttemptView{}, err
		}
		view.Details = append(view.Details, DetailView{
			Detail:              d,
			SelfAssessmentLabel: SelfAssessmentLabel(d.SelfAssessment),
			Question:            fc.Question,
			Answer:              fc.Answer,
			Explanation:         fc.Explanation,
			FlashcardType:       fc.Type,
			Hint:                fc.Hint,
			OrderingSteps:       fc.OrderingSteps,
		})
	}
	return view, nil
}

// History returns a page of the user's completed attempts, newest first.
func (svc *Service) History(ctx context.Context, usr user.User, hf HistoryFilter) (History, error) {
	hf.Clean()
	attempts, total, err := svc.repo.QueryAttempts(ctx, QueryFilter{
		UserID:        usr.ID,
		TopicID:       hf.TopicID,
		CompletedOnly: true,
		Limit:         hf.Limit,
		Offset:        hf.Offset,
	})
	if err != nil {
		return History{}, err
	}

	names := make(map[string]string)
	history := History{TotalCount: total, Attempts: make([]AttemptView, 0, len(attempts))}
	for _, a := range attempts {
		name, ok := names[a.TopicID]
		if !ok {
			t, err := svc.topics.GetTopic(ctx, a.TopicID)
			if err != nil && !core.IsNotFound(err) {
				return History{}, err
			}
			name = t.Name
			names[a.TopicID] = name
		}
		history.Attempts = append(history.Attempts, AttemptView{
			Attempt:       a,
			TopicName:     name,
			FormattedTime: core.FormatSeconds(a.TimeSpentSeconds),
		})
	}
	return history, nil
}

// CountAttempts and AssessedFlashcardIDs expose the exam records to spaced repetition.
func (svc *Service) CountAttempts(ctx context.Context, userID, topicID string) (int, error) {
	return svc.repo.CountAttempts(ctx, userID, topicID)
}

func (svc *Service) AssessedFlashcardIDs(ctx context.Context, userID, topicID string) ([]string, error) {
	return svc.repo.AssessedFlashcardIDs(ctx, userID, topicID)
}

// TimeByMonth reports the time the user spent on completed exams for each month of year.
func (svc *Service) TimeByMonth(ctx context.Context, usr user.User, year int) ([]core.MonthlyTime, error) {
	byMonth, err := svc.repo.TimeByMonth(ctx, usr.ID, year)
	if err != nil {
		return nil, err
	}
	return core.MonthlyReport(byMonth), nil
}

var (
	numberingRe   = regexp.MustCompile(`(?m)^\d+\.\s*`)
	boldColonRe   = regexp.MustCompile(`:\*\*\s*`)
	boldEdgeRe    = regexp.MustCompile(`(?m)^\*\*\s*|\s*\*\*$`)
	boldRe        = regexp.MustCompile(`:\*\*|\*\*`)
	whitespacesRe = regexp.MustCompile(`\s+`)
)

// CleanText strips list numbering and bold markers from AI text and collapses whitespace.
func CleanText(s string) string {
	s = numberingRe.ReplaceAllString(s, "")
	s = boldColonRe.ReplaceAllString(s, "")
	s = boldEdgeRe.ReplaceAllString(s, "")
	s = boldRe.ReplaceAllString(s, "")
	return strings.TrimSpace(whitespacesRe.ReplaceAllString(s, " "))
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
