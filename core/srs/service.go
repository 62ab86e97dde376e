package srs

import (
	"context"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/topic"
)

const (
	MsgNoExams       = "No exam attempts found. Please complete some flashcards in Exam Mode first."
	MsgNoAssessments = "No self-assessed flashcards found. Please complete and assess flashcards in Exam Mode first."
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("srs progress not found")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		// GetProgress returns a NotFoundError when the user never reviewed the card.
		GetProgress(ctx context.Context, userID, flashcardID string) (Progress, error)
		// SaveProgress inserts or updates the progress of (p.UserID, p.FlashcardID).
		SaveProgress(ctx context.Context, p Progress) (Progress, error)
		QueryProgress(ctx context.Context, filter QueryFilter) ([]Progress, error)
		DeleteProgress(ctx context.Context, userID string, flashcardIDs ...string) (int, error)
		// TimeByMonth sums the review time of the user per month of last review within year.
		TimeByMonth(ctx context.Context, userID string, year int) (map[int]int, error)
	}

	Flashcards interface {
		Get(ctx context.Context, id string) (flashcard.Flashcard, error)
		Query(ctx context.Context, filter flashcard.QueryFilter) ([]flashcard.Flashcard, error)
		UserSettings(ctx context.Context, userID, topicID string) (flashcard.Settings, error)
	}

	TopicGetter interface {
		GetTopic(ctx context.Context, id string) (topic.Topic, error)
	}

	// ExamRecords exposes the flashcard exam history of a user on a topic.
	ExamRecords interface {
		CountAttempts(ctx context.Context, userID, topicID string) (int, error)
		AssessedFlashcardIDs(ctx context.Context, userID, topicID string) ([]string, error)
	}

	Service struct {
		repo       Repository
		flashcards Flashcards
		topics     TopicGetter
		exams      ExamRecords
	}
)

func NewService(repo Repository, flashcards Flashcards, topics TopicGetter, exams ExamRecords) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(flashcards, "flashcards"),
		vala.IsNotNil(topics, "topics"),
		vala.IsNotNil(exams, "exams"),
	).CheckAndPanic()
	return &Service{repo: repo, flashcards: flashcards, topics: topics, exams: exams}
}

func (svc *Service) current(ctx context.Context, userID, flashcardID string, now time.Time) (Progress, error) {
	p, err := svc.repo.GetProgress(ctx, userID, flashcardID)
	if err != nil {
		if core.IsNotFound(err) {
			return NewProgress(userID, flashcardID, now), nil
		}
		return Progress{}, err
	}
	return p, nil
}

// RateCard records a review of a flashcard and reschedules it.
func (svc *Service) RateCard(ctx context.Context, userID string, r Rating) (RateResult, error) {
	if _, err := svc.flashcards.Get(ctx, r.FlashcardID); err != nil {
		return RateResult{}, err
	}
	now := nowFunc()
	p, err := svc.current(ctx, userID, r.FlashcardID, now)
	if err != nil {
		return RateResult{}, err
	}

	p = Update(p, r.UserRating, now)
	if r.TimeSpentSeconds != nil {
		p.TotalTimeSpentSeconds += *r.TimeSpentSeconds
	}
	if p, err = svc.repo.SaveProgress(ctx, p); err != nil {
		return RateResult{}, errors.Wrap(err, "saving srs progress")
	}
	return p.Result(), nil
}

// Seed overwrites the scheduling state of a card, keeping its accumulated review time.
// The next review falls seed.IntervalDays whole days from now.
func (svc *Service) Seed(ctx context.Context, userID, flashcardID string, seed Progress) (Progress, error) {
	now := nowFunc()
	p, err := svc.current(ctx, userID, flashcardID, now)
	if err != nil {
		return Progress{}, err
	}
	p.Status = seed.Status
	p.IntervalDays = seed.IntervalDays
	p.EaseFactor = seed.EaseFactor
	p.Repetitions = seed.Repetitions
	p.LearningStep = seed.LearningStep
	p.LastReview = now
	p.NextReview = now.AddDate(0, 0, int(seed.IntervalDays))
	return svc.repo.SaveProgress(ctx, p)
}

// DueSummary counts the user's cards due now or within two days, grouped by topic.
func (svc *Service) DueSummary(ctx context.Context, userID string) (DueSummary, error) {
	now := nowFunc()
	until := now.Add(upcomingWindow)
	progress, err := svc.repo.QueryProgress(ctx, QueryFilter{UserID: userID, NextReviewBefore: &until})
	if err != nil {
		return DueSummary{}, err
	}
	summary := DueSummary{Topics: []TopicSummary{}}
	if len(progress) == 0 {
		return summary, nil
	}

	ids := make([]string, 0, len(progress))
	for _, p := range progress {
		ids = append(ids, p.FlashcardID)
	}
	cards, err := svc.flashcards.Query(ctx, flashcard.QueryFilter{IDs: ids})
	if err != nil {
		return DueSummary{}, err
	}
	topicOf := make(map[string]string, len(cards))
	for _, fc := range cards {
		topicOf[fc.ID] = fc.TopicID
	}

	byTopic := make(map[string]*TopicSummary)
	var order []string
	for _, p := range progress {
		topicID, ok := topicOf[p.FlashcardID]
		if !ok {
			continue
		}
		ts, ok := byTopic[topicID]
		if !ok {
			ts = &TopicSummary{TopicID: topicID, TopicName: "Unknown Topic"}
			if t, err := svc.topics.GetTopic(ctx, topicID); err == nil {
				ts.TopicName = t.Name
			} else if !core.IsNotFound(err) {
				return DueSummary{}, err
			}
			byTopic[topicID] = ts
			order = append(order, topicID)
		}
		due := p.IsDue(now)
		if due {
			ts.DueCount++
		} else {
			ts.UpcomingCount++
		}
		ts.TotalCount++
		ts.Cards = append(ts.Cards, SummaryCard{ID: p.ID, FlashcardID: p.FlashcardID, NextReview: p.NextReview, IsDue: due})
	}

	for _, topicID := range order {
		ts := byTopic[topicID]
		sort.SliceStable(ts.Cards, func(i, j int) bool { return ts.Cards[i].NextReview.Before(ts.Cards[j].NextReview) })
		summary.Topics = append(summary.Topics, *ts)
		summary.DueCount += ts.DueCount
		summary.UpcomingCount += ts.UpcomingCount
	}
	sort.SliceStable(summary.Topics, func(i, j int) bool { return summary.Topics[i].TotalCount > summary.Topics[j].TotalCount })
	summary.TotalCount = summary.DueCount + summary.UpcomingCount
	return summary, nil
}

// ReviewCards returns the cards of a topic to review now: learning, lapsed, review, then new.
// Only the cards self-assessed in an exam take part.
func (svc *Service) ReviewCards(ctx context.Context, userID, topicID string) (Review, error) {
	if _, err := svc.topics.GetTopic(ctx, topicID); err != nil {
		return Review{}, err
	}
	settings, err := svc.flashcards.UserSettings(ctx, userID, topicID)
	if err != nil {
		return Review{}, err
	}

	attempts, err := svc.exams.CountAttempts(ctx, userID, topicID)
	if err != nil {
		return Review{}, err
	}
	if attempts == 0 {
		return Review{Cards: []ReviewCard{}, NoExams: true, Message: MsgNoExams}, nil
	}
	assessed, err := svc.exams.AssessedFlashcardIDs(ctx, userID, topicID)
	if err != nil {
		return Review{}, err
	}
	if len(assessed) == 0 {
		return Review{Cards: []ReviewCard{}, NoAssessments: true, Message: MsgNoAssessments}, nil
	}

	filter := settings.Filter(topicID)
	filter.IDs = assessed
	cards, err := svc.flashcards.Query(ctx, filter)
	if err != nil {
		return Review{}, err
	}
	ids := make([]string, 0, len(cards))
	for _, fc := range cards {
		ids = append(ids, fc.ID)
	}
	progress, err := svc.repo.QueryProgress(ctx, QueryFilter{UserID: userID, FlashcardIDs: ids})
	if err != nil {
		return Review{}, err
	}
	byCard := make(map[string]Progress, len(progress))
	for _, p := range progress {
		byCard[p.FlashcardID] = p
	}

	now := nowFunc()
	var (
		buckets = map[string][]ReviewCard{}
		stats   ReviewStats
	)
	for _, fc := range cards {
		p, ok := byCard[fc.ID]
		if !ok {
			buckets[StatusNew] = append(buckets[StatusNew], ReviewCard{Flashcard: fc, Status: StatusNew})
			stats.Counts.add(StatusNew)
			continue
		}
		stats.Counts.add(p.Status)
		if p.IsUpcoming(now) {
			stats.Upcoming++
		}
		if !p.IsDue(now) || p.Status == StatusNew {
			continue
		}
		interval, ease, reps, step := p.IntervalDays, p.EaseFactor, p.Repetitions, p.LearningStep
		buckets[p.Status] = append(buckets[p.Status], ReviewCard{
			Flashcard:    fc,
			Status:       p.Status,
			IntervalDays: &interval,
			EaseFactor:   &ease,
			Repetitions:  &reps,
			LearningStep: &step,
		})
		stats.CurrentReview.add(p.Status)
	}
	stats.CurrentReview.New = len(buckets[StatusNew])

	flashcard.Shuffle(buckets[StatusNew])
	if settings.ArrangeMode == flashcard.ArrangeRandom {
		for _, status := range []string{StatusLearning, StatusReview, StatusLapsed} {
			flashcard.Shuffle(buckets[status])
		}
	}

	review := Review{Cards: make([]ReviewCard, 0, len(cards))}
	for _, status := range []string{StatusLearning, StatusLapsed, StatusReview, StatusNew} {
		review.Cards = append(review.Cards, buckets[status]...)
	}
	stats.Total = stats.Counts.Sum()
	stats.Due = stats.CurrentReview.Sum()
	review.Stats = stats
	return review, nil
}

// ResetTopic forgets the user's progress on every card of a topic.
func (svc *Service) ResetTopic(ctx context.Context, userID, topicID string) (int, error) {
	if _, err := svc.topics.GetTopic(ctx, topicID); err != nil {
		return 0, err
	}
	cards, err := svc.flashcards.Query(ctx, flashcard.QueryFilter{TopicID: topicID})
	if err != nil {
		return 0, err
	}
	if len(cards) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(cards))
	for _, fc := range cards {
		ids = append(ids, fc.ID)
	}
	return svc.repo.DeleteProgress(ctx, userID, ids...)
}

// TimeByMonth reports the review time of the user for each month of year.
func (svc *Service) TimeByMonth(ctx context.Context, userID string, year int) ([]core.MonthlyTime, error) {
	byMonth, err := svc.repo.TimeByMonth(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	return core.MonthlyReport(byMonth), nil
}
