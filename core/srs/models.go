package srs

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/flashcard"
)

// Progress statuses
const (
	StatusNew      = "new"
	StatusLearning = "learning"
	StatusReview   = "review"
	StatusLapsed   = "lapsed"
)

// Ratings
const (
	RatingAgain = "again"
	RatingHard  = "hard"
	RatingGood  = "good"
	RatingEasy  = "easy"
)

const (
	DefaultEaseFactor = 2.5
	minEaseFactor     = 1.3
	upcomingWindow    = 48 * time.Hour
)

var (
	ratingAliases = map[string]string{
		"wrong":   RatingAgain,
		"again":   RatingAgain,
		"hard":    RatingHard,
		"correct": RatingGood,
		"good":    RatingGood,
		"easy":    RatingEasy,
	}
	qualities = map[string]float64{
		RatingAgain: 0,
		RatingHard:  1,
		RatingGood:  3,
		RatingEasy:  5,
	}
)

// Progress is the spaced repetition state of a flashcard for a user.
type Progress struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id"`
	FlashcardID           string    `json:"flashcard_id"`
	Status                string    `json:"status"`
	IntervalDays          float64   `json:"interval_days"`
	EaseFactor            float64   `json:"ease_factor"`
	Repetitions           int       `json:"repetitions"`
	LearningStep          int       `json:"learning_step"`
	LastReview            time.Time `json:"last_review_timestamp"`
	NextReview            time.Time `json:"next_review_timestamp"`
	TotalTimeSpentSeconds int       `json:"total_time_spent_seconds"`
}

// NewProgress returns the state of a card never reviewed.
func NewProgress(userID, flashcardID string, now time.Time) Progress {
	return Progress{
		UserID:      userID,
		FlashcardID: flashcardID,
		Status:      StatusNew,
		EaseFactor:  DefaultEaseFactor,
		LastReview:  now,
		NextReview:  now,
	}
}

func (p Progress) IsDue(now time.Time) bool {
	return !p.NextReview.After(now)
}

// IsUpcoming reports whether p falls due within the next two days.
func (p Progress) IsUpcoming(now time.Time) bool {
	return p.NextReview.After(now) && !p.NextReview.After(now.Add(upcomingWindow))
}

// NormalizeRating maps a user rating to again, hard, good or easy. Unknown ratings count as again.
func NormalizeRating(rating string) string {
	if r, ok := ratingAliases[core.CleanString(rating, true)]; ok {
		return r
	}
	return RatingAgain
}

// Quality returns the SM-2 recall quality (0-5) of a normalized rating.
func Quality(rating string) float64 {
	return qualities[rating]
}

// Update applies a review rated `rating` at `now` to p and returns the new state.
func Update(p Progress, rating string, now time.Time) Progress {
	rating = NormalizeRating(rating)
	q := Quality(rating)

	switch p.Status {
	case StatusReview, StatusLapsed:
		if rating == RatingAgain {
			p.Status = StatusLapsed
			p.Repetitions = 0
			p.LearningStep = 0
			p.IntervalDays = 0
			break
		}
		p.EaseFactor = math.Max(minEaseFactor, p.EaseFactor+(0.1-(5-q)*(0.08+(5-q)*0.02)))
		switch rating {
		case RatingHard:
			p.IntervalDays = math.Max(1, p.IntervalDays*1.2)
		case RatingGood:
			switch p.Repetitions {
			case 0:
				p.IntervalDays = 1
			case 1:
				p.IntervalDays = 3
			default:
				p.IntervalDays *= p.EaseFactor
			}
		case RatingEasy:
			if p.Repetitions == 0 {
				p.IntervalDays = 3
			} else {
				p.IntervalDays *= p.EaseFactor * 1.3
			}
		}
		p.Repetitions++
		p.Status = StatusReview
	default: // new or learning
		switch rating {
		case RatingAgain:
			p.Status = StatusLearning
			p.LearningStep = 0
			p.IntervalDays = 0
		case RatingHard, RatingGood:
			p.LearningStep++
			if p.LearningStep >= 2 {
				p.Status = StatusReview
				p.Repetitions = 1
				p.IntervalDays = 1
			} else {
				p.Status = StatusLearning
				p.IntervalDays = 0.25
				if rating == RatingHard {
					p.IntervalDays = 0.5
				}
			}
		case RatingEasy:
			p.Status = StatusReview
			p.Repetitions = 1
			p.IntervalDays = 3
		}
	}

	p.LastReview = now
	p.NextReview = NextReview(now, p.IntervalDays)
	return p
}

// NextReview schedules a review `interval` days after now.
// Intervals under a day are truncated to whole hours, longer ones to whole days.
func NextReview(now time.Time, interval float64) time.Time {
	if interval < 1 {
		return now.Add(time.Duration(int(interval*24)) * time.Hour)
	}
	return now.AddDate(0, 0, int(interval))
}

// Rating is a review of a flashcard.
type Rating struct {
	FlashcardID      string `json:"flashcard_id" validate:"required"`
	UserRating       string `json:"user_rating" validate:"required"`
	TimeSpentSeconds *int   `json:"time_spent_seconds" validate:"omitempty,gte=0"`
}

func (r *Rating) Validate(validate *validator.Validate) error {
	r.FlashcardID = core.CleanString(r.FlashcardID)
	r.UserRating = core.CleanString(r.UserRating)
	return validate.Struct(r)
}

// RateResult is the state of a card after a review.
type RateResult struct {
	Status       string    `json:"status"`
	IntervalDays float64   `json:"interval_days"`
	NextReview   time.Time `json:"next_review"`
	EaseFactor   float64   `json:"ease_factor"`
	Repetitions  int       `json:"repetitions"`
}

func (p Progress) Result() RateResult {
	return RateResult{
		Status:       p.Status,
		IntervalDays: p.IntervalDays,
		NextReview:   p.NextReview,
		EaseFactor:   p.EaseFactor,
		Repetitions:  p.Repetitions,
	}
}

type SummaryCard struct {
	ID          string    `json:"id"`
	FlashcardID string    `json:"flashcard"`
	NextReview  time.Time `json:"next_review"`
	IsDue       bool      `json:"is_due"`
}

type TopicSummary struct {
	TopicID       string        `json:"topic_id"`
	TopicName     string        `json:"topic_name"`
	DueCount      int           `json:"due_count"`
	UpcomingCount int           `json:"upcoming_count"`
	TotalCount    int           `json:"total_count"`
	Cards         []SummaryCard `json:"cards"`
}

// DueSummary counts the cards due now or within two days, per topic.
type DueSummary struct {
	DueCount      int            `json:"due_count"`
	UpcomingCount int            `json:"upcoming_count"`
	TotalCount    int            `json:"total_count"`
	Topics        []TopicSummary `json:"topics"`
}

// ReviewCard is a flashcard with its spaced repetition state.
type ReviewCard struct {
	flashcard.Flashcard
	Status       string   `json:"status"`
	IntervalDays *float64 `json:"interval_days,omitempty"`
	EaseFactor   *float64 `json:"ease_factor,omitempty"`
	Repetitions  *int     `json:"repetitions,omitempty"`
	LearningStep *int     `json:"learning_step,omitempty"`
}

type Counts struct {
	New      int `json:"new"`
	Learning int `json:"learning"`
	Review   int `json:"review"`
	Lapsed   int `json:"lapsed"`
}

func (c *Counts) add(status string) {
	switch status {
	case StatusNew:
		c.New++
	case StatusLearning:
		c.Learning++
	case StatusReview:
		c.Review++
	case StatusLapsed:
		c.Lapsed++
	}
}

func (c Counts) Sum() int {
	return c.New + c.Learning + c.Review + c.Lapsed
}

type ReviewStats struct {
	Counts
	Total         int    `json:"total"`
	Due           int    `json:"due"`
	Upcoming      int    `json:"upcoming"`
	CurrentReview Counts `json:"current_review"`
}

// Review is the deck of a topic to review now.
type Review struct {
	Cards         []ReviewCard `json:"cards"`
	Stats         ReviewStats  `json:"stats"`
	NoExams       bool         `json:"no_exams,omitempty"`
	NoAssessments bool         `json:"no_assessments,omitempty"`
	Message       string       `json:"message,omitempty"`
}

type QueryFilter struct {
	UserID           string
	FlashcardIDs     []string
	NextReviewBefore *time.Time // inclusive
}
