package srs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRating(t *testing.T) {
	tests := map[string]string{
		"again":    RatingAgain,
		"Wrong":    RatingAgain,
		" hard ":   RatingHard,
		"Correct":  RatingGood,
		"good":     RatingGood,
		"EASY":     RatingEasy,
		"whatever": RatingAgain,
		"":         RatingAgain,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeRating(in), "NormalizeRating(%q)", in)
	}
}

func TestUpdate(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	base := NewProgress("u1", "c1", now.Add(-48*time.Hour))

	with := func(status string, interval, ease float64, reps, step int) Progress {
		p := base
		p.Status, p.IntervalDays, p.EaseFactor, p.Repetitions, p.LearningStep = status, interval, ease, reps, step
		return p
	}

	tests := []struct {
		name         string
		p            Progress
		rating       string
		wantStatus   string
		wantInterval float64
		wantEase     float64
		wantReps     int
		wantStep     int
		wantNext     time.Time
	}{
		{
			name: "new again", p: base, rating: RatingAgain,
			wantStatus: StatusLearning, wantInterval: 0, wantEase: DefaultEaseFactor, wantNext: now,
		},
		{
			name: "new good", p: base, rating: RatingGood,
			wantStatus: StatusLearning, wantInterval: 0.25, wantEase: DefaultEaseFactor, wantStep: 1, wantNext: now.Add(6 * time.Hour),
		},
		{
			name: "new hard", p: base, rating: RatingHard,
			wantStatus: StatusLearning, wantInterval: 0.5, wantEase: DefaultEaseFactor, wantStep: 1, wantNext: now.Add(12 * time.Hour),
		},
		{
			name: "learning graduates", p: with(StatusLearning, 0.25, 2.5, 0, 1), rating: RatingGood,
			wantStatus: StatusReview, wantInterval: 1, wantEase: 2.5, wantReps: 1, wantStep: 2, wantNext: now.AddDate(0, 0, 1),
		},
		{
			name: "new easy", p: base, rating: RatingEasy,
			wantStatus: StatusReview, wantInterval: 3, wantEase: DefaultEaseFactor, wantReps: 1, wantNext: now.AddDate(0, 0, 3),
		},
		{
			name: "review good second repetition", p: with(StatusReview, 1, 2.5, 1, 0), rating: RatingGood,
			wantStatus: StatusReview, wantInterval: 3, wantEase: 2.36, wantReps: 2, wantNext: now.AddDate(0, 0, 3),
		},
		{
			name: "review good uses ease", p: with(StatusReview, 3, 2.5, 2, 0), rating: RatingGood,
			wantStatus: StatusReview, wantInterval: 7.08, wantEase: 2.36, wantReps: 3, wantNext: now.AddDate(0, 0, 7),
		},
		{
			name: "review easy", p: with(StatusReview, 3, 2.5, 2, 0), rating: RatingEasy,
			wantStatus: StatusReview, wantInterval: 3 * 2.6 * 1.3, wantEase: 2.6, wantReps: 3, wantNext: now.AddDate(0, 0, 10),
		},
		{
			name: "review hard", p: with(StatusReview, 1, 2.5, 1, 0), rating: RatingHard,
			wantStatus: StatusReview, wantInterval: 1.2, wantEase: 1.96, wantReps: 2, wantNext: now.AddDate(0, 0, 1),
		},
		{
			name: "ease never drops below the floor", p: with(StatusReview, 10, 1.3, 4, 0), rating: RatingHard,
			wantStatus: StatusReview, wantInterval: 12, wantEase: 1.3, wantReps: 5, wantNext: now.AddDate(0, 0, 12),
		},
		{
			name: "review lapses", p: with(StatusReview, 10, 2.5, 4, 0), rating: "wrong",
			wantStatus: StatusLapsed, wantInterval: 0, wantEase: 2.5, wantNext: now,
		},
		{
			name: "lapsed easy restarts at three days", p: with(StatusLapsed, 0, 2.5, 0, 0), rating: RatingEasy,
			wantStatus: StatusReview, wantInterval: 3, wantEase: 2.6, wantReps: 1, wantNext: now.AddDate(0, 0, 3),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Update(tt.p, tt.rating, now)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.InDelta(t, tt.wantInterval, got.IntervalDays, 1e-9)
			assert.InDelta(t, tt.wantEase, got.EaseFactor, 1e-9)
			assert.Equal(t, tt.wantReps, got.Repetitions)
			assert.Equal(t, tt.wantStep, got.LearningStep)
			assert.Equal(t, now, got.LastReview)
			assert.Equal(t, tt.wantNext, got.NextReview)
		})
	}
}

func TestProgress_dueAndUpcoming(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name         string
		next         time.Time
		wantDue      bool
		wantUpcoming bool
	}{
		{name: "past", next: now.Add(-time.Minute), wantDue: true},
		{name: "now", next: now, wantDue: true},
		{name: "tomorrow", next: now.Add(24 * time.Hour), wantUpcoming: true},
		{name: "two days", next: now.Add(48 * time.Hour), wantUpcoming: true},
		{name: "next week", next: now.AddDate(0, 0, 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Progress{NextReview: tt.next}
			assert.Equal(t, tt.wantDue, p.IsDue(now))
			assert.Equal(t, tt.wantUpcoming, p.IsUpcoming(now))
		})
	}
}
