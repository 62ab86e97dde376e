package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/srs"
)

type flashcardRepository struct {
	db *DB
}

var _ flashcard.Repository = (*flashcardRepository)(nil) // interface compliance check

func NewFlashcardRepository(db *DB) *flashcardRepository {
	return &flashcardRepository{db: db}
}

func cloneFlashcard(fc flashcard.Flashcard) flashcard.Flashcard {
	fc.OrderingSteps = append([]flashcard.OrderingStep(nil), fc.OrderingSteps...)
	sort.SliceStable(fc.OrderingSteps, func(i, j int) bool {
		return fc.OrderingSteps[i].CorrectOrder < fc.OrderingSteps[j].CorrectOrder
	})
	return fc
}

func (repo *flashcardRepository) CreateFlashcard(_ context.Context, fc flashcard.Flashcard) (flashcard.Flashcard, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	fc.ID = newID()
	repo.db.flashcards[fc.ID] = cloneFlashcard(fc)
	return cloneFlashcard(fc), nil
}

func (repo *flashcardRepository) UpdateFlashcard(_ context.Context, fc flashcard.Flashcard) (flashcard.Flashcard, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.flashcards[fc.ID]; !ok {
		return flashcard.Flashcard{}, flashcard.ErrNotFound
	}
	repo.db.flashcards[fc.ID] = cloneFlashcard(fc)
	return cloneFlashcard(fc), nil
}

func (repo *flashcardRepository) GetFlashcard(_ context.Context, id string) (flashcard.Flashcard, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if fc, ok := repo.db.flashcards[id]; ok {
		return cloneFlashcard(fc), nil
	}
	return flashcard.Flashcard{}, flashcard.ErrNotFound
}

func (repo *flashcardRepository) QueryFlashcards(_ context.Context, filter flashcard.QueryFilter) ([]flashcard.Flashcard, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cards := make([]flashcard.Flashcard, 0)
	for _, fc := range repo.db.flashcards {
		switch {
		case filter.TopicID != "" && fc.TopicID != filter.TopicID,
			filter.Type != "" && fc.Type != filter.Type,
			filter.IDs != nil && !contains(filter.IDs, fc.ID):
			continue
		}
		cards = append(cards, cloneFlashcard(fc))
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func (repo *flashcardRepository) DeleteFlashcard(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.flashcards, id)
	for pid, p := range repo.db.progress {
		if p.FlashcardID == id {
			delete(repo.db.progress, pid)
		}
	}
	return nil
}

func (repo *flashcardRepository) GetSettings(_ context.Context, userID, topicID string) (flashcard.Settings, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.settings[settingsKey{userID, topicID}]; ok {
		return s, nil
	}
	return flashcard.Settings{}, flashcard.ErrSettingsNotFound
}

func (repo *flashcardRepository) SaveSettings(_ context.Context, userID, topicID string, s flashcard.Settings) (flashcard.Settings, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.settings[settingsKey{userID, topicID}] = s
	return s, nil
}

type srsRepository struct {
	db *DB
}

var _ srs.Repository = (*srsRepository)(nil) // interface compliance check

func NewSRSRepository(db *DB) *srsRepository {
	return &srsRepository{db: db}
}

func (repo *srsRepository) GetProgress(_ context.Context, userID, flashcardID string) (srs.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, p := range repo.db.progress {
		if p.UserID == userID && p.FlashcardID == flashcardID {
			return p, nil
		}
	}
	return srs.Progress{}, srs.ErrNotFound
}

func (repo *srsRepository) SaveProgress(_ context.Context, p srs.Progress) (srs.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, existing := range repo.db.progress {
		if existing.UserID == p.UserID && existing.FlashcardID == p.FlashcardID {
			p.ID = id
		}
	}
	if p.ID == "" {
		p.ID = newID()
	}
	repo.db.progress[p.ID] = p
	return p, nil
}

func (repo *srsRepository) QueryProgress(_ context.Context, filter srs.QueryFilter) ([]srs.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	progress := make([]srs.Progress, 0)
	for _, p := range repo.db.progress {
		switch {
		case filter.UserID != "" && p.UserID != filter.UserID,
			filter.FlashcardIDs != nil && !contains(filter.FlashcardIDs, p.FlashcardID),
			filter.NextReviewBefore != nil && p.NextReview.After(*filter.NextReviewBefore):
			continue
		}
		progress = append(progress, p)
	}
	sort.Slice(progress, func(i, j int) bool { return progress[i].NextReview.Before(progress[j].NextReview) })
	return progress, nil
}

func (repo *srsRepository) DeleteProgress(_ context.Context, userID string, flashcardIDs ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	count := 0
	for id, p := range repo.db.progress {
		if p.UserID == userID && contains(flashcardIDs, p.FlashcardID) {
			delete(repo.db.progress, id)
			count++
		}
	}
	return count, nil
}

func (repo *srsRepository) TimeByMonth(_ context.Context, userID string, year int) (map[int]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	byMonth := make(map[int]int)
	for _, p := range repo.db.progress {
		if p.UserID == userID && p.LastReview.UTC().Year() == year {
			byMonth[int(p.LastReview.UTC().Month())] += p.TotalTimeSpentSeconds
		}
	}
	return byMonth, nil
}
