package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/file"
)

type fileRepository struct {
	db *DB
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(db *DB) *fileRepository {
	return &fileRepository{db: db}
}

func (repo *fileRepository) CreateFile(_ context.Context, f file.File) (file.File, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.files[f.Name] = f
	return f, nil
}

func (repo *fileRepository) GetFile(_ context.Context, name string) (file.File, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if f, ok := repo.db.files[name]; ok {
		return f, nil
	}
	return file.File{}, file.ErrNotFound
}

func (repo *fileRepository) AttachFiles(_ context.Context, attachedTo string, names ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, name := range names {
		if f, ok := repo.db.files[name]; ok {
			f.AttachedTo = attachedTo
			repo.db.files[name] = f
		}
	}
	return nil
}

type attemptRepository struct {
	db *DB
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *DB) *attemptRepository {
	return &attemptRepository{db: db}
}

func cloneAttempt(a attempt.Attempt) attempt.Attempt {
	answers := make([]attempt.Answer, 0, len(a.Answers))
	for _, ans := range a.Answers {
		ans.Images = append([]string(nil), ans.Images...)
		ans.RubricScores = append([]attempt.RubricScore(nil), ans.RubricScores...)
		answers = append(answers, ans)
	}
	a.Answers = answers
	return a
}

// newest returns the attempts matching keep, most recently started first.
func (repo *attemptRepository) newest(keep func(a attempt.Attempt) bool) []attempt.Attempt {
	attempts := make([]attempt.Attempt, 0)
	for _, a := range repo.db.attempts {
		if keep(a) {
			attempts = append(attempts, a)
		}
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].StartTime.After(attempts[j].StartTime) })
	return attempts
}

func (repo *attemptRepository) CreateAttempt(_ context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a.ID = newID()
	repo.db.attempts[a.ID] = cloneAttempt(a)
	return a, nil
}

func (repo *attemptRepository) GetAttempt(_ context.Context, id string) (attempt.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.attempts[id]; ok {
		return cloneAttempt(a), nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) GetLatestAttempt(_ context.Context, userID, testID string) (attempt.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	attempts := repo.newest(func(a attempt.Attempt) bool { return a.UserID == userID && a.TestID == testID })
	if len(attempts) == 0 {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	return cloneAttempt(attempts[0]), nil
}

func (repo *attemptRepository) GetInProgressAttempt(_ context.Context, userID, testID string) (attempt.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	attempts := repo.newest(func(a attempt.Attempt) bool {
		return a.UserID == userID && a.TestID == testID && a.Status == attempt.StatusInProgress
	})
	if len(attempts) == 0 {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	return cloneAttempt(attempts[0]), nil
}

func (repo *attemptRepository) QueryAttempts(_ context.Context, filter attempt.QueryFilter) ([]attempt.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	attempts := repo.newest(func(a attempt.Attempt) bool {
		switch {
		case filter.UserID != "" && a.UserID != filter.UserID,
			filter.TestID != "" && a.TestID != filter.TestID,
			len(filter.Statuses) > 0 && !contains(filter.Statuses, a.Status):
			return false
		}
		return true
	})
	for i := range attempts {
		attempts[i].Answers = nil
	}
	return attempts, nil
}

func (repo *attemptRepository) SaveAttempt(_ context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.attempts[a.ID]; !ok {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	a = cloneAttempt(a)
	for i := range a.Answers {
		if a.Answers[i].ID == "" {
			a.Answers[i].ID = newID()
		}
		for j := range a.Answers[i].RubricScores {
			if a.Answers[i].RubricScores[j].ID == "" {
				a.Answers[i].RubricScores[j].ID = newID()
			}
		}
	}
	repo.db.attempts[a.ID] = a
	return cloneAttempt(a), nil
}

func (repo *attemptRepository) UpdateAttemptFeedback(_ context.Context, id string, fb attempt.Feedback) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a, ok := repo.db.attempts[id]
	if !ok {
		return attempt.ErrNotFound
	}
	a.Feedback = fb.Feedback
	a.Recommendation = fb.Recommendation
	repo.db.attempts[id] = a
	return nil
}
