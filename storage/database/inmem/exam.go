package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/elearning/core/exam"
	"github.com/trezcool/elearning/core/session"
)

type examRepository struct {
	db *DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) *examRepository {
	return &examRepository{db: db}
}

func cloneExam(a exam.Attempt) exam.Attempt {
	a.Details = append([]exam.Detail(nil), a.Details...)
	sort.SliceStable(a.Details, func(i, j int) bool { return a.Details[i].Idx < a.Details[j].Idx })
	return a
}

func (repo *examRepository) CreateAttempt(_ context.Context, a exam.Attempt) (exam.Attempt, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a = cloneExam(a)
	a.ID = newID()
	for i := range a.Details {
		a.Details[i].ID = newID()
		a.Details[i].AttemptID = a.ID
	}
	repo.db.exams[a.ID] = a
	return cloneExam(a), nil
}

func (repo *examRepository) GetAttempt(_ context.Context, id string) (exam.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.exams[id]; ok {
		return cloneExam(a), nil
	}
	return exam.Attempt{}, exam.ErrNotFound
}

func (repo *examRepository) UpdateAttempt(_ context.Context, a exam.Attempt) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.exams[a.ID]
	if !ok {
		return exam.ErrNotFound
	}
	a.Details = orig.Details
	repo.db.exams[a.ID] = a
	return nil
}

func (repo *examRepository) SaveDetail(_ context.Context, d exam.Detail) (exam.Detail, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a, ok := repo.db.exams[d.AttemptID]
	if !ok {
		return exam.Detail{}, exam.ErrNotFound
	}
	a = cloneExam(a)
	if d.ID == "" {
		d.ID = newID()
		d.Idx = len(a.Details)
		a.Details = append(a.Details, d)
	} else {
		found := false
		for i := range a.Details {
			if a.Details[i].ID == d.ID {
				d.Idx = a.Details[i].Idx
				a.Details[i] = d
				found = true
			}
		}
		if !found {
			return exam.Detail{}, exam.ErrNotFound
		}
	}
	repo.db.exams[a.ID] = a
	return d, nil
}

func (repo *examRepository) QueryAttempts(_ context.Context, filter exam.QueryFilter) ([]exam.Attempt, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	attempts := make([]exam.Attempt, 0)
	for _, a := range repo.db.exams {
		switch {
		case filter.UserID != "" && a.UserID != filter.UserID,
			filter.TopicID != "" && a.TopicID != filter.TopicID,
			filter.CompletedOnly && !a.IsCompleted():
			continue
		}
		a.Details = nil
		attempts = append(attempts, a)
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].CreatedAt.After(attempts[j].CreatedAt) })

	total := len(attempts)
	if filter.Offset >= total {
		return []exam.Attempt{}, total, nil
	}
	attempts = attempts[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(attempts) {
		attempts = attempts[:filter.Limit]
	}
	return attempts, total, nil
}

func (repo *examRepository) CountAttempts(_ context.Context, userID, topicID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	count := 0
	for _, a := range repo.db.exams {
		if a.UserID == userID && a.TopicID == topicID {
			count++
		}
	}
	return count, nil
}

func (repo *examRepository) AssessedFlashcardIDs(_ context.Context, userID, topicID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, a := range repo.db.exams {
		if a.UserID != userID || a.TopicID != topicID {
			continue
		}
		for _, d := range a.Details {
			if d.AssessedAt != nil && !seen[d.FlashcardID] {
				seen[d.FlashcardID] = true
				ids = append(ids, d.FlashcardID)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *examRepository) TimeByMonth(_ context.Context, userID string, year int) (map[int]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	byMonth := make(map[int]int)
	for _, a := range repo.db.exams {
		if a.UserID == userID && a.IsCompleted() && a.CreatedAt.UTC().Year() == year {
			byMonth[int(a.CreatedAt.UTC().Month())] += a.TimeSpentSeconds
		}
	}
	return byMonth, nil
}

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(_ context.Context, s session.Session) (session.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = newID()
	repo.db.sessions[s.ID] = s
	return s, nil
}

func (repo *sessionRepository) GetSession(_ context.Context, id string) (session.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return s, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) UpdateSession(_ context.Context, s session.Session) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.sessions[s.ID]; !ok {
		return session.ErrNotFound
	}
	repo.db.sessions[s.ID] = s
	return nil
}

func (repo *sessionRepository) TimeByMonth(_ context.Context, userID string, year int) (map[int]map[string]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	byMonth := make(map[int]map[string]int)
	for _, s := range repo.db.sessions {
		if s.UserID != userID || s.StartTime.UTC().Year() != year {
			continue
		}
		m := int(s.StartTime.UTC().Month())
		if byMonth[m] == nil {
			byMonth[m] = make(map[string]int)
		}
		byMonth[m][s.Mode] += s.TimeSpentSeconds
	}
	return byMonth, nil
}
