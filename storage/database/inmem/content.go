package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
)

type topicRepository struct {
	db *DB
}

var _ topic.Repository = (*topicRepository)(nil) // interface compliance check

func NewTopicRepository(db *DB) *topicRepository {
	return &topicRepository{db: db}
}

func (repo *topicRepository) CheckNameUniqueness(_ context.Context, name string, excluded ...topic.Topic) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.topics {
		if !strings.EqualFold(t.Name, name) {
			continue
		}
		excl := false
		for _, e := range excluded {
			excl = excl || e.ID == t.ID
		}
		if !excl {
			return topic.ErrNameExists
		}
	}
	return nil
}

func (repo *topicRepository) CreateTopic(_ context.Context, t topic.Topic) (topic.Topic, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t.ID = newID()
	repo.db.topics[t.ID] = t
	return t, nil
}

func (repo *topicRepository) QueryTopics(_ context.Context, filter topic.QueryFilter) ([]topic.Topic, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	topics := make([]topic.Topic, 0, len(repo.db.topics))
	for _, t := range repo.db.topics {
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) {
			continue
		}
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}

func (repo *topicRepository) GetTopic(_ context.Context, id string) (topic.Topic, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.topics[id]; ok {
		return t, nil
	}
	return topic.Topic{}, topic.ErrNotFound
}

func (repo *topicRepository) UpdateTopic(_ context.Context, t topic.Topic) (topic.Topic, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.topics[t.ID]; !ok {
		return topic.Topic{}, topic.ErrNotFound
	}
	repo.db.topics[t.ID] = t
	return t, nil
}

func (repo *topicRepository) DeleteTopic(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.topics, id)
	return nil
}

type questionRepository struct {
	db *DB
}

var _ question.Repository = (*questionRepository)(nil) // interface compliance check

func NewQuestionRepository(db *DB) *questionRepository {
	return &questionRepository{db: db}
}

func cloneQuestion(q question.Question) question.Question {
	q.Options = append([]question.Option(nil), q.Options...)
	q.Rubric = append([]question.RubricItem(nil), q.Rubric...)
	return q
}

func (repo *questionRepository) store(q question.Question) question.Question {
	for i := range q.Options {
		if q.Options[i].ID == "" {
			q.Options[i].ID = newID()
		}
	}
	for i := range q.Rubric {
		if q.Rubric[i].ID == "" {
			q.Rubric[i].ID = newID()
		}
	}
	q = cloneQuestion(q)
	repo.db.questions[q.ID] = q
	return cloneQuestion(q)
}

func (repo *questionRepository) CreateQuestion(_ context.Context, q question.Question) (question.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	q.ID = newID()
	return repo.store(q), nil
}

func (repo *questionRepository) UpdateQuestion(_ context.Context, q question.Question) (question.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.questions[q.ID]; !ok {
		return question.Question{}, question.ErrNotFound
	}
	return repo.store(q), nil
}

func (repo *questionRepository) GetQuestion(_ context.Context, id string) (question.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if q, ok := repo.db.questions[id]; ok {
		return cloneQuestion(q), nil
	}
	return question.Question{}, question.ErrNotFound
}

func (repo *questionRepository) GetQuestions(_ context.Context, ids ...string) ([]question.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	questions := make([]question.Question, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if q, ok := repo.db.questions[id]; ok && !seen[id] {
			seen[id] = true
			questions = append(questions, cloneQuestion(q))
		}
	}
	return questions, nil
}

func (repo *questionRepository) QueryQuestions(_ context.Context, filter question.QueryFilter) ([]question.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	questions := make([]question.Question, 0)
	for _, q := range repo.db.questions {
		if filter.TopicID != "" && q.TopicID != filter.TopicID {
			continue
		}
		if filter.Type != "" && q.Type != filter.Type {
			continue
		}
		questions = append(questions, cloneQuestion(q))
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].CreatedAt.Equal(questions[j].CreatedAt) {
			return questions[i].ID < questions[j].ID
		}
		return questions[i].CreatedAt.Before(questions[j].CreatedAt)
	})
	return questions, nil
}

func (repo *questionRepository) DeleteQuestion(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.questions, id)
	return nil
}

type testRepository struct {
	db *DB
}

var _ test.Repository = (*testRepository)(nil) // interface compliance check

func NewTestRepository(db *DB) *testRepository {
	return &testRepository{db: db}
}

func cloneTest(t test.Test) test.Test {
	t.Questions = append([]test.QuestionItem(nil), t.Questions...)
	sort.SliceStable(t.Questions, func(i, j int) bool { return t.Questions[i].Idx < t.Questions[j].Idx })
	return t
}

func (repo *testRepository) store(t test.Test) test.Test {
	for i := range t.Questions {
		if t.Questions[i].ID == "" {
			t.Questions[i].ID = newID()
		}
	}
	t = cloneTest(t)
	repo.db.tests[t.ID] = t
	return cloneTest(t)
}

func (repo *testRepository) CreateTest(_ context.Context, t test.Test) (test.Test, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t.ID = newID()
	return repo.store(t), nil
}

func (repo *testRepository) UpdateTest(_ context.Context, t test.Test) (test.Test, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.tests[t.ID]; !ok {
		return test.Test{}, test.ErrNotFound
	}
	return repo.store(t), nil
}

func (repo *testRepository) GetTest(_ context.Context, id string) (test.Test, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.tests[id]; ok {
		return cloneTest(t), nil
	}
	return test.Test{}, test.ErrNotFound
}

func (repo *testRepository) QueryTests(_ context.Context, filter test.QueryFilter) ([]test.Test, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tests := make([]test.Test, 0)
	for _, t := range repo.db.tests {
		switch {
		case filter.ActiveOnly && !t.IsActive,
			filter.TopicID != "" && t.TopicID != filter.TopicID,
			filter.GradeLevel != "" && t.GradeLevel != filter.GradeLevel,
			filter.TestType != "" && t.TestType != filter.TestType:
			continue
		}
		tests = append(tests, cloneTest(t))
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].Title < tests[j].Title })
	return tests, nil
}

func (repo *testRepository) DeleteTest(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.tests, id)
	return nil
}
