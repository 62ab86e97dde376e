package question

import (
	"context"
	"time"

	"github.com/kat-co/vala"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/topic"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("question not found")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		// CreateQuestion stores q along with its options and rubric items, assigning missing IDs.
		CreateQuestion(ctx context.Context, q Question) (Question, error)
		// UpdateQuestion replaces q, its options and its rubric items.
		UpdateQuestion(ctx context.Context, q Question) (Question, error)
		GetQuestion(ctx context.Context, id string) (Question, error)
		// GetQuestions returns the existing questions among ids, in no particular order.
		GetQuestions(ctx context.Context, ids ...string) ([]Question, error)
		QueryQuestions(ctx context.Context, filter QueryFilter) ([]Question, error)
		DeleteQuestion(ctx context.Context, id string) error
	}

	TopicGetter interface {
		GetTopic(ctx context.Context, id string) (topic.Topic, error)
	}

	Service struct {
		repo   Repository
		topics TopicGetter
	}
)

func NewService(repo Repository, topics TopicGetter) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(topics, "topics"),
	).CheckAndPanic()
	return &Service{repo: repo, topics: topics}
}

func (svc *Service) checkTopic(ctx context.Context, topicID string) error {
	if topicID == "" {
		return nil
	}
	if _, err := svc.topics.GetTopic(ctx, topicID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "topic_id", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nq NewQuestion) (Question, error) {
	if err := svc.checkTopic(ctx, nq.TopicID); err != nil {
		return Question{}, err
	}
	now := nowFunc()
	q := fromInput(nq)
	q.keepChildIDs(Question{})
	q.CreatedAt = now
	q.UpdatedAt = now
	return svc.repo.CreateQuestion(ctx, q)
}

func (svc *Service) Update(ctx context.Context, id string, nq NewQuestion) (Question, error) {
	orig, err := svc.repo.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, err
	}
	if err := svc.checkTopic(ctx, nq.TopicID); err != nil {
		return Question{}, err
	}
	q := fromInput(nq)
	q.keepChildIDs(orig)
	q.ID = orig.ID
	q.CreatedAt = orig.CreatedAt
	q.UpdatedAt = nowFunc()
	return svc.repo.UpdateQuestion(ctx, q)
}

func (svc *Service) Get(ctx context.Context, id string) (Question, error) {
	return svc.repo.GetQuestion(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Question, error) {
	filter.Clean()
	return svc.repo.QueryQuestions(ctx, filter)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetQuestion(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteQuestion(ctx, id)
}

func fromInput(nq NewQuestion) Question {
	q := Question{
		TopicID:     nq.TopicID,
		Content:     nq.Content,
		Type:        nq.Type,
		AnswerKey:   nq.AnswerKey,
		Marks:       nq.Marks,
		Explanation: core.CleanString(nq.Explanation),
		Hint:        core.CleanString(nq.Hint),
		ImageURL:    core.CleanString(nq.ImageURL),
	}
	if q.Marks <= 0 {
		q.Marks = 1
	}
	if nq.Type == TypeMultipleChoice {
		q.Options = append(q.Options, nq.Options...)
	}
	if nq.Type == TypeEssay {
		q.Rubric = append(q.Rubric, nq.Rubric...)
	}
	return q
}

// keepChildIDs clears the option and rubric IDs that do not belong to orig,
// so the stored rows and the answers pointing at them survive an edit.
func (q *Question) keepChildIDs(orig Question) {
	options := make(map[string]bool, len(orig.Options))
	for _, opt := range orig.Options {
		options[opt.ID] = true
	}
	for i := range q.Options {
		if !options[q.Options[i].ID] {
			q.Options[i].ID = ""
		}
	}

	rubric := make(map[string]bool, len(orig.Rubric))
	for _, item := range orig.Rubric {
		rubric[item.ID] = true
	}
	for i := range q.Rubric {
		if !rubric[q.Rubric[i].ID] {
			q.Rubric[i].ID = ""
		}
	}
}
