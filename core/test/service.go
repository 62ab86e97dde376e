package test

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/kat-co/vala"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/question"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("test not found")
	ErrInactive = errors.New("this test is not active")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		// CreateTest stores t along with its question items, assigning missing IDs.
		CreateTest(ctx context.Context, t Test) (Test, error)
		// UpdateTest replaces t and its question items.
		UpdateTest(ctx context.Context, t Test) (Test, error)
		// GetTest returns the test with its question items ordered by idx.
		GetTest(ctx context.Context, id string) (Test, error)
		// QueryTests returns the tests matching filter ordered by title, with their question items.
		QueryTests(ctx context.Context, filter QueryFilter) ([]Test, error)
		DeleteTest(ctx context.Context, id string) error
	}

	QuestionGetter interface {
		GetQuestions(ctx context.Context, ids ...string) ([]question.Question, error)
	}

	Service struct {
		repo      Repository
		questions QuestionGetter
	}
)

func NewService(repo Repository, questions QuestionGetter) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(questions, "questions"),
	).CheckAndPanic()
	return &Service{repo: repo, questions: questions}
}

// ListActive returns the summaries of the active tests matching filter, ordered by title.
func (svc *Service) ListActive(ctx context.Context, filter QueryFilter) ([]Summary, error) {
	filter.Clean()
	filter.ActiveOnly = true
	return svc.summaries(ctx, filter)
}

// Query returns the summaries of all the tests matching filter, active or not.
func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Summary, error) {
	filter.Clean()
	filter.ActiveOnly = false
	return svc.summaries(ctx, filter)
}

func (svc *Service) summaries(ctx context.Context, filter QueryFilter) ([]Summary, error) {
	tests, err := svc.repo.QueryTests(ctx, filter)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(tests))
	for _, t := range tests {
		summaries = append(summaries, t.Summary())
	}
	return summaries, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Test, error) {
	return svc.repo.GetTest(ctx, id)
}

func (svc *Service) Details(ctx context.Context, id string) (Summary, error) {
	t, err := svc.repo.GetTest(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return t.Summary(), nil
}

// TestData returns the content of an active test with the answers stripped out.
func (svc *Service) TestData(ctx context.Context, id string) (Data, error) {
	t, err := svc.repo.GetTest(ctx, id)
	if err != nil {
		return Data{}, err
	}
	if !t.IsActive {
		return Data{}, core.NewValidationError(ErrInactive)
	}

	questions, err := svc.Questions(ctx, t)
	if err != nil {
		return Data{}, err
	}
	return Data{
		ID:               t.ID,
		Title:            t.Title,
		TimeLimitMinutes: t.TimeLimitMinutes,
		Instructions:     t.Instructions,
		Questions:        questions,
	}, nil
}

// Questions returns the sanitized questions of t sorted by question order.
// Items whose question no longer exists are skipped.
func (svc *Service) Questions(ctx context.Context, t Test) ([]QuestionData, error) {
	byID, err := svc.questionsByID(ctx, t)
	if err != nil {
		return nil, err
	}

	items := make([]QuestionItem, len(t.Questions))
	copy(items, t.Questions)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Idx < items[j].Idx })

	data := make([]QuestionData, 0, len(items))
	for _, item := range items {
		q, ok := byID[item.QuestionID]
		if !ok {
			continue
		}
		qd := QuestionData{
			TestQuestionDetailID: item.ID,
			QuestionID:           q.ID,
			Content:              q.Content,
			Image:                q.ImageURL,
			QuestionType:         q.Type,
			Hint:                 q.Hint,
			PointValue:           q.PointValue(),
			QuestionOrder:        item.Idx,
		}
		if q.Type == question.TypeMultipleChoice {
			qd.Options = make([]Option, 0, len(q.Options))
			for i, opt := range q.Options {
				qd.Options = append(qd.Options, Option{ID: opt.ID, Text: opt.Text, Label: OptionLabel(i)})
			}
		}
		data = append(data, qd)
	}
	return data, nil
}

// questionsByID returns the questions of t keyed by question ID.
func (svc *Service) questionsByID(ctx context.Context, t Test) (map[string]question.Question, error) {
	ids := make([]string, 0, len(t.Questions))
	for _, item := range t.Questions {
		ids = append(ids, item.QuestionID)
	}
	questions, err := svc.questions.GetQuestions(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]question.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return byID, nil
}

func (svc *Service) Create(ctx context.Context, nt NewTest) (Test, error) {
	t, err := svc.fromInput(ctx, nt)
	if err != nil {
		return Test{}, err
	}
	now := nowFunc()
	t.CreatedAt = now
	t.UpdatedAt = now
	return svc.repo.CreateTest(ctx, t)
}

func (svc *Service) Update(ctx context.Context, id string, nt NewTest) (Test, error) {
	orig, err := svc.repo.GetTest(ctx, id)
	if err != nil {
		return Test{}, err
	}
	t, err := svc.fromInput(ctx, nt)
	if err != nil {
		return Test{}, err
	}
	t.keepItemIDs(orig)
	t.ID = orig.ID
	t.CreatedAt = orig.CreatedAt
	t.UpdatedAt = nowFunc()
	return svc.repo.UpdateTest(ctx, t)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetTest(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteTest(ctx, id)
}

func (svc *Service) fromInput(ctx context.Context, nt NewTest) (Test, error) {
	t := Test{
		Title:            nt.Title,
		TopicID:          nt.TopicID,
		GradeLevel:       nt.GradeLevel,
		TestType:         nt.TestType,
		TimeLimitMinutes: nt.TimeLimitMinutes,
		Instructions:     nt.Instructions,
		DifficultyLevel:  nt.DifficultyLevel,
		PassingScore:     nt.PassingScore,
		IsActive:         true,
	}
	if nt.IsActive != nil {
		t.IsActive = *nt.IsActive
	}

	ids := make([]string, 0, len(nt.Questions))
	for _, item := range nt.Questions {
		ids = append(ids, item.QuestionID)
		t.Questions = append(t.Questions, QuestionItem{QuestionID: item.QuestionID, Idx: item.Idx})
	}
	found, err := svc.questions.GetQuestions(ctx, ids...)
	if err != nil {
		return Test{}, err
	}
	known := make(map[string]bool, len(found))
	for _, q := range found {
		known[q.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			msg := "question " + id + " not found"
			return Test{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "questions", Error: msg})
		}
	}
	return t, nil
}

// keepItemIDs reuses the item IDs of orig, matched on question, so attempts
// answering those items keep their answers.
func (t *Test) keepItemIDs(orig Test) {
	free := make(map[string][]string, len(orig.Questions))
	for _, item := range orig.Questions {
		free[item.QuestionID] = append(free[item.QuestionID], item.ID)
	}
	for i := range t.Questions {
		ids := free[t.Questions[i].QuestionID]
		if len(ids) == 0 {
			continue
		}
		t.Questions[i].ID = ids[0]
		free[t.Questions[i].QuestionID] = ids[1:]
	}
}

// OptionLabel returns the letter shown next to the i-th option: A, B, ..., Z, AA, AB...
func OptionLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}
