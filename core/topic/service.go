package topic

import (
	"context"
	"errors"
	"time"

	"github.com/kat-co/vala"

	"github.com/trezcool/elearning/core"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError("topic not found")
	ErrNameExists = errors.New("a topic with this name already exists")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, name string, excluded ...Topic) error
		CreateTopic(ctx context.Context, t Topic) (Topic, error)
		// QueryTopics returns the topics matching filter, ordered by name.
		QueryTopics(ctx context.Context, filter QueryFilter) ([]Topic, error)
		GetTopic(ctx context.Context, id string) (Topic, error)
		UpdateTopic(ctx context.Context, t Topic) (Topic, error)
		DeleteTopic(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, name string, excluded ...Topic) error {
	if err := svc.repo.CheckNameUniqueness(ctx, name, excluded...); err != nil {
		if err == ErrNameExists {
			return core.NewValidationError(err, core.FieldError{Field: "topic_name", Error: err.Error()})
		}
		return err
	}
	return nil
}

// ListActive returns the active topics ordered by name.
func (svc *Service) ListActive(ctx context.Context) ([]Topic, error) {
	return svc.repo.QueryTopics(ctx, QueryFilter{ActiveOnly: true})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Topic, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryTopics(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Topic, error) {
	return svc.repo.GetTopic(ctx, id)
}

func (svc *Service) Create(ctx context.Context, nt NewTopic) (Topic, error) {
	if err := svc.checkUniqueness(ctx, nt.Name); err != nil {
		return Topic{}, err
	}

	now := nowFunc()
	t := Topic{
		Name:        nt.Name,
		GradeLevel:  nt.GradeLevel,
		Description: nt.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nt.IsActive != nil {
		t.IsActive = *nt.IsActive
	}
	return svc.repo.CreateTopic(ctx, t)
}

func (svc *Service) Update(ctx context.Context, id string, ut UpdateTopic) (Topic, error) {
	t, err := svc.repo.GetTopic(ctx, id)
	if err != nil {
		return Topic{}, err
	}

	if ut.Name != "" && ut.Name != t.Name {
		if err := svc.checkUniqueness(ctx, ut.Name, t); err != nil {
			return Topic{}, err
		}
		t.Name = ut.Name
	}
	if ut.GradeLevel != nil {
		t.GradeLevel = core.CleanString(*ut.GradeLevel)
	}
	if ut.Description != nil {
		t.Description = core.CleanString(*ut.Description)
	}
	if ut.IsActive != nil {
		t.IsActive = *ut.IsActive
	}
	t.UpdatedAt = nowFunc()
	return svc.repo.UpdateTopic(ctx, t)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetTopic(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteTopic(ctx, id)
}
