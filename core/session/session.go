package session

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
)

// Study modes
const (
	ModeBasic = "Basic"
	ModeExam  = "Exam"
	ModeSRS   = "SRS"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("flashcard session not found")
	ErrNotOwner = core.NewPermissionError("You are not permitted to update this session.")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	TopicID          string     `json:"topic_id"`
	Mode             string     `json:"mode"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
}

type NewSession struct {
	TopicID string `json:"topic_id" validate:"required"`
	Mode    string `json:"mode" validate:"omitempty,oneof=Basic Exam SRS"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.TopicID = core.CleanString(ns.TopicID)
	ns.Mode = core.CleanString(ns.Mode)
	return validate.Struct(ns)
}

type AddTime struct {
	TimeSpentSeconds int `json:"time_spent_seconds" validate:"gte=0"`
}

// MonthlyStudy is one month of the study time report, per mode.
type MonthlyStudy struct {
	Month     int    `json:"month"`
	MonthName string `json:"month_name"`
	BasicTime int    `json:"basic_time"`
	ExamTime  int    `json:"exam_time"`
	SRSTime   int    `json:"srs_time"`
	StudyTime int    `json:"study_time"`
	TestTime  int    `json:"test_time"`
}

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		UpdateSession(ctx context.Context, s Session) error
		// TimeByMonth sums the session time of the user per month of start and mode within year.
		TimeByMonth(ctx context.Context, userID string, year int) (map[int]map[string]int, error)
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

// Start opens a study session on a topic.
func (svc *Service) Start(ctx context.Context, usr user.User, ns NewSession) (Session, error) {
	if _, err := svc.topics.GetTopic(ctx, ns.TopicID); err != nil {
		return Session{}, err
	}
	if ns.Mode == "" {
		ns.Mode = ModeBasic
	}
	s, err := svc.repo.CreateSession(ctx, Session{
		UserID:    usr.ID,
		TopicID:   ns.TopicID,
		Mode:      ns.Mode,
		StartTime: nowFunc(),
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "creating flashcard session")
	}
	return s, nil
}

func (svc *Service) ownSession(ctx context.Context, usr user.User, id string) (Session, error) {
	s, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.UserID != usr.ID {
		return Session{}, ErrNotOwner
	}
	return s, nil
}

// AddTime adds seconds to the time spent in a session.
func (svc *Service) AddTime(ctx context.Context, usr user.User, id string, seconds int) error {
	if seconds < 0 {
		return core.NewValidationError(
			errors.New("time spent may not be negative"),
			core.FieldError{Field: "time_spent_seconds", Error: "must be 0 or greater"},
		)
	}
	s, err := svc.ownSession(ctx, usr, id)
	if err != nil {
		return err
	}
	s.TimeSpentSeconds += seconds
	return svc.repo.UpdateSession(ctx, s)
}

func (svc *Service) End(ctx context.Context, usr user.User, id string) error {
	s, err := svc.ownSession(ctx, usr, id)
	if err != nil {
		return err
	}
	now := nowFunc()
	s.EndTime = &now
	return svc.repo.UpdateSession(ctx, s)
}

// TimeByMonth reports the user's study time per mode for each month of year.
func (svc *Service) TimeByMonth(ctx context.Context, usr user.User, year int) ([]MonthlyStudy, error) {
	byMonth, err := svc.repo.TimeByMonth(ctx, usr.ID, year)
	if err != nil {
		return nil, err
	}
	report := make([]MonthlyStudy, 0, 12)
	for m := 1; m <= 12; m++ {
		modes := byMonth[m]
		ms := MonthlyStudy{
			Month:     m,
			MonthName: core.MonthName(m),
			BasicTime: modes[ModeBasic],
			ExamTime:  modes[ModeExam],
			SRSTime:   modes[ModeSRS],
		}
		ms.StudyTime = ms.BasicTime + ms.SRSTime
		ms.TestTime = ms.ExamTime
		report = append(report, ms)
	}
	return report, nil
}
