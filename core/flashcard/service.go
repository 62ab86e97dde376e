package flashcard

import (
	"context"
	"math/rand"
	"time"

	"github.com/kat-co/vala"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/topic"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("flashcard not found")
	ErrSettingsNotFound = core.NewNotFoundError("flashcard settings not found")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
	// ShuffleFunc shuffles cards in place; replaced in tests for determinism.
	ShuffleFunc = func(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }
)

type (
	Repository interface {
		CreateFlashcard(ctx context.Context, fc Flashcard) (Flashcard, error)
		UpdateFlashcard(ctx context.Context, fc Flashcard) (Flashcard, error)
		// GetFlashcard returns the flashcard with its ordering steps.
		GetFlashcard(ctx context.Context, id string) (Flashcard, error)
		// QueryFlashcards returns the flashcards matching filter with their ordering steps, ordered by ID.
		QueryFlashcards(ctx context.Context, filter QueryFilter) ([]Flashcard, error)
		DeleteFlashcard(ctx context.Context, id string) error

		// GetSettings returns a NotFoundError when the user never saved settings for the topic.
		GetSettings(ctx context.Context, userID, topicID string) (Settings, error)
		SaveSettings(ctx context.Context, userID, topicID string, s Settings) (Settings, error)
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

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Flashcard, error) {
	filter.Clean()
	return svc.repo.QueryFlashcards(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Flashcard, error) {
	return svc.repo.GetFlashcard(ctx, id)
}

func (svc *Service) Create(ctx context.Context, nf NewFlashcard) (Flashcard, error) {
	if err := svc.checkTopic(ctx, nf.TopicID); err != nil {
		return Flashcard{}, err
	}
	now := nowFunc()
	fc := fromInput(nf)
	fc.CreatedAt = now
	fc.UpdatedAt = now
	return svc.repo.CreateFlashcard(ctx, fc)
}

func (svc *Service) Update(ctx context.Context, id string, nf NewFlashcard) (Flashcard, error) {
	orig, err := svc.repo.GetFlashcard(ctx, id)
	if err != nil {
		return Flashcard{}, err
	}
	if err := svc.checkTopic(ctx, nf.TopicID); err != nil {
		return Flashcard{}, err
	}
	fc := fromInput(nf)
	fc.ID = orig.ID
	fc.CreatedAt = orig.CreatedAt
	fc.UpdatedAt = nowFunc()
	return svc.repo.UpdateFlashcard(ctx, fc)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetFlashcard(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteFlashcard(ctx, id)
}

func (svc *Service) checkTopic(ctx context.Context, topicID string) error {
	if _, err := svc.topics.GetTopic(ctx, topicID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "topic_id", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Settings returns the user's settings for a topic, or the defaults when none were saved.
func (svc *Service) Settings(ctx context.Context, userID, topicID string) (Settings, error) {
	if _, err := svc.topics.GetTopic(ctx, topicID); err != nil {
		return Settings{}, err
	}
	return svc.UserSettings(ctx, userID, topicID)
}

// UserSettings is Settings without the topic check.
func (svc *Service) UserSettings(ctx context.Context, userID, topicID string) (Settings, error) {
	s, err := svc.repo.GetSettings(ctx, userID, topicID)
	if err != nil {
		if core.IsNotFound(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	return s, nil
}

// SaveSettings applies us over the default settings and stores the result.
func (svc *Service) SaveSettings(ctx context.Context, userID, topicID string, us UpdateSettings) (Settings, error) {
	if _, err := svc.topics.GetTopic(ctx, topicID); err != nil {
		return Settings{}, err
	}
	return svc.repo.SaveSettings(ctx, userID, topicID, us.merge())
}

// StudyCards returns the cards of a topic selected and arranged by the user's settings.
func (svc *Service) StudyCards(ctx context.Context, userID, topicID string) ([]Flashcard, Settings, error) {
	s, err := svc.UserSettings(ctx, userID, topicID)
	if err != nil {
		return nil, Settings{}, err
	}
	cards, err := svc.repo.QueryFlashcards(ctx, s.Filter(topicID))
	if err != nil {
		return nil, Settings{}, err
	}
	if s.ArrangeMode == ArrangeRandom {
		Shuffle(cards)
	}
	return cards, s, nil
}

// Shuffle shuffles cards in place.
func Shuffle[T any](cards []T) {
	ShuffleFunc(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
}

func fromInput(nf NewFlashcard) Flashcard {
	fc := Flashcard{
		TopicID:     nf.TopicID,
		Type:        nf.Type,
		Question:    nf.Question,
		Answer:      nf.Answer,
		Explanation: nf.Explanation,
		Hint:        nf.Hint,
	}
	if nf.Type == TypeOrderingSteps {
		fc.OrderingSteps = append(fc.OrderingSteps, nf.OrderingSteps...)
	}
	return fc
}
