package flashcard

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearning/core"
)

// Flashcard types
const (
	TypeConcept       = "Concept/Theorem/Formula"
	TypeFillBlank     = "Fill in the Blank"
	TypeOrderingSteps = "Ordering Steps"
	TypeNextStep      = "What's the Next Step?"
	TypeShortAnswer   = "Short Answer/Open-ended"
	TypeIdentifyError = "Identify the Error"
	TypeAll           = "All" // type filter only
)

// Settings values
const (
	ArrangeChrono  = "chronological"
	ArrangeRandom  = "random"
	DirectionFront = "front_first"
	DirectionBack  = "back_first"
)

var Types = []string{TypeConcept, TypeFillBlank, TypeOrderingSteps, TypeNextStep, TypeShortAnswer, TypeIdentifyError}

type OrderingStep struct {
	Content      string `json:"step_content" validate:"required,notblank"`
	CorrectOrder int    `json:"correct_order" validate:"gte=0"`
}

type Flashcard struct {
	ID            string         `json:"id"`
	TopicID       string         `json:"topic_id"`
	Type          string         `json:"flashcard_type"`
	Question      string         `json:"question"`
	Answer        string         `json:"answer"`
	Explanation   string         `json:"explanation"`
	Hint          string         `json:"hint"`
	OrderingSteps []OrderingStep `json:"ordering_steps_items,omitempty"`
	CreatedAt     time.Time      `json:"created_at"` // UTC
	UpdatedAt     time.Time      `json:"updated_at"` // UTC
}

// SortedSteps returns the ordering steps by their correct order.
func (fc Flashcard) SortedSteps() []OrderingStep {
	steps := make([]OrderingStep, len(fc.OrderingSteps))
	copy(steps, fc.OrderingSteps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].CorrectOrder < steps[j].CorrectOrder })
	return steps
}

// NewFlashcard contains information needed to create or replace a Flashcard.
type NewFlashcard struct {
	TopicID       string         `json:"topic_id" validate:"required"`
	Type          string         `json:"flashcard_type" validate:"required,flashcardtype"`
	Question      string         `json:"question" validate:"required,notblank"`
	Answer        string         `json:"answer"`
	Explanation   string         `json:"explanation"`
	Hint          string         `json:"hint"`
	OrderingSteps []OrderingStep `json:"ordering_steps_items" validate:"dive"`
}

func (nf *NewFlashcard) Validate(validate *validator.Validate) error {
	nf.TopicID = core.CleanString(nf.TopicID)
	nf.Type = core.CleanString(nf.Type)
	nf.Question = core.CleanString(nf.Question)
	nf.Answer = core.CleanString(nf.Answer)
	nf.Explanation = core.CleanString(nf.Explanation)
	nf.Hint = core.CleanString(nf.Hint)
	for i := range nf.OrderingSteps {
		nf.OrderingSteps[i].Content = core.CleanString(nf.OrderingSteps[i].Content)
	}
	return validate.Struct(nf)
}

type QueryFilter struct {
	TopicID string   `query:"topic_id"`
	Type    string   `query:"type"`
	IDs     []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.TopicID = core.CleanString(qf.TopicID)
	qf.Type = core.CleanString(qf.Type)
	if qf.Type == TypeAll {
		qf.Type = ""
	}
}

// Settings are the flashcard preferences of a user for a topic.
type Settings struct {
	ArrangeMode string `json:"flashcard_arrange_mode"`
	Direction   string `json:"flashcard_direction"`
	TypeFilter  string `json:"study_exam_flashcard_type_filter"`
}

func DefaultSettings() Settings {
	return Settings{ArrangeMode: ArrangeChrono, Direction: DirectionFront, TypeFilter: TypeAll}
}

// Filter returns the query filter selecting the cards of topicID allowed by s.
func (s Settings) Filter(topicID string) QueryFilter {
	qf := QueryFilter{TopicID: topicID, Type: s.TypeFilter}
	qf.Clean()
	return qf
}

type UpdateSettings struct {
	ArrangeMode *string `json:"flashcard_arrange_mode" validate:"omitempty,oneof=chronological random"`
	Direction   *string `json:"flashcard_direction" validate:"omitempty,oneof=front_first back_first"`
	TypeFilter  *string `json:"study_exam_flashcard_type_filter" validate:"omitempty,flashcardfilter"`
}

func (us *UpdateSettings) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{us.ArrangeMode, us.Direction, us.TypeFilter} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	return validate.Struct(us)
}

// merge applies us over the default settings.
func (us UpdateSettings) merge() Settings {
	s := DefaultSettings()
	if us.ArrangeMode != nil {
		s.ArrangeMode = *us.ArrangeMode
	}
	if us.Direction != nil {
		s.Direction = *us.Direction
	}
	if us.TypeFilter != nil {
		s.TypeFilter = *us.TypeFilter
	}
	return s
}

func isType(t string) bool {
	for _, typ := range Types {
		if t == typ {
			return true
		}
	}
	return false
}

// InitValidators registers the flashcard type validators.
func InitValidators(validate *validator.Validate) {
	_ = validate.RegisterValidation("flashcardtype", func(fl validator.FieldLevel) bool {
		return isType(fl.Field().String())
	})
	_ = validate.RegisterValidation("flashcardfilter", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		return v == TypeAll || isType(v)
	})
}
