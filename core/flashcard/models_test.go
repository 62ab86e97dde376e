package flashcard

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/elearning/core"
)

func newValidator() *validator.Validate {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	InitValidators(validate)
	return validate
}

func TestNewFlashcard_Validate(t *testing.T) {
	validate := newValidator()
	tests := []struct {
		name    string
		nf      NewFlashcard
		wantErr bool
	}{
		{name: "valid", nf: NewFlashcard{TopicID: "t1", Type: TypeConcept, Question: "What is a prime?"}},
		{name: "no topic", nf: NewFlashcard{Type: TypeConcept, Question: "q"}, wantErr: true},
		{name: "unknown type", nf: NewFlashcard{TopicID: "t1", Type: "Riddle", Question: "q"}, wantErr: true},
		{name: "All is not a type", nf: NewFlashcard{TopicID: "t1", Type: TypeAll, Question: "q"}, wantErr: true},
		{name: "blank question", nf: NewFlashcard{TopicID: "t1", Type: TypeConcept, Question: "   "}, wantErr: true},
		{
			name:    "blank step",
			nf:      NewFlashcard{TopicID: "t1", Type: TypeOrderingSteps, Question: "q", OrderingSteps: []OrderingStep{{Content: " "}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nf.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateSettings(t *testing.T) {
	validate := newValidator()
	random, back, fill, bogus := " random ", DirectionBack, TypeFillBlank, "sideways"

	us := UpdateSettings{ArrangeMode: &random}
	assert.NoError(t, us.Validate(validate))
	assert.Equal(t, Settings{ArrangeMode: ArrangeRandom, Direction: DirectionFront, TypeFilter: TypeAll}, us.merge())

	us = UpdateSettings{Direction: &back, TypeFilter: &fill}
	assert.NoError(t, us.Validate(validate))
	assert.Equal(t, Settings{ArrangeMode: ArrangeChrono, Direction: DirectionBack, TypeFilter: TypeFillBlank}, us.merge())

	us = UpdateSettings{Direction: &bogus}
	assert.Error(t, us.Validate(validate))
	us = UpdateSettings{TypeFilter: &bogus}
	assert.Error(t, us.Validate(validate))
}

func TestSettings_Filter(t *testing.T) {
	assert.Equal(t, QueryFilter{TopicID: "t1"}, DefaultSettings().Filter("t1"))
	s := Settings{TypeFilter: TypeNextStep}
	assert.Equal(t, QueryFilter{TopicID: "t1", Type: TypeNextStep}, s.Filter(" t1 "))
}

func TestFlashcard_SortedSteps(t *testing.T) {
	fc := fromInput(NewFlashcard{
		Type: TypeOrderingSteps,
		OrderingSteps: []OrderingStep{
			{Content: "simplify", CorrectOrder: 3},
			{Content: "expand", CorrectOrder: 1},
			{Content: "collect terms", CorrectOrder: 2},
		},
	})
	var got []string
	for _, step := range fc.SortedSteps() {
		got = append(got, step.Content)
	}
	assert.Equal(t, []string{"expand", "collect terms", "simplify"}, got)
	assert.Equal(t, "simplify", fc.OrderingSteps[0].Content, "the card keeps its stored order")

	fc = fromInput(NewFlashcard{Type: TypeConcept, OrderingSteps: []OrderingStep{{Content: "stray"}}})
	assert.Empty(t, fc.OrderingSteps, "only ordering cards keep steps")
}
