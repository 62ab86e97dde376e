package topic

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearning/core"
)

type Topic struct {
	ID          string    `json:"id"`
	Name        string    `json:"topic_name"`
	GradeLevel  string    `json:"grade_level"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewTopic contains information needed to create a new Topic.
type NewTopic struct {
	Name        string `json:"topic_name" validate:"required,notblank,max=140"`
	GradeLevel  string `json:"grade_level" validate:"max=50"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (nt *NewTopic) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.GradeLevel = core.CleanString(nt.GradeLevel)
	nt.Description = core.CleanString(nt.Description)
	return validate.Struct(nt)
}

// UpdateTopic defines what information may be provided to modify an existing Topic.
// Empty fields keep their current value.
type UpdateTopic struct {
	Name        string  `json:"topic_name" validate:"max=140"`
	GradeLevel  *string `json:"grade_level" validate:"omitempty,max=50"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

func (ut *UpdateTopic) Validate(validate *validator.Validate) error {
	ut.Name = core.CleanString(ut.Name)
	return validate.Struct(ut)
}

type QueryFilter struct {
	ActiveOnly bool
	Search     string `query:"search"`
}
