package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSelfAssessment(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "very_clear", want: VeryClear, wantOK: true},
		{in: " vague ", want: Vague, wantOK: true},
		{in: "Chưa hiểu", want: NotUnderstood, wantOK: true},
		{in: "Khá ổn", want: FairlyGood, wantOK: true},
		{in: "Very_Clear"},
		{in: "great"},
		{in: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSelfAssessment(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	for code := range srsSeeds {
		assert.NotEmpty(t, SelfAssessmentLabel(code), "every seeded code has a label")
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{name: "empty"},
		{name: "plain", in: "Well done.", want: "Well done."},
		{name: "numbering", in: "1. Read the rule.\n2. Apply it.", want: "Read the rule. Apply it."},
		{name: "bold line", in: "**Key idea**\nderivatives", want: "Key idea derivatives"},
		{name: "inline bold", in: "Use the **chain** rule", want: "Use the chain rule"},
		{name: "whitespace", in: "  spaced \n\t text ", want: "spaced text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}
