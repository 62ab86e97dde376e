package attempt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerText_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
		want *string
	}{
		{name: "string", data: `"Paris"`, want: sPtr("Paris")},
		{name: "empty string", data: `""`, want: sPtr("")},
		{name: "integer", data: `42`, want: sPtr("42")},
		{name: "float", data: `3.5`, want: sPtr("3.5")},
		{name: "bool", data: `true`, want: sPtr("true")},
		{name: "null", data: `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sa SubmittedAnswer
			require.NoError(t, json.Unmarshal([]byte(`{"user_answer": `+tt.data+`}`), &sa))
			assert.Equal(t, tt.want, sa.UserAnswer.Value)
		})
	}

	var sa SubmittedAnswer
	assert.NoError(t, json.Unmarshal([]byte(`{"time_spent": 3}`), &sa))
	assert.Nil(t, sa.UserAnswer.Value, "missing answers stay nil")
}

func Test_isPassed(t *testing.T) {
	tests := []struct {
		name                    string
		score, possible, passAt float64
		want                    bool
	}{
		{name: "above threshold", score: 8, possible: 10, passAt: 50, want: true},
		{name: "on threshold", score: 5, possible: 10, passAt: 50, want: true},
		{name: "below threshold", score: 4, possible: 10, passAt: 50},
		{name: "nothing to score, no threshold", passAt: 0, want: true},
		{name: "nothing to score, threshold", passAt: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPassed(tt.score, tt.possible, tt.passAt))
		})
	}
}

func Test_finalStatus(t *testing.T) {
	assert.Equal(t, StatusToBeGraded, finalStatus(true, true))
	assert.Equal(t, StatusGraded, finalStatus(false, true))
	assert.Equal(t, StatusCompleted, finalStatus(false, false))
}

func TestAttempt_TimeTakenSeconds(t *testing.T) {
	var a Attempt
	assert.Nil(t, a.TimeTakenSeconds())

	a.StartTime = nowFunc()
	end := a.StartTime.Add(95 * time.Second)
	a.EndTime = &end
	require.NotNil(t, a.TimeTakenSeconds())
	assert.Equal(t, 95, *a.TimeTakenSeconds())
}

func sPtr(s string) *string { return &s }
