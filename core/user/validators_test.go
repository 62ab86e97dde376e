package user

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/elearning/core"
)

func Test_checkPassword(t *testing.T) {
	tests := []struct {
		name  string
		pwd   string
		attrs []string
		want  string
	}{
		{name: "too short", pwd: "Ab1!", want: pwdMinLenTag},
		{name: "whitespace", pwd: "Abc 123!xyz", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcdefg123", want: pwdComplexityTag},
		{name: "no upper", pwd: "abcdefg12!", want: pwdComplexityTag},
		{name: "similar to name", pwd: "Fernando1!", attrs: []string{"Fernando"}, want: pwdAttrSimTag},
		{name: "valid", pwd: "Sup3r$ecret!Phrase", attrs: []string{"Ann", "Lee", "ann@test.cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkPassword(tt.pwd, tt.attrs...))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	usr := User{FirstName: "Fernando", Email: "fernando@test.cd"}

	err := ValidatePassword(usr, "Fernando1!")
	if assert.Error(t, err) {
		verr, ok := err.(*core.ValidationError)
		if assert.True(t, ok) && assert.Len(t, verr.Fields, 1) {
			assert.Equal(t, "password", verr.Fields[0].Field)
			assert.Equal(t, pwdAttrSimText, verr.Fields[0].Error)
		}
	}

	assert.NoError(t, ValidatePassword(usr, "Sup3r$ecret!Phrase"))
}
