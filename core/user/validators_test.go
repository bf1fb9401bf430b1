package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func Test_passwordPolicyTag(t *testing.T) {
	LoadCommonPasswords(nopLogger{})

	tests := []struct {
		name  string
		pwd   string
		attrs []string
		want  string
	}{
		{name: "empty", pwd: "", want: ""},
		{name: "too short", pwd: "Ab1!", want: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 12!x", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "12345678", want: pwdNotAllNumTag},
		{name: "lowercase only", pwd: "abcdefgh", want: pwdComplexityTag},
		{name: "no special", pwd: "Abcdefg1", want: pwdComplexityTag},
		{name: "similar to name", pwd: "Johnsmith1!", attrs: []string{"johnsmith"}, want: pwdAttrSimTag},
		{name: "common", pwd: "P@ssw0rd", want: pwdNoCommonTag},
		{name: "valid", pwd: "Xk9#mLq2!v", attrs: []string{"alice", "alice@test.cd"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passwordPolicyTag(tt.pwd, tt.attrs...))
		})
	}
}

func TestNewUser_structValidation(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	valid := NewUser{
		Name:            "alice",
		Email:           "alice@test.cd",
		Password:        "Xk9#mLq2!v",
		PasswordConfirm: "Xk9#mLq2!v",
		Roles:           []string{RoleMarker},
	}
	require.NoError(t, validate.Struct(valid))

	tests := []struct {
		name      string
		mutate    func(nu *NewUser)
		wantField string
		wantMsg   string
	}{
		{name: "unknown role", mutate: func(nu *NewUser) { nu.Roles = []string{"lol"} }, wantField: "roles", wantMsg: allRolesText},
		{name: "missing name", mutate: func(nu *NewUser) { nu.Name = "" }, wantField: "name", wantMsg: "this field is required"},
		{name: "bad name", mutate: func(nu *NewUser) { nu.Name = "al ice" }, wantField: "name"},
		{name: "weak password", mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "password", "password" }, wantField: "password", wantMsg: pwdComplexityText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid
			tt.mutate(&nu)
			err := validate.Struct(nu)
			require.Error(t, err)

			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok)
			fields := make(map[string]string, len(vErrs))
			for _, vErr := range vErrs {
				fields[vErr.Field()] = vErr.Translate(translator)
			}
			require.Contains(t, fields, tt.wantField)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, fields[tt.wantField])
			}
		})
	}
}
