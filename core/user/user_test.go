package user

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

func newValidator() *validator.Validate {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

func TestRole_Capabilities(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CanManageUsers, true},
		{RoleAdmin, CanForceCancel, true},
		{RoleAdmin, CanGeneratePayments, true},
		{RoleInstructor, CanManageSchedule, true},
		{RoleInstructor, CanManageUsers, false},
		{RoleInstructor, CanEditPayment, false},
		{RoleInstructor, CanChooseInstructor, false},
		{Role("receptionist"), CanManageSchedule, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cap(tt.role.Capabilities()))
		})
	}
}

func TestUser_Can(t *testing.T) {
	admin := User{Role: RoleAdmin, IsActive: true}
	assert.True(t, admin.Can(CanManageFinance))

	admin.IsActive = false
	assert.False(t, admin.Can(CanManageFinance), "inactive users have no capabilities")
}

func TestUser_HasCommission(t *testing.T) {
	rate := func(s string) *decimal.Decimal { d := decimal.RequireFromString(s); return &d }
	assert.False(t, User{}.HasCommission())
	assert.False(t, User{CommissionRate: rate("0")}.HasCommission())
	assert.True(t, User{CommissionRate: rate("12.5")}.HasCommission())
}

func TestRole_UnmarshalJSON(t *testing.T) {
	var r Role
	require.NoError(t, json.Unmarshal([]byte(`"instructor"`), &r))
	assert.Equal(t, RoleInstructor, r)
	assert.Error(t, json.Unmarshal([]byte(`"owner"`), &r))

	assert.Len(t, Roles(), len(AllRoles))
	assert.Greater(t, RoleAdmin.Priority(), RoleInstructor.Priority())
}

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		pwd  string
		want string
	}{
		{"Sh0rt!", pwdMinLenTag},
		{"Has Space1!", pwdNoSpaceTag},
		{"1234567890", pwdNotAllNumTag},
		{"alllowercase1!", pwdComplexityTag},
		{"NoDigits!!", pwdComplexityTag},
		{"NoSpecial123", pwdComplexityTag},
		{"Mariana2024!", pwdAttrSimTag},
		{"Str0ng&Secret", ""},
	}
	for _, tt := range tests {
		t.Run(tt.pwd, func(t *testing.T) {
			assert.Equal(t, tt.want, checkPassword(tt.pwd, "Mariana Silva", "mariana", "mariana@studio.com"))
		})
	}
}

func TestNewUser_Validate(t *testing.T) {
	validate := newValidator()

	valid := NewUser{
		Name:            " Ana ",
		Username:        "Ana_Pilates",
		Password:        "Str0ng&Secret",
		PasswordConfirm: "Str0ng&Secret",
		Role:            RoleInstructor,
	}
	nu := valid
	require.NoError(t, nu.Validate(validate))
	assert.Equal(t, "Ana", nu.Name)
	assert.Equal(t, "ana_pilates", nu.Username)

	tests := []struct {
		name   string
		modify func(nu *NewUser)
	}{
		{"no username nor email", func(nu *NewUser) { nu.Username = "" }},
		{"bad role", func(nu *NewUser) { nu.Role = "owner" }},
		{"confirmation mismatch", func(nu *NewUser) { nu.PasswordConfirm = "other" }},
		{"weak password", func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "password", "password" }},
		{"rate above 100", func(nu *NewUser) { r := decimal.NewFromInt(101); nu.CommissionRate = &r }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid
			tt.modify(&nu)
			assert.Error(t, nu.Validate(validate))
		})
	}
}
