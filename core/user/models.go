package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
	Role     Role   `json:"role"`
	// CommissionRate is a percentage of each confirmed payment owed to the instructor.
	CommissionRate *decimal.Decimal `json:"commission_rate"`
	PasswordHash   []byte           `json:"-"`
	CreatedAt      time.Time        `json:"created_at"` // UTC
	UpdatedAt      time.Time        `json:"updated_at"` // UTC
	LastLogin      time.Time        `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// Capabilities of an inactive user are all false.
func (u User) Capabilities() Capabilities {
	if !u.IsActive {
		return Capabilities{}
	}
	return u.Role.Capabilities()
}

func (u User) Can(c Capability) bool {
	return c(u.Capabilities())
}

func (u User) IsAdmin() bool      { return u.Role == RoleAdmin }
func (u User) IsInstructor() bool { return u.Role == RoleInstructor }

// HasCommission reports whether confirmed payments of this instructor yield a commission.
func (u User) HasCommission() bool {
	return u.CommissionRate != nil && u.CommissionRate.IsPositive()
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string           `json:"name" validate:"required"`
	Username        string           `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string           `json:"email" validate:"omitempty,email"`
	Password        string           `json:"password" validate:"required"`
	PasswordConfirm string           `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            Role             `json:"role" validate:"required,role"`
	CommissionRate  *decimal.Decimal `json:"commission_rate" validate:"omitempty,gte=0,lte=100"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string           `json:"name"`
	Email           string           `json:"email" validate:"omitempty,email"`
	IsActive        *bool            `json:"is_active"`
	Role            *Role            `json:"role" validate:"omitempty,role"`
	CommissionRate  *decimal.Decimal `json:"commission_rate" validate:"omitempty,gte=0,lte=100"`
	Password        string           `json:"password" validate:"omitempty"`
	PasswordConfirm string           `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`

	username string
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	uu.username = origUsr.Username
	return validate.Struct(uu)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Role     Role   `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	if !qf.Role.Valid() {
		qf.Role = ""
	}
}

type GetFilter struct {
	ID              string
	UsernameOrEmail string
}
