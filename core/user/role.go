package user

import (
	"encoding/json"
	"fmt"
)

// Role is the closed set of staff roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
)

var (
	AllRoles = []Role{RoleAdmin, RoleInstructor}

	rolePriorities = map[Role]int{
		RoleAdmin:      20,
		RoleInstructor: 10,
	}

	roleNames = map[Role]string{
		RoleAdmin:      "Admin",
		RoleInstructor: "Instructor",
	}

	roleCapabilities = map[Role]Capabilities{
		RoleAdmin: {
			ChooseInstructor: true,
			EditPayment:      true,
			ForceCancel:      true,
			GeneratePayments: true,
			ManageFinance:    true,
			ManageSchedule:   true,
			ManageStudents:   true,
			ManageUsers:      true,
		},
		RoleInstructor: {
			ManageSchedule: true,
		},
	}
)

// Capabilities are the actions a Role allows. They are resolved once from the Role.
type Capabilities struct {
	ChooseInstructor bool `json:"choose_instructor"`
	EditPayment      bool `json:"edit_payment"`
	ForceCancel      bool `json:"force_cancel"`
	GeneratePayments bool `json:"generate_payments"`
	ManageFinance    bool `json:"manage_finance"`
	ManageSchedule   bool `json:"manage_schedule"`
	ManageStudents   bool `json:"manage_students"`
	ManageUsers      bool `json:"manage_users"`
}

// Capability selects one capability.
type Capability func(Capabilities) bool

var (
	CanChooseInstructor Capability = func(c Capabilities) bool { return c.ChooseInstructor }
	CanEditPayment      Capability = func(c Capabilities) bool { return c.EditPayment }
	CanForceCancel      Capability = func(c Capabilities) bool { return c.ForceCancel }
	CanGeneratePayments Capability = func(c Capabilities) bool { return c.GeneratePayments }
	CanManageFinance    Capability = func(c Capabilities) bool { return c.ManageFinance }
	CanManageSchedule   Capability = func(c Capabilities) bool { return c.ManageSchedule }
	CanManageStudents   Capability = func(c Capabilities) bool { return c.ManageStudents }
	CanManageUsers      Capability = func(c Capabilities) bool { return c.ManageUsers }
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := rolePriorities[r]
	return ok
}

func (r Role) Priority() int {
	return rolePriorities[r]
}

func (r Role) Name() string {
	return roleNames[r]
}

// Capabilities of an unknown role are all false.
func (r Role) Capabilities() Capabilities {
	return roleCapabilities[r]
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleInfo is used to list roles to clients.
type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func Roles() []RoleInfo {
	roles := make([]RoleInfo, 0, len(AllRoles))
	for _, r := range AllRoles {
		roles = append(roles, RoleInfo{Name: r.Name(), Value: r})
	}
	return roles
}
