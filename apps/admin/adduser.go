package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

// addUser creates an active user.User.
func (cli *commandLine) addUser(name, uname, email, role, rate, pwd string) error {
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            user.Role(role),
	}
	if rate != "" {
		r, err := decimal.NewFromString(rate)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "rate", Error: "must be a number"})
		}
		nu.CommissionRate = &r
	}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}

	usr, err := cli.users.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s user %q (%s)\n", usr.Role, usr.Name, usr.ID)
	return nil
}
