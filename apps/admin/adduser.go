package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/user"
)

// roleAssignment is the validated input of adduser and setrole.
type roleAssignment struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,role"`
}

func (cli *commandLine) validRole(email, rawRole string) (roleAssignment, role.Role, error) {
	ra := roleAssignment{Email: core.CleanString(email, true /* lower */), Role: rawRole}
	if err := cli.validate.Struct(ra); err != nil {
		return ra, "", err
	}
	r, _ := role.Normalize(ra.Role)
	return ra, r, nil
}

// addUser creates an active user.User, or updates the name and password of an existing one and
// reactivates it. The role record is written when a role is given.
func (cli *commandLine) addUser(name, email, pwd, rawRole string) error {
	ra, r, err := cli.validRole(email, rawRole)
	if err != nil {
		return err
	}
	ctx := context.Background()

	usr, err := cli.usrSvc.GetByEmail(ctx, ra.Email)
	switch {
	case err == nil:
		if name = core.CleanString(name); name != "" {
			usr.Name = name
		}
		if err := user.ValidatePassword(pwd, usr.Name, usr.Email); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.SetActive(ctx, usr, true); err != nil {
			return err
		}
	case errors.Cause(err) == user.ErrNotFound:
		nu := user.NewUser{Name: name, Email: ra.Email, Password: pwd, PasswordConfirm: pwd}
		if err := nu.Validate(cli.validate); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
			return err
		}
	default:
		return err
	}

	if r == "" {
		return nil
	}
	return cli.roles.SetRole(ctx, usr.ID, r.String())
}
