package main

import (
	"context"

	"github.com/trezcool/college/core"
)

// setRole writes the role record of a user. Unless raw, the value must normalize to a role and is
// stored normalized; raw values are stored verbatim, the way a hand-edited record would be.
func (cli *commandLine) setRole(email, rawRole string, raw bool) error {
	var value string
	if raw {
		email = core.CleanString(email, true /* lower */)
		value = rawRole
	} else {
		ra, r, err := cli.validRole(email, rawRole)
		if err != nil {
			return err
		}
		email, value = ra.Email, r.String()
	}

	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return cli.roles.SetRole(ctx, usr.ID, value)
}

// clearRole removes the role record; the user can still sign in but is refused access.
func (cli *commandLine) clearRole(email string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return cli.roles.DeleteRole(ctx, usr.ID)
}
