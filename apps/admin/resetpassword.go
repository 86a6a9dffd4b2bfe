package main

import (
	"context"

	"github.com/alloqly/alloqly/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	uu := user.UpdateUser{Password: pwd, PasswordConfirm: pwd}
	if err = uu.Validate(usr, cli.validate, cli.usrSvc); err != nil {
		return cli.explain(err)
	}
	_, err = cli.usrSvc.Update(ctx, usr, uu)
	return err
}
