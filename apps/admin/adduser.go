package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core/user"
)

const (
	roleAdmin   = "admin"
	roleTeacher = "teacher"
	roleStudent = "student"
)

var cliRoles = map[string][]string{
	roleAdmin:   {user.RoleAdminOwner},
	roleTeacher: {user.RoleTeacher},
	roleStudent: {user.RoleStudent},
}

// addUser creates an active user.User with the given role, or updates the one holding uname or email.
func (cli *commandLine) addUser(name, uname, email, role, pwd string) error {
	roles, ok := cliRoles[role]
	if !ok {
		return errors.Errorf("unknown role %q: must be one of admin, teacher or student", role)
	}
	ctx := context.Background()

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, lookup)
	switch {
	case err == nil:
		active := true
		uu := user.UpdateUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			IsActive:        &active,
			Roles:           roles,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		if err = uu.Validate(usr, cli.validate, cli.usrSvc); err != nil {
			return cli.explain(err)
		}
		_, err = cli.usrSvc.Update(ctx, usr, uu)
		return err
	case errors.Cause(err) != user.ErrNotFound:
		return err
	}

	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	}
	if err = nu.Validate(cli.validate, cli.usrSvc); err != nil {
		return cli.explain(err)
	}
	_, err = cli.usrSvc.Create(ctx, nu)
	return err
}
