package main

import (
	"fmt"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/user"
)

type ResetPasswordCmd struct {
	Email string `arg:"" help:"the user's email"`
}

func (c *ResetPasswordCmd) Run(deps *Dependencies) error {
	usr, err := deps.Users.GetUser(deps.Ctx, user.GetFilter{Email: core.CleanString(c.Email, true /* lower */)})
	if err != nil {
		return err
	}
	pwd, err := promptPassword(deps)
	if err != nil {
		return err
	}
	if err := user.ValidatePassword(usr, pwd); err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := deps.Users.UpdateUser(deps.Ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "password of %s updated\n", usr.Email)
	return nil
}
