package main

import (
	"fmt"
	"time"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/user"
)

// AddUserCmd updates or creates a user.User
type AddUserCmd struct {
	Email     string   `arg:"" help:"the user's email"`
	FirstName string   `name:"first-name" help:"first name (required for new users)"`
	LastName  string   `name:"last-name"`
	Roles     []string `name:"role" help:"role to grant (repeatable), e.g. teacher: or student:"`
	Admin     bool     `help:"grant every role"`
}

func (c *AddUserCmd) Run(deps *Dependencies) error {
	email := core.CleanString(c.Email, true /* lower */)
	if err := deps.Validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("invalid email %q", c.Email)
	}
	roles := c.Roles
	if c.Admin {
		roles = user.AllRoles
	}
	if len(roles) > 0 {
		if err := deps.Validate.Var(roles, "allroles"); err != nil {
			return fmt.Errorf("invalid roles %v", roles)
		}
	}

	now := time.Now().UTC()
	usr, err := deps.Users.GetUser(deps.Ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		if core.CleanString(c.FirstName) == "" {
			return fmt.Errorf("--first-name is required for a new user")
		}
		usr = user.User{Email: email, Roles: user.StudentRoles, CreatedAt: now}
	}
	if name := core.CleanString(c.FirstName); name != "" {
		usr.FirstName = name
	}
	if name := core.CleanString(c.LastName); name != "" {
		usr.LastName = name
	}
	if len(roles) > 0 {
		usr.Roles = roles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	usr.EmailVerified = true

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

	if exists {
		_, err = deps.Users.UpdateUser(deps.Ctx, usr)
	} else {
		usr, err = deps.Users.CreateUser(deps.Ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "user %s saved with roles %v\n", usr.Email, usr.Roles)
	return nil
}
