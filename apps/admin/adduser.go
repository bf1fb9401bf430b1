package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(name, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	name = core.CleanString(name, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{NameOrEmail: name})
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{Name: name, Email: email, CreatedAt: now}
	}

	usr.Email = email
	usr.IsActive = true
	usr.ModifiedAt = time.Now().UTC()
	if isAdmin {
		usr.Roles = user.AllRoles
	} else if usr.Roles == nil {
		usr.Roles = []string{user.RoleMarker}
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved (id %d)\n", usr.Name, usr.ID)
	return nil
}
