// Package testutil holds helpers shared by the DB-backed tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/user"
	"github.com/trezcool/markit/storage/database"
)

// OpenDB connects to the test database, applies the migrations and empties every table.
// The test is skipped when no database is reachable.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()
	conf := core.NewTestConfig()
	db, err := database.Open(conf)
	if err != nil {
		t.Skipf("opening test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("test database unreachable: %v", err)
	}

	if err = database.Migrate(db); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if err = database.Truncate(db); err != nil {
		t.Fatalf("Truncate() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:       name,
		Email:      email,
		Roles:      roles,
		IsActive:   isActive,
		CreatedAt:  tstamp,
		ModifiedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}
