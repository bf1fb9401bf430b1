package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/user"
)

type userRepository struct {
	db *table[user.User]
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) CheckUniqueness(
	_ context.Context,
	name, email, nickname string,
	excludedIDs []int64,
	_ ...core.DBExecutor,
) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := int64Set(excludedIDs)
	for _, usr := range repo.db.sorted(nil) {
		if excluded[usr.ID] {
			continue
		}
		if usr.Name == name {
			return user.ErrNameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
		if nickname != "" && usr.Nickname == nickname {
			return user.ErrNicknameExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = repo.db.nextPK()
	repo.db.rows[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(
	_ context.Context,
	filter *user.QueryFilter,
	ordering []core.DBOrdering,
	_ ...core.DBExecutor,
) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := repo.db.sorted(func(usr user.User) bool {
		if filter == nil || filter.IsEmpty() {
			return true
		}
		if filter.Search != "" {
			key := strings.ToLower(filter.Search)
			if !strings.Contains(usr.Name, key) &&
				!strings.Contains(strings.ToLower(usr.Nickname), key) &&
				!strings.Contains(usr.Email, key) {
				return false
			}
		}
		if filter.Roles != nil && !hasAnyRole(usr, filter.Roles) {
			return false
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			return false
		}
		return true
	})

	for i := len(ordering) - 1; i >= 0; i-- {
		ord := ordering[i]
		less := userLess(ord.Field)
		if less == nil {
			continue
		}
		sort.SliceStable(users, func(i, j int) bool {
			if ord.Ascending {
				return less(users[i], users[j])
			}
			return less(users[j], users[i])
		})
	}
	return users, nil
}

func userLess(field string) func(a, b user.User) bool {
	switch field {
	case "name":
		return func(a, b user.User) bool { return a.Name < b.Name }
	case "email":
		return func(a, b user.User) bool { return a.Email < b.Email }
	case "created_at":
		return func(a, b user.User) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "last_login":
		return func(a, b user.User) bool { return a.LastLogin.Before(b.LastLogin) }
	}
	return nil
}

func hasAnyRole(usr user.User, roles []string) bool {
	for _, role := range roles {
		if usr.HasRole(role) {
			return true
		}
	}
	return false
}

func (repo *userRepository) SearchUsers(_ context.Context, name string, limit int, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	key := strings.ToLower(name)
	users := repo.db.sorted(func(usr user.User) bool {
		return strings.Contains(usr.Name, key) || strings.Contains(strings.ToLower(usr.Nickname), key)
	})
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.rows[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.sorted(nil) {
		switch {
		case filter.Name != "" && usr.Name == filter.Name,
			filter.Email != "" && usr.Email == filter.Email,
			filter.NameOrEmail != "" && (usr.Name == filter.NameOrEmail || usr.Email == filter.NameOrEmail):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUsersByID(_ context.Context, ids []int64, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	set := int64Set(ids)
	return repo.db.sorted(func(usr user.User) bool { return set[usr.ID] }), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.rows[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []int64, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := repo.db.rows[id]; ok {
			delete(repo.db.rows, id)
			n++
		}
	}
	return n, nil
}
