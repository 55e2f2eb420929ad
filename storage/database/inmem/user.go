package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	var err error
	repo.db.read(ctx, func(t *tables) {
		for _, usr := range t.users {
			if excluded[usr.ID] {
				continue
			}
			if username != "" && usr.Username == username {
				err = user.ErrUsernameExists
				return
			}
			if email != "" && usr.Email == email {
				err = user.ErrEmailExists
				return
			}
		}
	})
	return err
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		usr.ID = newID()
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	users := make([]user.User, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, usr := range t.users {
			if filter != nil {
				if s := strings.ToLower(filter.Search); s != "" &&
					!(strings.Contains(strings.ToLower(usr.Name), s) ||
						strings.Contains(usr.Username, s) ||
						strings.Contains(usr.Email, s)) {
					continue
				}
				if filter.Role != "" && usr.Role != filter.Role {
					continue
				}
				if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
					continue
				}
			}
			users = append(users, usr)
		}
	})

	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			var a, b string
			switch ord.Field {
			case "name":
				a, b = users[i].Name, users[j].Name
			case "username":
				a, b = users[i].Username, users[j].Username
			default:
				continue
			}
			if a != b {
				return (a < b) == ord.Ascending
			}
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		usr   user.User
		found bool
	)
	repo.db.read(ctx, func(t *tables) {
		if filter.ID != "" {
			usr, found = t.users[filter.ID]
			return
		}
		if filter.UsernameOrEmail == "" {
			return
		}
		for _, u := range t.users {
			if u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail {
				usr, found = u, true
				return
			}
		}
	})
	if !found {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	return repo.db.write(ctx, func(t *tables) error {
		for _, id := range ids {
			delete(t.users, id)
		}
		return nil
	})
}
