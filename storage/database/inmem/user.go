package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if strings.EqualFold(usr.Email, email) && !isExcluded(usr, excludedUsers) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = newID()
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, orderings []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(usr.FirstName), search) &&
			!strings.Contains(strings.ToLower(usr.LastName), search) &&
			!strings.Contains(strings.ToLower(usr.Email), search) {
			continue
		}
		if len(filter.Roles) > 0 && !hasAnyRole(usr, filter.Roles) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, usr)
	}

	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range orderings {
			a, b := userField(users[i], ord.Field), userField(users[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return false
	})
	return users, nil
}

// userField returns a sortable representation of a user field.
func userField(usr user.User, field string) string {
	switch field {
	case "first_name":
		return strings.ToLower(usr.FirstName)
	case "last_name":
		return strings.ToLower(usr.LastName)
	case "email":
		return strings.ToLower(usr.Email)
	case "last_login":
		return usr.LastLogin.Format(time.RFC3339Nano)
	default:
		return usr.CreatedAt.Format(time.RFC3339Nano)
	}
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.users {
		if filter.Email != "" && strings.EqualFold(usr.Email, filter.Email) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}

func (repo *userRepository) CreateVerificationToken(_ context.Context, tok user.VerificationToken) (user.VerificationToken, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tok.ID = newID()
	repo.db.tokens[tok.ID] = tok
	return tok, nil
}

func (repo *userRepository) GetVerificationToken(_ context.Context, token string) (user.VerificationToken, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, tok := range repo.db.tokens {
		if tok.Token == token {
			return tok, nil
		}
	}
	return user.VerificationToken{}, user.ErrTokenNotFound
}

func (repo *userRepository) MarkVerificationTokenUsed(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tok, ok := repo.db.tokens[id]
	if !ok {
		return user.ErrTokenNotFound
	}
	tok.Used = true
	repo.db.tokens[id] = tok
	return nil
}

func (repo *userRepository) DeleteUnusedVerificationTokens(_ context.Context, email string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, tok := range repo.db.tokens {
		if !tok.Used && strings.EqualFold(tok.Email, email) {
			delete(repo.db.tokens, id)
		}
	}
	return nil
}

func (repo *userRepository) DeleteExpiredVerificationTokens(_ context.Context, before time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	count := 0
	for id, tok := range repo.db.tokens {
		if tok.ExpiresAt.Before(before) {
			delete(repo.db.tokens, id)
			count++
		}
	}
	return count, nil
}

func hasAnyRole(usr user.User, prefixes []string) bool {
	for _, prefix := range prefixes {
		if usr.RoleStartsWith(prefix) {
			return true
		}
	}
	return false
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, u := range excludedUsers {
		if u.ID == usr.ID {
			return true
		}
	}
	return false
}
