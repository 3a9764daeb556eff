package memory

import (
	"context"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type userRepository struct {
	db access
}

func (r *userRepository) Create(_ context.Context, u domain.User) (domain.User, error) {
	err := r.db.write(func(st *state) error {
		for _, existing := range st.users {
			if strings.EqualFold(existing.Username, u.Username) {
				return domain.ErrUsernameTaken
			}
		}
		u.ID = st.nextID()
		if u.DateJoined.IsZero() {
			u.DateJoined = time.Now().UTC()
		}
		st.users[u.ID] = u
		return nil
	})
	return u, err
}

func (r *userRepository) Get(_ context.Context, id int64) (domain.User, error) {
	var result domain.User
	err := r.db.read(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		result = u
		return nil
	})
	return result, err
}

func (r *userRepository) GetByUsername(_ context.Context, username string) (domain.User, error) {
	var result domain.User
	err := r.db.read(func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Username, username) {
				result = u
				return nil
			}
		}
		return domain.ErrUserNotFound
	})
	return result, err
}

var _ domain.UserRepository = (*userRepository)(nil)
