package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// Register создаёт пользователя и его профиль покупателя.
func (s *Service) Register(ctx context.Context, reg domain.Registration) (domain.User, error) {
	if s.hasher == nil {
		return domain.User{}, fmt.Errorf("password hasher is not configured")
	}
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := reg.Validate(); err != nil {
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	var created domain.User
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		created, err = repos.Users.Create(ctx, domain.User{
			Username:     reg.Username,
			Email:        reg.Email,
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(reg.FirstName),
			LastName:     strings.TrimSpace(reg.LastName),
			DateJoined:   s.now(),
		})
		if err != nil {
			return err
		}
		_, err = repos.Customers.Create(ctx, domain.Customer{UserID: created.ID})
		return err
	})
	if errors.Is(err, domain.ErrUsernameTaken) {
		return domain.User{}, domain.NewValidationError("username", "A user with that username already exists.")
	}
	if err != nil {
		return domain.User{}, err
	}

	s.metrics.RecordUserRegistered()
	s.logger.WithField("user_id", created.ID).Info("user registered")
	return created, nil
}

// Authenticate проверяет пару логин/пароль.
func (s *Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	if s.hasher == nil {
		return domain.User{}, fmt.Errorf("password hasher is not configured")
	}
	user, err := s.repos.Users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

// GetUser возвращает пользователя по ID.
func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return s.repos.Users.Get(ctx, id)
}

// CreateStaffUser создаёт сотрудника магазина (используется при первичной настройке).
func (s *Service) CreateStaffUser(ctx context.Context, reg domain.Registration) (domain.User, error) {
	if s.hasher == nil {
		return domain.User{}, fmt.Errorf("password hasher is not configured")
	}
	if err := reg.Validate(); err != nil {
		return domain.User{}, err
	}
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repos.Users.Create(ctx, domain.User{
		Username:     strings.TrimSpace(reg.Username),
		Email:        strings.TrimSpace(reg.Email),
		PasswordHash: hash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		IsStaff:      true,
		DateJoined:   s.now(),
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logger.WithField("user_id", user.ID).Info("staff user created")
	return user, nil
}
