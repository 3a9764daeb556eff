package storefront

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// ListCustomers возвращает страницу профилей покупателей.
func (s *Service) ListCustomers(ctx context.Context, page domain.Page) ([]domain.Customer, int, error) {
	return s.repos.Customers.List(ctx, page)
}

// GetCustomer возвращает профиль покупателя.
func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	return s.repos.Customers.Get(ctx, id)
}

// CreateCustomer создаёт профиль для существующего пользователя.
func (s *Service) CreateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return domain.Customer{}, err
	}
	created, err := s.repos.Customers.Create(ctx, c)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return domain.Customer{}, domain.NewValidationError("user_id", "Invalid pk - object does not exist.")
	case errors.Is(err, domain.ErrCustomerExists):
		return domain.Customer{}, domain.NewValidationError("user_id", "customer with this user already exists.")
	case err != nil:
		return domain.Customer{}, err
	}
	return created, nil
}

// UpdateCustomer меняет телефон и дату рождения.
func (s *Service) UpdateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	current, err := s.repos.Customers.Get(ctx, c.ID)
	if err != nil {
		return domain.Customer{}, err
	}
	c.UserID = current.UserID
	c.Normalize()
	if err := c.Validate(); err != nil {
		return domain.Customer{}, err
	}
	return s.repos.Customers.Update(ctx, c)
}

// DeleteCustomer удаляет профиль без заказов.
func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	err := s.repos.Customers.Delete(ctx, id)
	if domain.IsDeleteProtected(err) {
		s.metrics.RecordDeleteRejected("customer")
	}
	return err
}

// Me возвращает профиль текущего пользователя, создавая его при необходимости.
func (s *Service) Me(ctx context.Context, actor domain.Actor) (domain.Customer, error) {
	if err := requireUser(actor); err != nil {
		return domain.Customer{}, err
	}
	return customerFor(ctx, s.repos, actor.UserID)
}

// UpdateMe меняет профиль текущего пользователя.
func (s *Service) UpdateMe(ctx context.Context, actor domain.Actor, c domain.Customer) (domain.Customer, error) {
	current, err := s.Me(ctx, actor)
	if err != nil {
		return domain.Customer{}, err
	}
	c.ID = current.ID
	return s.UpdateCustomer(ctx, c)
}
