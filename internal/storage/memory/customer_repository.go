package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type customerRepository struct {
	db access
}

func (r *customerRepository) Create(_ context.Context, c domain.Customer) (domain.Customer, error) {
	err := r.db.write(func(st *state) error {
		if _, ok := st.users[c.UserID]; !ok {
			return domain.ErrUserNotFound
		}
		for _, existing := range st.customers {
			if existing.UserID == c.UserID {
				return domain.ErrCustomerExists
			}
		}
		c.ID = st.nextID()
		c.User = domain.UserSummary{}
		st.customers[c.ID] = c
		c = withUser(st, c)
		return nil
	})
	return c, err
}

func (r *customerRepository) Get(_ context.Context, id int64) (domain.Customer, error) {
	var result domain.Customer
	err := r.db.read(func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return domain.ErrCustomerNotFound
		}
		result = withUser(st, c)
		return nil
	})
	return result, err
}

func (r *customerRepository) GetByUserID(_ context.Context, userID int64) (domain.Customer, error) {
	var result domain.Customer
	err := r.db.read(func(st *state) error {
		for _, c := range st.customers {
			if c.UserID == userID {
				result = withUser(st, c)
				return nil
			}
		}
		return domain.ErrCustomerNotFound
	})
	return result, err
}

func (r *customerRepository) List(_ context.Context, page domain.Page) ([]domain.Customer, int, error) {
	var (
		result []domain.Customer
		total  int
	)
	err := r.db.read(func(st *state) error {
		all := make([]domain.Customer, 0, len(st.customers))
		for _, c := range st.customers {
			all = append(all, withUser(st, c))
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		total = len(all)
		result = domain.Slice(all, page)
		return nil
	})
	return result, total, err
}

func (r *customerRepository) Update(_ context.Context, c domain.Customer) (domain.Customer, error) {
	err := r.db.write(func(st *state) error {
		current, ok := st.customers[c.ID]
		if !ok {
			return domain.ErrCustomerNotFound
		}
		// Привязка к пользователю не меняется.
		current.Phone = c.Phone
		current.BirthDate = c.BirthDate
		st.customers[c.ID] = current
		c = withUser(st, current)
		return nil
	})
	return c, err
}

func (r *customerRepository) Delete(_ context.Context, id int64) error {
	return r.db.write(func(st *state) error {
		if _, ok := st.customers[id]; !ok {
			return domain.ErrCustomerNotFound
		}
		for _, o := range st.orders {
			if o.CustomerID == id {
				return domain.ErrCustomerHasOrders
			}
		}
		delete(st.customers, id)
		return nil
	})
}

func withUser(st *state, c domain.Customer) domain.Customer {
	if u, ok := st.users[c.UserID]; ok {
		c.User = u.Summary()
	}
	return c
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
