package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type customerRepository struct {
	q querier
}

const customerSelect = `
	SELECT c.id, c.user_id, c.phone, c.birth_date, u.username, u.first_name, u.last_name
	FROM customers c
	JOIN users u ON u.id = c.user_id`

func scanCustomer(row interface{ Scan(dest ...any) error }) (domain.Customer, error) {
	var (
		c         domain.Customer
		birthDate sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Phone, &birthDate, &c.User.Username, &c.User.FirstName, &c.User.LastName); err != nil {
		return domain.Customer{}, err
	}
	c.User.ID = c.UserID
	if birthDate.Valid {
		d := birthDate.Time.UTC()
		c.BirthDate = &d
	}
	return c, nil
}

// Create не роняет транзакцию на дубликате user_id: ON CONFLICT DO NOTHING позволяет
// вызывающему перечитать уже созданный профиль в той же транзакции.
func (r *customerRepository) Create(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO customers (user_id, phone, birth_date) VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT customers_user_id_key DO NOTHING
		RETURNING id
	`, c.UserID, c.Phone, nullableTime(c.BirthDate)).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Customer{}, domain.ErrCustomerExists
	case isForeignKeyViolation(err):
		return domain.Customer{}, domain.ErrUserNotFound
	case err != nil:
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	return r.Get(ctx, id)
}

func (r *customerRepository) Get(ctx context.Context, id int64) (domain.Customer, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	c, err := scanCustomer(r.q.QueryRowContext(ctx, customerSelect+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return c, nil
}

func (r *customerRepository) GetByUserID(ctx context.Context, userID int64) (domain.Customer, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	c, err := scanCustomer(r.q.QueryRowContext(ctx, customerSelect+` WHERE c.user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer by user: %w", err)
	}
	return c, nil
}

func (r *customerRepository) List(ctx context.Context, page domain.Page) ([]domain.Customer, int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	page = page.Normalize()
	rows, err := r.q.QueryContext(ctx, customerSelect+`
		ORDER BY c.id
		LIMIT $1 OFFSET $2
	`, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Customer, 0, page.Size)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan customer row: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate customer rows: %w", err)
	}
	return result, total, nil
}

func (r *customerRepository) Update(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE customers SET phone = $1, birth_date = $2 WHERE id = $3
	`, c.Phone, nullableTime(c.BirthDate), c.ID)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("update customer: %w", err)
	}
	if err := expectAffected(res, domain.ErrCustomerNotFound); err != nil {
		return domain.Customer{}, err
	}
	return r.Get(ctx, c.ID)
}

func (r *customerRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCustomerHasOrders
		}
		return fmt.Errorf("delete customer: %w", err)
	}
	return expectAffected(res, domain.ErrCustomerNotFound)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
