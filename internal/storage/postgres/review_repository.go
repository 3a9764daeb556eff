package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type reviewRepository struct {
	q querier
}

const reviewSelect = `
	SELECT r.id, r.product_id, r.user_id, r.description, r.reviewed_at,
	       u.username, u.first_name, u.last_name
	FROM reviews r
	JOIN users u ON u.id = r.user_id`

func scanReview(row interface{ Scan(dest ...any) error }) (domain.Review, error) {
	var rv domain.Review
	if err := row.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.Description, &rv.Date,
		&rv.User.Username, &rv.User.FirstName, &rv.User.LastName); err != nil {
		return domain.Review{}, err
	}
	rv.User.ID = rv.UserID
	rv.Date = rv.Date.UTC()
	return rv, nil
}

func (r *reviewRepository) Create(ctx context.Context, rv domain.Review) (domain.Review, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if rv.Date.IsZero() {
		rv.Date = time.Now().UTC()
	}

	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO reviews (product_id, user_id, description, reviewed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, rv.ProductID, rv.UserID, rv.Description, rv.Date).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			if violatedConstraint(err) == "reviews_user_id_fkey" {
				return domain.Review{}, domain.ErrUserNotFound
			}
			return domain.Review{}, domain.ErrProductNotFound
		}
		return domain.Review{}, fmt.Errorf("insert review: %w", err)
	}

	return r.Get(ctx, rv.ProductID, id)
}

func (r *reviewRepository) Get(ctx context.Context, productID, id int64) (domain.Review, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rv, err := scanReview(r.q.QueryRowContext(ctx, reviewSelect+`
		WHERE r.product_id = $1 AND r.id = $2
	`, productID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("select review: %w", err)
	}
	return rv, nil
}

func (r *reviewRepository) List(ctx context.Context, productID int64, page domain.Page) ([]domain.Review, int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reviews WHERE product_id = $1
	`, productID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	page = page.Normalize()
	rows, err := r.q.QueryContext(ctx, reviewSelect+`
		WHERE r.product_id = $1
		ORDER BY r.id
		LIMIT $2 OFFSET $3
	`, productID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Review, 0, page.Size)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		result = append(result, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}
	return result, total, nil
}

func (r *reviewRepository) Update(ctx context.Context, rv domain.Review) (domain.Review, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE reviews SET description = $1 WHERE product_id = $2 AND id = $3
	`, rv.Description, rv.ProductID, rv.ID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}
	if err := expectAffected(res, domain.ErrReviewNotFound); err != nil {
		return domain.Review{}, err
	}
	return r.Get(ctx, rv.ProductID, rv.ID)
}

func (r *reviewRepository) Delete(ctx context.Context, productID, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM reviews WHERE product_id = $1 AND id = $2`, productID, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return expectAffected(res, domain.ErrReviewNotFound)
}

var _ domain.ReviewRepository = (*reviewRepository)(nil)
