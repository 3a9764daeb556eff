package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type reviewRepository struct {
	db access
}

func (r *reviewRepository) Create(_ context.Context, rv domain.Review) (domain.Review, error) {
	err := r.db.write(func(st *state) error {
		if _, ok := st.products[rv.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
		if _, ok := st.users[rv.UserID]; !ok {
			return domain.ErrUserNotFound
		}
		rv.ID = st.nextID()
		if rv.Date.IsZero() {
			rv.Date = time.Now().UTC()
		}
		rv.User = domain.UserSummary{}
		st.reviews[rv.ID] = rv
		rv = withReviewer(st, rv)
		return nil
	})
	return rv, err
}

func (r *reviewRepository) Get(_ context.Context, productID, id int64) (domain.Review, error) {
	var result domain.Review
	err := r.db.read(func(st *state) error {
		rv, ok := st.reviews[id]
		if !ok || rv.ProductID != productID {
			return domain.ErrReviewNotFound
		}
		result = withReviewer(st, rv)
		return nil
	})
	return result, err
}

func (r *reviewRepository) List(_ context.Context, productID int64, page domain.Page) ([]domain.Review, int, error) {
	var (
		result []domain.Review
		total  int
	)
	err := r.db.read(func(st *state) error {
		all := make([]domain.Review, 0)
		for _, rv := range st.reviews {
			if rv.ProductID == productID {
				all = append(all, withReviewer(st, rv))
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		total = len(all)
		result = domain.Slice(all, page)
		return nil
	})
	return result, total, err
}

// Update меняет только текст отзыва; автор и товар фиксированы.
func (r *reviewRepository) Update(_ context.Context, rv domain.Review) (domain.Review, error) {
	err := r.db.write(func(st *state) error {
		current, ok := st.reviews[rv.ID]
		if !ok || current.ProductID != rv.ProductID {
			return domain.ErrReviewNotFound
		}
		current.Description = rv.Description
		st.reviews[rv.ID] = current
		rv = withReviewer(st, current)
		return nil
	})
	return rv, err
}

func (r *reviewRepository) Delete(_ context.Context, productID, id int64) error {
	return r.db.write(func(st *state) error {
		rv, ok := st.reviews[id]
		if !ok || rv.ProductID != productID {
			return domain.ErrReviewNotFound
		}
		delete(st.reviews, id)
		return nil
	})
}

func withReviewer(st *state, rv domain.Review) domain.Review {
	if u, ok := st.users[rv.UserID]; ok {
		rv.User = u.Summary()
	}
	return rv
}

var _ domain.ReviewRepository = (*reviewRepository)(nil)
