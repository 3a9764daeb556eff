package storefront

import (
	"context"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// ListReviews возвращает отзывы о товаре.
func (s *Service) ListReviews(ctx context.Context, productID int64, page domain.Page) ([]domain.Review, int, error) {
	return s.repos.Reviews.List(ctx, productID, page)
}

// GetReview возвращает отзыв в рамках товара.
func (s *Service) GetReview(ctx context.Context, productID, id int64) (domain.Review, error) {
	return s.repos.Reviews.Get(ctx, productID, id)
}

// CreateReview публикует отзыв от имени текущего пользователя.
func (s *Service) CreateReview(ctx context.Context, actor domain.Actor, productID int64, description string) (domain.Review, error) {
	if err := requireUser(actor); err != nil {
		return domain.Review{}, err
	}
	rv := domain.Review{
		ProductID:   productID,
		UserID:      actor.UserID,
		Description: description,
		Date:        s.now(),
	}
	if err := rv.Validate(); err != nil {
		return domain.Review{}, err
	}
	return s.repos.Reviews.Create(ctx, rv)
}

// UpdateReview меняет текст отзыва; доступно только автору.
func (s *Service) UpdateReview(ctx context.Context, actor domain.Actor, productID, id int64, description string) (domain.Review, error) {
	current, err := s.ownedReview(ctx, actor, productID, id)
	if err != nil {
		return domain.Review{}, err
	}
	current.Description = description
	if err := current.Validate(); err != nil {
		return domain.Review{}, err
	}
	return s.repos.Reviews.Update(ctx, current)
}

// DeleteReview удаляет отзыв; доступно только автору.
func (s *Service) DeleteReview(ctx context.Context, actor domain.Actor, productID, id int64) error {
	if _, err := s.ownedReview(ctx, actor, productID, id); err != nil {
		return err
	}
	return s.repos.Reviews.Delete(ctx, productID, id)
}

func (s *Service) ownedReview(ctx context.Context, actor domain.Actor, productID, id int64) (domain.Review, error) {
	if err := requireUser(actor); err != nil {
		return domain.Review{}, err
	}
	rv, err := s.repos.Reviews.Get(ctx, productID, id)
	if err != nil {
		return domain.Review{}, err
	}
	if !rv.OwnedBy(actor.UserID) {
		return domain.Review{}, domain.ErrPermissionDenied
	}
	return rv, nil
}
