package domain

import (
	"strings"
	"time"
)

// Review — отзыв пользователя о товаре.
type Review struct {
	ID          int64
	ProductID   int64
	UserID      int64
	User        UserSummary
	Description string
	Date        time.Time
}

// Validate проверяет текст отзыва.
func (r Review) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return NewValidationError("description", "This field may not be blank.")
	}
	return nil
}

// OwnedBy сообщает, принадлежит ли отзыв пользователю.
func (r Review) OwnedBy(userID int64) bool {
	return r.UserID == userID
}
