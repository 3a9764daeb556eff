package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const maxPhoneLength = 255

// Customer — профиль покупателя, связанный один-к-одному с пользователем.
type Customer struct {
	ID        int64
	UserID    int64
	Phone     string
	BirthDate *time.Time
	User      UserSummary
}

// Normalize приводит пользовательский ввод к каноничному виду.
func (c *Customer) Normalize() {
	c.Phone = strings.TrimSpace(c.Phone)
}

// Validate проверяет поля профиля.
func (c Customer) Validate() error {
	verr := &ValidationError{}
	if c.UserID <= 0 {
		verr.Add("user_id", "This field is required.")
	}
	if utf8.RuneCountInString(c.Phone) > maxPhoneLength {
		verr.Add("phone", "Ensure this field has no more than 255 characters.")
	}
	if c.BirthDate != nil && c.BirthDate.After(time.Now().UTC()) {
		verr.Add("birth_date", "Birth date cannot be in the future.")
	}
	return verr.OrNil()
}
