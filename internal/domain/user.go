package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxUsernameLength = 150
	// MinPasswordLength — минимальная длина пароля при регистрации.
	MinPasswordLength = 8
)

// User — учётная запись, от имени которой выполняются запросы.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsStaff      bool
	DateJoined   time.Time
}

// UserSummary — публичные поля пользователя во вложенных ответах.
type UserSummary struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Summary возвращает публичное представление пользователя.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

// Registration — данные для создания пользователя.
type Registration struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Validate проверяет данные регистрации.
func (r Registration) Validate() error {
	verr := &ValidationError{}

	username := strings.TrimSpace(r.Username)
	switch {
	case username == "":
		verr.Add("username", "This field may not be blank.")
	case utf8.RuneCountInString(username) > maxUsernameLength:
		verr.Add("username", "Ensure this field has no more than 150 characters.")
	}

	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			verr.Add("email", "Enter a valid email address.")
		}
	}

	if utf8.RuneCountInString(r.Password) < MinPasswordLength {
		verr.Add("password", "This password is too short. It must contain at least 8 characters.")
	}

	return verr.OrNil()
}
