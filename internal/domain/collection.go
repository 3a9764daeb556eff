package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxTitleLength ограничивает длину названий коллекций и товаров.
const MaxTitleLength = 50

// Collection — именованная группа товаров.
type Collection struct {
	ID    int64
	Title string
	// ProductsCount вычисляется при чтении и не хранится.
	ProductsCount int
}

// Normalize приводит пользовательский ввод к каноничному виду.
func (c *Collection) Normalize() {
	c.Title = strings.TrimSpace(c.Title)
}

// Validate проверяет поля коллекции перед сохранением.
func (c Collection) Validate() error {
	verr := &ValidationError{}
	validateTitle(verr, c.Title)
	return verr.OrNil()
}

func validateTitle(verr *ValidationError, title string) {
	switch {
	case strings.TrimSpace(title) == "":
		verr.Add("title", "This field may not be blank.")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		verr.Add("title", "Ensure this field has no more than 50 characters.")
	}
}
