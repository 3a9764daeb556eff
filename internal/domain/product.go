package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

var (
	// MinUnitPrice — минимальная допустимая цена товара.
	MinUnitPrice = decimal.RequireFromString("0.1")
	// maxUnitPrice — граница decimal(6,2).
	maxUnitPrice = decimal.NewFromInt(10000)
)

// Product — товар каталога.
type Product struct {
	ID           int64
	Title        string
	Description  string
	Inventory    int
	LastUpdate   time.Time
	UnitPrice    decimal.Decimal
	CollectionID int64
	Images       []ProductImage
}

// ProductSummary — сокращённое представление товара внутри корзин и заказов.
type ProductSummary struct {
	ID        int64
	Title     string
	UnitPrice decimal.Decimal
}

// Summary возвращает сокращённое представление товара.
func (p Product) Summary() ProductSummary {
	return ProductSummary{ID: p.ID, Title: p.Title, UnitPrice: p.UnitPrice}
}

// Normalize приводит пользовательский ввод к каноничному виду.
func (p *Product) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
}

// Validate проверяет поля товара перед сохранением.
func (p Product) Validate() error {
	verr := &ValidationError{}
	validateTitle(verr, p.Title)

	if p.Inventory < 0 {
		verr.Add("inventory", "Ensure this value is greater than or equal to 0.")
	}

	switch {
	case p.UnitPrice.LessThan(MinUnitPrice):
		verr.Add("unit_price", "Ensure this value is greater than or equal to 0.1.")
	case p.UnitPrice.GreaterThanOrEqual(maxUnitPrice):
		verr.Add("unit_price", "Ensure that there are no more than 6 digits in total.")
	case !p.UnitPrice.Equal(p.UnitPrice.Truncate(2)):
		verr.Add("unit_price", "Ensure that there are no more than 2 decimal places.")
	}

	if p.CollectionID <= 0 {
		verr.Add("collection_id", "This field is required.")
	}

	return verr.OrNil()
}

// ProductOrdering задаёт допустимые варианты сортировки каталога.
type ProductOrdering string

const (
	OrderByID             ProductOrdering = ""
	OrderByUnitPrice      ProductOrdering = "unit_price"
	OrderByUnitPriceDesc  ProductOrdering = "-unit_price"
	OrderByLastUpdate     ProductOrdering = "last_update"
	OrderByLastUpdateDesc ProductOrdering = "-last_update"
)

// Valid проверяет, что сортировка поддерживается.
func (o ProductOrdering) Valid() bool {
	switch o {
	case OrderByID, OrderByUnitPrice, OrderByUnitPriceDesc, OrderByLastUpdate, OrderByLastUpdateDesc:
		return true
	default:
		return false
	}
}

// ProductFilter описывает фильтры, поиск и сортировку списка товаров.
type ProductFilter struct {
	CollectionID *int64
	PriceGT      *decimal.Decimal
	PriceLT      *decimal.Decimal
	// Search ищет подстроку без учёта регистра в названии и описании.
	Search   string
	Ordering ProductOrdering
	Page     Page
}

// Matches проверяет товар против фильтра (без учёта пагинации).
func (f ProductFilter) Matches(p Product) bool {
	if f.CollectionID != nil && p.CollectionID != *f.CollectionID {
		return false
	}
	if f.PriceGT != nil && !p.UnitPrice.GreaterThan(*f.PriceGT) {
		return false
	}
	if f.PriceLT != nil && !p.UnitPrice.LessThan(*f.PriceLT) {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		// Caser хранит состояние, поэтому создаётся на каждый вызов.
		fold := cases.Fold()
		q = fold.String(q)
		if !strings.Contains(fold.String(p.Title), q) && !strings.Contains(fold.String(p.Description), q) {
			return false
		}
	}
	return true
}

// ProductImage — изображение товара.
type ProductImage struct {
	ID        int64
	ProductID int64
	// Image — относительный путь файла в хранилище изображений.
	Image string
}
