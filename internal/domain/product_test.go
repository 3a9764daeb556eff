package domain_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

func validProduct() domain.Product {
	return domain.Product{
		Title:        "Espresso beans",
		Description:  "Dark roast",
		Inventory:    10,
		UnitPrice:    decimal.RequireFromString("19.99"),
		CollectionID: 1,
	}
}

func TestProductValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *domain.Product)
		wantField string
	}{
		{name: "valid", mutate: func(p *domain.Product) {}},
		{name: "blank title", mutate: func(p *domain.Product) { p.Title = "  " }, wantField: "title"},
		{name: "long title", mutate: func(p *domain.Product) { p.Title = strings.Repeat("x", 51) }, wantField: "title"},
		{name: "negative inventory", mutate: func(p *domain.Product) { p.Inventory = -1 }, wantField: "inventory"},
		{name: "price below minimum", mutate: func(p *domain.Product) { p.UnitPrice = decimal.RequireFromString("0.09") }, wantField: "unit_price"},
		{name: "price too large", mutate: func(p *domain.Product) { p.UnitPrice = decimal.NewFromInt(10000) }, wantField: "unit_price"},
		{name: "too many decimals", mutate: func(p *domain.Product) { p.UnitPrice = decimal.RequireFromString("1.234") }, wantField: "unit_price"},
		{name: "missing collection", mutate: func(p *domain.Product) { p.CollectionID = 0 }, wantField: "collection_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			verr, ok := domain.AsValidation(err)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tt.wantField]; !ok {
				t.Fatalf("expected error for %s, got %v", tt.wantField, verr.Fields)
			}
		})
	}
}

func TestProductFilterMatches(t *testing.T) {
	p := validProduct()
	collection := int64(1)
	other := int64(2)
	low := decimal.RequireFromString("10")
	high := decimal.RequireFromString("20")

	tests := []struct {
		name   string
		filter domain.ProductFilter
		want   bool
	}{
		{name: "empty filter", filter: domain.ProductFilter{}, want: true},
		{name: "same collection", filter: domain.ProductFilter{CollectionID: &collection}, want: true},
		{name: "other collection", filter: domain.ProductFilter{CollectionID: &other}, want: false},
		{name: "price in range", filter: domain.ProductFilter{PriceGT: &low, PriceLT: &high}, want: true},
		{name: "price above upper bound", filter: domain.ProductFilter{PriceLT: &low}, want: false},
		{name: "search title case-insensitive", filter: domain.ProductFilter{Search: "ESPRESSO"}, want: true},
		{name: "search description", filter: domain.ProductFilter{Search: "roast"}, want: true},
		{name: "search miss", filter: domain.ProductFilter{Search: "tea"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(p); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProductOrderingValid(t *testing.T) {
	for _, o := range []domain.ProductOrdering{domain.OrderByID, domain.OrderByUnitPrice, domain.OrderByLastUpdateDesc} {
		if !o.Valid() {
			t.Errorf("ordering %q must be valid", o)
		}
	}
	if domain.ProductOrdering("title").Valid() {
		t.Error("ordering by title is not supported")
	}
}

func TestPageSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	if got := domain.Slice(items, domain.Page{Number: 2, Size: 2}); len(got) != 2 || got[0] != 3 {
		t.Fatalf("unexpected second page: %v", got)
	}
	if got := domain.Slice(items, domain.Page{Number: 3, Size: 2}); len(got) != 1 || got[0] != 5 {
		t.Fatalf("unexpected last page: %v", got)
	}
	if got := domain.Slice(items, domain.Page{Number: 9, Size: 2}); len(got) != 0 {
		t.Fatalf("expected empty page, got %v", got)
	}
	if p := (domain.Page{}).Normalize(); p.Number != 1 || p.Size != domain.DefaultPageSize {
		t.Fatalf("unexpected normalized page: %+v", p)
	}
}

func TestRegistrationValidate(t *testing.T) {
	ok := domain.Registration{Username: "alice", Email: "alice@example.com", Password: "s3cretpass"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid registration, got %v", err)
	}

	bad := domain.Registration{Username: "", Email: "nope", Password: "short"}
	verr, isValidation := domain.AsValidation(bad.Validate())
	if !isValidation {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"username", "email", "password"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected error for %s", field)
		}
	}
}

func TestReviewValidate(t *testing.T) {
	if err := (domain.Review{Description: "a"}).Validate(); err != nil {
		t.Fatalf("expected valid review, got %v", err)
	}
	if err := (domain.Review{Description: " "}).Validate(); err == nil {
		t.Fatal("expected error for blank description")
	}
}
