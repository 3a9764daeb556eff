package rest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

const dateLayout = "2006-01-02"

// money сериализуется как JSON-число с двумя знаками после запятой.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

func (m *money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*m = money(d)
	return nil
}

type userSummaryResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func toUserSummary(u domain.UserSummary) userSummaryResponse {
	return userSummaryResponse{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func toUser(u domain.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

type collectionResponse struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	ProductsCount int    `json:"products_count"`
}

func toCollection(c domain.Collection) collectionResponse {
	return collectionResponse{ID: c.ID, Title: c.Title, ProductsCount: c.ProductsCount}
}

type imageResponse struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
}

type productResponse struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Inventory    int             `json:"inventory"`
	LastUpdate   time.Time       `json:"last_update"`
	UnitPrice    money           `json:"unit_price"`
	CollectionID int64           `json:"collection_id"`
	Images       []imageResponse `json:"images"`
}

func (h *Handler) toImage(img domain.ProductImage) imageResponse {
	return imageResponse{ID: img.ID, Image: h.svc.ImageURL(img)}
}

func (h *Handler) toProduct(p domain.Product) productResponse {
	images := make([]imageResponse, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, h.toImage(img))
	}
	return productResponse{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Inventory:    p.Inventory,
		LastUpdate:   p.LastUpdate,
		UnitPrice:    money(p.UnitPrice),
		CollectionID: p.CollectionID,
		Images:       images,
	}
}

type productSummaryResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	UnitPrice money  `json:"unit_price"`
}

func toProductSummary(p domain.ProductSummary) productSummaryResponse {
	return productSummaryResponse{ID: p.ID, Title: p.Title, UnitPrice: money(p.UnitPrice)}
}

type cartItemResponse struct {
	ID         int64                  `json:"id"`
	Product    productSummaryResponse `json:"product"`
	Quantity   int                    `json:"quantity"`
	TotalPrice money                  `json:"total_price"`
}

func toCartItem(item domain.CartItem) cartItemResponse {
	return cartItemResponse{
		ID:         item.ID,
		Product:    toProductSummary(item.Product),
		Quantity:   item.Quantity,
		TotalPrice: money(item.TotalPrice()),
	}
}

type cartResponse struct {
	ID         uuid.UUID          `json:"id"`
	Items      []cartItemResponse `json:"items"`
	TotalPrice money              `json:"total_price"`
}

func toCart(c domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, toCartItem(item))
	}
	return cartResponse{ID: c.ID, Items: items, TotalPrice: money(c.TotalPrice())}
}

type cartItemCreatedResponse struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type customerResponse struct {
	ID        int64               `json:"id"`
	Phone     string              `json:"phone"`
	BirthDate *string             `json:"birth_date"`
	User      userSummaryResponse `json:"user"`
}

func toCustomer(c domain.Customer) customerResponse {
	resp := customerResponse{ID: c.ID, Phone: c.Phone, User: toUserSummary(c.User)}
	if c.BirthDate != nil {
		date := c.BirthDate.Format(dateLayout)
		resp.BirthDate = &date
	}
	return resp
}

type orderItemResponse struct {
	ID        int64                  `json:"id"`
	Product   productSummaryResponse `json:"product"`
	Quantity  int                    `json:"quantity"`
	UnitPrice money                  `json:"unit_price"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	PlacedAt      time.Time           `json:"placed_at"`
	PaymentStatus string              `json:"payment_status"`
	Customer      customerResponse    `json:"customer"`
	Items         []orderItemResponse `json:"items"`
	InvoiceAmount money               `json:"invoice_amount"`
}

func toOrder(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			Product:   toProductSummary(item.Product),
			Quantity:  item.Quantity,
			UnitPrice: money(item.UnitPrice),
		})
	}
	return orderResponse{
		ID:            o.ID,
		PlacedAt:      o.PlacedAt,
		PaymentStatus: string(o.PaymentStatus),
		Customer:      toCustomer(o.Customer),
		Items:         items,
		InvoiceAmount: money(o.InvoiceAmount()),
	}
}

type reviewResponse struct {
	ID          int64               `json:"id"`
	Description string              `json:"description"`
	Date        string              `json:"date"`
	User        userSummaryResponse `json:"user"`
}

func toReview(rv domain.Review) reviewResponse {
	return reviewResponse{
		ID:          rv.ID,
		Description: rv.Description,
		Date:        rv.Date.Format(dateLayout),
		User:        toUserSummary(rv.User),
	}
}
