package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/auth"
	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
	"github.com/vladislavdragonenkov/ibuy/internal/service/storefront"
)

// maxJSONBody ограничивает размер JSON-тела запроса.
const maxJSONBody = 1 << 20

// HandlerOptions задаёт необязательные зависимости REST API.
type HandlerOptions struct {
	Logger       *log.Entry
	Metrics      *metrics.HTTPMetrics
	Idempotency  domain.IdempotencyRepository
	PageSize     int
	MaxImageSize int64
}

// Option настраивает Handler.
type Option func(*HandlerOptions)

// WithLogger задаёт logger для HTTP слоя.
func WithLogger(logger *log.Entry) Option {
	return func(opts *HandlerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт HTTP метрики.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(opts *HandlerOptions) {
		opts.Metrics = m
	}
}

// WithIdempotency включает поддержку заголовка Idempotency-Key при оформлении заказа.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(opts *HandlerOptions) {
		opts.Idempotency = repo
	}
}

// WithPageSize задаёт размер страницы списков.
func WithPageSize(size int) Option {
	return func(opts *HandlerOptions) {
		opts.PageSize = size
	}
}

// WithMaxImageSize задаёт предельный размер multipart-запроса с изображением.
func WithMaxImageSize(size int64) Option {
	return func(opts *HandlerOptions) {
		opts.MaxImageSize = size
	}
}

// Handler — REST API витрины поверх storefront.Service.
type Handler struct {
	svc          *storefront.Service
	tokens       *auth.TokenManager
	idem         domain.IdempotencyRepository
	metrics      *metrics.HTTPMetrics
	logger       *log.Entry
	pageSize     int
	maxImageSize int64
}

// NewHandler создаёт REST API.
func NewHandler(svc *storefront.Service, tokens *auth.TokenManager, options ...Option) *Handler {
	opts := HandlerOptions{
		PageSize:     domain.DefaultPageSize,
		MaxImageSize: storefront.DefaultMaxImageSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "rest")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = domain.DefaultPageSize
	}

	return &Handler{
		svc:          svc,
		tokens:       tokens,
		idem:         opts.Idempotency,
		metrics:      opts.Metrics,
		logger:       logger,
		pageSize:     opts.PageSize,
		maxImageSize: opts.MaxImageSize,
	}
}

// path добавляет необязательный завершающий слэш к шаблону маршрута.
func path(tpl string) string {
	return tpl + "{slash:/?}"
}

const (
	idPattern   = "{id:[0-9]+}"
	cartPattern = "{cart_pk:[0-9a-fA-F-]{36}}"
)

// Routes собирает роутер со всеми маршрутами и middleware.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, detailNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, `Method "`+req.Method+`" not allowed.`)
	})
	r.Use(h.recoverPanic, h.observe, h.authenticate)

	store := r.PathPrefix("/store").Subrouter()

	store.HandleFunc(path("/collections"), h.listCollections).Methods(http.MethodGet)
	store.HandleFunc(path("/collections"), h.adminOnly(h.createCollection)).Methods(http.MethodPost)
	store.HandleFunc(path("/collections/"+idPattern), h.getCollection).Methods(http.MethodGet)
	store.HandleFunc(path("/collections/"+idPattern), h.adminOnly(h.updateCollection)).Methods(http.MethodPut, http.MethodPatch)
	store.HandleFunc(path("/collections/"+idPattern), h.adminOnly(h.deleteCollection)).Methods(http.MethodDelete)

	store.HandleFunc(path("/products"), h.listProducts).Methods(http.MethodGet)
	store.HandleFunc(path("/products"), h.adminOnly(h.createProduct)).Methods(http.MethodPost)
	store.HandleFunc(path("/products/"+idPattern), h.getProduct).Methods(http.MethodGet)
	store.HandleFunc(path("/products/"+idPattern), h.adminOnly(h.updateProduct)).Methods(http.MethodPut, http.MethodPatch)
	store.HandleFunc(path("/products/"+idPattern), h.adminOnly(h.deleteProduct)).Methods(http.MethodDelete)

	store.HandleFunc(path("/products/{product_pk:[0-9]+}/images"), h.listImages).Methods(http.MethodGet)
	store.HandleFunc(path("/products/{product_pk:[0-9]+}/images"), h.adminOnly(h.uploadImage)).Methods(http.MethodPost)
	store.HandleFunc(path("/products/{product_pk:[0-9]+}/images/"+idPattern), h.getImage).Methods(http.MethodGet)
	store.HandleFunc(path("/products/{product_pk:[0-9]+}/images/"+idPattern), h.adminOnly(h.deleteImage)).Methods(http.MethodDelete)

	store.HandleFunc(path("/products/{product_pk:[0-9]+}/reviews"), h.listReviews).Methods(http.MethodGet)
	store.HandleFunc(path("/products/{product_pk:[0-9]+}/reviews"), h.createReview).Methods(http.MethodPost)
	store.HandleFunc(path("/products/{product_pk:[0-9]+}/reviews/"+idPattern), h.getReview).Methods(http.MethodGet)
	store.HandleFunc(path("/products/{product_pk:[0-9]+}/reviews/"+idPattern), h.updateReview).Methods(http.MethodPut, http.MethodPatch)
	store.HandleFunc(path("/products/{product_pk:[0-9]+}/reviews/"+idPattern), h.deleteReview).Methods(http.MethodDelete)

	store.HandleFunc(path("/carts"), h.createCart).Methods(http.MethodPost)
	store.HandleFunc(path("/carts/"+cartPattern), h.getCart).Methods(http.MethodGet)
	store.HandleFunc(path("/carts/"+cartPattern), h.deleteCart).Methods(http.MethodDelete)
	store.HandleFunc(path("/carts/"+cartPattern+"/items"), h.listCartItems).Methods(http.MethodGet)
	store.HandleFunc(path("/carts/"+cartPattern+"/items"), h.addCartItem).Methods(http.MethodPost)
	store.HandleFunc(path("/carts/"+cartPattern+"/items/"+idPattern), h.getCartItem).Methods(http.MethodGet)
	store.HandleFunc(path("/carts/"+cartPattern+"/items/"+idPattern), h.updateCartItem).Methods(http.MethodPatch)
	store.HandleFunc(path("/carts/"+cartPattern+"/items/"+idPattern), h.deleteCartItem).Methods(http.MethodDelete)

	store.HandleFunc(path("/customers/me"), h.authenticated(h.getMe)).Methods(http.MethodGet)
	store.HandleFunc(path("/customers/me"), h.authenticated(h.updateMe)).Methods(http.MethodPut, http.MethodPatch)
	store.HandleFunc(path("/customers"), h.adminOnly(h.listCustomers)).Methods(http.MethodGet)
	store.HandleFunc(path("/customers"), h.adminOnly(h.createCustomer)).Methods(http.MethodPost)
	store.HandleFunc(path("/customers/"+idPattern), h.adminOnly(h.getCustomer)).Methods(http.MethodGet)
	store.HandleFunc(path("/customers/"+idPattern), h.adminOnly(h.updateCustomer)).Methods(http.MethodPut, http.MethodPatch)
	store.HandleFunc(path("/customers/"+idPattern), h.adminOnly(h.deleteCustomer)).Methods(http.MethodDelete)

	store.HandleFunc(path("/orders"), h.authenticated(h.listOrders)).Methods(http.MethodGet)
	store.HandleFunc(path("/orders"), h.authenticated(h.withIdempotency(h.placeOrder))).Methods(http.MethodPost)
	store.HandleFunc(path("/orders/"+idPattern), h.authenticated(h.getOrder)).Methods(http.MethodGet)
	store.HandleFunc(path("/orders/"+idPattern), h.adminOnly(h.updateOrder)).Methods(http.MethodPatch)
	store.HandleFunc(path("/orders/"+idPattern), h.adminOnly(h.deleteOrder)).Methods(http.MethodDelete)

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc(path("/users"), h.register).Methods(http.MethodPost)
	authRouter.HandleFunc(path("/users/me"), h.authenticated(h.currentUser)).Methods(http.MethodGet)
	authRouter.HandleFunc(path("/jwt/create"), h.createToken).Methods(http.MethodPost)
	authRouter.HandleFunc(path("/jwt/refresh"), h.refreshToken).Methods(http.MethodPost)
	authRouter.HandleFunc(path("/jwt/verify"), h.verifyToken).Methods(http.MethodPost)

	return r
}
