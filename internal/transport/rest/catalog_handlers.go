package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/service/storefront"
)

const msgRequired = "This field is required."

type collectionRequest struct {
	Title *string `json:"title"`
}

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	page, err := h.pageFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, total, err := h.svc.ListCollections(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := paginate(r, page, total, items, toCollection)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.GetCollection(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollection(c))
}

func (h *Handler) createCollection(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Title == nil {
		h.writeError(w, r, domain.NewValidationError("title", msgRequired))
		return
	}
	c, err := h.svc.CreateCollection(r.Context(), domain.Collection{Title: *req.Title})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollection(c))
}

func (h *Handler) updateCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	current, err := h.svc.GetCollection(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req collectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	switch {
	case req.Title != nil:
		current.Title = *req.Title
	case r.Method == http.MethodPut:
		h.writeError(w, r, domain.NewValidationError("title", msgRequired))
		return
	}
	updated, err := h.svc.UpdateCollection(r.Context(), current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollection(updated))
}

func (h *Handler) deleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteCollection(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type productRequest struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Inventory    *int             `json:"inventory"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	CollectionID *int64           `json:"collection_id"`
}

// apply переносит поля запроса на товар. При partial=false обязательные поля должны присутствовать.
func (req productRequest) apply(p *domain.Product, partial bool) error {
	verr := &domain.ValidationError{}
	if !partial {
		if req.Title == nil {
			verr.Add("title", msgRequired)
		}
		if req.Inventory == nil {
			verr.Add("inventory", msgRequired)
		}
		if req.UnitPrice == nil {
			verr.Add("unit_price", msgRequired)
		}
		if req.CollectionID == nil {
			verr.Add("collection_id", msgRequired)
		}
	}
	if !verr.Empty() {
		return verr
	}

	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Inventory != nil {
		p.Inventory = *req.Inventory
	}
	if req.UnitPrice != nil {
		p.UnitPrice = *req.UnitPrice
	}
	if req.CollectionID != nil {
		p.CollectionID = *req.CollectionID
	}
	return nil
}

// productFilter собирает фильтр каталога из query-параметров.
func (h *Handler) productFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	page, err := h.pageFrom(r)
	if err != nil {
		return domain.ProductFilter{}, err
	}
	filter := domain.ProductFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Ordering: domain.ProductOrdering(strings.TrimSpace(q.Get("ordering"))),
		Page:     page,
	}

	verr := &domain.ValidationError{}
	if raw := q.Get("collection_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			verr.Add("collection_id", "Enter a number.")
		} else {
			filter.CollectionID = &id
		}
	}
	for _, bound := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"unit_price__gt", &filter.PriceGT},
		{"unit_price__lt", &filter.PriceLT},
	} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			verr.Add(bound.name, "Enter a number.")
			continue
		}
		*bound.dst = &v
	}
	return filter, verr.OrNil()
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := h.productFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, total, err := h.svc.ListProducts(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := paginate(r, filter.Page, total, items, h.toProduct)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProduct(p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	var p domain.Product
	if err := req.apply(&p, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.CreateProduct(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toProduct(created))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	current, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.apply(&current, r.Method == http.MethodPatch); err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.svc.UpdateProduct(r.Context(), current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProduct(updated))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteProduct(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listImages(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "product_pk")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	images, err := h.svc.ListImages(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]imageResponse, 0, len(images))
	for _, img := range images {
		resp = append(resp, h.toImage(img))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getImage(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "product_pk")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	img, err := h.svc.GetImage(r.Context(), productID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toImage(img))
}

// multipartOverhead — запас на заголовки multipart сверх размера самого файла.
const multipartOverhead = 64 * 1024

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "product_pk")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageSize+multipartOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		msg := "No file was submitted."
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			msg = "The maximum file size that can be uploaded is " + strconv.FormatInt(h.maxImageSize/1024, 10) + "KB"
		}
		h.writeError(w, r, domain.NewValidationError("image", msg))
		return
	}
	defer file.Close()

	// Тип определяется по содержимому, а не по заголовку части.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.writeError(w, r, err)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		h.writeError(w, r, err)
		return
	}

	img, err := h.svc.UploadImage(r.Context(), productID, storefront.ImageUpload{
		Filename:    header.Filename,
		ContentType: http.DetectContentType(head[:n]),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toImage(img))
}

func (h *Handler) deleteImage(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "product_pk")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteImage(r.Context(), productID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
