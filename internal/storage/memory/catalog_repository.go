package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type collectionRepository struct {
	db access
}

func (r *collectionRepository) Create(_ context.Context, c domain.Collection) (domain.Collection, error) {
	err := r.db.write(func(st *state) error {
		if collectionTitleTaken(st, c.Title, 0) {
			return domain.ErrCollectionTitleTaken
		}
		c.ID = st.nextID()
		c.ProductsCount = 0
		st.collections[c.ID] = c
		return nil
	})
	return c, err
}

func (r *collectionRepository) Get(_ context.Context, id int64) (domain.Collection, error) {
	var result domain.Collection
	err := r.db.read(func(st *state) error {
		c, ok := st.collections[id]
		if !ok {
			return domain.ErrCollectionNotFound
		}
		c.ProductsCount = countProducts(st, id)
		result = c
		return nil
	})
	return result, err
}

func (r *collectionRepository) List(_ context.Context, page domain.Page) ([]domain.Collection, int, error) {
	var (
		result []domain.Collection
		total  int
	)
	err := r.db.read(func(st *state) error {
		all := make([]domain.Collection, 0, len(st.collections))
		for _, c := range st.collections {
			c.ProductsCount = countProducts(st, c.ID)
			all = append(all, c)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		total = len(all)
		result = domain.Slice(all, page)
		return nil
	})
	return result, total, err
}

func (r *collectionRepository) Update(_ context.Context, c domain.Collection) (domain.Collection, error) {
	err := r.db.write(func(st *state) error {
		if _, ok := st.collections[c.ID]; !ok {
			return domain.ErrCollectionNotFound
		}
		if collectionTitleTaken(st, c.Title, c.ID) {
			return domain.ErrCollectionTitleTaken
		}
		st.collections[c.ID] = domain.Collection{ID: c.ID, Title: c.Title}
		c.ProductsCount = countProducts(st, c.ID)
		return nil
	})
	return c, err
}

func (r *collectionRepository) Delete(_ context.Context, id int64) error {
	return r.db.write(func(st *state) error {
		if _, ok := st.collections[id]; !ok {
			return domain.ErrCollectionNotFound
		}
		// Повторяет ON DELETE RESTRICT внешнего ключа products.collection_id.
		if countProducts(st, id) > 0 {
			return domain.ErrCollectionNotEmpty
		}
		delete(st.collections, id)
		return nil
	})
}

func collectionTitleTaken(st *state, title string, exceptID int64) bool {
	for _, c := range st.collections {
		if c.ID != exceptID && strings.EqualFold(c.Title, title) {
			return true
		}
	}
	return false
}

func countProducts(st *state, collectionID int64) int {
	n := 0
	for _, p := range st.products {
		if p.CollectionID == collectionID {
			n++
		}
	}
	return n
}

type productRepository struct {
	db access
}

func (r *productRepository) Create(_ context.Context, p domain.Product) (domain.Product, error) {
	err := r.db.write(func(st *state) error {
		if err := checkProductRefs(st, p, 0); err != nil {
			return err
		}
		p.ID = st.nextID()
		p.LastUpdate = time.Now().UTC()
		p.Images = nil
		st.products[p.ID] = p
		p.Images = []domain.ProductImage{}
		return nil
	})
	return p, err
}

func (r *productRepository) Get(_ context.Context, id int64) (domain.Product, error) {
	var result domain.Product
	err := r.db.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		p.Images = productImages(st, id)
		result = p
		return nil
	})
	return result, err
}

func (r *productRepository) List(_ context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	var (
		result []domain.Product
		total  int
	)
	err := r.db.read(func(st *state) error {
		all := make([]domain.Product, 0, len(st.products))
		for _, p := range st.products {
			if filter.Matches(p) {
				all = append(all, p)
			}
		}
		sortProducts(all, filter.Ordering)
		total = len(all)
		result = domain.Slice(all, filter.Page)
		for i := range result {
			result[i].Images = productImages(st, result[i].ID)
		}
		return nil
	})
	return result, total, err
}

func (r *productRepository) Update(_ context.Context, p domain.Product) (domain.Product, error) {
	err := r.db.write(func(st *state) error {
		if _, ok := st.products[p.ID]; !ok {
			return domain.ErrProductNotFound
		}
		if err := checkProductRefs(st, p, p.ID); err != nil {
			return err
		}
		p.LastUpdate = time.Now().UTC()
		p.Images = nil
		st.products[p.ID] = p
		p.Images = productImages(st, p.ID)
		return nil
	})
	return p, err
}

func (r *productRepository) Delete(_ context.Context, id int64) error {
	return r.db.write(func(st *state) error {
		if _, ok := st.products[id]; !ok {
			return domain.ErrProductNotFound
		}
		for _, item := range st.orderItems {
			if item.ProductID == id {
				return domain.ErrProductInOrders
			}
		}

		delete(st.products, id)
		for imgID, img := range st.images {
			if img.ProductID == id {
				delete(st.images, imgID)
			}
		}
		for itemID, item := range st.cartItems {
			if item.ProductID == id {
				delete(st.cartItems, itemID)
			}
		}
		for reviewID, review := range st.reviews {
			if review.ProductID == id {
				delete(st.reviews, reviewID)
			}
		}
		return nil
	})
}

func (r *productRepository) CountByCollection(_ context.Context, collectionID int64) (int, error) {
	var n int
	err := r.db.read(func(st *state) error {
		n = countProducts(st, collectionID)
		return nil
	})
	return n, err
}

func checkProductRefs(st *state, p domain.Product, exceptID int64) error {
	if _, ok := st.collections[p.CollectionID]; !ok {
		return domain.ErrCollectionNotFound
	}
	for _, other := range st.products {
		if other.ID != exceptID && strings.EqualFold(other.Title, p.Title) {
			return domain.ErrProductTitleTaken
		}
	}
	return nil
}

func sortProducts(items []domain.Product, ordering domain.ProductOrdering) {
	less := func(i, j int) bool { return items[i].ID < items[j].ID }
	switch ordering {
	case domain.OrderByUnitPrice:
		less = func(i, j int) bool {
			if c := items[i].UnitPrice.Cmp(items[j].UnitPrice); c != 0 {
				return c < 0
			}
			return items[i].ID < items[j].ID
		}
	case domain.OrderByUnitPriceDesc:
		less = func(i, j int) bool {
			if c := items[i].UnitPrice.Cmp(items[j].UnitPrice); c != 0 {
				return c > 0
			}
			return items[i].ID < items[j].ID
		}
	case domain.OrderByLastUpdate:
		less = func(i, j int) bool {
			if !items[i].LastUpdate.Equal(items[j].LastUpdate) {
				return items[i].LastUpdate.Before(items[j].LastUpdate)
			}
			return items[i].ID < items[j].ID
		}
	case domain.OrderByLastUpdateDesc:
		less = func(i, j int) bool {
			if !items[i].LastUpdate.Equal(items[j].LastUpdate) {
				return items[i].LastUpdate.After(items[j].LastUpdate)
			}
			return items[i].ID < items[j].ID
		}
	}
	sort.Slice(items, less)
}

func productImages(st *state, productID int64) []domain.ProductImage {
	result := make([]domain.ProductImage, 0)
	for _, img := range st.images {
		if img.ProductID == productID {
			result = append(result, img)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

type imageRepository struct {
	db access
}

func (r *imageRepository) Create(_ context.Context, img domain.ProductImage) (domain.ProductImage, error) {
	err := r.db.write(func(st *state) error {
		if _, ok := st.products[img.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
		img.ID = st.nextID()
		st.images[img.ID] = img
		return nil
	})
	return img, err
}

func (r *imageRepository) Get(_ context.Context, productID, id int64) (domain.ProductImage, error) {
	var result domain.ProductImage
	err := r.db.read(func(st *state) error {
		img, ok := st.images[id]
		if !ok || img.ProductID != productID {
			return domain.ErrImageNotFound
		}
		result = img
		return nil
	})
	return result, err
}

func (r *imageRepository) List(_ context.Context, productID int64) ([]domain.ProductImage, error) {
	var result []domain.ProductImage
	err := r.db.read(func(st *state) error {
		result = productImages(st, productID)
		return nil
	})
	return result, err
}

func (r *imageRepository) Delete(_ context.Context, productID, id int64) error {
	return r.db.write(func(st *state) error {
		img, ok := st.images[id]
		if !ok || img.ProductID != productID {
			return domain.ErrImageNotFound
		}
		delete(st.images, id)
		return nil
	})
}

var (
	_ domain.CollectionRepository   = (*collectionRepository)(nil)
	_ domain.ProductRepository      = (*productRepository)(nil)
	_ domain.ProductImageRepository = (*imageRepository)(nil)
)
