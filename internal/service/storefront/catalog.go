package storefront

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// ListCollections возвращает страницу коллекций и общее количество.
func (s *Service) ListCollections(ctx context.Context, page domain.Page) ([]domain.Collection, int, error) {
	return s.repos.Collections.List(ctx, page)
}

// GetCollection возвращает коллекцию с количеством товаров.
func (s *Service) GetCollection(ctx context.Context, id int64) (domain.Collection, error) {
	return s.repos.Collections.Get(ctx, id)
}

// CreateCollection создаёт коллекцию.
func (s *Service) CreateCollection(ctx context.Context, c domain.Collection) (domain.Collection, error) {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return domain.Collection{}, err
	}
	created, err := s.repos.Collections.Create(ctx, c)
	if err != nil {
		return domain.Collection{}, titleConflict(err, domain.ErrCollectionTitleTaken, "collection")
	}
	s.logger.WithField("collection_id", created.ID).Info("collection created")
	return created, nil
}

// UpdateCollection переименовывает коллекцию.
func (s *Service) UpdateCollection(ctx context.Context, c domain.Collection) (domain.Collection, error) {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return domain.Collection{}, err
	}
	updated, err := s.repos.Collections.Update(ctx, c)
	if err != nil {
		return domain.Collection{}, titleConflict(err, domain.ErrCollectionTitleTaken, "collection")
	}
	return updated, nil
}

// DeleteCollection удаляет коллекцию; коллекцию с товарами удалить нельзя.
func (s *Service) DeleteCollection(ctx context.Context, id int64) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Collections.Get(ctx, id); err != nil {
			return err
		}
		count, err := repos.Products.CountByCollection(ctx, id)
		if err != nil {
			return fmt.Errorf("count collection products: %w", err)
		}
		if count > 0 {
			return domain.ErrCollectionNotEmpty
		}
		return repos.Collections.Delete(ctx, id)
	})
	if domain.IsDeleteProtected(err) {
		s.metrics.RecordDeleteRejected("collection")
		s.logger.WithField("collection_id", id).Warn("collection delete rejected: collection has products")
	}
	return err
}

// ListProducts возвращает товары с учётом фильтров, поиска и сортировки.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	if !filter.Ordering.Valid() {
		return nil, 0, domain.NewValidationError("ordering", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", filter.Ordering))
	}
	return s.repos.Products.List(ctx, filter)
}

// GetProduct возвращает товар с изображениями.
func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	return s.repos.Products.Get(ctx, id)
}

// CreateProduct создаёт товар в существующей коллекции.
func (s *Service) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	created, err := s.repos.Products.Create(ctx, p)
	if err != nil {
		return domain.Product{}, productWriteError(err)
	}
	s.logger.WithFields(map[string]any{
		"product_id":    created.ID,
		"collection_id": created.CollectionID,
	}).Info("product created")
	return created, nil
}

// UpdateProduct обновляет товар; last_update выставляется хранилищем.
func (s *Service) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	updated, err := s.repos.Products.Update(ctx, p)
	if err != nil {
		return domain.Product{}, productWriteError(err)
	}
	return updated, nil
}

// DeleteProduct удаляет товар, если он не упоминается в заказах.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	var images []domain.ProductImage
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		product, err := repos.Products.Get(ctx, id)
		if err != nil {
			return err
		}
		count, err := repos.Orders.CountItemsByProduct(ctx, id)
		if err != nil {
			return fmt.Errorf("count order items: %w", err)
		}
		if count > 0 {
			return domain.ErrProductInOrders
		}
		images = product.Images
		return repos.Products.Delete(ctx, id)
	})
	if err != nil {
		if domain.IsDeleteProtected(err) {
			s.metrics.RecordDeleteRejected("product")
			s.logger.WithField("product_id", id).Warn("product delete rejected: product is referenced by orders")
		}
		return err
	}

	for _, img := range images {
		s.removeImageFile(ctx, img)
	}
	return nil
}

// ImageUpload — загружаемый файл изображения.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadImage проверяет и сохраняет изображение товара.
func (s *Service) UploadImage(ctx context.Context, productID int64, upload ImageUpload) (domain.ProductImage, error) {
	if s.images == nil {
		return domain.ProductImage{}, fmt.Errorf("image store is not configured")
	}
	if err := s.validateImage(upload); err != nil {
		return domain.ProductImage{}, err
	}
	if _, err := s.repos.Products.Get(ctx, productID); err != nil {
		return domain.ProductImage{}, err
	}

	name := path.Join("store", "images", uuid.NewString()+strings.ToLower(path.Ext(upload.Filename)))
	// Заявленный размер не проверяем на слово: читаем не больше лимита плюс один байт.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(upload.Body, s.maxImageSize+1)); err != nil {
		return domain.ProductImage{}, fmt.Errorf("read image: %w", err)
	}
	if int64(buf.Len()) > s.maxImageSize {
		return domain.ProductImage{}, s.validateImage(ImageUpload{Size: int64(buf.Len()), Body: &buf, ContentType: upload.ContentType})
	}
	stored, err := s.images.Save(ctx, name, &buf)
	if err != nil {
		return domain.ProductImage{}, fmt.Errorf("save image: %w", err)
	}

	img, err := s.repos.Images.Create(ctx, domain.ProductImage{ProductID: productID, Image: stored})
	if err != nil {
		if rmErr := s.images.Remove(ctx, stored); rmErr != nil {
			s.logger.WithError(rmErr).WithField("path", stored).Warn("failed to remove orphaned image file")
		}
		return domain.ProductImage{}, err
	}
	return img, nil
}

func (s *Service) validateImage(upload ImageUpload) error {
	verr := &domain.ValidationError{}
	switch {
	case upload.Body == nil:
		verr.Add("image", "No file was submitted.")
	case upload.Size == 0:
		verr.Add("image", "The submitted file is empty.")
	case upload.Size > s.maxImageSize:
		verr.Add("image", fmt.Sprintf("The maximum file size that can be uploaded is %dKB", s.maxImageSize/1024))
	case !strings.HasPrefix(strings.ToLower(upload.ContentType), "image/"):
		verr.Add("image", "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
	return verr.OrNil()
}

// ListImages возвращает изображения товара.
func (s *Service) ListImages(ctx context.Context, productID int64) ([]domain.ProductImage, error) {
	if _, err := s.repos.Products.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.repos.Images.List(ctx, productID)
}

// GetImage возвращает изображение в рамках товара.
func (s *Service) GetImage(ctx context.Context, productID, id int64) (domain.ProductImage, error) {
	return s.repos.Images.Get(ctx, productID, id)
}

// DeleteImage удаляет запись об изображении и файл.
func (s *Service) DeleteImage(ctx context.Context, productID, id int64) error {
	img, err := s.repos.Images.Get(ctx, productID, id)
	if err != nil {
		return err
	}
	if err := s.repos.Images.Delete(ctx, productID, id); err != nil {
		return err
	}
	s.removeImageFile(ctx, img)
	return nil
}

// ImageURL строит публичную ссылку на файл изображения.
func (s *Service) ImageURL(img domain.ProductImage) string {
	if s.images == nil {
		return img.Image
	}
	return s.images.URL(img.Image)
}

func (s *Service) removeImageFile(ctx context.Context, img domain.ProductImage) {
	if s.images == nil || img.Image == "" {
		return
	}
	if err := s.images.Remove(ctx, img.Image); err != nil {
		s.logger.WithError(err).WithField("path", img.Image).Warn("failed to remove image file")
	}
}
