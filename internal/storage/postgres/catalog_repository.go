package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type collectionRepository struct {
	q querier
}

const collectionColumns = `
	c.id, c.title,
	(SELECT COUNT(*) FROM products p WHERE p.collection_id = c.id)`

func (r *collectionRepository) Create(ctx context.Context, c domain.Collection) (domain.Collection, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO collections (title) VALUES ($1)
		RETURNING id
	`, c.Title).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Collection{}, domain.ErrCollectionTitleTaken
		}
		return domain.Collection{}, fmt.Errorf("insert collection: %w", err)
	}

	c.ProductsCount = 0
	return c, nil
}

func (r *collectionRepository) Get(ctx context.Context, id int64) (domain.Collection, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var c domain.Collection
	err := r.q.QueryRowContext(ctx, `SELECT`+collectionColumns+`
		FROM collections c
		WHERE c.id = $1
	`, id).Scan(&c.ID, &c.Title, &c.ProductsCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Collection{}, domain.ErrCollectionNotFound
		}
		return domain.Collection{}, fmt.Errorf("select collection: %w", err)
	}
	return c, nil
}

func (r *collectionRepository) List(ctx context.Context, page domain.Page) ([]domain.Collection, int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count collections: %w", err)
	}

	page = page.Normalize()
	rows, err := r.q.QueryContext(ctx, `SELECT`+collectionColumns+`
		FROM collections c
		ORDER BY c.id
		LIMIT $1 OFFSET $2
	`, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Collection, 0, page.Size)
	for rows.Next() {
		var c domain.Collection
		if err := rows.Scan(&c.ID, &c.Title, &c.ProductsCount); err != nil {
			return nil, 0, fmt.Errorf("scan collection row: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate collection rows: %w", err)
	}

	return result, total, nil
}

func (r *collectionRepository) Update(ctx context.Context, c domain.Collection) (domain.Collection, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		UPDATE collections
		SET title = $1
		WHERE id = $2
		RETURNING (SELECT COUNT(*) FROM products p WHERE p.collection_id = $2)
	`, c.Title, c.ID).Scan(&c.ProductsCount)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.Collection{}, domain.ErrCollectionNotFound
		case isUniqueViolation(err):
			return domain.Collection{}, domain.ErrCollectionTitleTaken
		}
		return domain.Collection{}, fmt.Errorf("update collection: %w", err)
	}
	return c, nil
}

// Delete полагается на ON DELETE RESTRICT внешнего ключа products.collection_id.
func (r *collectionRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCollectionNotEmpty
		}
		return fmt.Errorf("delete collection: %w", err)
	}
	return expectAffected(res, domain.ErrCollectionNotFound)
}

type productRepository struct {
	q querier
}

const productColumns = `id, title, description, inventory, last_update, unit_price, collection_id`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Inventory, &p.LastUpdate, &p.UnitPrice, &p.CollectionID)
	p.LastUpdate = p.LastUpdate.UTC()
	return p, err
}

func (r *productRepository) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p.LastUpdate = time.Now().UTC()
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO products (title, description, inventory, last_update, unit_price, collection_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, p.Title, p.Description, p.Inventory, p.LastUpdate, p.UnitPrice, p.CollectionID).Scan(&p.ID)
	if err != nil {
		return domain.Product{}, mapProductWriteErr(err, "insert product")
	}

	p.Images = []domain.ProductImage{}
	return p, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p, err := scanProduct(r.q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	if p.Images, err = loadImages(ctx, r.q, p.ID); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where, args := productWhere(filter)

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	page := filter.Page.Normalize()
	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		productColumns, where, productOrderBy(filter.Ordering), len(args)-1, len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	result := make([]domain.Product, 0, page.Size)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}
	rows.Close()

	// Внутри транзакции нельзя выполнять запрос, пока открыт предыдущий курсор.
	for i := range result {
		if result[i].Images, err = loadImages(ctx, r.q, result[i].ID); err != nil {
			return nil, 0, err
		}
	}

	return result, total, nil
}

func (r *productRepository) Update(ctx context.Context, p domain.Product) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p.LastUpdate = time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET title = $1,
		    description = $2,
		    inventory = $3,
		    last_update = $4,
		    unit_price = $5,
		    collection_id = $6
		WHERE id = $7
	`, p.Title, p.Description, p.Inventory, p.LastUpdate, p.UnitPrice, p.CollectionID, p.ID)
	if err != nil {
		return domain.Product{}, mapProductWriteErr(err, "update product")
	}
	if err := expectAffected(res, domain.ErrProductNotFound); err != nil {
		return domain.Product{}, err
	}

	if p.Images, err = loadImages(ctx, r.q, p.ID); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// Delete полагается на ON DELETE RESTRICT внешнего ключа order_items.product_id;
// изображения, позиции корзин и отзывы удаляются каскадно.
func (r *productRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductInOrders
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) CountByCollection(ctx context.Context, collectionID int64) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM products WHERE collection_id = $1
	`, collectionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products by collection: %w", err)
	}
	return n, nil
}

func mapProductWriteErr(err error, op string) error {
	switch {
	case isUniqueViolation(err):
		return domain.ErrProductTitleTaken
	case isForeignKeyViolation(err):
		return domain.ErrCollectionNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func productWhere(filter domain.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.CollectionID != nil {
		add("collection_id = $%d", *filter.CollectionID)
	}
	if filter.PriceGT != nil {
		add("unit_price > $%d", *filter.PriceGT)
	}
	if filter.PriceLT != nil {
		add("unit_price < $%d", *filter.PriceLT)
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		add("(title ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+escapeLike(q)+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func productOrderBy(ordering domain.ProductOrdering) string {
	switch ordering {
	case domain.OrderByUnitPrice:
		return "unit_price ASC, id ASC"
	case domain.OrderByUnitPriceDesc:
		return "unit_price DESC, id ASC"
	case domain.OrderByLastUpdate:
		return "last_update ASC, id ASC"
	case domain.OrderByLastUpdateDesc:
		return "last_update DESC, id ASC"
	default:
		return "id ASC"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type imageRepository struct {
	q querier
}

func (r *imageRepository) Create(ctx context.Context, img domain.ProductImage) (domain.ProductImage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO product_images (product_id, image) VALUES ($1, $2)
		RETURNING id
	`, img.ProductID, img.Image).Scan(&img.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ProductImage{}, domain.ErrProductNotFound
		}
		return domain.ProductImage{}, fmt.Errorf("insert product image: %w", err)
	}
	return img, nil
}

func (r *imageRepository) Get(ctx context.Context, productID, id int64) (domain.ProductImage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	img := domain.ProductImage{ID: id, ProductID: productID}
	err := r.q.QueryRowContext(ctx, `
		SELECT image FROM product_images WHERE id = $1 AND product_id = $2
	`, id, productID).Scan(&img.Image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductImage{}, domain.ErrImageNotFound
		}
		return domain.ProductImage{}, fmt.Errorf("select product image: %w", err)
	}
	return img, nil
}

func (r *imageRepository) List(ctx context.Context, productID int64) ([]domain.ProductImage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return loadImages(ctx, r.q, productID)
}

func (r *imageRepository) Delete(ctx context.Context, productID, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		DELETE FROM product_images WHERE id = $1 AND product_id = $2
	`, id, productID)
	if err != nil {
		return fmt.Errorf("delete product image: %w", err)
	}
	return expectAffected(res, domain.ErrImageNotFound)
}

func loadImages(ctx context.Context, q querier, productID int64) ([]domain.ProductImage, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, image
		FROM product_images
		WHERE product_id = $1
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("load product images: %w", err)
	}
	defer rows.Close()

	images := make([]domain.ProductImage, 0)
	for rows.Next() {
		img := domain.ProductImage{ProductID: productID}
		if err := rows.Scan(&img.ID, &img.Image); err != nil {
			return nil, fmt.Errorf("scan product image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product images: %w", err)
	}
	return images, nil
}

// expectAffected превращает «ноль затронутых строк» в notFound.
func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.CollectionRepository   = (*collectionRepository)(nil)
	_ domain.ProductRepository      = (*productRepository)(nil)
	_ domain.ProductImageRepository = (*imageRepository)(nil)
)
