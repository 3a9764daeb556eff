package storefront

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/ibuy/internal/auth"
	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
	"github.com/vladislavdragonenkov/ibuy/internal/storage/memory"
)

type fakeImageStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{files: make(map[string][]byte)}
}

func (f *fakeImageStore) Save(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = data
	return name, nil
}

func (f *fakeImageStore) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func (f *fakeImageStore) URL(path string) string {
	return "/media/" + path
}

func (f *fakeImageStore) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

type storefrontSuite struct {
	suite.Suite

	store  *memory.Store
	images *fakeImageStore
	svc    *Service
	now    time.Time
}

func TestStorefrontSuite(t *testing.T) {
	suite.Run(t, new(storefrontSuite))
}

func (s *storefrontSuite) SetupTest() {
	s.store = memory.NewStore()
	s.images = newFakeImageStore()
	s.now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.svc = NewService(s.store,
		WithImageStore(s.images),
		WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		WithMetrics(metrics.NewStoreMetricsWithRegisterer(prometheus.NewRegistry())),
		WithMaxImageSize(1024),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *storefrontSuite) ctx() context.Context {
	return s.T().Context()
}

func (s *storefrontSuite) collection() domain.Collection {
	c, err := s.svc.CreateCollection(s.ctx(), domain.Collection{Title: fmt.Sprintf("Collection %d", gofakeit.Number(1, 1_000_000))})
	s.Require().NoError(err)
	return c
}

func (s *storefrontSuite) product(collectionID int64, price string) domain.Product {
	p, err := s.svc.CreateProduct(s.ctx(), domain.Product{
		Title:        fmt.Sprintf("%.30s %d", gofakeit.ProductName(), gofakeit.Number(1, 1_000_000)),
		Description:  gofakeit.Sentence(8),
		Inventory:    gofakeit.Number(0, 100),
		UnitPrice:    decimal.RequireFromString(price),
		CollectionID: collectionID,
	})
	s.Require().NoError(err)
	return p
}

func (s *storefrontSuite) user(staff bool) domain.Actor {
	reg := domain.Registration{
		Username: gofakeit.Username() + fmt.Sprint(gofakeit.Number(1, 1_000_000)),
		Email:    gofakeit.Email(),
		Password: gofakeit.Password(true, true, true, false, false, 12),
	}
	var (
		u   domain.User
		err error
	)
	if staff {
		u, err = s.svc.CreateStaffUser(s.ctx(), reg)
	} else {
		u, err = s.svc.Register(s.ctx(), reg)
	}
	s.Require().NoError(err)
	return domain.Actor{UserID: u.ID, IsStaff: u.IsStaff}
}

func (s *storefrontSuite) requireValidation(err error, field, message string) {
	s.T().Helper()
	verr, ok := domain.AsValidation(err)
	s.Require().True(ok, "expected validation error, got %v", err)
	s.Require().Contains(verr.Fields[field], message)
}

func (s *storefrontSuite) TestCreateCollection_Validation() {
	_, err := s.svc.CreateCollection(s.ctx(), domain.Collection{Title: "   "})
	s.requireValidation(err, "title", "This field may not be blank.")

	c := s.collection()
	_, err = s.svc.CreateCollection(s.ctx(), domain.Collection{Title: c.Title})
	s.requireValidation(err, "title", "collection with this title already exists.")
}

func (s *storefrontSuite) TestDeleteCollection_Guard() {
	busy := s.collection()
	s.product(busy.ID, "4.50")

	err := s.svc.DeleteCollection(s.ctx(), busy.ID)
	s.Require().ErrorIs(err, domain.ErrCollectionNotEmpty)

	got, err := s.svc.GetCollection(s.ctx(), busy.ID)
	s.Require().NoError(err)
	s.Equal(1, got.ProductsCount)

	empty := s.collection()
	s.Require().NoError(s.svc.DeleteCollection(s.ctx(), empty.ID))
	_, err = s.svc.GetCollection(s.ctx(), empty.ID)
	s.Require().ErrorIs(err, domain.ErrCollectionNotFound)

	s.Require().ErrorIs(s.svc.DeleteCollection(s.ctx(), 9999), domain.ErrCollectionNotFound)
}

func (s *storefrontSuite) TestCreateProduct_UnknownCollection() {
	_, err := s.svc.CreateProduct(s.ctx(), domain.Product{
		Title:        "Orphan",
		UnitPrice:    decimal.RequireFromString("1.00"),
		CollectionID: 404,
	})
	s.requireValidation(err, "collection_id", "Invalid pk - object does not exist.")
}

func (s *storefrontSuite) TestListProducts_RejectsUnknownOrdering() {
	_, _, err := s.svc.ListProducts(s.ctx(), domain.ProductFilter{Ordering: "title"})
	_, ok := domain.AsValidation(err)
	s.True(ok)
}

func (s *storefrontSuite) TestAddCartItem_MergesQuantity() {
	c := s.collection()
	p1 := s.product(c.ID, "2.00")
	p2 := s.product(c.ID, "3.00")

	cart, err := s.svc.CreateCart(s.ctx())
	s.Require().NoError(err)

	first, err := s.svc.AddCartItem(s.ctx(), cart.ID, p1.ID, 2)
	s.Require().NoError(err)
	merged, err := s.svc.AddCartItem(s.ctx(), cart.ID, p1.ID, 3)
	s.Require().NoError(err)
	s.Equal(first.ID, merged.ID)
	s.Equal(5, merged.Quantity)

	_, err = s.svc.AddCartItem(s.ctx(), cart.ID, p2.ID, 1)
	s.Require().NoError(err)

	got, err := s.svc.GetCart(s.ctx(), cart.ID)
	s.Require().NoError(err)
	s.Len(got.Items, 2)
	s.True(decimal.RequireFromString("13.00").Equal(got.TotalPrice()), got.TotalPrice().String())
}

func (s *storefrontSuite) TestAddCartItem_Errors() {
	c := s.collection()
	p := s.product(c.ID, "2.00")
	cart, err := s.svc.CreateCart(s.ctx())
	s.Require().NoError(err)

	_, err = s.svc.AddCartItem(s.ctx(), cart.ID, 9999, 1)
	s.requireValidation(err, "product_id", "No product with the given ID was found.")

	_, err = s.svc.AddCartItem(s.ctx(), cart.ID, p.ID, 0)
	s.requireValidation(err, "quantity", "Ensure this value is greater than or equal to 1.")

	_, err = s.svc.AddCartItem(s.ctx(), gofakeitUUID(), p.ID, 1)
	s.Require().ErrorIs(err, domain.ErrCartNotFound)
}

func (s *storefrontSuite) TestAddCartItem_ConcurrentAddsKeepOneLine() {
	c := s.collection()
	p := s.product(c.ID, "1.00")
	cart, err := s.svc.CreateCart(s.ctx())
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, addErr := s.svc.AddCartItem(context.Background(), cart.ID, p.ID, 1)
			s.NoError(addErr)
		}()
	}
	wg.Wait()

	items, err := s.svc.ListCartItems(s.ctx(), cart.ID)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(10, items[0].Quantity)
}

func (s *storefrontSuite) TestUpdateAndRemoveCartItem() {
	c := s.collection()
	p := s.product(c.ID, "1.00")
	cart, err := s.svc.CreateCart(s.ctx())
	s.Require().NoError(err)
	item, err := s.svc.AddCartItem(s.ctx(), cart.ID, p.ID, 1)
	s.Require().NoError(err)

	updated, err := s.svc.UpdateCartItem(s.ctx(), cart.ID, item.ID, 7)
	s.Require().NoError(err)
	s.Equal(7, updated.Quantity)

	s.Require().NoError(s.svc.RemoveCartItem(s.ctx(), cart.ID, item.ID))
	_, err = s.svc.GetCartItem(s.ctx(), cart.ID, item.ID)
	s.Require().ErrorIs(err, domain.ErrCartItemNotFound)
}

func (s *storefrontSuite) TestReviews_OwnerOnly() {
	c := s.collection()
	p := s.product(c.ID, "1.00")
	author := s.user(false)
	other := s.user(false)

	_, err := s.svc.CreateReview(s.ctx(), domain.Actor{}, p.ID, "nice")
	s.Require().ErrorIs(err, domain.ErrNotAuthenticated)

	_, err = s.svc.CreateReview(s.ctx(), author, p.ID, "")
	s.requireValidation(err, "description", "This field may not be blank.")

	rv, err := s.svc.CreateReview(s.ctx(), author, p.ID, "nice")
	s.Require().NoError(err)
	s.Positive(rv.ID)
	s.Equal(s.now, rv.Date)

	_, err = s.svc.UpdateReview(s.ctx(), other, p.ID, rv.ID, "hacked")
	s.Require().ErrorIs(err, domain.ErrPermissionDenied)
	s.Require().ErrorIs(s.svc.DeleteReview(s.ctx(), other, p.ID, rv.ID), domain.ErrPermissionDenied)

	updated, err := s.svc.UpdateReview(s.ctx(), author, p.ID, rv.ID, "great")
	s.Require().NoError(err)
	s.Equal("great", updated.Description)

	s.Require().NoError(s.svc.DeleteReview(s.ctx(), author, p.ID, rv.ID))
	_, err = s.svc.GetReview(s.ctx(), p.ID, rv.ID)
	s.Require().ErrorIs(err, domain.ErrReviewNotFound)
}

func (s *storefrontSuite) TestRegisterAndAuthenticate() {
	reg := domain.Registration{Username: "alice", Password: "correct-horse"}
	u, err := s.svc.Register(s.ctx(), reg)
	s.Require().NoError(err)
	s.NotEqual(reg.Password, u.PasswordHash)

	me, err := s.svc.Me(s.ctx(), domain.Actor{UserID: u.ID})
	s.Require().NoError(err)
	s.Equal(u.ID, me.UserID)

	_, err = s.svc.Register(s.ctx(), domain.Registration{Username: "ALICE", Password: "another-pass"})
	s.requireValidation(err, "username", "A user with that username already exists.")

	got, err := s.svc.Authenticate(s.ctx(), "alice", "correct-horse")
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)

	_, err = s.svc.Authenticate(s.ctx(), "alice", "wrong")
	s.Require().ErrorIs(err, domain.ErrInvalidCredentials)
	_, err = s.svc.Authenticate(s.ctx(), "bob", "whatever")
	s.Require().ErrorIs(err, domain.ErrInvalidCredentials)
}

func (s *storefrontSuite) TestUpdateMe() {
	actor := s.user(false)
	birth := time.Date(1990, 3, 4, 0, 0, 0, 0, time.UTC)

	updated, err := s.svc.UpdateMe(s.ctx(), actor, domain.Customer{Phone: " +100 ", BirthDate: &birth})
	s.Require().NoError(err)
	s.Equal("+100", updated.Phone)
	s.Require().NotNil(updated.BirthDate)
	s.True(birth.Equal(*updated.BirthDate))
	s.Equal(actor.UserID, updated.UserID)

	_, err = s.svc.Me(s.ctx(), domain.Actor{})
	s.Require().ErrorIs(err, domain.ErrNotAuthenticated)
}

func (s *storefrontSuite) TestUploadImage() {
	c := s.collection()
	p := s.product(c.ID, "1.00")

	_, err := s.svc.UploadImage(s.ctx(), p.ID, ImageUpload{
		Filename: "big.png", ContentType: "image/png", Size: 2048, Body: bytes.NewReader(make([]byte, 2048)),
	})
	s.requireValidation(err, "image", "The maximum file size that can be uploaded is 1KB")

	_, err = s.svc.UploadImage(s.ctx(), p.ID, ImageUpload{
		Filename: "liar.png", ContentType: "image/png", Size: 10, Body: bytes.NewReader(make([]byte, 4096)),
	})
	s.requireValidation(err, "image", "The maximum file size that can be uploaded is 1KB")

	_, err = s.svc.UploadImage(s.ctx(), p.ID, ImageUpload{
		Filename: "notes.txt", ContentType: "text/plain", Size: 3, Body: bytes.NewReader([]byte("abc")),
	})
	s.requireValidation(err, "image", "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")

	img, err := s.svc.UploadImage(s.ctx(), p.ID, ImageUpload{
		Filename: "ok.PNG", ContentType: "image/png", Size: 3, Body: bytes.NewReader([]byte("png")),
	})
	s.Require().NoError(err)
	s.True(s.images.has(img.Image))
	s.Contains(img.Image, ".png")
	s.Equal("/media/"+img.Image, s.svc.ImageURL(img))

	list, err := s.svc.ListImages(s.ctx(), p.ID)
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.svc.DeleteImage(s.ctx(), p.ID, img.ID))
	s.False(s.images.has(img.Image))

	_, err = s.svc.UploadImage(s.ctx(), 9999, ImageUpload{
		Filename: "ok.png", ContentType: "image/png", Size: 3, Body: bytes.NewReader([]byte("png")),
	})
	s.Require().ErrorIs(err, domain.ErrProductNotFound)
}
