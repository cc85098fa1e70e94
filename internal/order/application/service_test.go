package application

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/raihanmd/storefront/internal/catalog/domain"
	"github.com/raihanmd/storefront/internal/order/domain"
	"github.com/raihanmd/storefront/pkg/logging"
)

type fakeProducts struct {
	mu       sync.Mutex
	products map[string]catalog.Product
}

func newFakeProducts(ps ...catalog.Product) *fakeProducts {
	m := make(map[string]catalog.Product, len(ps))
	for _, p := range ps {
		m[p.ID] = p
	}
	return &fakeProducts{products: m}
}

func (f *fakeProducts) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s: %w", id, catalog.ErrProductNotFound)
	}
	return p, nil
}

func (f *fakeProducts) setPrice(id, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	p.Price = decimal.RequireFromString(price)
	f.products[id] = p
}

func (f *fakeProducts) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

// decrement must be called under the repo lock, mirroring how the real
// decrement runs inside the approval transaction.
func (f *fakeProducts) decrement(id string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	if p.Stock < qty {
		return fmt.Errorf("product %s, qty %d: %w", id, qty, catalog.ErrStockGuard)
	}
	p.Stock -= qty
	f.products[id] = p
	return nil
}

type fakeRepo struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	products *fakeProducts
	creates  int
}

func newFakeRepo(products *fakeProducts) *fakeRepo {
	return &fakeRepo{orders: map[string]domain.Order{}, products: products}
}

func (f *fakeRepo) CreateWithOutbox(_ context.Context, o domain.Order, _ string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
	f.creates++
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeRepo) GetByNumber(_ context.Context, number string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.Number == number {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (f *fakeRepo) Transition(_ context.Context, orderID string, to domain.Status, _ string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err := domain.Transition(o.Status, to); err != nil {
		return domain.Order{}, err
	}
	if to == domain.StatusApproved {
		for _, item := range o.Items {
			if err := f.products.decrement(item.ProductID, item.Quantity); err != nil {
				return domain.Order{}, err
			}
		}
	}
	o.Status = to
	f.orders[orderID] = o
	return o, nil
}

func newTestService(products *fakeProducts) (*Service, *fakeRepo) {
	repo := newFakeRepo(products)
	return NewService(logging.New(), repo, products), repo
}

func TestCreateOrderSnapshotsPricesAndLeavesStockAlone(t *testing.T) {
	products := newFakeProducts(catalog.Product{ID: "p1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5})
	svc, repo := newTestService(products)

	o, err := svc.Create(context.Background(), CreateInput{
		CustomerName:     "Ana",
		CustomerPhone:    "555-0100",
		Address:          "Main St 1",
		DeliverySchedule: domain.DeliveryMorning,
		PaymentMethod:    domain.MethodGateway,
		Items:            []CreateItemInput{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, "20.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, 5, products.stock("p1"), "creation must be stock-neutral")
	assert.Equal(t, 1, repo.creates)

	// A later catalog price change must not move the stored snapshot.
	products.setPrice("p1", "99.99")
	stored, err := repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", stored.Items[0].PriceAtTime.StringFixed(2))
	assert.Equal(t, "20.00", stored.TotalAmount.StringFixed(2))
}

func TestCreateOrderOutOfStock(t *testing.T) {
	products := newFakeProducts(catalog.Product{ID: "p1", Price: decimal.RequireFromString("10.00"), Stock: 1})
	svc, repo := newTestService(products)

	_, err := svc.Create(context.Background(), CreateInput{
		Items: []CreateItemInput{{ProductID: "p1", Quantity: 3}},
	})

	var oos *domain.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, "p1", oos.ProductID)
	assert.Equal(t, 3, oos.Requested)
	assert.Equal(t, 1, oos.Available)
	assert.Equal(t, 0, repo.creates)
	assert.Equal(t, 1, products.stock("p1"))
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	svc, _ := newTestService(newFakeProducts())

	_, err := svc.Create(context.Background(), CreateInput{
		Items: []CreateItemInput{{ProductID: "ghost", Quantity: 1}},
	})

	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCreateOrderValidation(t *testing.T) {
	products := newFakeProducts(catalog.Product{ID: "p1", Price: decimal.RequireFromString("1.00"), Stock: 10})
	svc, _ := newTestService(products)

	_, err := svc.Create(context.Background(), CreateInput{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{Items: []CreateItemInput{{ProductID: "p1", Quantity: 0}}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestManualApproveDecrementsOnce(t *testing.T) {
	products := newFakeProducts(catalog.Product{ID: "p1", Price: decimal.RequireFromString("10.00"), Stock: 5})
	svc, _ := newTestService(products)

	o, err := svc.Create(context.Background(), CreateInput{
		Items: []CreateItemInput{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.Equal(t, 3, products.stock("p1"))

	// Approving an already approved order is a forbidden transition and must
	// not touch stock again.
	_, err = svc.Approve(context.Background(), o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 3, products.stock("p1"))
}

func TestRejectNeverTouchesStock(t *testing.T) {
	products := newFakeProducts(catalog.Product{ID: "p1", Price: decimal.RequireFromString("10.00"), Stock: 5})
	svc, _ := newTestService(products)

	o, err := svc.Create(context.Background(), CreateInput{
		Items: []CreateItemInput{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, 5, products.stock("p1"))

	// Rejected is terminal.
	_, err = svc.Approve(context.Background(), o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUpdateStatusFollowsMachine(t *testing.T) {
	products := newFakeProducts(catalog.Product{ID: "p1", Price: decimal.RequireFromString("10.00"), Stock: 5})
	svc, _ := newTestService(products)

	o, err := svc.Create(context.Background(), CreateInput{
		Items: []CreateItemInput{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), o.ID, "shipped")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending cannot skip to shipped")

	_, err = svc.Approve(context.Background(), o.ID)
	require.NoError(t, err)

	shipped, err := svc.UpdateStatus(context.Background(), o.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, shipped.Status)

	delivered, err := svc.UpdateStatus(context.Background(), o.ID, "delivered")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, delivered.Status)

	_, err = svc.UpdateStatus(context.Background(), o.ID, "cancelled")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "delivered is terminal")

	_, err = svc.UpdateStatus(context.Background(), o.ID, "bogus")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestConcurrentApprovalsDecrementStockOnce(t *testing.T) {
	products := newFakeProducts(catalog.Product{ID: "p1", Price: decimal.RequireFromString("10.00"), Stock: 5})
	svc, _ := newTestService(products)

	o, err := svc.Create(context.Background(), CreateInput{
		Items: []CreateItemInput{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Approve(context.Background(), o.ID)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one approval wins")
	assert.Equal(t, 3, products.stock("p1"), "stock decremented exactly once")
}
