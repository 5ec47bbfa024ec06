package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"
)

func TestCreateProduct_StockModes(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	unlimited := mustCreateProduct(t, service, models.NewProduct{
		Name: "Guide", Price: 10, Type: models.ProductTypeText, DeliveryContent: "hello",
	})
	if unlimited.IsLimited || unlimited.Stock != models.UnlimitedStock {
		t.Errorf("Expected unlimited product, got limited=%v stock=%d", unlimited.IsLimited, unlimited.Stock)
	}
	if !unlimited.IsActive {
		t.Error("Expected product to be active")
	}

	limited := mustCreateProduct(t, service, models.NewProduct{
		Name: "Poster", Price: 10, Type: models.ProductTypeImage, DeliveryContent: "file-id", Stock: int64Ptr(3),
	})
	if !limited.IsLimited || limited.Stock != 3 {
		t.Errorf("Expected limited stock 3, got limited=%v stock=%d", limited.IsLimited, limited.Stock)
	}

	codes := mustCreateProduct(t, service, models.NewProduct{
		Name: "Keys", Price: 10, Type: models.ProductTypeCode, Codes: []string{"A", "B", " ", "A"},
	})
	if !codes.IsLimited || codes.Stock != 2 {
		t.Errorf("Expected code stock derived as 2, got limited=%v stock=%d", codes.IsLimited, codes.Stock)
	}
}

func TestCreateProduct_Invalid(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	cases := []models.NewProduct{
		{Name: "", Price: 10, Type: models.ProductTypeText},
		{Name: "x", Price: 0, Type: models.ProductTypeText},
		{Name: "x", Price: 10, Type: "bogus"},
		{Name: "x", Price: 10, Type: models.ProductTypeBalance, DeliveryContent: "fifty"},
		{Name: "x", Price: 10, Type: models.ProductTypeText, Codes: []string{"A"}},
		{Name: "x", Price: 10, Type: models.ProductTypeCode, Stock: int64Ptr(5)},
	}
	for i, product := range cases {
		if _, err := service.CreateProduct(ctx, product); !errors.Is(err, store.ErrInvalidProduct) {
			t.Errorf("case %d: expected ErrInvalidProduct, got %v", i, err)
		}
	}
}

func TestDecreaseStock_Concurrent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	const initialStock = 5
	const callers = 30
	product := mustCreateProduct(t, service, models.NewProduct{
		Name: "Limited", Price: 10, Type: models.ProductTypeFile, DeliveryContent: "doc", Stock: int64Ptr(initialStock),
	})

	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := service.DecreaseStock(ctx, product.Id)
			if err != nil {
				t.Errorf("DecreaseStock failed: %v", err)
				return
			}
			if ok {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != initialStock {
		t.Errorf("Expected exactly %d successful decrements, got %d", initialStock, succeeded.Load())
	}
	after, err := service.GetProduct(ctx, product.Id)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if after.Stock != 0 {
		t.Errorf("Expected stock 0, got %d", after.Stock)
	}
}

func TestDecreaseStock_UnlimitedAndCodeProducts(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	unlimited := mustCreateProduct(t, service, models.NewProduct{
		Name: "Unlimited", Price: 10, Type: models.ProductTypeText, DeliveryContent: "x",
	})
	ok, err := service.DecreaseStock(ctx, unlimited.Id)
	if err != nil {
		t.Fatalf("DecreaseStock failed: %v", err)
	}
	if ok {
		t.Error("Expected no decrement on an unlimited product")
	}

	codes := mustCreateProduct(t, service, models.NewProduct{
		Name: "Keys", Price: 10, Type: models.ProductTypeCode, Codes: []string{"A"},
	})
	ok, err = service.DecreaseStock(ctx, codes.Id)
	if err != nil {
		t.Fatalf("DecreaseStock failed: %v", err)
	}
	if ok {
		t.Error("Expected code products to be consumed only through codes")
	}
}

func TestDispenseCode_Concurrent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	codes := []string{"C1", "C2", "C3", "C4", "C5", "C6"}
	product := mustCreateProduct(t, service, models.NewProduct{
		Name: "Keys", Price: 10, Type: models.ProductTypeCode, Codes: codes,
	})

	var mu sync.Mutex
	dispensed := make(map[string]int)
	var exhausted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(userId int64) {
			defer wg.Done()
			code, err := service.DispenseCode(ctx, product.Id, userId)
			if errors.Is(err, store.ErrNoCodesAvailable) {
				exhausted.Add(1)
				return
			}
			if err != nil {
				t.Errorf("DispenseCode failed: %v", err)
				return
			}
			mu.Lock()
			dispensed[code]++
			mu.Unlock()
		}(int64(i + 1))
	}
	wg.Wait()

	if len(dispensed) != len(codes) {
		t.Errorf("Expected %d distinct codes, got %d", len(codes), len(dispensed))
	}
	for code, count := range dispensed {
		if count != 1 {
			t.Errorf("Code %s dispensed %d times", code, count)
		}
	}
	if exhausted.Load() != int64(20-len(codes)) {
		t.Errorf("Expected %d exhausted callers, got %d", 20-len(codes), exhausted.Load())
	}

	after, _ := service.GetProduct(ctx, product.Id)
	if after.Stock != 0 {
		t.Errorf("Expected derived stock 0, got %d", after.Stock)
	}
}

func TestAddCodes(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	product := mustCreateProduct(t, service, models.NewProduct{
		Name: "Keys", Price: 10, Type: models.ProductTypeCode,
	})

	inserted, err := service.AddCodes(ctx, product.Id, []string{"X", "Y", "X", ""})
	if err != nil {
		t.Fatalf("AddCodes failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 codes inserted, got %d", inserted)
	}

	count, err := service.CountAvailableCodes(ctx, product.Id)
	if err != nil {
		t.Fatalf("CountAvailableCodes failed: %v", err)
	}
	after, _ := service.GetProduct(ctx, product.Id)
	if count != 2 || after.Stock != 2 {
		t.Errorf("Expected count and stock 2, got count=%d stock=%d", count, after.Stock)
	}

	text := mustCreateProduct(t, service, models.NewProduct{
		Name: "Text", Price: 10, Type: models.ProductTypeText, DeliveryContent: "x",
	})
	if _, err := service.AddCodes(ctx, text.Id, []string{"Z"}); !errors.Is(err, store.ErrInvalidProduct) {
		t.Errorf("Expected ErrInvalidProduct, got %v", err)
	}
	if _, err := service.AddCodes(ctx, 999, []string{"Z"}); !errors.Is(err, store.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestResyncCodeStock(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	product := mustCreateProduct(t, service, models.NewProduct{
		Name: "Keys", Price: 10, Type: models.ProductTypeCode, Codes: []string{"A", "B"},
	})

	if _, err := service.db.ExecContext(ctx, "UPDATE products SET stock = 9 WHERE id = ?", product.Id); err != nil {
		t.Fatalf("Failed to corrupt stock: %v", err)
	}

	fixed, err := service.ResyncCodeStock(ctx)
	if err != nil {
		t.Fatalf("ResyncCodeStock failed: %v", err)
	}
	if fixed != 1 {
		t.Errorf("Expected 1 product corrected, got %d", fixed)
	}
	after, _ := service.GetProduct(ctx, product.Id)
	if after.Stock != 2 {
		t.Errorf("Expected stock 2, got %d", after.Stock)
	}

	fixed, _ = service.ResyncCodeStock(ctx)
	if fixed != 0 {
		t.Errorf("Expected nothing to correct, got %d", fixed)
	}
}

func TestUpdateProduct(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	product := mustCreateProduct(t, service, models.NewProduct{
		Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "x",
	})

	updated, err := service.UpdateProduct(ctx, product.Id, models.ProductPatch{
		Price:              int64Ptr(80),
		Stock:              int64Ptr(4),
		DiscountPercentage: int64Ptr(25),
	})
	if err != nil {
		t.Fatalf("UpdateProduct failed: %v", err)
	}
	if updated.Price != 80 || updated.Stock != 4 || !updated.IsLimited || updated.FinalPrice() != 60 {
		t.Errorf("Unexpected product after patch: %+v", updated)
	}

	updated, err = service.UpdateProduct(ctx, product.Id, models.ProductPatch{Stock: int64Ptr(models.UnlimitedStock)})
	if err != nil {
		t.Fatalf("UpdateProduct failed: %v", err)
	}
	if updated.IsLimited {
		t.Error("Expected product to become unlimited")
	}

	invalid := []models.ProductPatch{
		{},
		{Price: int64Ptr(0)},
		{DiscountPercentage: int64Ptr(101)},
		{Stock: int64Ptr(-2)},
		{Type: typePtr(models.ProductTypeBalance), DeliveryContent: stringPtr("abc")},
	}
	for i, patch := range invalid {
		if _, err := service.UpdateProduct(ctx, product.Id, patch); !errors.Is(err, store.ErrInvalidPatch) {
			t.Errorf("case %d: expected ErrInvalidPatch, got %v", i, err)
		}
	}

	if _, err := service.UpdateProduct(ctx, 999, models.ProductPatch{Price: int64Ptr(5)}); !errors.Is(err, store.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestUpdateProduct_CodeStockIsDerived(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	product := mustCreateProduct(t, service, models.NewProduct{
		Name: "Keys", Price: 10, Type: models.ProductTypeCode, Codes: []string{"A"},
	})

	if _, err := service.UpdateProduct(ctx, product.Id, models.ProductPatch{Stock: int64Ptr(10)}); !errors.Is(err, store.ErrInvalidPatch) {
		t.Errorf("Expected ErrInvalidPatch, got %v", err)
	}

	updated, err := service.UpdateProduct(ctx, product.Id, models.ProductPatch{Name: stringPtr("Game keys")})
	if err != nil {
		t.Fatalf("UpdateProduct failed: %v", err)
	}
	if updated.Stock != 1 || !updated.IsLimited {
		t.Errorf("Expected derived stock 1, got %d", updated.Stock)
	}
}

func TestListAndDeleteProducts(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	mustCreateProduct(t, service, models.NewProduct{Name: "A", Price: 1, Type: models.ProductTypeText})
	hidden := mustCreateProduct(t, service, models.NewProduct{Name: "B", Price: 1, Type: models.ProductTypeText, Inactive: true})

	all, err := service.ListProducts(ctx, false)
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	active, err := service.ListProducts(ctx, true)
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(all) != 2 || len(active) != 1 {
		t.Errorf("Expected 2 products and 1 active, got %d and %d", len(all), len(active))
	}

	if err := service.DeleteProduct(ctx, hidden.Id); err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}
	if err := service.DeleteProduct(ctx, hidden.Id); !errors.Is(err, store.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestDeleteProduct_KeepsDispensedCodes(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	mustEnsureUser(t, service, 7)
	sold := mustCreateProduct(t, service, models.NewProduct{
		Name: "Keys", Price: 10, Type: models.ProductTypeCode, Codes: []string{"A", "B"},
	})
	unsold := mustCreateProduct(t, service, models.NewProduct{
		Name: "Other keys", Price: 10, Type: models.ProductTypeCode, Codes: []string{"C"},
	})

	if _, err := service.DispenseCode(ctx, sold.Id, 7); err != nil {
		t.Fatalf("DispenseCode failed: %v", err)
	}

	err := service.DeleteProduct(ctx, sold.Id)
	if !errors.Is(err, store.ErrProductHasSales) {
		t.Fatalf("Expected ErrProductHasSales, got %v", err)
	}
	if store.KindOf(err) != store.KindConflict {
		t.Errorf("Expected a conflict, got %s", store.KindOf(err))
	}

	// Nothing was removed, not even the unused code
	if _, err := service.GetProduct(ctx, sold.Id); err != nil {
		t.Errorf("Expected product to survive, got %v", err)
	}
	available, _ := service.CountAvailableCodes(ctx, sold.Id)
	if available != 1 {
		t.Errorf("Expected 1 unused code left, got %d", available)
	}
	var usedBy int64
	err = service.db.QueryRowContext(ctx,
		"SELECT used_by FROM codes WHERE product_id = ? AND is_used = 1", sold.Id).Scan(&usedBy)
	if err != nil {
		t.Fatalf("Expected the used code row to remain: %v", err)
	}
	if usedBy != 7 {
		t.Errorf("Expected code used by 7, got %d", usedBy)
	}

	// Unused codes go with their product
	if err := service.DeleteProduct(ctx, unsold.Id); err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}
	if _, err := service.GetProduct(ctx, unsold.Id); !errors.Is(err, store.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func typePtr(v models.ProductType) *models.ProductType { return &v }
