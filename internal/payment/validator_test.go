package payment

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"stars-storefront-go/internal/database"
	"stars-storefront-go/internal/gate"
	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"github.com/stretchr/testify/require"
)

type staticFlag bool

func (f staticFlag) Maintenance() bool { return bool(f) }

var testStoreConfig = models.StoreConfig{
	Currency:      "XTR",
	PointsPerStar: 10,
	DonationMin:   1,
	DonationMax:   2500,
}

var testGateConfig = models.GateConfig{
	MaxRequests: 100,
	Window:      time.Minute,
	MaxFailures: 5,
	BanDuration: 30 * time.Minute,
}

type testEnv struct {
	db        *database.Service
	validator *Validator
	metrics   *metrics.BusinessMetrics
}

func setupTestEnv(t *testing.T, maintenance bool) *testEnv {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "payment.db"),
		MaxOpenConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	m := metrics.NewIsolated()
	g := gate.New(db, testGateConfig, func(int64) bool { return false }, staticFlag(maintenance), m)
	return &testEnv{
		db:        db,
		validator: NewValidator(db, g, testStoreConfig, 5*time.Second, m),
		metrics:   m,
	}
}

func (e *testEnv) product(t *testing.T, p models.NewProduct) *models.Product {
	t.Helper()
	created, err := e.db.CreateProduct(context.Background(), p)
	require.NoError(t, err)
	return created
}

func (e *testEnv) hasLog(t *testing.T, logType, action string) bool {
	t.Helper()
	logs, err := e.db.GetLogs(context.Background(), logType, 100)
	require.NoError(t, err)
	for _, l := range logs {
		if l.Action == action {
			return true
		}
	}
	return false
}

func productQuery(productId, userId, amount int64) models.PreCheckoutQuery {
	return models.PreCheckoutQuery{
		Id:             "q1",
		UserId:         userId,
		Currency:       "XTR",
		TotalAmount:    amount,
		InvoicePayload: NewProductPayload(productId, userId),
	}
}

func TestPreCheckout_PriceMatch(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, false)
	product := env.product(t, models.NewProduct{Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "text"})

	result := env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 100))
	require.True(t, result.Approved, result.Reason)
	require.Equal(t, models.PayloadKindProduct, result.Kind)
	require.True(t, env.hasLog(t, LogTypePayment, ActionPreCheckoutApproved))

	result = env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 90))
	require.False(t, result.Approved)
	require.Contains(t, result.Reason, "price has changed")
	require.True(t, env.hasLog(t, LogTypeSecurity, ActionPriceManipulation))

	record, err := env.db.GetRateLimit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), record.FailedAttempts)
}

func TestPreCheckout_DiscountedPrice(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, false)
	product := env.product(t, models.NewProduct{
		Name: "Sale", Price: 99, Type: models.ProductTypeText, DeliveryContent: "text", DiscountPercentage: 15,
	})

	// 99 - 99*15/100 = 99 - 14
	require.True(t, env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 85)).Approved)
	require.False(t, env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 84)).Approved)
	require.False(t, env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 99)).Approved)
}

func TestPreCheckout_PayerMismatch(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, false)
	product := env.product(t, models.NewProduct{Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "text"})

	query := productQuery(product.Id, 1, 100)
	query.UserId = 2

	result := env.validator.PreCheckout(ctx, query)
	require.False(t, result.Approved)
	require.Equal(t, "Payment verification failed.", result.Reason)
	require.True(t, env.hasLog(t, LogTypeSecurity, ActionPaymentFraud))

	donation := models.PreCheckoutQuery{UserId: 2, Currency: "XTR", TotalAmount: 10, InvoicePayload: NewDonationPayload(1)}
	require.False(t, env.validator.PreCheckout(ctx, donation).Approved)
	require.True(t, env.hasLog(t, LogTypeSecurity, ActionDonationFraud))
}

func TestPreCheckout_ProductChecksInOrder(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, false)

	inactive := env.product(t, models.NewProduct{
		Name: "Old", Price: 10, Type: models.ProductTypeText, DeliveryContent: "x", Inactive: true,
	})
	limited := env.product(t, models.NewProduct{
		Name: "Limited", Price: 10, Type: models.ProductTypeFile, DeliveryContent: "file-id", Stock: func() *int64 { v := int64(1); return &v }(),
	})
	codes := env.product(t, models.NewProduct{Name: "Key", Price: 10, Type: models.ProductTypeCode})

	tests := []struct {
		name   string
		query  models.PreCheckoutQuery
		reason string
	}{
		{"missing product", productQuery(9999, 1, 10), "Product not found."},
		{"inactive", productQuery(inactive.Id, 1, 10), "This product is no longer available."},
		{"no codes", productQuery(codes.Id, 1, 10), "This product is out of stock."},
		{"currency", func() models.PreCheckoutQuery {
			q := productQuery(limited.Id, 1, 10)
			q.Currency = "USD"
			return q
		}(), "This currency is not accepted."},
		{"malformed", models.PreCheckoutQuery{UserId: 1, Currency: "XTR", TotalAmount: 10, InvoicePayload: "product_abc"},
			"Invalid payment data. Please request a new invoice."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := env.validator.PreCheckout(ctx, tt.query)
			require.False(t, result.Approved)
			require.Equal(t, tt.reason, result.Reason)
		})
	}

	require.True(t, env.validator.PreCheckout(ctx, productQuery(limited.Id, 1, 10)).Approved)
	ok, err := env.db.DecreaseStock(ctx, limited.Id)
	require.NoError(t, err)
	require.True(t, ok)
	result := env.validator.PreCheckout(ctx, productQuery(limited.Id, 1, 10))
	require.False(t, result.Approved)
	require.Equal(t, "This product is out of stock.", result.Reason)

	_, err = env.db.AddCodes(ctx, codes.Id, []string{"AAA-1"})
	require.NoError(t, err)
	require.True(t, env.validator.PreCheckout(ctx, productQuery(codes.Id, 1, 10)).Approved)
	require.True(t, env.hasLog(t, LogTypeSecurity, ActionInvalidPayload))
	require.True(t, env.hasLog(t, LogTypePayment, ActionPreCheckoutRejected))
}

func TestPreCheckout_Donations(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, false)

	donation := func(amount int64) models.PreCheckoutQuery {
		return models.PreCheckoutQuery{UserId: 1, Currency: "XTR", TotalAmount: amount, InvoicePayload: NewDonationPayload(1)}
	}
	require.True(t, env.validator.PreCheckout(ctx, donation(1)).Approved)
	require.True(t, env.validator.PreCheckout(ctx, donation(2500)).Approved)
	require.False(t, env.validator.PreCheckout(ctx, donation(0)).Approved)
	require.False(t, env.validator.PreCheckout(ctx, donation(2501)).Approved)
	require.True(t, env.hasLog(t, LogTypePayment, ActionDonationApproved))

	campaign, err := env.db.CreateCampaign(ctx, store.CreateCampaignParams{DonorId: 5, TargetAmount: 100})
	require.NoError(t, err)

	contribution := models.PreCheckoutQuery{
		UserId: 1, Currency: "XTR", TotalAmount: 25, InvoicePayload: NewCampaignPayload(campaign.Id, 1),
	}
	result := env.validator.PreCheckout(ctx, contribution)
	require.True(t, result.Approved, result.Reason)
	require.Equal(t, models.PayloadKindCampaign, result.Kind)

	contribution.InvoicePayload = NewCampaignPayload(campaign.Id+100, 1)
	result = env.validator.PreCheckout(ctx, contribution)
	require.False(t, result.Approved)
	require.Equal(t, "Donation campaign not found.", result.Reason)
}

func TestPreCheckout_RepeatedFraudBans(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, false)
	product := env.product(t, models.NewProduct{Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "text"})

	for i := 0; i < testGateConfig.MaxFailures; i++ {
		require.False(t, env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 1)).Approved)
	}

	result := env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 100))
	require.False(t, result.Approved)
	require.Equal(t, "Access denied.", result.Reason)
}

func TestPreCheckout_Maintenance(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, true)
	product := env.product(t, models.NewProduct{Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "text"})

	result := env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 100))
	require.False(t, result.Approved)
	require.Contains(t, result.Reason, "maintenance")
}

func TestPreCheckout_Metrics(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, false)
	product := env.product(t, models.NewProduct{Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "text"})

	env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 100))
	env.validator.PreCheckout(ctx, productQuery(product.Id, 1, 50))

	body := scrapeMetrics(t, env.metrics)
	require.Contains(t, body, `storefront_pre_checkout_total{kind="product",outcome="approved"} 1`)
	require.Contains(t, body, `storefront_pre_checkout_total{kind="product",outcome="price_mismatch"} 1`)
	require.Contains(t, body, fmt.Sprintf("storefront_pre_checkout_duration_seconds_count %d", 2))
}

func scrapeMetrics(t *testing.T, m *metrics.BusinessMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
