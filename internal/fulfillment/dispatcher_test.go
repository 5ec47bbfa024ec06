package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stars-storefront-go/internal/database"
	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/payment"
	"stars-storefront-go/internal/store"

	"github.com/stretchr/testify/require"
)

var errProcessKilled = errors.New("process killed")

// crashingBackend is the real store, able to die once right after an order
// placement has committed
type crashingBackend struct {
	*database.Service
	crashAfterPlace atomic.Bool
}

func (c *crashingBackend) PlaceOrder(ctx context.Context, params store.PlaceOrderParams) (*store.Placement, error) {
	placement, err := c.Service.PlaceOrder(ctx, params)
	if err == nil && c.crashAfterPlace.CompareAndSwap(true, false) {
		panic(errProcessKilled)
	}
	return placement, err
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	err       error
}

func (f *fakeDeliverer) Deliver(_ context.Context, userId int64, product *models.Product, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return fmt.Errorf("%w: %w", store.ErrDeliveryFailed, f.err)
	}
	content := product.DeliveryContent
	if product.Type == models.ProductTypeCode {
		content = order.DeliveryContent
	}
	f.delivered = append(f.delivered, content)
	return nil
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) NotifyAdministrators(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatId int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[int64][]string)
	}
	f.sent[chatId] = append(f.sent[chatId], text)
	return nil
}

var testStoreConfig = models.StoreConfig{
	Currency:        "XTR",
	ReferralEnabled: true,
	ReferralReward:  10,
	PointsPerStar:   10,
	DonationMin:     1,
	DonationMax:     2500,
	SupportContact:  "@support",
}

type testEnv struct {
	backend    *crashingBackend
	deliverer  *fakeDeliverer
	notifier   *fakeNotifier
	messenger  *fakeMessenger
	dispatcher *Dispatcher
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "fulfillment.db"),
		MaxOpenConns: 8,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  30 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	env := &testEnv{
		backend:   &crashingBackend{Service: db},
		deliverer: &fakeDeliverer{},
		notifier:  &fakeNotifier{},
		messenger: &fakeMessenger{},
	}
	env.dispatcher = NewDispatcher(env.backend, env.deliverer, env.notifier, env.messenger, testStoreConfig, metrics.NewIsolated())
	return env
}

func (e *testEnv) product(t *testing.T, p models.NewProduct) *models.Product {
	t.Helper()
	created, err := e.backend.CreateProduct(context.Background(), p)
	require.NoError(t, err)
	return created
}

func productPayment(productId, userId, amount int64, chargeId string) models.SuccessfulPayment {
	return models.SuccessfulPayment{
		UserId:         userId,
		Username:       "buyer",
		FirstName:      "Buyer",
		Currency:       "XTR",
		TotalAmount:    amount,
		InvoicePayload: payment.NewProductPayload(productId, userId),
		ChargeId:       chargeId,
	}
}

func TestHandlePayment_BalanceProduct(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	product := env.product(t, models.NewProduct{
		Name: "50 Stars", Price: 45, Type: models.ProductTypeBalance, DeliveryContent: "50",
		Stock: func() *int64 { v := int64(3); return &v }(),
	})

	result := env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 45, "charge-1"))
	require.True(t, result.Success, result.Error)
	require.Equal(t, models.OrderStatusCompleted, result.Status)
	require.Equal(t, models.DeliveryStatusDelivered, result.DeliveryStatus)

	balance, err := env.backend.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
	require.Zero(t, env.deliverer.count())

	reloaded, err := env.backend.GetProduct(ctx, product.Id)
	require.NoError(t, err)
	require.Equal(t, int64(3), reloaded.Stock)

	order, err := env.backend.GetOrder(ctx, result.OrderId)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, order.Status)
	require.Equal(t, models.DeliveryStatusDelivered, order.DeliveryStatus)
	require.NotNil(t, order.CompletedAt)

	// A replayed callback changes nothing
	replay := env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 45, "charge-1"))
	require.True(t, replay.Duplicate)
	balance, err = env.backend.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
}

func TestHandlePayment_LimitedStock(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	product := env.product(t, models.NewProduct{
		Name: "Print", Price: 20, Type: models.ProductTypeFile, DeliveryContent: "file-id",
		Stock: func() *int64 { v := int64(1); return &v }(),
	})

	first := env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 20, "charge-1"))
	require.True(t, first.Success, first.Error)

	second := env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 2, 20, "charge-2"))
	require.False(t, second.Success)
	require.Equal(t, models.OrderStatusFailed, second.Status)
	require.Equal(t, models.DeliveryStatusFailed, second.DeliveryStatus)
	require.Contains(t, second.Error, store.ErrOutOfStock.Error())

	order, err := env.backend.GetOrder(ctx, second.OrderId)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusFailed, order.Status)

	reloaded, err := env.backend.GetProduct(ctx, product.Id)
	require.NoError(t, err)
	require.Equal(t, int64(0), reloaded.Stock)
	require.Equal(t, int64(1), reloaded.SalesCount)
	require.Equal(t, 1, env.deliverer.count())

	require.NotEmpty(t, env.messenger.sent[2])
	require.Contains(t, env.messenger.sent[2][len(env.messenger.sent[2])-1], "@support")
}

func TestHandlePayment_CodeProduct(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	product := env.product(t, models.NewProduct{
		Name: "Game key", Price: 30, Type: models.ProductTypeCode, Codes: []string{"KEY-1"},
	})

	result := env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 30, "charge-1"))
	require.True(t, result.Success, result.Error)
	require.Equal(t, []string{"KEY-1"}, env.deliverer.delivered)

	order, err := env.backend.GetOrder(ctx, result.OrderId)
	require.NoError(t, err)
	require.Equal(t, "KEY-1", order.DeliveryContent)

	available, err := env.backend.CountAvailableCodes(ctx, product.Id)
	require.NoError(t, err)
	require.Zero(t, available)

	// No codes left: the paid order fails
	result = env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 2, 30, "charge-2"))
	require.False(t, result.Success)
	require.Equal(t, models.OrderStatusFailed, result.Status)
	require.Contains(t, result.Error, store.ErrNoCodesAvailable.Error())
}

func TestHandlePayment_ResumesInterruptedOrder(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	product := env.product(t, models.NewProduct{
		Name: "Print", Price: 20, Type: models.ProductTypeFile, DeliveryContent: "file-id",
		Stock: func() *int64 { v := int64(3); return &v }(),
	})

	env.backend.crashAfterPlace.Store(true)
	require.PanicsWithValue(t, errProcessKilled, func() {
		env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 20, "charge-1"))
	})

	// The order and its unit of stock were committed together
	order, err := env.backend.GetOrderByPaymentId(ctx, "charge-1")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, order.Status)
	reloaded, err := env.backend.GetProduct(ctx, product.Id)
	require.NoError(t, err)
	require.Equal(t, int64(2), reloaded.Stock)
	require.Zero(t, env.deliverer.count())

	// The platform retries the same charge
	replay := env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 20, "charge-1"))
	require.True(t, replay.Success, replay.Error)
	require.False(t, replay.Duplicate)
	require.Equal(t, order.Id, replay.OrderId)
	require.Equal(t, models.OrderStatusCompleted, replay.Status)
	require.Equal(t, models.DeliveryStatusDelivered, replay.DeliveryStatus)
	require.Equal(t, 1, env.deliverer.count())

	order, err = env.backend.GetOrder(ctx, order.Id)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, order.Status)
	require.Equal(t, models.DeliveryStatusDelivered, order.DeliveryStatus)

	reloaded, err = env.backend.GetProduct(ctx, product.Id)
	require.NoError(t, err)
	require.Equal(t, int64(2), reloaded.Stock)

	user, err := env.backend.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), user.TotalPurchases)

	logs, err := env.backend.GetLogs(ctx, payment.LogTypePayment, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	require.Equal(t, payment.ActionOrderResumed, logs[0].Action)

	// Once completed, further replays are plain duplicates
	require.True(t, env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 20, "charge-1")).Duplicate)
	require.Equal(t, 1, env.deliverer.count())
}

func TestHandlePayment_ResumesInterruptedCodeAndBalanceOrders(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	key := env.product(t, models.NewProduct{
		Name: "Game key", Price: 30, Type: models.ProductTypeCode, Codes: []string{"KEY-1", "KEY-2"},
	})
	topUp := env.product(t, models.NewProduct{
		Name: "50 Stars", Price: 45, Type: models.ProductTypeBalance, DeliveryContent: "50",
	})

	env.backend.crashAfterPlace.Store(true)
	require.Panics(t, func() {
		env.dispatcher.HandlePayment(ctx, productPayment(key.Id, 1, 30, "charge-key"))
	})
	env.backend.crashAfterPlace.Store(true)
	require.Panics(t, func() {
		env.dispatcher.HandlePayment(ctx, productPayment(topUp.Id, 1, 45, "charge-topup"))
	})

	// The buyer gets the code reserved by the interrupted run
	result := env.dispatcher.HandlePayment(ctx, productPayment(key.Id, 1, 30, "charge-key"))
	require.True(t, result.Success, result.Error)
	require.Equal(t, []string{"KEY-1"}, env.deliverer.delivered)
	available, err := env.backend.CountAvailableCodes(ctx, key.Id)
	require.NoError(t, err)
	require.Equal(t, int64(1), available)

	// The credit is not booked twice
	result = env.dispatcher.HandlePayment(ctx, productPayment(topUp.Id, 1, 45, "charge-topup"))
	require.True(t, result.Success, result.Error)
	balance, err := env.backend.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)

	user, err := env.backend.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), user.TotalPurchases)
}

func TestHandlePayment_DeliveryFailure(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	env.deliverer.err = errors.New("bot was blocked by the user")
	product := env.product(t, models.NewProduct{Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "secret"})

	result := env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 100, "charge-1"))
	require.False(t, result.Success)
	require.Equal(t, models.OrderStatusCompleted, result.Status)
	require.Equal(t, models.DeliveryStatusFailed, result.DeliveryStatus)

	user, err := env.backend.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), user.TotalPurchases)
	require.Equal(t, int64(100), user.TotalSpent)

	// Manual redelivery closes the gap
	require.NoError(t, env.backend.MarkDelivered(ctx, result.OrderId))

	logs, err := env.backend.GetLogs(ctx, payment.LogTypeError, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	require.Equal(t, payment.ActionDeliveryFailed, logs[0].Action)
}

func TestHandlePayment_ReferralRewardOnFirstPurchase(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	product := env.product(t, models.NewProduct{Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "secret"})

	_, _, err := env.backend.EnsureUser(ctx, store.EnsureUserParams{UserId: 1, Username: "referrer"})
	require.NoError(t, err)
	referrerId := int64(1)
	_, _, err = env.backend.EnsureUser(ctx, store.EnsureUserParams{UserId: 2, Username: "buyer", ReferrerId: &referrerId})
	require.NoError(t, err)

	require.True(t, env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 2, 100, "charge-1")).Success)
	require.True(t, env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 2, 100, "charge-2")).Success)

	balance, err := env.backend.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, testStoreConfig.ReferralReward, balance)
}

func TestHandlePayment_MissingProduct(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	result := env.dispatcher.HandlePayment(ctx, productPayment(404, 1, 10, "charge-1"))
	require.False(t, result.Success)
	require.Equal(t, models.OrderStatusFailed, result.Status)
	require.NotZero(t, result.OrderId)
	require.NotEmpty(t, env.notifier.messages)
	require.Contains(t, env.notifier.messages[0], "integrity")
}

func TestHandlePayment_ConcurrentReplays(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	product := env.product(t, models.NewProduct{
		Name: "Print", Price: 20, Type: models.ProductTypeFile, DeliveryContent: "file-id",
		Stock: func() *int64 { v := int64(5); return &v }(),
	})

	const replays = 10
	var wg sync.WaitGroup
	var duplicates atomic.Int64
	for i := 0; i < replays; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if env.dispatcher.HandlePayment(ctx, productPayment(product.Id, 1, 20, "charge-1")).Duplicate {
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(replays-1), duplicates.Load())
	require.Equal(t, 1, env.deliverer.count())

	reloaded, err := env.backend.GetProduct(ctx, product.Id)
	require.NoError(t, err)
	require.Equal(t, int64(4), reloaded.Stock)
}

func TestHandlePayment_PayerMismatch(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	product := env.product(t, models.NewProduct{Name: "Guide", Price: 100, Type: models.ProductTypeText, DeliveryContent: "secret"})

	confirmed := productPayment(product.Id, 1, 100, "charge-1")
	confirmed.UserId = 2

	result := env.dispatcher.HandlePayment(ctx, confirmed)
	require.False(t, result.Success)
	require.Zero(t, result.OrderId)

	_, err := env.backend.GetOrderByPaymentId(ctx, "charge-1")
	require.ErrorIs(t, err, store.ErrOrderNotFound)
	require.NotEmpty(t, env.notifier.messages)
}

func TestHandlePayment_CampaignContribution(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	campaign, err := env.backend.CreateCampaign(ctx, store.CreateCampaignParams{DonorId: 9, TargetAmount: 100})
	require.NoError(t, err)

	confirmed := models.SuccessfulPayment{
		UserId:         1,
		Currency:       "XTR",
		TotalAmount:    25,
		InvoicePayload: payment.NewCampaignPayload(campaign.Id, 1),
		ChargeId:       "charge-1",
	}
	result := env.dispatcher.HandlePayment(ctx, confirmed)
	require.True(t, result.Success, result.Error)
	require.Equal(t, models.PayloadKindCampaign, result.Kind)

	require.True(t, env.dispatcher.HandlePayment(ctx, confirmed).Duplicate)

	campaign, err = env.backend.GetCampaign(ctx, campaign.Id)
	require.NoError(t, err)
	require.Equal(t, int64(25), campaign.TotalReceived)

	points, err := env.backend.GetUserPoints(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(25), points.Points)
}

func TestHandlePayment_BotDonation(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	confirmed := models.SuccessfulPayment{
		UserId:         1,
		Username:       "fan",
		Currency:       "XTR",
		TotalAmount:    300,
		InvoicePayload: payment.NewDonationPayload(1),
		ChargeId:       "charge-1",
	}
	require.True(t, env.dispatcher.HandlePayment(ctx, confirmed).Success)
	require.True(t, env.dispatcher.HandlePayment(ctx, confirmed).Duplicate)

	stats, err := env.backend.GetBotDonationStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(300), stats.TotalAmount)
	require.Equal(t, int64(1), stats.TotalDonors)

	points, err := env.backend.GetUserPoints(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(300), points.Points)
}
