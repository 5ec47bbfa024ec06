package common

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stars-storefront-go/internal/database"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const catalogYaml = `
products:
  - name: Starter guide
    price: 50
    type: text
    delivery_content: "Read me"
  - name: Game keys
    price: 100
    type: code
    discount_percentage: 10
    codes: [AAA-1, AAA-2]
  - name: Wallet top-up
    price: 45
    type: balance
    delivery_content: "50"
    stock: 5
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setupTestDb(t *testing.T) *database.Service {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "common.db"),
		MaxOpenConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestLoadCatalog(t *testing.T) {
	products, err := LoadCatalog(writeFile(t, catalogYaml))
	require.NoError(t, err)
	require.Len(t, products, 3)

	require.Equal(t, models.ProductTypeCode, products[1].Type)
	require.Equal(t, []string{"AAA-1", "AAA-2"}, products[1].Codes)
	require.Equal(t, int64(10), products[1].DiscountPercentage)
	require.NotNil(t, products[2].Stock)
	require.Equal(t, int64(5), *products[2].Stock)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	// Unknown keys are rejected
	_, err = LoadCatalog(writeFile(t, "products:\n  - name: X\n    prise: 10\n    type: text\n"))
	require.Error(t, err)

	_, err = LoadCatalog(writeFile(t, "products: []\n"))
	require.Error(t, err)

	_, err = LoadCatalog(writeFile(t, "products:\n  - name: X\n    price: 10\n    type: vinyl\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "index 0")
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDb(t)

	products, err := LoadCatalog(writeFile(t, catalogYaml))
	require.NoError(t, err)

	created, err := SeedCatalog(ctx, db, products)
	require.NoError(t, err)
	require.Equal(t, 3, created)

	created, err = SeedCatalog(ctx, db, products)
	require.NoError(t, err)
	require.Equal(t, 0, created)

	all, err := db.ListProducts(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, p := range all {
		if p.Type == models.ProductTypeCode {
			require.Equal(t, int64(2), p.Stock)
		}
	}
}

func TestLookupUsers(t *testing.T) {
	ctx := context.Background()
	db := setupTestDb(t)
	for _, id := range []int64{1, 2, 3} {
		_, _, err := db.EnsureUser(ctx, store.EnsureUserParams{UserId: id})
		require.NoError(t, err)
	}

	users, err := LookupUsers(ctx, db, 2, 0, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, int64(2), users[0].Id)

	users, err = LookupUsers(ctx, db, 0, 2, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, users, 2)

	_, err = LookupUsers(ctx, db, 99, 0, zap.NewNop())
	require.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestFormatting(t *testing.T) {
	var buf bytes.Buffer
	products := []models.Product{
		{Id: 1, Name: "Guide", Type: models.ProductTypeText, Price: 50, IsActive: true},
		{Id: 2, Name: "Keys", Type: models.ProductTypeCode, Price: 100, DiscountPercentage: 10, IsLimited: true, Stock: 3},
	}
	PrintProducts(&buf, products)
	out := buf.String()
	require.Contains(t, out, "│  #1")
	require.Contains(t, out, "└  #2")
	require.Contains(t, out, "unlimited")
	require.Contains(t, out, "100 (-10% = 90)")

	buf.Reset()
	referrer := int64(9)
	PrintUser(&buf, models.User{Id: 5, Username: "ann", FirstName: "Ann", Balance: 12, ReferrerId: &referrer, IsBanned: true, BanReason: "fraud"})
	out = buf.String()
	require.Contains(t, out, "User 5: Ann (@ann)")
	require.Contains(t, out, "Referred by 9")
	require.Contains(t, out, "BANNED: fraud")

	require.Equal(t, "-", FormatTime(nil))
}
