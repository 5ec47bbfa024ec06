package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"
)

// setupTestDb opens a migrated database in a temporary file. A file is used
// instead of :memory: so that every pooled connection sees the same data.
func setupTestDb(t *testing.T) (*Service, func()) {
	t.Helper()

	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "store.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	cleanup := func() {
		service.Close()
	}
	return service, cleanup
}

func mustEnsureUser(t *testing.T, service *Service, userId int64) *models.User {
	t.Helper()
	user, _, err := service.EnsureUser(context.Background(), store.EnsureUserParams{
		UserId:    userId,
		Username:  "user",
		FirstName: "Test",
	})
	if err != nil {
		t.Fatalf("Failed to ensure user %d: %v", userId, err)
	}
	return user
}

func mustCreateProduct(t *testing.T, service *Service, product models.NewProduct) *models.Product {
	t.Helper()
	created, err := service.CreateProduct(context.Background(), product)
	if err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return created
}

func int64Ptr(v int64) *int64 { return &v }

func stringPtr(v string) *string { return &v }

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()

	if _, err := NewService(ctx, models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}); err == nil {
		t.Error("Expected error for empty path")
	}
	if _, err := NewService(ctx, models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}); err == nil {
		t.Error("Expected error for zero max open connections")
	}
	if _, err := NewService(ctx, models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1}); err == nil {
		t.Error("Expected error for zero ping timeout")
	}
}

func TestNewService_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	cfg := models.DatabaseConfig{
		Path:         path,
		MaxOpenConns: 2,
		PingTimeout:  5 * time.Second,
	}

	first, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("First open failed: %v", err)
	}
	first.Close()

	second, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Second open failed: %v", err)
	}
	defer second.Close()

	version, dirty, err := second.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected clean version 1, got version=%d dirty=%v", version, dirty)
	}
}
