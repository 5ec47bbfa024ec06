package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"stars-storefront-go/internal/store"
)

func TestCreditDebit(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	mustEnsureUser(t, service, 1)

	balance, err := service.Credit(ctx, store.LedgerParams{UserId: 1, Amount: 100})
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if balance != 100 {
		t.Errorf("Expected balance 100, got %d", balance)
	}

	ok, err := service.Debit(ctx, store.LedgerParams{UserId: 1, Amount: 30})
	if err != nil || !ok {
		t.Fatalf("Debit failed: ok=%v err=%v", ok, err)
	}

	// Overdraft is refused and leaves the balance untouched
	ok, err = service.Debit(ctx, store.LedgerParams{UserId: 1, Amount: 71})
	if err != nil {
		t.Fatalf("Debit returned error: %v", err)
	}
	if ok {
		t.Error("Expected overdraft debit to fail")
	}

	balance, err = service.GetBalance(ctx, 1)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 70 {
		t.Errorf("Expected balance 70, got %d", balance)
	}

	if err := service.ReconcileBalance(ctx, 1); err != nil {
		t.Errorf("Expected balance to reconcile: %v", err)
	}

	history, err := service.GetLedgerHistory(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetLedgerHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("Expected 2 journal entries, got %d", len(history))
	}
}

func TestCreditDebit_Validation(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	mustEnsureUser(t, service, 1)

	if _, err := service.Credit(ctx, store.LedgerParams{UserId: 1, Amount: 0}); !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if _, err := service.Debit(ctx, store.LedgerParams{UserId: 1, Amount: -5}); !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if _, err := service.Credit(ctx, store.LedgerParams{UserId: 99, Amount: 5}); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
	if _, err := service.Debit(ctx, store.LedgerParams{UserId: 99, Amount: 5}); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestCredit_DuplicateReference(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	mustEnsureUser(t, service, 1)

	params := store.LedgerParams{UserId: 1, Amount: 50, Kind: store.EntryKindTopUp, Reference: "order:1:topup"}
	if _, err := service.Credit(ctx, params); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if _, err := service.Credit(ctx, params); !errors.Is(err, store.ErrDuplicatePayment) {
		t.Errorf("Expected ErrDuplicatePayment, got %v", err)
	}

	balance, _ := service.GetBalance(ctx, 1)
	if balance != 50 {
		t.Errorf("Expected balance 50 after replay, got %d", balance)
	}
}

func TestDebit_ConcurrentNeverNegative(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	mustEnsureUser(t, service, 1)
	if _, err := service.Credit(ctx, store.LedgerParams{UserId: 1, Amount: 10}); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := service.Debit(ctx, store.LedgerParams{UserId: 1, Amount: 1})
			if err != nil {
				t.Errorf("Debit failed: %v", err)
				return
			}
			if ok {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 10 {
		t.Errorf("Expected exactly 10 successful debits, got %d", succeeded.Load())
	}
	balance, _ := service.GetBalance(ctx, 1)
	if balance != 0 {
		t.Errorf("Expected balance 0, got %d", balance)
	}
}

func TestTransfer(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	mustEnsureUser(t, service, 1)
	mustEnsureUser(t, service, 2)
	if _, err := service.Credit(ctx, store.LedgerParams{UserId: 1, Amount: 40}); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	ok, err := service.Transfer(ctx, store.TransferParams{FromId: 1, ToId: 2, Amount: 25})
	if err != nil || !ok {
		t.Fatalf("Transfer failed: ok=%v err=%v", ok, err)
	}

	ok, err = service.Transfer(ctx, store.TransferParams{FromId: 1, ToId: 2, Amount: 100})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if ok {
		t.Error("Expected uncovered transfer to fail")
	}

	// Crediting a missing user rolls back the debit
	if _, err := service.Transfer(ctx, store.TransferParams{FromId: 1, ToId: 99, Amount: 5}); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}

	from, _ := service.GetBalance(ctx, 1)
	to, _ := service.GetBalance(ctx, 2)
	if from != 15 || to != 25 {
		t.Errorf("Expected balances 15/25, got %d/%d", from, to)
	}

	if _, err := service.Transfer(ctx, store.TransferParams{FromId: 1, ToId: 1, Amount: 1}); !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for self transfer, got %v", err)
	}

	mismatches, err := service.ReconcileAllBalances(ctx)
	if err != nil {
		t.Fatalf("ReconcileAllBalances failed: %v", err)
	}
	if len(mismatches) != 0 {
		t.Errorf("Expected no mismatches, got %+v", mismatches)
	}
}

func TestReconcileBalance_DetectsDrift(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	mustEnsureUser(t, service, 1)

	if _, err := service.db.ExecContext(ctx, "UPDATE users SET balance = 7 WHERE user_id = 1"); err != nil {
		t.Fatalf("Failed to corrupt balance: %v", err)
	}

	if err := service.ReconcileBalance(ctx, 1); err == nil {
		t.Error("Expected reconciliation error")
	}
	mismatches, err := service.ReconcileAllBalances(ctx)
	if err != nil {
		t.Fatalf("ReconcileAllBalances failed: %v", err)
	}
	if len(mismatches) != 1 || mismatches[0].Balance != 7 || mismatches[0].JournalSum != 0 {
		t.Errorf("Unexpected mismatches: %+v", mismatches)
	}
}
