package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestInTx_NoPool(t *testing.T) {
	err := NewTransactor(nil).InTx(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn should not run without a pool")
		return nil
	})
	if err == nil || err.Error() != "no database connection in context" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "appointment_slot_holder_uniq"}
	wrapped := errors.Join(errors.New("insert appointment"), err)

	if !IsUniqueViolation(wrapped, "") {
		t.Error("expected any-constraint match")
	}
	if !IsUniqueViolation(wrapped, "appointment_slot_holder_uniq") {
		t.Error("expected named constraint match")
	}
	if IsUniqueViolation(wrapped, "users_email_key") {
		t.Error("expected other constraint not to match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Error("plain error is not a unique violation")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(pgx.ErrNoRows) {
		t.Error("expected pgx.ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("expected other error not to match")
	}
}
