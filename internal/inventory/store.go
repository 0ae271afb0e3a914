package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrInsufficientStock is returned when a decrement would take on-hand
// quantity below zero.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// DBTX is the pgx surface the store needs; *pgxpool.Pool and pgx.Tx both
// satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store adjusts stock levels. It is normally constructed over the same
// transaction that posts the invoice, so a failed decrement rolls the posting
// back with it.
type Store struct {
	db DBTX
}

func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// Decrement reduces on-hand stock for a product. The guard in the WHERE
// clause makes the check-and-decrement atomic under concurrent posts.
func (s *Store) Decrement(ctx context.Context, productID int64, quantity int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE stock_levels SET on_hand = on_hand - $2, updated_at = NOW()
		WHERE product_id = $1 AND on_hand >= $2`, productID, quantity)
	if err != nil {
		return fmt.Errorf("inventory: decrement product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", ErrInsufficientStock, productID)
	}
	return nil
}

// OnHand reports the current on-hand quantity for a product.
func (s *Store) OnHand(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := s.db.QueryRow(ctx, `SELECT on_hand FROM stock_levels WHERE product_id = $1`, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: product %d", ErrInsufficientStock, productID)
		}
		return 0, fmt.Errorf("inventory: on hand product %d: %w", productID, err)
	}
	return qty, nil
}
