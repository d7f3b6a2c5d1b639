// Package orders converts won auctions into pending orders for the checkout
// flow downstream.
package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"bidinsouk/internal/domain"
	svc "bidinsouk/internal/services/auction"
)

type PgOrderPort struct {
	db *sql.DB
}

var _ svc.OrderPort = (*PgOrderPort)(nil)

func New(db *sql.DB) *PgOrderPort { return &PgOrderPort{db: db} }

// CreatePendingOrder inserts the pending order for a won auction. The unique
// auction_id constraint makes replays after a notification retry harmless.
func (p *PgOrderPort) CreatePendingOrder(ctx context.Context, auctionID, winnerID string, amount domain.Money) error {
	const q = `INSERT INTO orders (id, auction_id, buyer_id, amount, currency, status, created_at)
	           VALUES ($1, $2, $3, $4, $5, 'PENDING', $6)
	           ON CONFLICT (auction_id) DO NOTHING`
	_, err := p.db.ExecContext(ctx, q,
		uuid.NewString(), auctionID, winnerID,
		amount.Amount(), amount.Currency(), time.Now().UTC(),
	)
	return err
}
