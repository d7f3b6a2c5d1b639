// Package auctionstore is the Postgres persistence collaborator for the
// auction engine. All mutations for one auction run inside a transaction
// that holds a row lock on the auction (SELECT ... FOR UPDATE NOWAIT), so
// concurrent writers serialize; a contended lock surfaces as domain.ErrBusy
// after a short retry budget instead of blocking the caller.
package auctionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"bidinsouk/internal/domain"
	svc "bidinsouk/internal/services/auction"
)

const (
	lockRetries = 3
	lockBackoff = 50 * time.Millisecond
)

type Store struct {
	db *sql.DB
}

var _ svc.Store = (*Store)(nil)

func New(db *sql.DB) *Store { return &Store{db: db} }

// WithTx runs fn inside a transaction. Lock contention and serialization
// failures re-run the whole unit with backoff; once the budget is spent the
// caller gets domain.ErrBusy.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx svc.TxStore) error) error {
	b := retry.WithMaxRetries(lockRetries, retry.NewConstant(lockBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.runTx(ctx, fn)
		if errors.Is(err, domain.ErrBusy) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx svc.TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

var _ svc.TxStore = (*txStore)(nil)

const auctionCols = `id, product_id, seller_id, currency, starting_price, reserve_price,
       current_bid, min_increment, start_at, end_at, state, bid_count,
       leader_id, winner_id, anti_snipe_window_ms, anti_snipe_ext_ms,
       max_extensions, extension_count, last_extended_bid_id, cancel_reason,
       created_at, updated_at`

func (t *txStore) InsertAuction(ctx context.Context, a *domain.Auction) error {
	const q = `INSERT INTO auctions (` + auctionCols + `)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	_, err := t.tx.ExecContext(ctx, q, auctionArgs(a)...)
	return err
}

func (t *txStore) LoadAuctionForUpdate(ctx context.Context, id string) (*domain.Auction, error) {
	const q = `SELECT ` + auctionCols + ` FROM auctions WHERE id = $1 FOR UPDATE NOWAIT`
	a, err := scanAuction(t.tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) &&
			(pgErr.Code == pgerrcode.LockNotAvailable || pgErr.Code == pgerrcode.SerializationFailure) {
			return nil, fmt.Errorf("auction %s locked: %w", id, domain.ErrBusy)
		}
		return nil, err
	}
	return a, nil
}

func (t *txStore) SaveAuction(ctx context.Context, a *domain.Auction) error {
	const q = `UPDATE auctions
	      SET current_bid = $2, start_at = $3, end_at = $4, state = $5,
	          bid_count = $6, leader_id = $7, winner_id = $8,
	          extension_count = $9, last_extended_bid_id = $10,
	          cancel_reason = $11, updated_at = $12
	    WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, q,
		a.ID, a.CurrentBid.Amount(), nullTime(a.StartAt), nullTime(a.EndAt),
		string(a.State), a.BidCount, a.LeaderID, a.WinnerID,
		a.ExtensionCount, a.LastExtendedBidID, a.CancelReason, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrAuctionNotFound
	}
	return err
}

func (t *txStore) InsertBids(ctx context.Context, bids []domain.Bid) error {
	const q = `INSERT INTO bids (id, auction_id, bidder_id, amount, currency,
	                             placed_at, is_automatic, proxy_max)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	           ON CONFLICT (id) DO NOTHING`
	for _, b := range bids {
		var proxyMax sql.NullInt64
		if b.ProxyMaxAmount != nil {
			proxyMax = sql.NullInt64{Int64: b.ProxyMaxAmount.Amount(), Valid: true}
		}
		if _, err := t.tx.ExecContext(ctx, q,
			b.ID, b.AuctionID, b.BidderID, b.Amount.Amount(), b.Amount.Currency(),
			b.PlacedAt, b.IsAutomatic, proxyMax,
		); err != nil {
			return err
		}
	}
	return nil
}

func (t *txStore) LoadActiveMandates(ctx context.Context, auctionID string) ([]*domain.AutoBidMandate, error) {
	const q = `SELECT id, auction_id, bidder_id, max_amount, increment, currency, active, created_at
	             FROM auto_bid_mandates
	            WHERE auction_id = $1 AND active
	            ORDER BY created_at, id`
	rows, err := t.tx.QueryContext(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AutoBidMandate
	for rows.Next() {
		var (
			m         domain.AutoBidMandate
			maxAmt    int64
			increment int64
			currency  string
		)
		if err := rows.Scan(&m.ID, &m.AuctionID, &m.BidderID,
			&maxAmt, &increment, &currency, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.MaxAmount, err = domain.NewMoney(maxAmt, currency); err != nil {
			return nil, err
		}
		if m.Increment, err = domain.NewMoney(increment, currency); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (t *txStore) SaveMandate(ctx context.Context, m *domain.AutoBidMandate) error {
	const q = `INSERT INTO auto_bid_mandates (id, auction_id, bidder_id, max_amount,
	                                          increment, currency, active, created_at)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	           ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`
	_, err := t.tx.ExecContext(ctx, q,
		m.ID, m.AuctionID, m.BidderID, m.MaxAmount.Amount(),
		m.Increment.Amount(), m.MaxAmount.Currency(), m.Active, m.CreatedAt,
	)
	return err
}

func (t *txStore) DeactivateMandate(ctx context.Context, auctionID, bidderID string) error {
	const q = `UPDATE auto_bid_mandates SET active = FALSE
	            WHERE auction_id = $1 AND bidder_id = $2 AND active`
	_, err := t.tx.ExecContext(ctx, q, auctionID, bidderID)
	return err
}

// ---------------------------------------------------------------------------
// Read-only path
// ---------------------------------------------------------------------------

func (s *Store) GetAuction(ctx context.Context, id string) (*domain.Auction, error) {
	const q = `SELECT ` + auctionCols + ` FROM auctions WHERE id = $1`
	a, err := scanAuction(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuctionNotFound
	}
	return a, err
}

func (s *Store) ListAuctions(ctx context.Context, state string, limit, offset int) ([]domain.Auction, error) {
	base := `SELECT ` + auctionCols + ` FROM auctions`
	var (
		rows *sql.Rows
		err  error
	)
	if state != "" {
		rows, err = s.db.QueryContext(ctx,
			base+` WHERE state = $1 ORDER BY end_at DESC NULLS LAST LIMIT $2 OFFSET $3`,
			state, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			base+` ORDER BY end_at DESC NULLS LAST LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]domain.Auction, 0, limit)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func (s *Store) ListDueForActivation(ctx context.Context, now time.Time) ([]string, error) {
	const q = `SELECT id FROM auctions WHERE state = 'SCHEDULED' AND start_at <= $1`
	return s.listIDs(ctx, q, now)
}

func (s *Store) ListDueForEndingSoon(ctx context.Context, now time.Time, window time.Duration) ([]string, error) {
	const q = `SELECT id FROM auctions WHERE state = 'ACTIVE' AND end_at <= $1`
	return s.listIDs(ctx, q, now.Add(window))
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	const q = `SELECT id FROM auctions
	            WHERE state IN ('ACTIVE','ENDING_SOON') AND end_at <= $1`
	return s.listIDs(ctx, q, now)
}

func (s *Store) listIDs(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---------------------------------------------------------------------------
// Row mapping
// ---------------------------------------------------------------------------

func auctionArgs(a *domain.Auction) []any {
	var reserve sql.NullInt64
	if a.ReservePrice != nil {
		reserve = sql.NullInt64{Int64: a.ReservePrice.Amount(), Valid: true}
	}
	return []any{
		a.ID, a.ProductID, a.SellerID, a.Currency(),
		a.StartingPrice.Amount(), reserve,
		a.CurrentBid.Amount(), a.MinIncrement.Amount(),
		nullTime(a.StartAt), nullTime(a.EndAt), string(a.State), a.BidCount,
		a.LeaderID, a.WinnerID,
		a.AntiSnipeWindow.Milliseconds(), a.AntiSnipeExtension.Milliseconds(),
		a.MaxExtensions, a.ExtensionCount, a.LastExtendedBidID, a.CancelReason,
		a.CreatedAt, a.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var (
		a          domain.Auction
		currency   string
		starting   int64
		reserve    sql.NullInt64
		currentBid int64
		minInc     int64
		startAt    sql.NullTime
		endAt      sql.NullTime
		state      string
		windowMs   int64
		extMs      int64
	)
	err := row.Scan(
		&a.ID, &a.ProductID, &a.SellerID, &currency, &starting, &reserve,
		&currentBid, &minInc, &startAt, &endAt, &state, &a.BidCount,
		&a.LeaderID, &a.WinnerID, &windowMs, &extMs,
		&a.MaxExtensions, &a.ExtensionCount, &a.LastExtendedBidID, &a.CancelReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.StartingPrice, err = domain.NewMoney(starting, currency); err != nil {
		return nil, err
	}
	if a.CurrentBid, err = domain.NewMoney(currentBid, currency); err != nil {
		return nil, err
	}
	if a.MinIncrement, err = domain.NewMoney(minInc, currency); err != nil {
		return nil, err
	}
	if reserve.Valid {
		r, err := domain.NewMoney(reserve.Int64, currency)
		if err != nil {
			return nil, err
		}
		a.ReservePrice = &r
	}
	a.StartAt = startAt.Time
	a.EndAt = endAt.Time
	a.State = domain.AuctionState(state)
	a.AntiSnipeWindow = time.Duration(windowMs) * time.Millisecond
	a.AntiSnipeExtension = time.Duration(extMs) * time.Millisecond
	return &a, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
