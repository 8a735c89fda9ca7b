package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/logger"
)

const orderColumns = `o.id, o.itinerary_id, o.trip_date, o.number_of_members, o.total_amount::text,
	o.created_by, o.order_status, o.created_at, o.updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(p *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: p}
}

func (p *OrderRepository) AddOrder(ctx context.Context, o *domain.Order) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// no-op after a successful commit
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO travel.orders
			(id, itinerary_id, trip_date, number_of_members, total_amount,
			 created_by, order_status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5::numeric,
			 $6, $7, $8, $9)
	`,
		o.ID,
		o.Itinerary.ID,
		o.Date,
		o.NumberOfMembers,
		o.TotalAmount.String(),
		o.CreatedBy.ID,
		string(o.OrderStatus),
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrOrderAlreadyExists
		}
		logger.Warn("insert into orders failed", "order_id", o.ID, "err", err)
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, m := range o.Members {
		batch.Queue(`
			INSERT INTO travel.order_members
				(order_id, position, user_id, username, email,
				 payment_share, payment_status, payment_slip, updated_at)
			VALUES
				($1, $2, $3, $4, $5,
				 $6::numeric, $7, $8, $9)
		`,
			o.ID,
			i,
			m.UserID,
			m.Username,
			m.Email,
			m.PaymentShare.String(),
			string(m.PaymentStatus),
			m.PaymentSlip,
			o.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order members: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (p *OrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM travel.orders o WHERE o.id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order %s: %w", id, err)
	}
	if err := p.attachMembers(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *OrderRepository) MarkMemberPaid(ctx context.Context, orderID, userID uuid.UUID, slip *string, at time.Time) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE travel.order_members
		SET payment_status = $3,
		    payment_slip   = COALESCE($4, payment_slip),
		    updated_at     = $5
		WHERE order_id = $1 AND user_id = $2
	`, orderID, userID, string(domain.PaymentPaid), slip, at)
	if err != nil {
		return fmt.Errorf("update member payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM travel.orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return fmt.Errorf("check order %s: %w", orderID, err)
		}
		if !exists {
			return apperr.ErrOrderNotFound
		}
		return apperr.ErrMemberNotInOrder
	}

	if _, err := tx.Exec(ctx, `UPDATE travel.orders SET updated_at = $2 WHERE id = $1`, orderID, at); err != nil {
		return fmt.Errorf("touch order: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *OrderRepository) MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE travel.orders
		SET updated_at   = CASE WHEN order_status = $3 THEN updated_at ELSE $2 END,
		    order_status = $3
		WHERE id = $1
	`, id, at, string(domain.OrderPaid))
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrOrderNotFound
	}
	return nil
}

func (p *OrderRepository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM travel.orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrOrderNotFound
	}
	return nil
}

func (p *OrderRepository) ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("o.order_status = $%d", len(args)))
	}
	if f.AllMembersPaid {
		args = append(args, string(domain.PaymentPaid))
		where = append(where, fmt.Sprintf(`NOT EXISTS (
			SELECT 1 FROM travel.order_members m
			WHERE m.order_id = o.id AND m.payment_status <> $%d)`, len(args)))
	}

	q := `SELECT ` + orderColumns + ` FROM travel.orders o`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY o.created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return p.queryOrders(ctx, q, args...)
}

func (p *OrderRepository) ListOrdersByMember(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return p.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM travel.orders o
		WHERE o.id IN (SELECT order_id FROM travel.order_members WHERE user_id = $1)
		ORDER BY o.created_at DESC
	`, userID)
}

func (p *OrderRepository) queryOrders(ctx context.Context, q string, args ...any) ([]*domain.Order, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if err := p.attachMembers(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachMembers loads member rows for all orders in one query.
func (p *OrderRepository) attachMembers(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID.String())
		byID[o.ID] = o
		o.Members = []domain.PaymentRecord{}
	}

	rows, err := p.pool.Query(ctx, `
		SELECT order_id, user_id, username, email, payment_share::text, payment_status, payment_slip
		FROM travel.order_members
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("query order members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID uuid.UUID
			m       domain.PaymentRecord
			share   string
			status  string
		)
		if err := rows.Scan(&orderID, &m.UserID, &m.Username, &m.Email, &share, &status, &m.PaymentSlip); err != nil {
			return fmt.Errorf("scan order member: %w", err)
		}
		if m.PaymentShare, err = decimal.NewFromString(share); err != nil {
			return fmt.Errorf("parse payment share %q: %w", share, err)
		}
		m.PaymentStatus = domain.PaymentStatus(status)
		if o, ok := byID[orderID]; ok {
			o.Members = append(o.Members, m)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o      domain.Order
		total  string
		status string
	)
	err := row.Scan(
		&o.ID,
		&o.Itinerary.ID,
		&o.Date,
		&o.NumberOfMembers,
		&total,
		&o.CreatedBy.ID,
		&status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total amount %q: %w", total, err)
	}
	o.OrderStatus = domain.OrderStatus(status)
	return &o, nil
}
