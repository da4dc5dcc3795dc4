package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// OrderRepo implements ports.OrderRepository. Orders live in two tables:
// the orders row plus an append-only order_status_history.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts a new order and its initial history entry.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (id, mcp_id, customer_id, pickup_partner_id, status, amount, commission,
		payment_status, note, version, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.MCPID, o.CustomerID, o.PickupPartnerID, o.Status, o.Amount,
		o.Commission, o.PaymentStatus, o.Note, o.Version, o.CreatedAt, o.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, h := range o.StatusHistory {
		if err := r.insertHistory(ctx, r.pool, o.ID, h); err != nil {
			return err
		}
	}
	return nil
}

// GetByID fetches an order with its status history (non-locking read).
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE id = $1`, id))
	if err != nil || o == nil {
		return o, err
	}
	if err := r.loadHistory(ctx, r.pool, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByIDForUpdate fetches an order with its row locked.
// This MUST be called within a transaction.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil || o == nil {
		return o, err
	}
	if err := r.loadHistory(ctx, tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Save writes the order back with an optimistic version check and appends the
// given history entries. A version mismatch surfaces as StaleWrite. On
// success the order's in-memory version reflects the stored one.
func (r *OrderRepo) Save(ctx context.Context, tx pgx.Tx, o *domain.Order, history ...domain.StatusChange) error {
	query := `UPDATE orders SET pickup_partner_id = $1, status = $2, payment_status = $3, note = $4,
		version = version + 1, completed_at = $5
		WHERE id = $6 AND version = $7`

	tag, err := tx.Exec(ctx, query,
		o.PickupPartnerID, o.Status, o.PaymentStatus, o.Note,
		o.CompletedAt, o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrStaleWrite()
	}
	o.Version++

	for _, h := range history {
		if err := r.insertHistory(ctx, tx, o.ID, h); err != nil {
			return err
		}
	}
	return nil
}

// List fetches orders with role-scoped filtering and pagination. History is
// not loaded for listings.
func (r *OrderRepo) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.MCPID != nil {
		conditions = append(conditions, fmt.Sprintf("mcp_id = $%d", argIdx))
		args = append(args, *params.MCPID)
		argIdx++
	}
	if params.PartnerID != nil {
		conditions = append(conditions, fmt.Sprintf("pickup_partner_id = $%d", argIdx))
		args = append(args, *params.PartnerID)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		selectOrder, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o := domain.Order{}
		err := rows.Scan(
			&o.ID, &o.MCPID, &o.CustomerID, &o.PickupPartnerID, &o.Status,
			&o.Amount, &o.Commission, &o.PaymentStatus, &o.Note, &o.Version,
			&o.CreatedAt, &o.CompletedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, total, nil
}

// CountByStatus returns the order counts per status for an MCP.
func (r *OrderRepo) CountByStatus(ctx context.Context, mcpID uuid.UUID) (map[domain.OrderStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM orders WHERE mcp_id = $1 GROUP BY status`

	rows, err := r.pool.Query(ctx, query, mcpID)
	if err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int64)
	for rows.Next() {
		var status domain.OrderStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan order count row: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order count rows: %w", err)
	}
	return counts, nil
}

const selectOrder = `SELECT id, mcp_id, customer_id, pickup_partner_id, status, amount, commission,
	payment_status, note, version, created_at, completed_at
	FROM orders`

// queryExecer is satisfied by both Pool and pgx.Tx, so history helpers work
// inside and outside an explicit transaction.
type queryExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *OrderRepo) insertHistory(ctx context.Context, q queryExecer, orderID uuid.UUID, h domain.StatusChange) error {
	query := `INSERT INTO order_status_history (order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := q.Exec(ctx, query, orderID, h.Status, h.Note, h.CreatedAt); err != nil {
		return fmt.Errorf("insert order history: %w", err)
	}
	return nil
}

func (r *OrderRepo) loadHistory(ctx context.Context, q queryExecer, o *domain.Order) error {
	query := `SELECT status, note, created_at FROM order_status_history
		WHERE order_id = $1 ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, o.ID)
	if err != nil {
		return fmt.Errorf("load order history: %w", err)
	}
	defer rows.Close()

	var history []domain.StatusChange
	for rows.Next() {
		h := domain.StatusChange{}
		if err := rows.Scan(&h.Status, &h.Note, &h.CreatedAt); err != nil {
			return fmt.Errorf("scan order history row: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order history rows: %w", err)
	}
	o.StatusHistory = history
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.MCPID, &o.CustomerID, &o.PickupPartnerID, &o.Status,
		&o.Amount, &o.Commission, &o.PaymentStatus, &o.Note, &o.Version,
		&o.CreatedAt, &o.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
