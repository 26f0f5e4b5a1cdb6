package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/pkg/database"
)

const (
	upsertOrderSQL = `
		INSERT INTO orders (id, customer_id, customer_email, address_id, shipping_option,
			total_amount, status, order_date, estimated_delivery, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			customer_email  = EXCLUDED.customer_email,
			address_id      = EXCLUDED.address_id,
			shipping_option = EXCLUDED.shipping_option,
			total_amount    = EXCLUDED.total_amount,
			status          = EXCLUDED.status,
			updated_at      = EXCLUDED.updated_at`

	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	insertItemSQL = `
		INSERT INTO order_items (order_id, position, product_id, name, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// Items are folded into one JSONB column to avoid a query per order.
	selectOrdersSQL = `
		SELECT
			o.id, o.customer_id, o.customer_email, o.address_id, o.shipping_option,
			o.total_amount::text, o.status, o.order_date, o.estimated_delivery, o.updated_at,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'product_id', oi.product_id,
						'name', oi.name,
						'quantity', oi.quantity,
						'price', oi.price::text
					) ORDER BY oi.position
				) FILTER (WHERE oi.order_id IS NOT NULL),
				'[]'::jsonb
			) AS items
		FROM orders o
		LEFT JOIN order_items oi ON o.id = oi.order_id`

	groupOrdersSQL = `
		GROUP BY o.id, o.customer_id, o.customer_email, o.address_id, o.shipping_option,
			o.total_amount, o.status, o.order_date, o.estimated_delivery, o.updated_at`

	findByIDSQL       = selectOrdersSQL + ` WHERE o.id = $1` + groupOrdersSQL
	findByCustomerSQL = selectOrdersSQL + ` WHERE o.customer_id = $1` + groupOrdersSQL + ` ORDER BY o.order_date DESC`
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	db database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(db database.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save upserts the order row and replaces its items in one transaction.
func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) (err error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	ctx, end := database.TraceQuery(ctx, "SaveOrder", upsertOrderSQL)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, upsertOrderSQL,
		o.ID,
		o.CustomerID,
		nullString(o.CustomerEmail),
		o.AddressID,
		o.ShippingOption,
		o.TotalAmount.StringFixed(2),
		string(o.Status),
		o.OrderDate,
		o.EstimatedDelivery,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	if _, err = tx.Exec(ctx, deleteItemsSQL, o.ID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}

	for i, item := range o.Items {
		_, err = tx.Exec(ctx, insertItemSQL,
			o.ID,
			i,
			item.ProductID,
			item.Name,
			item.Quantity,
			item.Price.StringFixed(2),
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FindByOrderID retrieves an order by ID, including its items.
func (r *OrderRepository) FindByOrderID(ctx context.Context, id string) (_ *domain.Order, err error) {
	// orders.id is a UUID column; anything else cannot match a row.
	if _, perr := uuid.Parse(id); perr != nil {
		return nil, domain.OrderNotFound(id)
	}

	ctx, end := database.TraceQuery(ctx, "FindOrderByID", findByIDSQL)
	defer func() { end(err) }()

	o, err := scanOrder(r.db.QueryRow(ctx, findByIDSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.OrderNotFound(id)
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

// FindByCustomerID lists a customer's orders, newest first.
func (r *OrderRepository) FindByCustomerID(ctx context.Context, customerID string) (_ []domain.Order, err error) {
	ctx, end := database.TraceQuery(ctx, "FindOrdersByCustomer", findByCustomerSQL)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, findByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// storedItem mirrors the JSONB item object, with price kept as text.
type storedItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o         domain.Order
		email     *string
		total     string
		status    string
		itemsJSON []byte
	)

	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&email,
		&o.AddressID,
		&o.ShippingOption,
		&total,
		&status,
		&o.OrderDate,
		&o.EstimatedDelivery,
		&o.UpdatedAt,
		&itemsJSON,
	)
	if err != nil {
		return nil, err
	}

	if email != nil {
		o.CustomerEmail = *email
	}
	o.Status = domain.OrderStatus(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total_amount %q: %w", total, err)
	}

	var stored []storedItem
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &stored); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}
	o.Items = make([]domain.OrderItem, len(stored))
	for i, s := range stored {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return nil, fmt.Errorf("parse item price %q: %w", s.Price, err)
		}
		o.Items[i] = domain.OrderItem{ProductID: s.ProductID, Name: s.Name, Quantity: s.Quantity, Price: price}
	}

	return &o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
