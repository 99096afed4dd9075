package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/platform/db"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDiscountLimit indicates a stored discount above 100%.
	ErrDiscountLimit = errors.New("discount limit exceeded")
)

// DiscountLimitError reports which stacked discount violated its limit.
type DiscountLimitError struct {
	Position int
}

func (e *DiscountLimitError) Error() string {
	return fmt.Sprintf("Discount %d must be lower or equal than 100%%.", e.Position)
}

func (e *DiscountLimitError) Unwrap() error { return ErrDiscountLimit }

var discountLimitConstraints = map[string]int{
	"sales_order_lines_discount2_limit": 2,
	"sales_order_lines_discount3_limit": 3,
}

// OrderUpdate lists the header columns an update may change. Nil fields are
// left as stored.
type OrderUpdate struct {
	OrderDate            *time.Time
	ExpectedDeliveryDate *time.Time
	Notes                *string
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*SalesOrder, error)
	GetLine(ctx context.Context, lineID int64) (*SalesOrderLine, error)
	List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error)
	Create(ctx context.Context, order SalesOrder) (int64, error)
	Update(ctx context.Context, id int64, upd OrderUpdate) error
	UpdateTotals(ctx context.Context, id int64, subtotal, taxAmount, total decimal.Decimal) error
	InsertLine(ctx context.Context, line SalesOrderLine) (int64, error)
	UpdateLine(ctx context.Context, line SalesOrderLine) error
	// UpdateStatus moves the order to "to" only while its status is one of
	// from; otherwise it returns ErrInvalidStatus.
	UpdateStatus(ctx context.Context, id int64, from []SalesOrderStatus, to SalesOrderStatus, userID int64, reason *string) error
	DeleteLines(ctx context.Context, orderID int64) error
	GenerateNumber(ctx context.Context, companyID int64, date time.Time) (string, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, ok := r.db.(pgx.Tx); ok {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const orderColumns = `id, doc_number, company_id, customer_id, order_date, expected_delivery_date,
	status, currency, subtotal, tax_amount, total_amount, notes,
	created_by, confirmed_by, confirmed_at, cancelled_by, cancelled_at, cancellation_reason,
	created_at, updated_at`

const lineColumns = `id, sales_order_id, product_id, description, quantity, uom, unit_price,
	discount_percent, discount2, discount3, discounting_mode, discount_amount,
	tax_percent, price_subtotal, tax_amount, line_total, notes, line_order,
	created_at, updated_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(
		&o.ID, &o.DocNumber, &o.CompanyID, &o.CustomerID, &o.OrderDate, &o.ExpectedDeliveryDate,
		&o.Status, &o.Currency, &o.Subtotal, &o.TaxAmount, &o.TotalAmount, &o.Notes,
		&o.CreatedBy, &o.ConfirmedBy, &o.ConfirmedAt, &o.CancelledBy, &o.CancelledAt, &o.CancellationReason,
		&o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanLine(row pgx.Row) (SalesOrderLine, error) {
	var l SalesOrderLine
	err := row.Scan(
		&l.ID, &l.SalesOrderID, &l.ProductID, &l.Description, &l.Quantity, &l.UOM, &l.UnitPrice,
		&l.DiscountPercent, &l.Discount2, &l.Discount3, &l.DiscountingMode, &l.DiscountAmount,
		&l.TaxPercent, &l.PriceSubtotal, &l.TaxAmount, &l.LineTotal, &l.Notes, &l.LineOrder,
		&l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

func (r *repository) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+lineColumns+` FROM sales_order_lines
		WHERE sales_order_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) GetLine(ctx context.Context, lineID int64) (*SalesOrderLine, error) {
	line, err := scanLine(r.db.QueryRow(ctx, `SELECT `+lineColumns+` FROM sales_order_lines WHERE id = $1`, lineID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

func (r *repository) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	var conditions []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	add("company_id = $%d", req.CompanyID)
	if req.CustomerID != nil {
		add("customer_id = $%d", *req.CustomerID)
	}
	if req.Status != nil {
		add("status = $%d", string(*req.Status))
	}
	if req.DateFrom != nil {
		add("order_date >= $%d", *req.DateFrom)
	}
	if req.DateTo != nil {
		add("order_date <= $%d", *req.DateTo)
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM sales_orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	query := fmt.Sprintf(`SELECT %s FROM sales_orders %s
		ORDER BY order_date DESC, id DESC
		LIMIT $%d OFFSET $%d`, orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, o SalesOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_orders (
			doc_number, company_id, customer_id, order_date, expected_delivery_date,
			status, currency, subtotal, tax_amount, total_amount, notes, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		o.DocNumber, o.CompanyID, o.CustomerID, o.OrderDate, o.ExpectedDeliveryDate,
		string(o.Status), o.Currency, o.Subtotal, o.TaxAmount, o.TotalAmount, o.Notes, o.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sales order: %w", err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, upd OrderUpdate) error {
	sets := []string{"updated_at = NOW()"}
	var args []interface{}
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.OrderDate != nil {
		set("order_date", *upd.OrderDate)
	}
	if upd.ExpectedDeliveryDate != nil {
		set("expected_delivery_date", *upd.ExpectedDeliveryDate)
	}
	if upd.Notes != nil {
		set("notes", *upd.Notes)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE sales_orders SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	_, err := r.db.Exec(ctx, query, args...)
	return err
}

func (r *repository) UpdateTotals(ctx context.Context, id int64, subtotal, taxAmount, total decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales_orders
		SET subtotal = $2, tax_amount = $3, total_amount = $4, updated_at = NOW()
		WHERE id = $1`, id, subtotal, taxAmount, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InsertLine(ctx context.Context, line SalesOrderLine) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_order_lines (
			sales_order_id, product_id, description, quantity, uom, unit_price,
			discount_percent, discount2, discount3, discounting_mode, discount_amount,
			tax_percent, price_subtotal, tax_amount, line_total, notes, line_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		line.SalesOrderID, line.ProductID, line.Description, line.Quantity, line.UOM, line.UnitPrice,
		line.DiscountPercent, line.Discount2, line.Discount3, string(line.Mode()), line.DiscountAmount,
		line.TaxPercent, line.PriceSubtotal, line.TaxAmount, line.LineTotal, line.Notes, line.LineOrder,
	).Scan(&id)
	if err != nil {
		return 0, mapConstraintError(err)
	}
	return id, nil
}

func (r *repository) UpdateLine(ctx context.Context, line SalesOrderLine) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales_order_lines
		SET discount_percent = $2, discount2 = $3, discount3 = $4, discounting_mode = $5,
			discount_amount = $6, price_subtotal = $7, tax_amount = $8, line_total = $9,
			updated_at = NOW()
		WHERE id = $1`,
		line.ID, line.DiscountPercent, line.Discount2, line.Discount3, string(line.Mode()),
		line.DiscountAmount, line.PriceSubtotal, line.TaxAmount, line.LineTotal,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from []SalesOrderStatus, to SalesOrderStatus, userID int64, reason *string) error {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	switch to {
	case SalesOrderStatusConfirmed:
		tag, err = r.db.Exec(ctx, `UPDATE sales_orders
			SET status = $2, confirmed_by = $3, confirmed_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = ANY($4)`, id, string(to), userID, allowed)
	case SalesOrderStatusCancelled:
		tag, err = r.db.Exec(ctx, `UPDATE sales_orders
			SET status = $2, cancelled_by = $3, cancelled_at = NOW(), cancellation_reason = $4, updated_at = NOW()
			WHERE id = $1 AND status = ANY($5)`, id, string(to), userID, reason, allowed)
	default:
		tag, err = r.db.Exec(ctx, `UPDATE sales_orders SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = ANY($3)`, id, string(to), allowed)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d is not in %v", ErrInvalidStatus, id, from)
	}
	return nil
}

func (r *repository) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sales_order_lines WHERE sales_order_id = $1`, orderID)
	return err
}

func (r *repository) GenerateNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	// SO-{YY}{MM}-{SEQ}
	var count int64
	err := r.db.QueryRow(ctx, "SELECT count(*) FROM sales_orders WHERE company_id = $1", companyID).Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SO-%s-%04d", date.Format("0601"), count+1), nil
}

// mapConstraintError turns discount CHECK violations into DiscountLimitError.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		if pos, ok := discountLimitConstraints[pgErr.ConstraintName]; ok {
			return &DiscountLimitError{Position: pos}
		}
	}
	return err
}
