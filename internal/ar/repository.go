package ar

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sales-discount/internal/platform/db"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("ar: not found")

// Repository provides PostgreSQL backed persistence for AR.
type Repository struct {
	pool *pgxpool.Pool
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn reads through the caller's transaction when there is one.
func (r *Repository) conn(ctx context.Context) querier {
	return db.Conn[querier](ctx, r.pool)
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// CreateARInvoice inserts the invoice header.
func (t *txRepo) CreateARInvoice(ctx context.Context, inv ARInvoice) (int64, error) {
	var createdBy pgtype.Int8
	if inv.CreatedBy > 0 {
		createdBy = pgtype.Int8{Int64: inv.CreatedBy, Valid: true}
	}
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ar_invoices (
			number, customer_id, so_id, currency,
			subtotal, tax_amount, total, status, due_at, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		inv.Number, inv.CustomerID, inv.SOID, inv.Currency,
		inv.Subtotal, inv.TaxAmount, inv.Total, string(inv.Status), inv.DueAt, createdBy,
		inv.CreatedAt, inv.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ar: insert invoice: %w", err)
	}
	return id, nil
}

// CreateARInvoiceLine inserts a priced invoice line.
func (t *txRepo) CreateARInvoiceLine(ctx context.Context, line ARInvoiceLine) (int64, error) {
	var soLineID pgtype.Int8
	if line.SOLineID > 0 {
		soLineID = pgtype.Int8{Int64: line.SOLineID, Valid: true}
	}
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ar_invoice_lines (
			ar_invoice_id, so_line_id, product_id, description,
			quantity, unit_price, discount_pct, discount2, discount3, discounting_mode, tax_pct,
			subtotal, tax_amount, total, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		RETURNING id`,
		line.ARInvoiceID, soLineID, line.ProductID, line.Description,
		line.Quantity, line.UnitPrice, line.DiscountPct, line.Discount2, line.Discount3,
		string(line.DiscountingMode), line.TaxPct,
		line.Subtotal, line.TaxAmount, line.Total,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ar: insert invoice line: %w", err)
	}
	return id, nil
}

// GetARInvoice retrieves an invoice with its lines.
func (r *Repository) GetARInvoice(ctx context.Context, id int64) (*ARInvoiceWithLines, error) {
	var inv ARInvoiceWithLines
	var createdBy pgtype.Int8
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, number, customer_id, so_id, currency,
			subtotal, tax_amount, total, status, due_at,
			created_by, created_at, updated_at
		FROM ar_invoices
		WHERE id = $1`, id).Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &inv.SOID, &inv.Currency,
		&inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.Status, &inv.DueAt,
		&createdBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.CreatedBy = createdBy.Int64

	lines, err := r.listLines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return &inv, nil
}

func (r *Repository) listLines(ctx context.Context, invoiceID int64) ([]ARInvoiceLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, ar_invoice_id, so_line_id, product_id, description,
			quantity, unit_price, discount_pct, discount2, discount3, discounting_mode, tax_pct,
			subtotal, tax_amount, total, created_at
		FROM ar_invoice_lines
		WHERE ar_invoice_id = $1
		ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []ARInvoiceLine
	for rows.Next() {
		var l ARInvoiceLine
		var soLineID pgtype.Int8
		if err := rows.Scan(
			&l.ID, &l.ARInvoiceID, &soLineID, &l.ProductID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.DiscountPct, &l.Discount2, &l.Discount3, &l.DiscountingMode, &l.TaxPct,
			&l.Subtotal, &l.TaxAmount, &l.Total, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		l.SOLineID = soLineID.Int64
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
