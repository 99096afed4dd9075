package orders

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
)

type memoryRepo struct {
	mu          sync.Mutex
	orders      map[int64]SalesOrder
	lines       map[int64]SalesOrderLine
	nextOrderID int64
	nextLineID  int64
	updateErr   error
	// statusErr fails the next transition into the keyed status once.
	statusErr map[SalesOrderStatus]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:    map[int64]SalesOrder{},
		lines:     map[int64]SalesOrderLine{},
		statusErr: map[SalesOrderStatus]error{},
	}
}

type memTxKey struct{}

// memTx collects undo steps of collaborators writing inside the transaction.
type memTx struct {
	undo []func()
}

func onRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

// WithTx restores orders and lines, and runs registered undo steps, when fn fails.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, nested := ctx.Value(memTxKey{}).(*memTx); nested {
		return fn(ctx, r)
	}
	r.mu.Lock()
	orders, lines := maps.Clone(r.orders), maps.Clone(r.lines)
	r.mu.Unlock()

	tx := &memTx{}
	err := fn(context.WithValue(ctx, memTxKey{}, tx), r)
	if err != nil {
		r.mu.Lock()
		r.orders, r.lines = orders, lines
		r.mu.Unlock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
	}
	return err
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Lines = nil
	for _, l := range r.lines {
		if l.SalesOrderID == id {
			o.Lines = append(o.Lines, l)
		}
	}
	sort.Slice(o.Lines, func(i, j int) bool { return o.Lines[i].LineOrder < o.Lines[j].LineOrder })
	return &o, nil
}

func (r *memoryRepo) GetLine(ctx context.Context, lineID int64) (*SalesOrderLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lines[lineID]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (r *memoryRepo) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SalesOrder
	for _, o := range r.orders {
		if o.CompanyID != req.CompanyID {
			continue
		}
		if req.Status != nil && o.Status != *req.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if req.Offset >= total {
		return nil, total, nil
	}
	out = out[req.Offset:]
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, total, nil
}

func (r *memoryRepo) Create(ctx context.Context, o SalesOrder) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextOrderID++
	o.ID = r.nextOrderID
	o.Lines = nil
	o.CreatedAt = time.Now()
	r.orders[o.ID] = o
	return o.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, upd OrderUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	if upd.OrderDate != nil {
		o.OrderDate = *upd.OrderDate
	}
	if upd.Notes != nil {
		o.Notes = upd.Notes
	}
	r.orders[id] = o
	return nil
}

func (r *memoryRepo) UpdateTotals(ctx context.Context, id int64, subtotal, taxAmount, total decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Subtotal, o.TaxAmount, o.TotalAmount = subtotal, taxAmount, total
	r.orders[id] = o
	return nil
}

// checkLimits mirrors the discount CHECK constraints.
func checkLimits(line SalesOrderLine) error {
	if line.Discount2 > 100 {
		return &DiscountLimitError{Position: 2}
	}
	if line.Discount3 > 100 {
		return &DiscountLimitError{Position: 3}
	}
	return nil
}

func (r *memoryRepo) InsertLine(ctx context.Context, line SalesOrderLine) (int64, error) {
	if err := checkLimits(line); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLineID++
	line.ID = r.nextLineID
	line.DiscountingMode = line.Mode()
	r.lines[line.ID] = line
	return line.ID, nil
}

func (r *memoryRepo) UpdateLine(ctx context.Context, line SalesOrderLine) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if err := checkLimits(line); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lines[line.ID]; !ok {
		return ErrNotFound
	}
	r.lines[line.ID] = line
	return nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, from []SalesOrderStatus, status SalesOrderStatus, userID int64, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.statusErr[status]; err != nil {
		delete(r.statusErr, status)
		return err
	}
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	if !slices.Contains(from, o.Status) {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidStatus, id, o.Status)
	}
	o.Status = status
	switch status {
	case SalesOrderStatusConfirmed:
		o.ConfirmedBy = &userID
	case SalesOrderStatusCancelled:
		o.CancelledBy = &userID
		o.CancellationReason = reason
	}
	r.orders[id] = o
	return nil
}

func (r *memoryRepo) DeleteLines(ctx context.Context, orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, l := range r.lines {
		if l.SalesOrderID == orderID {
			delete(r.lines, id)
		}
	}
	return nil
}

func (r *memoryRepo) GenerateNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int
	for _, o := range r.orders {
		if o.CompanyID == companyID {
			count++
		}
	}
	return fmt.Sprintf("SO-%s-%04d", date.Format("0601"), count+1), nil
}

// setLineMode writes a raw mode bypassing request validation.
func (r *memoryRepo) setLineMode(lineID int64, mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.lines[lineID]
	l.DiscountingMode = discount.Mode(mode)
	r.lines[lineID] = l
}
