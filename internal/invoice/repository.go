package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sppi/sppi-po/internal/platform/db"
	"github.com/sppi/sppi-po/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const invoiceSelect = `SELECT i.id, i.invoice_number, i.year, i.seq, i.dapur_id,
COALESCE(d.kode_dapur, ''), COALESCE(d.nama_dapur, ''), COALESCE(d.lokasi, ''),
i.tanggal_invoice, i.periode_start, i.periode_end, COALESCE(i.up_nama, ''), i.total_amount, i.status,
COALESCE(i.metode_pembayaran, ''), i.sisa_tagihan, COALESCE(i.pdf_url, ''),
i.created_by, COALESCE(u.nama_lengkap, ''), i.issued_at, i.paid_at, i.created_at
FROM invoices i
LEFT JOIN dapurs d ON d.id = i.dapur_id
LEFT JOIN users u ON u.id = i.created_by`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv    Invoice
		status string
	)
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.Year, &inv.Seq, &inv.DapurID,
		&inv.KodeDapur, &inv.NamaDapur, &inv.DapurLokasi,
		&inv.TanggalInvoice, &inv.PeriodeStart, &inv.PeriodeEnd, &inv.UpNama, &inv.TotalAmount, &status,
		&inv.MetodePembayaran, &inv.SisaTagihan, &inv.PDFURL,
		&inv.CreatedBy, &inv.CreatedByName, &inv.IssuedAt, &inv.PaidAt, &inv.CreatedAt)
	if err != nil {
		return Invoice{}, err
	}
	inv.Status = Status(status)
	return inv, nil
}

func getInvoice(ctx context.Context, q querier, id int64, lock bool) (Invoice, error) {
	sql := invoiceSelect + ` WHERE i.id = $1`
	if lock {
		sql += ` FOR UPDATE OF i`
	}
	inv, err := scanInvoice(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, notFound(id)
	}
	return inv, err
}

func notFound(id int64) error {
	return fmt.Errorf("%w: invoice %d tidak ditemukan", shared.ErrNotFound, id)
}

// candidateSQL selects completed POs of a kitchen in the period that no
// invoice references yet.
const candidateSQL = `SELECT po.id, po.po_number, po.tanggal_po, COALESCE(SUM(it.total_harga_jual), 0)
FROM purchase_orders po
LEFT JOIN po_items it ON it.po_id = po.id
WHERE po.dapur_id = $1
  AND po.status = 'BELANJA_SELESAI'
  AND po.tanggal_po BETWEEN $2 AND $3
  AND NOT EXISTS (SELECT 1 FROM invoice_items ii WHERE ii.po_id = po.id)
GROUP BY po.id, po.po_number, po.tanggal_po
ORDER BY po.tanggal_po ASC, po.id ASC`

func candidates(ctx context.Context, q querier, p Period) ([]Candidate, error) {
	rows, err := q.Query(ctx, candidateSQL, p.DapurID, p.Start, p.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.POID, &c.PONumber, &c.TanggalPO, &c.TotalJual); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns the invoice header.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	return getInvoice(ctx, r.pool, id, false)
}

// ListItems returns the invoiced POs ordered by id.
func (r *Repository) ListItems(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, po_id, po_number, tanggal_po, nominal
FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.POID, &it.PONumber, &it.TanggalPO, &it.Nominal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns invoices newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var (
		where []string
		args  []any
	)
	if filter.DapurID > 0 {
		args = append(args, filter.DapurID)
		where = append(where, fmt.Sprintf("i.dapur_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("i.status = $%d", len(args)))
	}
	sql := invoiceSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	sql += fmt.Sprintf(" ORDER BY i.created_at DESC, i.id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Candidates lists billable POs outside a transaction.
func (r *Repository) Candidates(ctx context.Context, p Period) ([]Candidate, error) {
	return candidates(ctx, r.pool, p)
}

// SetPDFURL records where the rendered PDF was stored.
func (r *Repository) SetPDFURL(ctx context.Context, id int64, url string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET pdf_url = $2 WHERE id = $1`, id, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (t *txRepo) Candidates(ctx context.Context, p Period) ([]Candidate, error) {
	return candidates(ctx, t.tx, p)
}

// NextSequence increments the per-year counter. The row lock it takes
// serialises concurrent generates of the same year.
func (t *txRepo) NextSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_sequences (year, last_seq) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET last_seq = invoice_sequences.last_seq + 1
RETURNING last_seq`, year).Scan(&seq)
	return seq, err
}

func (t *txRepo) Insert(ctx context.Context, inv *Invoice) error {
	return t.tx.QueryRow(ctx, `INSERT INTO invoices (invoice_number, year, seq, dapur_id, tanggal_invoice, periode_start, periode_end,
up_nama, total_amount, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)
RETURNING id, created_at`,
		inv.InvoiceNumber, inv.Year, inv.Seq, inv.DapurID, inv.TanggalInvoice, inv.PeriodeStart, inv.PeriodeEnd,
		inv.UpNama, inv.TotalAmount, string(inv.Status), inv.CreatedBy).Scan(&inv.ID, &inv.CreatedAt)
}

func (t *txRepo) InsertItem(ctx context.Context, item *Item) error {
	return t.tx.QueryRow(ctx, `INSERT INTO invoice_items (invoice_id, po_id, po_number, tanggal_po, nominal)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.InvoiceID, item.POID, item.PONumber, item.TanggalPO, item.Nominal).Scan(&item.ID)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return getInvoice(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateStatus(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $2, metode_pembayaran = NULLIF($3, ''), sisa_tagihan = $4,
issued_at = $5, paid_at = $6 WHERE id = $1`,
		inv.ID, string(inv.Status), inv.MetodePembayaran, inv.SisaTagihan, inv.IssuedAt, inv.PaidAt)
	return err
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND status = 'DRAFT'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: hanya invoice DRAFT yang dapat dihapus", shared.ErrInvalidState)
	}
	return nil
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)
