package procurement

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

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	ListItems(ctx context.Context, poID int64) ([]POItem, error)
	InsertPO(ctx context.Context, po *PurchaseOrder) error
	InsertItem(ctx context.Context, item *POItem) error
	UpdatePO(ctx context.Context, po PurchaseOrder) error
	UpdateItem(ctx context.Context, item POItem) error
	InsertTransfer(ctx context.Context, t *Transfer) error
	SumTransfers(ctx context.Context, poID int64) (decimal.Decimal, error)
	InsertLegacyTransfer(ctx context.Context, t *LegacyTransfer) error
	InsertShoppingProof(ctx context.Context, p *ShoppingProof) error
	DeletePO(ctx context.Context, id int64) error
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

const poSelect = `SELECT po.id, po.po_number, po.tanggal_po, po.dapur_id, COALESCE(d.nama_dapur, ''),
po.created_by, COALESCE(u.nama_lengkap, ''), po.status,
po.total_estimasi, po.total_approved, po.total_real, po.nominal_transfer,
COALESCE(po.catatan_admin, ''), COALESCE(po.catatan_manajer, ''), COALESCE(po.catatan_keuangan, ''), COALESCE(po.catatan_lapangan, ''), po.tanggal_belanja,
po.approved_by, COALESCE(m.nama_lengkap, ''), po.approved_at, po.processed_by_keuangan, po.tanggal_transfer,
po.transferred_by, po.transferred_at, po.shopping_completed_by, po.shopping_completed_at, po.created_at, po.updated_at
FROM purchase_orders po
LEFT JOIN dapurs d ON d.id = po.dapur_id
LEFT JOIN users u ON u.id = po.created_by
LEFT JOIN users m ON m.id = po.approved_by`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var (
		po     PurchaseOrder
		status string
	)
	err := row.Scan(&po.ID, &po.PONumber, &po.TanggalPO, &po.DapurID, &po.NamaDapur,
		&po.CreatedBy, &po.CreatedByName, &status,
		&po.TotalEstimasi, &po.TotalApproved, &po.TotalReal, &po.NominalTransfer,
		&po.CatatanAdmin, &po.CatatanManajer, &po.CatatanKeuangan, &po.CatatanLapangan, &po.TanggalBelanja,
		&po.ApprovedBy, &po.ApprovedByName, &po.ApprovedAt, &po.ProcessedByKeuangan, &po.TanggalTransfer,
		&po.TransferredBy, &po.TransferredAt, &po.ShoppingCompletedBy, &po.ShoppingCompletedAt, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	return po, nil
}

func collectPOs(rows pgx.Rows) ([]PurchaseOrder, error) {
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func getPO(ctx context.Context, q querier, id int64, lock bool) (PurchaseOrder, error) {
	sql := poSelect + ` WHERE po.id = $1`
	if lock {
		sql += ` FOR UPDATE OF po`
	}
	po, err := scanPO(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, notFound(id)
	}
	return po, err
}

const itemColumns = `id, po_id, nama_barang, COALESCE(kategori_sayuran, ''), qty_estimasi, satuan, harga_estimasi, subtotal_estimasi,
estimasi_susut, harga_modal, total_modal, harga_jual, total_harga_jual, profit, margin,
qty_real, harga_real, subtotal_real, selisih_persen, transfer_id, COALESCE(bukti_foto, '')`

func listItems(ctx context.Context, q querier, poID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM po_items WHERE po_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var it POItem
		if err := rows.Scan(&it.ID, &it.POID, &it.NamaBarang, &it.KategoriSayuran, &it.QtyEstimasi, &it.Satuan, &it.HargaEstimasi, &it.SubtotalEstimasi,
			&it.EstimasiSusut, &it.HargaModal, &it.TotalModal, &it.HargaJual, &it.TotalHargaJual, &it.Profit, &it.Margin,
			&it.QtyReal, &it.HargaReal, &it.SubtotalReal, &it.SelisihPersen, &it.TransferID, &it.BuktiFoto); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetPO returns the PO header.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, r.pool, id, false)
}

// ListItems returns the PO lines in insertion order.
func (r *Repository) ListItems(ctx context.Context, poID int64) ([]POItem, error) {
	return listItems(ctx, r.pool, poID)
}

// ListTransfers returns funding batches, newest first.
func (r *Repository) ListTransfers(ctx context.Context, poID int64) ([]Transfer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, po_id, amount, transfer_date, COALESCE(notes, ''), COALESCE(proof_image, ''), created_by, created_at
FROM po_transfers WHERE po_id = $1 ORDER BY created_at DESC, id DESC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.POID, &t.Amount, &t.TransferDate, &t.Notes, &t.ProofImage, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListShoppingProofs returns receipts in upload order.
func (r *Repository) ListShoppingProofs(ctx context.Context, poID int64) ([]ShoppingProof, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, po_id, bukti_path, tanggal_belanja, COALESCE(keterangan, ''), uploaded_by, created_at
FROM shopping_proofs WHERE po_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ShoppingProof
	for rows.Next() {
		var p ShoppingProof
		if err := rows.Scan(&p.ID, &p.POID, &p.BuktiPath, &p.TanggalBelanja, &p.Keterangan, &p.UploadedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetLegacyTransfer returns the whole-PO transfer, or nil when there is none.
func (r *Repository) GetLegacyTransfer(ctx context.Context, poID int64) (*LegacyTransfer, error) {
	var t LegacyTransfer
	err := r.pool.QueryRow(ctx, `SELECT t.id, t.po_id, t.nominal_transfer, t.tanggal_transfer, COALESCE(t.metode_transfer, ''),
COALESCE(t.nomor_rekening_tujuan, ''), t.bukti_transfer, t.transferred_by, COALESCE(u.nama_lengkap, ''), t.created_at
FROM legacy_transfers t LEFT JOIN users u ON u.id = t.transferred_by
WHERE t.po_id = $1 ORDER BY t.id DESC LIMIT 1`, poID).Scan(&t.ID, &t.POID, &t.NominalTransfer, &t.TanggalTransfer, &t.MetodeTransfer,
		&t.NomorRekeningTujuan, &t.BuktiTransfer, &t.TransferredBy, &t.TransferredByName, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListPOs returns one page of POs, newest first, and the total match count.
func (r *Repository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("po.status = $%d", len(args)))
	}
	if filter.CreatedBy != 0 {
		args = append(args, filter.CreatedBy)
		conds = append(conds, fmt.Sprintf("po.created_by = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders po`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.Limit
	args = append(args, filter.Limit, offset)
	rows, err := r.pool.Query(ctx, poSelect+where+fmt.Sprintf(" ORDER BY po.created_at DESC, po.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	pos, err := collectPOs(rows)
	if err != nil {
		return nil, 0, err
	}
	return pos, total, nil
}

var worklistOrder = map[string]string{
	OrderCreatedAsc:            "po.created_at ASC",
	OrderApprovedAsc:           "po.approved_at ASC NULLS LAST",
	OrderApprovedDesc:          "po.approved_at DESC NULLS LAST",
	OrderStatusApprovedAsc:     "po.status ASC, po.approved_at ASC NULLS LAST",
	OrderUpdatedDesc:           "po.updated_at DESC",
	OrderTransferAsc:           "po.tanggal_transfer ASC NULLS LAST",
	OrderShoppingCompletedDesc: "po.shopping_completed_at DESC NULLS LAST",
}

// ListByStatus returns POs in any of the given statuses.
func (r *Repository) ListByStatus(ctx context.Context, q StatusQuery) ([]PurchaseOrder, error) {
	statuses := make([]string, 0, len(q.Statuses))
	for _, s := range q.Statuses {
		statuses = append(statuses, string(s))
	}
	order, ok := worklistOrder[q.OrderBy]
	if !ok {
		order = "po.created_at DESC"
	}
	sql := poSelect + ` WHERE po.status = ANY($1) ORDER BY ` + order + `, po.id`
	args := []any{statuses}
	if q.Limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, q.Limit)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectPOs(rows)
}

// approvedStatuses counts as "approved" on the dashboard.
var approvedStatuses = []string{
	string(StatusApproved), string(StatusPartialTransfer), string(StatusApprovedKeuangan),
	string(StatusDanaDitransfer), string(StatusBelanjaSelesai), string(StatusClosed),
}

// Summary counts today's, pending and approved POs.
func (r *Repository) Summary(ctx context.Context, day time.Time) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT
COUNT(*) FILTER (WHERE tanggal_po = $1::date),
COUNT(*) FILTER (WHERE status = $2),
COUNT(*) FILTER (WHERE status = ANY($3))
FROM purchase_orders`, day, string(StatusWaitingApproval), approvedStatuses).Scan(&s.Today, &s.Pending, &s.Approved)
	return s, err
}

// DailyCounts returns PO counts per tanggal_po since the given day.
func (r *Repository) DailyCounts(ctx context.Context, since time.Time) ([]DailyCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT to_char(tanggal_po, 'YYYY-MM-DD'), COUNT(*)
FROM purchase_orders WHERE tanggal_po >= $1::date
GROUP BY tanggal_po ORDER BY tanggal_po`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DailyCount{}
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TopItems ranks items by ordered quantity, ignoring drafts and rejected POs.
func (r *Repository) TopItems(ctx context.Context, since time.Time, limit int) ([]TopItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.nama_barang, i.satuan, SUM(i.qty_estimasi) AS total_qty
FROM po_items i JOIN purchase_orders po ON po.id = i.po_id
WHERE po.tanggal_po >= $1::date AND po.status NOT IN ($2, $3)
GROUP BY i.nama_barang, i.satuan
ORDER BY total_qty DESC
LIMIT $4`, since, string(StatusDraft), string(StatusRejected), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TopItem{}
	for rows.Next() {
		var t TopItem
		if err := rows.Scan(&t.NamaBarang, &t.Satuan, &t.TotalQty); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, t.tx, id, true)
}

func (t *txRepo) ListItems(ctx context.Context, poID int64) ([]POItem, error) {
	return listItems(ctx, t.tx, poID)
}

func (t *txRepo) InsertPO(ctx context.Context, po *PurchaseOrder) error {
	return t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (po_number, tanggal_po, dapur_id, created_by, status, total_estimasi, catatan_admin)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
RETURNING id, created_at, updated_at`,
		po.PONumber, po.TanggalPO, po.DapurID, po.CreatedBy, string(po.Status), po.TotalEstimasi, po.CatatanAdmin,
	).Scan(&po.ID, &po.CreatedAt, &po.UpdatedAt)
}

func (t *txRepo) InsertItem(ctx context.Context, item *POItem) error {
	return t.tx.QueryRow(ctx, `INSERT INTO po_items (po_id, nama_barang, kategori_sayuran, qty_estimasi, satuan, harga_estimasi,
subtotal_estimasi, estimasi_susut, harga_modal, total_modal)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		item.POID, item.NamaBarang, item.KategoriSayuran, item.QtyEstimasi, item.Satuan, item.HargaEstimasi,
		item.SubtotalEstimasi, item.EstimasiSusut, item.HargaModal, item.TotalModal,
	).Scan(&item.ID)
}

func (t *txRepo) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET
status = $2, total_approved = $3, total_real = $4, nominal_transfer = $5,
catatan_manajer = NULLIF($6, ''), catatan_keuangan = NULLIF($7, ''), catatan_lapangan = NULLIF($8, ''),
approved_by = $9, approved_at = $10, processed_by_keuangan = $11, tanggal_transfer = $12,
transferred_by = $13, transferred_at = $14, shopping_completed_by = $15, shopping_completed_at = $16,
tanggal_belanja = $17, updated_at = NOW()
WHERE id = $1`,
		po.ID, string(po.Status), po.TotalApproved, po.TotalReal, po.NominalTransfer,
		po.CatatanManajer, po.CatatanKeuangan, po.CatatanLapangan,
		po.ApprovedBy, po.ApprovedAt, po.ProcessedByKeuangan, po.TanggalTransfer,
		po.TransferredBy, po.TransferredAt, po.ShoppingCompletedBy, po.ShoppingCompletedAt,
		po.TanggalBelanja)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(po.ID)
	}
	return nil
}

func (t *txRepo) UpdateItem(ctx context.Context, item POItem) error {
	_, err := t.tx.Exec(ctx, `UPDATE po_items SET
harga_jual = $3, total_harga_jual = $4, profit = $5, margin = $6,
qty_real = $7, harga_real = $8, subtotal_real = $9, selisih_persen = $10,
transfer_id = $11, bukti_foto = NULLIF($12, '')
WHERE id = $1 AND po_id = $2`,
		item.ID, item.POID, item.HargaJual, item.TotalHargaJual, item.Profit, item.Margin,
		item.QtyReal, item.HargaReal, item.SubtotalReal, item.SelisihPersen,
		item.TransferID, item.BuktiFoto)
	return err
}

func (t *txRepo) InsertTransfer(ctx context.Context, tr *Transfer) error {
	return t.tx.QueryRow(ctx, `INSERT INTO po_transfers (po_id, amount, transfer_date, notes, proof_image, created_by)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
RETURNING id, created_at`,
		tr.POID, tr.Amount, tr.TransferDate, tr.Notes, tr.ProofImage, tr.CreatedBy,
	).Scan(&tr.ID, &tr.CreatedAt)
}

func (t *txRepo) SumTransfers(ctx context.Context, poID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM po_transfers WHERE po_id = $1`, poID).Scan(&total)
	return total, err
}

func (t *txRepo) InsertLegacyTransfer(ctx context.Context, lt *LegacyTransfer) error {
	return t.tx.QueryRow(ctx, `INSERT INTO legacy_transfers (po_id, nominal_transfer, tanggal_transfer, metode_transfer,
nomor_rekening_tujuan, bukti_transfer, transferred_by)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
RETURNING id, created_at`,
		lt.POID, lt.NominalTransfer, lt.TanggalTransfer, lt.MetodeTransfer, lt.NomorRekeningTujuan, lt.BuktiTransfer, lt.TransferredBy,
	).Scan(&lt.ID, &lt.CreatedAt)
}

func (t *txRepo) InsertShoppingProof(ctx context.Context, p *ShoppingProof) error {
	return t.tx.QueryRow(ctx, `INSERT INTO shopping_proofs (po_id, bukti_path, tanggal_belanja, keterangan, uploaded_by)
VALUES ($1, $2, $3, NULLIF($4, ''), $5)
RETURNING id, created_at`,
		p.POID, p.BuktiPath, p.TanggalBelanja, p.Keterangan, p.UploadedBy,
	).Scan(&p.ID, &p.CreatedAt)
}

func (t *txRepo) DeletePO(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1 AND status = $2`, id, string(StatusDraft))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: PO %d tidak dapat dihapus", shared.ErrInvalidState, id)
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
