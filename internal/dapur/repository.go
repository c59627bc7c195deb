package dapur

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sppi/sppi-po/internal/shared"
)

// Repository provides PostgreSQL backed persistence for kitchens.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const dapurColumns = `id, kode_dapur, nama_dapur, COALESCE(lokasi, ''), COALESCE(pic_name, ''), COALESCE(pic_phone, ''),
is_active, COALESCE(keterangan, ''), created_at, updated_at`

func scanDapur(row pgx.Row) (Dapur, error) {
	var d Dapur
	err := row.Scan(&d.ID, &d.KodeDapur, &d.NamaDapur, &d.Lokasi, &d.PICName, &d.PICPhone, &d.IsActive, &d.Keterangan, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dapur{}, fmt.Errorf("dapur: %w", shared.ErrNotFound)
		}
		return Dapur{}, err
	}
	return d, nil
}

// List returns kitchens ordered by name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Dapur, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(nama_dapur ILIKE $%d OR kode_dapur ILIKE $%d)", len(args), len(args)))
	}
	query := `SELECT ` + dapurColumns + ` FROM dapurs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY nama_dapur"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Dapur
	for rows.Next() {
		d, err := scanDapur(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Get loads a kitchen by id.
func (r *Repository) Get(ctx context.Context, id int64) (Dapur, error) {
	return scanDapur(r.pool.QueryRow(ctx, `SELECT `+dapurColumns+` FROM dapurs WHERE id = $1`, id))
}

// Create inserts a kitchen.
func (r *Repository) Create(ctx context.Context, d Dapur) (Dapur, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO dapurs (kode_dapur, nama_dapur, lokasi, pic_name, pic_phone, is_active, keterangan)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''))
RETURNING `+dapurColumns, d.KodeDapur, d.NamaDapur, d.Lokasi, d.PICName, d.PICPhone, d.IsActive, d.Keterangan)
	created, err := scanDapur(row)
	if shared.IsUniqueViolation(err) {
		return Dapur{}, fmt.Errorf("%w: kode_dapur %s sudah digunakan", shared.ErrConflict, d.KodeDapur)
	}
	return created, err
}

// Update overwrites the editable fields.
func (r *Repository) Update(ctx context.Context, d Dapur) (Dapur, error) {
	row := r.pool.QueryRow(ctx, `UPDATE dapurs SET kode_dapur = $2, nama_dapur = $3, lokasi = NULLIF($4, ''), pic_name = NULLIF($5, ''),
pic_phone = NULLIF($6, ''), is_active = $7, keterangan = NULLIF($8, ''), updated_at = NOW()
WHERE id = $1 RETURNING `+dapurColumns, d.ID, d.KodeDapur, d.NamaDapur, d.Lokasi, d.PICName, d.PICPhone, d.IsActive, d.Keterangan)
	updated, err := scanDapur(row)
	if shared.IsUniqueViolation(err) {
		return Dapur{}, fmt.Errorf("%w: kode_dapur %s sudah digunakan", shared.ErrConflict, d.KodeDapur)
	}
	return updated, err
}

// Delete removes a kitchen.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM dapurs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dapur: %w", shared.ErrNotFound)
	}
	return nil
}

// CountPurchaseOrders counts POs raised for the kitchen.
func (r *Repository) CountPurchaseOrders(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE dapur_id = $1`, id).Scan(&n)
	return n, err
}

var _ RepositoryPort = (*Repository)(nil)
