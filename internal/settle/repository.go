package settle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/golab/erplite/internal/shared"
)

// Repository persists settlements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, partner, settled_on, memo, revenue, cost, deduction_rate, profit, deduction_amount, friend_share, my_profit, payment_received, invoice_issued, created_at, updated_at`

func (r *Repository) Insert(ctx context.Context, record Record) (Record, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO settlements (`+recordColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		record.ID, record.Partner, record.Date, record.Memo, record.Revenue, record.Cost,
		record.DeductionRate, record.Profit, record.DeductionAmount, record.FriendShare,
		record.MyProfit, record.PaymentReceived, record.InvoiceIssued, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (r *Repository) Update(ctx context.Context, record Record) (Record, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE settlements SET partner=$2, settled_on=$3, memo=$4, revenue=$5, cost=$6, deduction_rate=$7, profit=$8, deduction_amount=$9, friend_share=$10, my_profit=$11, payment_received=$12, invoice_issued=$13, updated_at=$14 WHERE id=$1`,
		record.ID, record.Partner, record.Date, record.Memo, record.Revenue, record.Cost,
		record.DeductionRate, record.Profit, record.DeductionAmount, record.FriendShare,
		record.MyProfit, record.PaymentReceived, record.InvoiceIssued, record.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, shared.ErrNotFound
	}
	return record, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM settlements WHERE id=$1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.ErrNotFound
		}
		return Record{}, err
	}
	return record, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM settlements WHERE 1=1`
	args := []any{}
	if filter.Partner != "" {
		args = append(args, filter.Partner)
		query += ` AND partner=$` + itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND settled_on >= $` + itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND settled_on <= $` + itoa(len(args))
	}
	query += ` ORDER BY settled_on DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM settlements WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var record Record
	var settledOn, createdAt, updatedAt time.Time
	err := row.Scan(&record.ID, &record.Partner, &settledOn, &record.Memo, &record.Revenue,
		&record.Cost, &record.DeductionRate, &record.Profit, &record.DeductionAmount,
		&record.FriendShare, &record.MyProfit, &record.PaymentReceived, &record.InvoiceIssued,
		&createdAt, &updatedAt)
	if err != nil {
		return Record{}, err
	}
	record.Date = settledOn
	record.CreatedAt = createdAt
	record.UpdatedAt = updatedAt
	return record, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
