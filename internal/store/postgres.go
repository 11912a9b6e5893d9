// Package store implements the persistence collaborators of the engine: the
// PostgreSQL item store with optimistic version checks, and the redis-backed
// change feed the low-stock watcher subscribes to.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/golab/erplite/internal/ledger"
	"github.com/golab/erplite/internal/shared"
	"github.com/golab/erplite/internal/watch"
)

// Publisher pushes item changes onto the change feed. May be nil.
type Publisher interface {
	Publish(ctx context.Context, change watch.Change) error
}

// ItemStore persists ledger items in PostgreSQL and publishes every
// successful write to the change feed.
type ItemStore struct {
	pool   *pgxpool.Pool
	feed   Publisher
	logger *slog.Logger
}

// NewItemStore constructs ItemStore. feed may be nil when no watcher runs.
func NewItemStore(pool *pgxpool.Pool, feed Publisher, logger *slog.Logger) *ItemStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemStore{pool: pool, feed: feed, logger: logger}
}

const itemColumns = `id, name, sku, unit, qty_on_hand, qty_min, avg_cost, asset_value, status, last_delivery_to, last_delivered_at, version, created_at, updated_at`

// GetItem loads one item, mapping missing rows to shared.ErrNotFound.
func (s *ItemStore) GetItem(ctx context.Context, id string) (ledger.Item, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Item{}, shared.ErrNotFound
		}
		return ledger.Item{}, err
	}
	return item, nil
}

// PutItem writes the item back, comparing the version it was read at. A
// concurrent writer bumps the version and the update matches zero rows, which
// surfaces as shared.ErrConflict so the caller can re-read and retry.
func (s *ItemStore) PutItem(ctx context.Context, item ledger.Item) (ledger.Item, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE items SET name=$2, sku=$3, unit=$4, qty_on_hand=$5, qty_min=$6, avg_cost=$7, asset_value=$8, status=$9, last_delivery_to=$10, last_delivered_at=$11, version=version+1, updated_at=$12 WHERE id=$1 AND version=$13`,
		item.ID, item.Name, item.SKU, item.Unit, item.QtyOnHand, item.QtyMin, item.AvgCost,
		item.AssetValue, string(item.Status), item.LastDeliveryTo, nullableTime(item.LastDeliveredAt),
		item.UpdatedAt, item.Version)
	if err != nil {
		return ledger.Item{}, err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetItem(ctx, item.ID); errors.Is(err, shared.ErrNotFound) {
			return ledger.Item{}, shared.ErrNotFound
		}
		return ledger.Item{}, shared.ErrConflict
	}
	item.Version++
	s.publish(ctx, watch.Change{Kind: watch.ChangeModified, Item: item})
	return item, nil
}

// CreateItem inserts a new item at version 0.
func (s *ItemStore) CreateItem(ctx context.Context, item ledger.Item) (ledger.Item, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO items (`+itemColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		item.ID, item.Name, item.SKU, item.Unit, item.QtyOnHand, item.QtyMin, item.AvgCost,
		item.AssetValue, string(item.Status), item.LastDeliveryTo, nullableTime(item.LastDeliveredAt),
		item.Version, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return ledger.Item{}, err
	}
	s.publish(ctx, watch.Change{Kind: watch.ChangeCreated, Item: item})
	return item, nil
}

// ListItems returns every item, most recently updated first.
func (s *ItemStore) ListItems(ctx context.Context) ([]ledger.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY updated_at DESC`)
}

// QueryLowStock returns non-deleted items below minimum or out of stock.
func (s *ItemStore) QueryLowStock(ctx context.Context) ([]ledger.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE status <> 'DELETED' AND (qty_on_hand < qty_min OR qty_on_hand <= 0) ORDER BY updated_at DESC`)
}

func (s *ItemStore) queryItems(ctx context.Context, query string, args ...any) ([]ledger.Item, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// publish is best effort: a feed outage must not fail the write it follows.
func (s *ItemStore) publish(ctx context.Context, change watch.Change) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, change); err != nil {
		s.logger.Warn("publish item change", slog.String("item_id", change.Item.ID), slog.Any("error", err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (ledger.Item, error) {
	var item ledger.Item
	var status string
	var lastDeliveredAt *time.Time
	err := row.Scan(&item.ID, &item.Name, &item.SKU, &item.Unit, &item.QtyOnHand, &item.QtyMin,
		&item.AvgCost, &item.AssetValue, &status, &item.LastDeliveryTo, &lastDeliveredAt,
		&item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return ledger.Item{}, err
	}
	item.Status = ledger.Status(status)
	if lastDeliveredAt != nil {
		item.LastDeliveredAt = *lastDeliveredAt
	}
	return item, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
