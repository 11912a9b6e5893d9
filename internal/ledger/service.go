package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/golab/erplite/internal/costing"
	"github.com/golab/erplite/internal/shared"
)

// Store abstracts item persistence. PutItem performs a compare-and-swap on
// Item.Version and returns shared.ErrConflict when another writer got there
// first; GetItem returns shared.ErrNotFound for unknown ids.
type Store interface {
	GetItem(ctx context.Context, id string) (Item, error)
	PutItem(ctx context.Context, item Item) (Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	QueryLowStock(ctx context.Context) ([]Item, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdemPort matches shared.IdempotencyStore. A nil port disables the check.
type IdemPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "ledger"

// MetricsPort counts successfully applied events. A nil port is a no-op.
type MetricsPort interface {
	AddEventApplied(kind string)
}

// Service coordinates ledger operations against the store, retrying version
// conflicts and pairing every successful apply with an audit write.
type Service struct {
	store       Store
	audit       AuditPort
	idem        IdemPort
	metrics     MetricsPort
	logger      *slog.Logger
	maxAttempts int
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// MaxAttempts bounds the optimistic-concurrency retry loop. Zero means 3.
	MaxAttempts int
	Metrics     MetricsPort
}

// NewService builds Service. audit and idem may be nil.
func NewService(store Store, audit AuditPort, idem IdemPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, idem: idem, metrics: cfg.Metrics, logger: logger, maxAttempts: attempts}
}

// ApplyResult is what callers get back from a mutation: the before/after
// snapshots plus whether the audit entry actually landed. Audit failure is
// reported, never fatal.
type ApplyResult struct {
	Applied
	AuditRecorded bool
}

// CreateItemInput describes a new item registration.
type CreateItemInput struct {
	Name            string
	SKU             string
	Unit            string
	QtyMin          float64
	InitialQty      float64
	InitialUnitCost float64
	Actor           string
	Reason          string
}

// ReceiptInput posts an inbound purchase lot.
type ReceiptInput struct {
	ItemID         string
	Qty            float64
	UnitCost       float64
	Actor          string
	Reason         string
	IdempotencyKey string
}

// IssueInput posts an outbound delivery.
type IssueInput struct {
	ItemID         string
	Qty            float64
	DeliveryTo     string
	Actor          string
	Reason         string
	IdempotencyKey string
}

// AdjustInput overwrites the on-hand quantity.
type AdjustInput struct {
	ItemID         string
	TargetQty      float64
	Actor          string
	Reason         string
	IdempotencyKey string
}

// StatusInput applies a manual status override. Reason is mandatory.
type StatusInput struct {
	ItemID string
	Status Status
	Actor  string
	Reason string
}

// CreateItem registers a new item. The initial status comes from the
// evaluator applied to the seed quantity, never from the caller.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	if input.Name == "" {
		return Item{}, &InvalidEventError{Kind: "CREATE", Detail: "name required"}
	}
	if input.QtyMin < 0 || input.InitialQty < 0 || input.InitialUnitCost < 0 {
		return Item{}, &InvalidEventError{Kind: "CREATE", Detail: "quantities and cost must be >= 0"}
	}
	now := time.Now().UTC()
	qty, avg := costing.MovingAverageReceive(0, 0, input.InitialQty, input.InitialUnitCost)
	unit := input.Unit
	if unit == "" {
		unit = "EA"
	}
	item := Item{
		ID:         uuid.NewString(),
		Name:       input.Name,
		SKU:        input.SKU,
		Unit:       unit,
		QtyOnHand:  qty,
		QtyMin:     input.QtyMin,
		AvgCost:    avg,
		AssetValue: costing.RoundCurrency(qty * avg),
		Status:     EvaluateStatus(qty, input.QtyMin, StatusNormal),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := s.store.CreateItem(ctx, item)
	if err != nil {
		return Item{}, fmt.Errorf("ledger: create item: %w", err)
	}
	s.recordAudit(ctx, input.Actor, "item_create", created.ID, nil, snapshot(created), input.Reason)
	return created, nil
}

// PostReceipt applies a RECEIPT event with optimistic retry.
func (s *Service) PostReceipt(ctx context.Context, input ReceiptInput) (ApplyResult, error) {
	event := CostedEvent{Kind: KindReceipt, Qty: input.Qty, UnitCost: input.UnitCost, Reason: input.Reason}
	res, err := s.withIdempotency(ctx, input.IdempotencyKey, func() (ApplyResult, error) {
		return s.applyWithRetry(ctx, input.ItemID, "item_receipt", input.Actor, input.Reason, func(item Item) (Applied, error) {
			return Apply(item, event)
		})
	})
	return s.counted(KindReceipt, res, err)
}

// PostIssue applies an ISSUE event. DeliveryTo updates the informational
// last-delivery fields, last-write-wins.
func (s *Service) PostIssue(ctx context.Context, input IssueInput) (ApplyResult, error) {
	event := CostedEvent{Kind: KindIssue, Qty: input.Qty, Reason: input.Reason}
	res, err := s.withIdempotency(ctx, input.IdempotencyKey, func() (ApplyResult, error) {
		return s.applyWithRetry(ctx, input.ItemID, "item_issue", input.Actor, input.Reason, func(item Item) (Applied, error) {
			applied, err := Apply(item, event)
			if err != nil {
				return Applied{}, err
			}
			if input.DeliveryTo != "" {
				applied.After.LastDeliveryTo = input.DeliveryTo
				applied.After.LastDeliveredAt = time.Now().UTC()
			}
			return applied, nil
		})
	})
	return s.counted(KindIssue, res, err)
}

// PostAdjustment overwrites the quantity via an ADJUST event.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustInput) (ApplyResult, error) {
	event := CostedEvent{Kind: KindAdjust, Qty: input.TargetQty, Reason: input.Reason}
	res, err := s.withIdempotency(ctx, input.IdempotencyKey, func() (ApplyResult, error) {
		return s.applyWithRetry(ctx, input.ItemID, "item_adjust", input.Actor, input.Reason, func(item Item) (Applied, error) {
			return Apply(item, event)
		})
	})
	return s.counted(KindAdjust, res, err)
}

// PostStocktake is an adjustment whose reason is mandatory.
func (s *Service) PostStocktake(ctx context.Context, input AdjustInput) (ApplyResult, error) {
	if input.Reason == "" {
		return ApplyResult{}, &InvalidEventError{Kind: KindStocktake, Detail: "reason required"}
	}
	event := CostedEvent{Kind: KindStocktake, Qty: input.TargetQty, Reason: input.Reason}
	res, err := s.withIdempotency(ctx, input.IdempotencyKey, func() (ApplyResult, error) {
		return s.applyWithRetry(ctx, input.ItemID, "item_stocktake", input.Actor, input.Reason, func(item Item) (Applied, error) {
			return Apply(item, event)
		})
	})
	return s.counted(KindStocktake, res, err)
}

// OverrideStatus applies a manual status change, bypassing the evaluator.
func (s *Service) OverrideStatus(ctx context.Context, input StatusInput) (ApplyResult, error) {
	if input.Reason == "" {
		return ApplyResult{}, &InvalidEventError{Kind: "STATUS", Detail: "reason required"}
	}
	return s.applyWithRetry(ctx, input.ItemID, "item_status_change", input.Actor, input.Reason, func(item Item) (Applied, error) {
		return OverrideStatus(item, input.Status)
	})
}

// GetItem fetches one item.
func (s *Service) GetItem(ctx context.Context, id string) (Item, error) {
	return s.store.GetItem(ctx, id)
}

// ListItems returns all items.
func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.store.ListItems(ctx)
}

// QueryLowStock returns non-deleted items below minimum or out of stock.
func (s *Service) QueryLowStock(ctx context.Context) ([]Item, error) {
	return s.store.QueryLowStock(ctx)
}

// ResolveImportCode classifies a purchase-import code against the known item
// codes (SKU when present, otherwise name). It never creates an item.
func (s *Service) ResolveImportCode(ctx context.Context, code string) (costing.Match, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return costing.Match{}, fmt.Errorf("ledger: list items: %w", err)
	}
	codes := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Deleted() {
			continue
		}
		if item.SKU != "" {
			codes[item.SKU] = struct{}{}
		} else {
			codes[item.Name] = struct{}{}
		}
	}
	return costing.ResolveItemMatch(codes, code)
}

// counted bumps the applied-events counter on success.
func (s *Service) counted(kind EventKind, res ApplyResult, err error) (ApplyResult, error) {
	if err == nil && s.metrics != nil {
		s.metrics.AddEventApplied(string(kind))
	}
	return res, err
}

// withIdempotency claims the key before running fn and releases it when fn
// fails, so the caller can retry with the same key.
func (s *Service) withIdempotency(ctx context.Context, key string, fn func() (ApplyResult, error)) (ApplyResult, error) {
	if key == "" || s.idem == nil {
		return fn()
	}
	if err := s.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return ApplyResult{}, err
	}
	res, err := fn()
	if err != nil {
		if delErr := s.idem.Delete(ctx, key); delErr != nil {
			s.logger.Warn("idempotency rollback failed", slog.String("key", key), slog.Any("error", delErr))
		}
	}
	return res, err
}

func (s *Service) applyWithRetry(ctx context.Context, itemID, action, actor, reason string, fn func(Item) (Applied, error)) (ApplyResult, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		item, err := s.store.GetItem(ctx, itemID)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("ledger: load item %s: %w", itemID, err)
		}
		applied, err := fn(item)
		if err != nil {
			return ApplyResult{}, err
		}
		applied.After.UpdatedAt = time.Now().UTC()
		stored, err := s.store.PutItem(ctx, applied.After)
		if err != nil {
			if errors.Is(err, shared.ErrConflict) {
				lastErr = err
				s.logger.Warn("ledger apply conflict, retrying",
					slog.String("item_id", itemID),
					slog.String("action", action),
					slog.Int("attempt", attempt+1),
				)
				continue
			}
			return ApplyResult{}, fmt.Errorf("ledger: put item %s: %w", itemID, err)
		}
		applied.After = stored
		result := ApplyResult{Applied: applied}
		result.AuditRecorded = s.recordAudit(ctx, actor, action, itemID, snapshot(applied.Before), snapshot(applied.After), reason)
		return result, nil
	}
	return ApplyResult{}, fmt.Errorf("ledger: apply %s on %s: %w", action, itemID, lastErr)
}

func (s *Service) recordAudit(ctx context.Context, actor, action, entityID string, before, after map[string]any, reason string) bool {
	if s.audit == nil {
		return false
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "item",
		EntityID: entityID,
		Before:   before,
		After:    after,
		Reason:   reason,
	})
	if err != nil {
		s.logger.Warn("audit write failed", slog.String("action", action), slog.Any("error", err))
		return false
	}
	return true
}

func snapshot(item Item) map[string]any {
	return map[string]any{
		"qty_on_hand": item.QtyOnHand,
		"qty_min":     item.QtyMin,
		"avg_cost":    item.AvgCost,
		"asset_value": item.AssetValue,
		"status":      string(item.Status),
	}
}
