package settle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/golab/erplite/internal/shared"
)

// RepositoryPort abstracts settlement persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, record Record) (Record, error)
	Update(ctx context.Context, record Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
	Delete(ctx context.Context, id string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilter narrows List results.
type ListFilter struct {
	Partner string
	From    time.Time
	To      time.Time
}

// CreateInput describes a new settlement entry. A zero DeductionRate means
// the configured default applies.
type CreateInput struct {
	Partner         string
	Date            time.Time
	Memo            string
	Revenue         float64
	Cost            float64
	DeductionRate   float64
	PaymentReceived bool
	InvoiceIssued   bool
	Actor           string
}

// ServiceConfig carries the configured rates.
type ServiceConfig struct {
	DeductionRate float64
	FriendRate    float64
}

// Service owns settlement records and their derived split.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	cfg    ServiceConfig
}

// NewService builds Service. Zero rates fall back to the reference values.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.DeductionRate <= 0 {
		cfg.DeductionRate = DefaultDeductionRate
	}
	if cfg.FriendRate <= 0 {
		cfg.FriendRate = DefaultFriendRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, cfg: cfg}
}

// Preview computes the split without persisting anything.
func (s *Service) Preview(revenue, cost, deductionRate float64) Breakdown {
	if deductionRate <= 0 {
		deductionRate = s.cfg.DeductionRate
	}
	return Split(revenue, cost, deductionRate, s.cfg.FriendRate)
}

// Create persists a settlement with its derived split.
func (s *Service) Create(ctx context.Context, input CreateInput) (Record, error) {
	if input.Partner == "" {
		return Record{}, fmt.Errorf("settle: partner required")
	}
	rate := input.DeductionRate
	if rate <= 0 {
		rate = s.cfg.DeductionRate
	}
	b := Split(input.Revenue, input.Cost, rate, s.cfg.FriendRate)
	now := time.Now().UTC()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	record := Record{
		ID:              uuid.NewString(),
		Partner:         input.Partner,
		Date:            date,
		Memo:            input.Memo,
		Revenue:         input.Revenue,
		Cost:            input.Cost,
		DeductionRate:   rate,
		Profit:          b.Profit,
		DeductionAmount: b.DeductionAmount,
		FriendShare:     b.FriendShare,
		MyProfit:        b.MyProfit,
		PaymentReceived: input.PaymentReceived,
		InvoiceIssued:   input.InvoiceIssued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.repo.Insert(ctx, record)
	if err != nil {
		return Record{}, fmt.Errorf("settle: insert: %w", err)
	}
	s.recordAudit(ctx, input.Actor, "settlement_create", created.ID, map[string]any{
		"partner": created.Partner, "revenue": created.Revenue, "my_profit": created.MyProfit,
	}, "")
	return created, nil
}

// MarkPayment flips the payment-received flag. Reason feeds the audit trail.
func (s *Service) MarkPayment(ctx context.Context, id string, received bool, actor, reason string) (Record, error) {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("settle: load %s: %w", id, err)
	}
	record.PaymentReceived = received
	record.UpdatedAt = time.Now().UTC()
	updated, err := s.repo.Update(ctx, record)
	if err != nil {
		return Record{}, fmt.Errorf("settle: update %s: %w", id, err)
	}
	s.recordAudit(ctx, actor, "settlement_payment", id, map[string]any{"payment_received": received}, reason)
	return updated, nil
}

// Get fetches one settlement.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.Get(ctx, id)
}

// List returns settlements matching the filter plus their KPI summary.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, Summary, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("settle: list: %w", err)
	}
	return records, Summarize(records), nil
}

// Delete removes a settlement. Reason is mandatory, matching the screen flow.
func (s *Service) Delete(ctx context.Context, id, actor, reason string) error {
	if reason == "" {
		return fmt.Errorf("settle: delete reason required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("settle: delete %s: %w", id, err)
	}
	s.recordAudit(ctx, actor, "settlement_delete", id, nil, reason)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor, action, entityID string, after map[string]any, reason string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "settlement",
		EntityID: entityID,
		After:    after,
		Reason:   reason,
	})
	if err != nil {
		s.logger.Warn("audit write failed", slog.String("action", action), slog.Any("error", err))
	}
}
