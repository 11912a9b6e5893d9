package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/golab/erplite/internal/jobs"
	"github.com/golab/erplite/internal/ledger"
)

// TaskTypeLowStockScan is the task type for the daily low-stock digest.
const TaskTypeLowStockScan = "inventory:low_stock_scan"

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock digest.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// LowStockStore is the read-only slice of the item store the scan needs.
type LowStockStore interface {
	QueryLowStock(ctx context.Context) ([]ledger.Item, error)
}

// Enqueuer submits follow-up delivery tasks.
type Enqueuer interface {
	EnqueueAlertDeliver(ctx context.Context, payload AlertDeliverPayload) (*asynq.TaskInfo, error)
}

// LowStockScanJob builds a digest of every item below its minimum and fans it
// out to the configured sinks. The watcher covers individual crossings; the
// digest is the morning summary for items that stayed low overnight.
type LowStockScanJob struct {
	Store   LowStockStore
	Client  Enqueuer
	Sinks   []string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	printer *message.Printer
	clock   func() time.Time
}

// NewLowStockScanJob initialises the digest handler.
func NewLowStockScanJob(store LowStockStore, client Enqueuer, sinks []string, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Store:   store,
		Client:  client,
		Sinks:   sinks,
		Logger:  logger,
		Metrics: metrics,
		printer: message.NewPrinter(language.Korean),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the digest scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil || j.Client == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := j.now()

	items, err := j.Store.QueryLowStock(ctx)
	if err != nil {
		resultErr = err
		logger.Error("low stock query failed", slog.Any("error", err))
		return resultErr
	}
	if len(items) == 0 {
		logger.Info("low stock digest skipped, nothing below minimum")
		return resultErr
	}

	text := j.Digest(items)
	enqueued := 0
	for _, sink := range j.Sinks {
		if sink == "" {
			continue
		}
		if _, err := j.Client.EnqueueAlertDeliver(ctx, AlertDeliverPayload{
			SinkID: sink,
			Text:   text,
			Kind:   "LOW_STOCK_DIGEST",
		}); err != nil {
			resultErr = err
			logger.Error("enqueue digest delivery", slog.String("sink", sink), slog.Any("error", err))
			continue
		}
		enqueued++
	}

	logger.Info("completed low stock digest",
		slog.Int("items", len(items)),
		slog.Int("deliveries", enqueued),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// Digest renders the summary text for the given low-stock items.
func (j *LowStockScanJob) Digest(items []ledger.Item) string {
	var b strings.Builder
	b.WriteString(j.printer.Sprintf("📋 재고 부족 현황 (%d건)\n", len(items)))
	for _, item := range items {
		unit := item.Unit
		if unit == "" {
			unit = "EA"
		}
		name := item.Name
		if item.SKU != "" {
			name += " (" + item.SKU + ")"
		}
		marker := "⚠️"
		if item.QtyOnHand <= 0 {
			marker = "🔴"
		}
		b.WriteString(j.printer.Sprintf("\n%s %s\n   수량: %d / 최소: %d %s",
			marker, name, roundQty(item.QtyOnHand), roundQty(item.QtyMin), unit))
	}
	b.WriteString("\n\n매입 검토가 필요합니다.")
	return b.String()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskTypeLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func roundQty(v float64) int64 {
	return int64(math.Round(v))
}
