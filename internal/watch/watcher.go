// Package watch converts a stream of item snapshots into at-most-one
// notification per threshold-crossing episode.
package watch

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/golab/erplite/internal/ledger"
	"github.com/golab/erplite/internal/shared"
)

// ChangeKind tags a change-feed entry.
type ChangeKind string

const (
	// ChangeCreated is a newly created item snapshot.
	ChangeCreated ChangeKind = "created"
	// ChangeModified is an updated item snapshot.
	ChangeModified ChangeKind = "modified"
	// ChangeRemoved is a physically removed document. Items are soft-deleted
	// so this normally never fires; it is ignored either way.
	ChangeRemoved ChangeKind = "removed"
)

// Change is one entry of the item change feed.
type Change struct {
	Kind ChangeKind  `json:"kind"`
	Item ledger.Item `json:"item"`
}

// AlertKind distinguishes alert urgency.
type AlertKind string

const (
	// AlertLowStock fires when quantity drops below minimum but stays positive.
	AlertLowStock AlertKind = "LOW_STOCK"
	// AlertOutOfStock fires when quantity reaches zero.
	AlertOutOfStock AlertKind = "OUT_OF_STOCK"
)

// Alert carries everything a sink message needs.
type Alert struct {
	Kind      AlertKind
	ItemID    string
	Name      string
	SKU       string
	Unit      string
	Qty       float64
	Min       float64
	Shortfall float64
}

// Notifier delivers one message to one sink. Delivery errors are treated as
// non-fatal by the watcher.
type Notifier interface {
	Send(ctx context.Context, sinkID, text string) error
}

// AuditRecorder matches shared.AuditLogger; alert audit writes are best effort.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts emitted alerts. A nil port is a no-op.
type MetricsPort interface {
	AddAlertEmitted(kind string)
}

// Config tunes watcher behaviour.
type Config struct {
	// Sinks lists the notification recipients (chat ids).
	Sinks []string
	// ReemitOnOut re-alerts when an item already flagged low-stock hits zero.
	// Off by default to avoid alert fatigue.
	ReemitOnOut bool
	Metrics     MetricsPort
}

type memberState struct {
	outAlerted bool
}

// Watcher owns its membership state; multiple watchers can coexist and be
// torn down independently.
type Watcher struct {
	mu       sync.Mutex
	members  map[string]*memberState
	seeded   bool
	notifier Notifier
	audit    AuditRecorder
	logger   *slog.Logger
	cfg      Config
	printer  *message.Printer
}

// New builds a Watcher. audit may be nil.
func New(notifier Notifier, audit AuditRecorder, logger *slog.Logger, cfg Config) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		members:  make(map[string]*memberState),
		notifier: notifier,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
		printer:  message.NewPrinter(language.Korean),
	}
}

// Seed records the currently low-stock items without emitting anything, so a
// watcher (re)start does not produce a notification storm.
func (w *Watcher) Seed(items []ledger.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, item := range items {
		if item.Deleted() {
			continue
		}
		if item.QtyOnHand < item.QtyMin || item.QtyOnHand <= 0 {
			w.members[item.ID] = &memberState{outAlerted: item.QtyOnHand <= 0}
		}
	}
	w.seeded = true
	w.logger.Info("low stock watcher seeded", slog.Int("members", len(w.members)))
}

// Run drains the change feed until the context is cancelled or the feed
// closes. The feed is restartable only by re-subscribing upstream.
func (w *Watcher) Run(ctx context.Context, feed <-chan Change) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-feed:
			if !ok {
				return nil
			}
			w.HandleChange(ctx, change)
		}
	}
}

// HandleChange classifies one change. Only modified snapshots of non-deleted
// items participate; created and removed entries pass through untouched.
func (w *Watcher) HandleChange(ctx context.Context, change Change) {
	if change.Kind != ChangeModified {
		return
	}
	item := change.Item
	if item.Deleted() {
		return
	}

	qty := item.QtyOnHand
	min := item.QtyMin

	w.mu.Lock()
	if !w.seeded {
		// Changes racing ahead of the initial snapshot register silently,
		// exactly as the snapshot itself would.
		if qty < min || qty <= 0 {
			w.members[item.ID] = &memberState{outAlerted: qty <= 0}
		}
		w.mu.Unlock()
		return
	}
	state, isMember := w.members[item.ID]
	var alert *Alert
	switch {
	case qty > 0 && qty < min && !isMember:
		w.members[item.ID] = &memberState{}
		alert = w.buildAlert(AlertLowStock, item)
	case qty <= 0 && !isMember:
		w.members[item.ID] = &memberState{outAlerted: true}
		alert = w.buildAlert(AlertOutOfStock, item)
	case qty <= 0 && isMember && w.cfg.ReemitOnOut && !state.outAlerted:
		state.outAlerted = true
		alert = w.buildAlert(AlertOutOfStock, item)
	case qty >= min && isMember:
		// Silent recovery.
		delete(w.members, item.ID)
	}
	w.mu.Unlock()

	if alert != nil {
		w.emit(ctx, *alert)
	}
}

func (w *Watcher) buildAlert(kind AlertKind, item ledger.Item) *Alert {
	return &Alert{
		Kind:      kind,
		ItemID:    item.ID,
		Name:      item.Name,
		SKU:       item.SKU,
		Unit:      item.Unit,
		Qty:       item.QtyOnHand,
		Min:       item.QtyMin,
		Shortfall: item.Shortfall(),
	}
}

// emit fans the alert out to every sink. A failing sink is logged and never
// blocks the others; membership has already been updated at this point.
func (w *Watcher) emit(ctx context.Context, alert Alert) {
	text := w.Message(alert)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.AddAlertEmitted(string(alert.Kind))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range w.cfg.Sinks {
		g.Go(func() error {
			if err := w.notifier.Send(gctx, sink, text); err != nil {
				w.logger.Error("alert delivery failed",
					slog.String("sink", sink),
					slog.String("item_id", alert.ItemID),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if w.audit != nil {
		action := "auto_alert_low_stock"
		if alert.Kind == AlertOutOfStock {
			action = "auto_alert_out_of_stock"
		}
		err := w.audit.Record(ctx, shared.AuditLog{
			Actor:    "system",
			Action:   action,
			Entity:   "item",
			EntityID: alert.ItemID,
			After: map[string]any{
				"item_name": alert.Name,
				"qty":       alert.Qty,
				"min":       alert.Min,
			},
		})
		if err != nil {
			w.logger.Warn("alert audit write failed", slog.Any("error", err))
		}
	}
}

// Message renders the sink text for an alert, with ko-KR digit grouping.
func (w *Watcher) Message(alert Alert) string {
	unit := alert.Unit
	if unit == "" {
		unit = "EA"
	}
	name := alert.Name
	if alert.SKU != "" {
		name += " (" + alert.SKU + ")"
	}
	if alert.Kind == AlertOutOfStock {
		return w.printer.Sprintf("🔴 품절 알림\n\n📦 %s\n   재고가 0이 되었습니다!\n\n긴급 매입이 필요합니다.", name)
	}
	return w.printer.Sprintf("⚠️ 재고 부족 알림\n\n📦 %s\n   수량: %d / 최소: %d %s\n   부족분: %d %s\n\n매입 검토가 필요합니다.",
		name, round(alert.Qty), round(alert.Min), unit, round(alert.Shortfall), unit)
}

func round(v float64) int64 {
	return int64(math.Round(v))
}
