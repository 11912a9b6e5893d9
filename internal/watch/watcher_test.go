package watch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/golab/erplite/internal/ledger"
)

type fakeNotifier struct {
	mu       sync.Mutex
	sent     map[string][]string
	failSink string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]string)}
}

func (n *fakeNotifier) Send(ctx context.Context, sinkID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sinkID == n.failSink {
		return errors.New("sink unreachable")
	}
	n.sent[sinkID] = append(n.sent[sinkID], text)
	return nil
}

func (n *fakeNotifier) count(sink string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent[sink])
}

func (n *fakeNotifier) last(sink string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	msgs := n.sent[sink]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func item(id string, qty, min float64) ledger.Item {
	return ledger.Item{ID: id, Name: "Item " + id, SKU: "SKU-" + id, Unit: "EA", QtyOnHand: qty, QtyMin: min, Status: ledger.StatusNormal}
}

func modified(i ledger.Item) Change { return Change{Kind: ChangeModified, Item: i} }

func TestSeedIsSilent(t *testing.T) {
	notifier := newFakeNotifier()
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1"}})

	w.Seed([]ledger.Item{item("x", 2, 10), item("y", 20, 10), item("z", 0, 5)})
	require.Zero(t, notifier.count("chat1"))

	// Already-seeded member stays silent on an unchanged snapshot.
	w.HandleChange(context.Background(), modified(item("x", 2, 10)))
	require.Zero(t, notifier.count("chat1"))
}

func TestChangesBeforeSeedAreSilent(t *testing.T) {
	notifier := newFakeNotifier()
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1"}})
	ctx := context.Background()

	// A change racing ahead of the initial snapshot registers silently.
	w.HandleChange(ctx, modified(item("a", 2, 10)))
	require.Zero(t, notifier.count("chat1"))

	w.Seed(nil)

	// Still a member after seeding: the same low snapshot stays silent.
	w.HandleChange(ctx, modified(item("a", 2, 10)))
	require.Zero(t, notifier.count("chat1"))

	// Recovery then a fresh crossing alerts once.
	w.HandleChange(ctx, modified(item("a", 10, 10)))
	w.HandleChange(ctx, modified(item("a", 3, 10)))
	require.Equal(t, 1, notifier.count("chat1"))
}

func TestThresholdCrossingEmitsOnce(t *testing.T) {
	notifier := newFakeNotifier()
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1"}})
	w.Seed(nil)
	ctx := context.Background()

	w.HandleChange(ctx, modified(item("a", 3, 10)))
	require.Equal(t, 1, notifier.count("chat1"))
	require.Contains(t, notifier.last("chat1"), "재고 부족")
	require.Contains(t, notifier.last("chat1"), "Item a (SKU-a)")

	// Further drops while already a member stay silent.
	w.HandleChange(ctx, modified(item("a", 2, 10)))
	w.HandleChange(ctx, modified(item("a", 1, 10)))
	require.Equal(t, 1, notifier.count("chat1"))
}

func TestOutOfStockEmitsDistinctAlert(t *testing.T) {
	notifier := newFakeNotifier()
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1"}})
	w.Seed(nil)

	w.HandleChange(context.Background(), modified(item("a", 0, 10)))
	require.Equal(t, 1, notifier.count("chat1"))
	require.Contains(t, notifier.last("chat1"), "품절")
}

func TestRiskToOutDoesNotReemitByDefault(t *testing.T) {
	notifier := newFakeNotifier()
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1"}})
	w.Seed([]ledger.Item{item("x", 2, 10)})
	ctx := context.Background()

	// X is already a low-stock member from the seed; hitting zero stays
	// silent because membership short-circuits the out-of-stock branch.
	w.HandleChange(ctx, modified(item("x", 2, 10)))
	require.Zero(t, notifier.count("chat1"))
	w.HandleChange(ctx, modified(item("x", 0, 10)))
	require.Zero(t, notifier.count("chat1"))
}

func TestRiskToOutReemitsWhenConfigured(t *testing.T) {
	notifier := newFakeNotifier()
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1"}, ReemitOnOut: true})
	w.Seed(nil)
	ctx := context.Background()

	w.HandleChange(ctx, modified(item("a", 3, 10)))
	require.Equal(t, 1, notifier.count("chat1"))

	w.HandleChange(ctx, modified(item("a", 0, 10)))
	require.Equal(t, 2, notifier.count("chat1"))
	require.Contains(t, notifier.last("chat1"), "품절")

	// Only once, even when configured.
	w.HandleChange(ctx, modified(item("a", 0, 10)))
	require.Equal(t, 2, notifier.count("chat1"))
}

func TestRecoveryIsSilentAndRearmsAlerts(t *testing.T) {
	notifier := newFakeNotifier()
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1"}})
	w.Seed(nil)
	ctx := context.Background()

	w.HandleChange(ctx, modified(item("a", 3, 10)))
	require.Equal(t, 1, notifier.count("chat1"))

	// Recovery to >= min removes membership without a message.
	w.HandleChange(ctx, modified(item("a", 10, 10)))
	require.Equal(t, 1, notifier.count("chat1"))

	// A fresh crossing alerts again.
	w.HandleChange(ctx, modified(item("a", 4, 10)))
	require.Equal(t, 2, notifier.count("chat1"))
}

func TestCreatedRemovedAndDeletedAreIgnored(t *testing.T) {
	notifier := newFakeNotifier()
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1"}})
	w.Seed(nil)
	ctx := context.Background()

	w.HandleChange(ctx, Change{Kind: ChangeCreated, Item: item("a", 0, 10)})
	w.HandleChange(ctx, Change{Kind: ChangeRemoved, Item: item("b", 0, 10)})

	gone := item("c", 0, 10)
	gone.Status = ledger.StatusDeleted
	w.HandleChange(ctx, modified(gone))

	require.Zero(t, notifier.count("chat1"))
}

func TestFanOutSurvivesSinkFailure(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.failSink = "chat1"
	w := New(notifier, nil, nil, Config{Sinks: []string{"chat1", "chat2", "chat3"}})
	w.Seed(nil)
	ctx := context.Background()

	w.HandleChange(ctx, modified(item("a", 1, 10)))
	require.Equal(t, 1, notifier.count("chat2"))
	require.Equal(t, 1, notifier.count("chat3"))

	// Membership updated despite the failed sink: no duplicate emission.
	w.HandleChange(ctx, modified(item("a", 1, 10)))
	require.Equal(t, 1, notifier.count("chat2"))
}

func TestMessageFormatting(t *testing.T) {
	w := New(newFakeNotifier(), nil, nil, Config{})

	msg := w.Message(Alert{Kind: AlertLowStock, Name: "모니터", SKU: "MON-27", Unit: "EA", Qty: 1200, Min: 2000, Shortfall: 800})
	require.True(t, strings.Contains(msg, "1,200"))
	require.True(t, strings.Contains(msg, "2,000"))
	require.Contains(t, msg, "모니터 (MON-27)")

	out := w.Message(Alert{Kind: AlertOutOfStock, Name: "모니터"})
	require.Contains(t, out, "품절")
}
