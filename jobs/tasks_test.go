package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/golab/erplite/internal/jobs"
	"github.com/golab/erplite/internal/ledger"
)

type fakeSender struct {
	sent []sentMessage
	fail bool
}

type sentMessage struct {
	chatID string
	text   string
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	if f.fail {
		return errors.New("transport down")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func testMetrics(t *testing.T) *jobmetrics.Metrics {
	t.Helper()
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestAlertDeliverJobDelivers(t *testing.T) {
	sender := &fakeSender{}
	job := NewAlertDeliverJob(sender, nil, testMetrics(t))

	task, err := NewAlertDeliverTask(AlertDeliverPayload{SinkID: "chat-1", Text: "hello", Kind: "LOW_STOCK"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)
	require.Equal(t, "chat-1", sender.sent[0].chatID)
	require.Equal(t, "hello", sender.sent[0].text)
}

func TestAlertDeliverJobPropagatesTransportError(t *testing.T) {
	sender := &fakeSender{fail: true}
	job := NewAlertDeliverJob(sender, nil, testMetrics(t))

	task, err := NewAlertDeliverTask(AlertDeliverPayload{SinkID: "chat-1", Text: "hello"})
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}

func TestAlertDeliverJobSkipsMalformedPayload(t *testing.T) {
	sender := &fakeSender{}
	job := NewAlertDeliverJob(sender, nil, testMetrics(t))

	task := asynq.NewTask(TaskTypeAlertDeliver, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, sender.sent)
}

func TestNewAlertDeliverTaskRequiresSink(t *testing.T) {
	_, err := NewAlertDeliverTask(AlertDeliverPayload{Text: "hello"})
	require.Error(t, err)
}

type fakeLowStockStore struct {
	items []ledger.Item
	err   error
}

func (f *fakeLowStockStore) QueryLowStock(context.Context) ([]ledger.Item, error) {
	return f.items, f.err
}

type fakeEnqueuer struct {
	payloads []AlertDeliverPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueAlertDeliver(_ context.Context, payload AlertDeliverPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

func lowStockTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewLowStockScanTask(time.Now().UTC())
	require.NoError(t, err)
	return task
}

func TestLowStockScanEnqueuesDigestPerSink(t *testing.T) {
	store := &fakeLowStockStore{items: []ledger.Item{
		{ID: "a", Name: "원두", SKU: "BEAN-01", Unit: "kg", QtyOnHand: 3, QtyMin: 10},
		{ID: "b", Name: "컵", QtyOnHand: 0, QtyMin: 1200},
	}}
	client := &fakeEnqueuer{}
	job := NewLowStockScanJob(store, client, []string{"chat-1", "chat-2"}, nil, testMetrics(t))

	require.NoError(t, job.Handle(context.Background(), lowStockTask(t)))
	require.Len(t, client.payloads, 2)
	require.Equal(t, "chat-1", client.payloads[0].SinkID)
	require.Equal(t, "chat-2", client.payloads[1].SinkID)

	text := client.payloads[0].Text
	require.Contains(t, text, "재고 부족 현황 (2건)")
	require.Contains(t, text, "원두 (BEAN-01)")
	require.Contains(t, text, "🔴 컵")
	require.Contains(t, text, "1,200")
}

func TestLowStockScanSkipsEmptyResult(t *testing.T) {
	client := &fakeEnqueuer{}
	job := NewLowStockScanJob(&fakeLowStockStore{}, client, []string{"chat-1"}, nil, testMetrics(t))

	require.NoError(t, job.Handle(context.Background(), lowStockTask(t)))
	require.Empty(t, client.payloads)
}

func TestLowStockScanReportsStoreError(t *testing.T) {
	store := &fakeLowStockStore{err: errors.New("db down")}
	job := NewLowStockScanJob(store, &fakeEnqueuer{}, []string{"chat-1"}, nil, testMetrics(t))

	require.Error(t, job.Handle(context.Background(), lowStockTask(t)))
}
