package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/golab/erplite/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAlertDeliver is the task type for delivering one alert message
	// to one chat sink.
	TaskTypeAlertDeliver = "alerts:deliver"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Sender delivers one message to one chat sink.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// AlertDeliverPayload describes a single alert delivery.
type AlertDeliverPayload struct {
	SinkID string `json:"sink_id"`
	Text   string `json:"text"`
	Kind   string `json:"kind,omitempty"`
	ItemID string `json:"item_id,omitempty"`
}

// NewAlertDeliverTask constructs an Asynq task for one alert delivery.
func NewAlertDeliverTask(payload AlertDeliverPayload) (*asynq.Task, error) {
	if payload.SinkID == "" {
		return nil, errors.New("alert deliver: sink id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAlertDeliver, data, asynq.Queue(QueueDefault)), nil
}

// AlertDeliverJob hands alert messages to the chat transport. Asynq owns the
// retry policy; the handler itself only reports the delivery outcome.
type AlertDeliverJob struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertDeliverJob initialises the delivery handler.
func NewAlertDeliverJob(sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertDeliverJob {
	return &AlertDeliverJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeAlertDeliver tasks.
func (j *AlertDeliverJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("alert deliver: handler not configured")
	}
	var payload AlertDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.SinkID == "" || payload.Text == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeAlertDeliver)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Sender.SendMessage(ctx, payload.SinkID, payload.Text); err != nil {
		resultErr = err
		j.logger().Error("alert delivery failed",
			slog.String("sink", payload.SinkID),
			slog.String("item_id", payload.ItemID),
			slog.Any("error", err),
		)
		return resultErr
	}

	j.metrics().AddDelivered(payload.Kind, 1)
	j.logger().Info("alert delivered",
		slog.String("sink", payload.SinkID),
		slog.String("kind", payload.Kind),
	)
	return resultErr
}

func (j *AlertDeliverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeAlertDeliver))
	}
	return slog.Default().With(slog.String("job", TaskTypeAlertDeliver))
}

func (j *AlertDeliverJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
