package jobs

import (
	"context"
	"errors"
	"log/slog"
)

// AsynqNotifier satisfies the watcher's notifier port by enqueueing delivery
// tasks instead of talking to the chat transport inline. The API process stays
// decoupled from chat outages; the worker retries delivery on its own clock.
type AsynqNotifier struct {
	client *Client
	logger *slog.Logger
}

// NewAsynqNotifier constructs the queue-backed notifier.
func NewAsynqNotifier(client *Client, logger *slog.Logger) *AsynqNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqNotifier{client: client, logger: logger}
}

// Send enqueues one delivery. The task lands on the default queue and is
// processed by AlertDeliverJob in the worker.
func (n *AsynqNotifier) Send(ctx context.Context, sinkID, text string) error {
	if n == nil || n.client == nil {
		return errors.New("asynq notifier: not configured")
	}
	info, err := n.client.EnqueueAlertDeliver(ctx, AlertDeliverPayload{SinkID: sinkID, Text: text})
	if err != nil {
		return err
	}
	n.logger.Debug("alert delivery enqueued",
		slog.String("sink", sinkID),
		slog.String("task_id", info.ID),
	)
	return nil
}
