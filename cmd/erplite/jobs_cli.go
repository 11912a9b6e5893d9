package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/golab/erplite/jobs"
)

// jobsCLI wraps manual management helpers for Asynq jobs.
type jobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) *jobsCLI {
	return &jobsCLI{
		client:    asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		inspector: asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (c *jobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with default payload.
func (c *jobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskTypeLowStockScan:
		task, err = jobs.NewLowStockScanTask(time.Now().UTC())
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// InspectQueue reports the queue metrics for the default queue.
func (c *jobsCLI) InspectQueue(ctx context.Context) (string, error) {
	if c == nil || c.inspector == nil {
		return "", errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return "", err
	}
	if info == nil {
		return fmt.Sprintf("queue=%s pending=0 active=0 scheduled=0 retry=0", jobs.QueueDefault), nil
	}
	return fmt.Sprintf("queue=%s pending=%d active=%d scheduled=%d retry=%d",
		info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry), nil
}

// runJobsCLI handles `erplite jobs <trigger|inspect> [name]`.
func runJobsCLI(ctx context.Context, redisAddr string, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: erplite jobs <trigger|inspect> [name]")
	}
	cli := newJobsCLI(redisAddr)
	defer func() {
		_ = cli.Close()
	}()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: erplite jobs trigger <name>")
		}
		info, err := cli.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
		return nil
	case "inspect":
		summary, err := cli.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Println(summary)
		return nil
	default:
		return fmt.Errorf("jobs cli: unknown command %s", args[0])
	}
}
