package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-reports/jobs"
)

// queueCLI wraps manual management helpers for the report job queue.
type queueCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

func newQueueCLI(redisAddr string) *queueCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &queueCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

func (c *queueCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// queueStats summarises the current queue state.
type queueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Failed    int
}

func (c *queueCLI) inspect() (queueStats, error) {
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return queueStats{}, err
	}
	stats := queueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Failed = info.Failed
	}
	return stats, nil
}

func warmupCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "warmup [report...]",
		Short: "Enqueue a cache warmup for the named reports, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := newQueueCLI(state.v.GetString("redis"))
			defer q.Close()
			info, err := q.client.EnqueueReportsWarmup(cmd.Context(), args...)
			if err != nil {
				return fmt.Errorf("enqueue warmup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s\n", info.ID, info.Queue)
			return nil
		},
	}
}

func queueCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show job queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := newQueueCLI(state.v.GetString("redis"))
			defer q.Close()
			stats, err := q.inspect()
			if err != nil {
				return fmt.Errorf("inspect queue: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tFAILED")
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
			return w.Flush()
		},
	}
}
