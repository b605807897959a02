package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/scheduler"
)

// NewJobCmd создаёт группу команд для отложенных заданий.
func NewJobCmd(depsFn func() *Deps, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage scheduled jobs",
	}

	cmd.AddCommand(newJobSeedCmd(depsFn, outputFn))

	return cmd
}

func newJobSeedCmd(depsFn func() *Deps, outputFn func() *Output) *cobra.Command {
	var processType string
	var businessKey string
	var payloadJSON string
	var cronExpr string
	var at string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert a scheduled job that starts a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := depsFn()
			out := outputFn()
			ctx := cmd.Context()

			if processType == "" || businessKey == "" {
				return fmt.Errorf("--process-type and --business-key are required")
			}

			var payload map[string]any
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return fmt.Errorf("invalid payload JSON: %w", err)
				}
			}

			scheduledAt := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at, expected RFC3339: %w", err)
				}
				scheduledAt = parsed
			}

			if cronExpr != "" {
				if err := scheduler.ValidateCronExpr(cronExpr); err != nil {
					return err
				}
				if at == "" {
					next, err := scheduler.NextDue(cronExpr, time.Now())
					if err != nil {
						return err
					}
					scheduledAt = next
				}
			}

			job := &domain.ScheduledJob{
				JobType:     domain.JobTypeStartProcess,
				ProcessType: processType,
				BusinessKey: businessKey,
				Payload:     payload,
				CronExpr:    cronExpr,
				ScheduledAt: scheduledAt,
				Status:      domain.JobStatusNew,
			}

			id, err := deps.Store.InsertJob(ctx, job)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job created: %d", id))
			out.Table(
				[]string{"ID", "TYPE", "PROCESS_TYPE", "BUSINESS_KEY", "SCHEDULED_AT", "CRON"},
				[][]string{{
					strconv.FormatInt(id, 10),
					job.JobType,
					job.ProcessType,
					job.BusinessKey,
					scheduledAt.UTC().Format(time.RFC3339),
					cronExpr,
				}},
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&processType, "process-type", "", "Process type to start (required)")
	cmd.Flags().StringVar(&businessKey, "business-key", "", "Business key of the process (required)")
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "Initial payload as JSON object")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression for a recurring job")
	cmd.Flags().StringVar(&at, "at", "", "Scheduled time (RFC3339, default: now)")

	return cmd
}
