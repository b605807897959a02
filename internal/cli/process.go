package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewProcessCmd создаёт группу команд для просмотра процессов.
func NewProcessCmd(depsFn func() *Deps, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Inspect process instances",
	}

	cmd.AddCommand(newProcessShowCmd(depsFn, outputFn))

	return cmd
}

func newProcessShowCmd(depsFn func() *Deps, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a process instance with its steps and merged context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := depsFn()
			out := outputFn()
			ctx := cmd.Context()

			processID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid process id %q", args[0])
			}

			inst, err := deps.Store.GetInstance(ctx, processID)
			if err != nil {
				return err
			}

			steps, err := deps.Store.ListSteps(ctx, processID)
			if err != nil {
				return err
			}

			merged, err := deps.Ctx.Load(ctx, processID)
			if err != nil {
				return err
			}

			out.Table(
				[]string{"ID", "TYPE", "BUSINESS_KEY", "STATUS", "STARTED"},
				[][]string{{
					strconv.FormatInt(inst.ID, 10),
					inst.ProcessType,
					inst.BusinessKey,
					string(inst.Status),
					inst.StartedAt.Format("2006-01-02 15:04:05"),
				}},
			)

			stepRows := make([][]string, len(steps))
			for i, s := range steps {
				stepRows[i] = []string{
					s.StepName,
					string(s.Status),
					strconv.Itoa(s.Attempt),
					s.JoinGroup,
					compactJSON(s.OutputPayload),
					s.LastError,
				}
			}
			out.Table([]string{"STEP", "STATUS", "ATTEMPT", "JOIN_GROUP", "OUTPUT", "ERROR"}, stepRows)

			out.Success("Merged context:")
			out.JSON(merged)
			return nil
		},
	}
}
