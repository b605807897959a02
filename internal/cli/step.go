package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vborodin/procflow/internal/mq"
)

// NewStepCmd создаёт группу команд для работы с шагами.
func NewStepCmd(depsFn func() *Deps, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Manage process steps",
	}

	cmd.AddCommand(newStepDebugCmd(depsFn, outputFn))

	return cmd
}

// newStepDebugCmd прогоняет один шаг синхронно, минуя RabbitMQ.
//
// Проходит тот же протокол, что и воркер: claim, выполнение,
// запись контекста, переходы графа. Новые шаги не выполняются,
// а только печатаются.
func newStepDebugCmd(depsFn func() *Deps, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "debug PROCESS_ID STEP",
		Short: "Run a single step synchronously and show the state before and after",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := depsFn()
			out := outputFn()
			ctx := cmd.Context()

			processID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid process id %q", args[0])
			}
			stepName := args[1]

			before, err := deps.Store.GetStep(ctx, processID, stepName)
			if err != nil {
				return fmt.Errorf("load step: %w", err)
			}

			out.Table(
				[]string{"STEP", "STATUS", "ATTEMPT", "INPUT"},
				[][]string{{before.StepName, string(before.Status), strconv.Itoa(before.Attempt), compactJSON(before.InputPayload)}},
			)

			runErr := deps.Runner.RunStep(ctx, mq.RunStepPayload{
				ProcessID: processID,
				StepName:  stepName,
				Input:     before.InputPayload,
			})

			after, err := deps.Store.GetStep(ctx, processID, stepName)
			if err != nil {
				return fmt.Errorf("reload step: %w", err)
			}

			out.Table(
				[]string{"STEP", "STATUS", "ATTEMPT", "OUTPUT", "ERROR"},
				[][]string{{after.StepName, string(after.Status), strconv.Itoa(after.Attempt), compactJSON(after.OutputPayload), after.LastError}},
			)

			if dispatched := deps.Dispatch.Drain(); len(dispatched) > 0 {
				rows := make([][]string, len(dispatched))
				for i, m := range dispatched {
					rows[i] = []string{strconv.FormatInt(m.ProcessID, 10), m.StepName, compactJSON(m.Input)}
				}
				out.Success("Dispatched (not executed):")
				out.Table([]string{"PROCESS_ID", "STEP", "INPUT"}, rows)
			}

			if runErr != nil {
				return fmt.Errorf("step execution: %w", runErr)
			}
			out.Success("Step executed")
			return nil
		},
	}
}
