// Procflow CLI — отладочная консоль для процессов, шагов и заданий.
//
// Использование:
//
//	procflow [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	process   Просмотр экземпляров процессов
//	step      Синхронная отладка шагов
//	job       Постановка отложенных заданий
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vborodin/procflow/internal/cli"
	"github.com/vborodin/procflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	// Логи CLI уходят в stderr, чтобы не мешать табличному выводу
	logger := telemetry.SetupLogger()
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:           "procflow",
		Short:         "Procflow CLI — workflow debugging tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	var deps *cli.Deps
	depsFn := func() *cli.Deps {
		if deps == nil {
			d, err := cli.NewDeps(rootCmd.Context(), logger)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			deps = d
		}
		return deps
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewProcessCmd(depsFn, outputFn),
		cli.NewStepCmd(depsFn, outputFn),
		cli.NewJobCmd(depsFn, outputFn),
	)

	err := rootCmd.Execute()
	if deps != nil {
		deps.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
