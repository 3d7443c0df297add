// Package command wires the fact-agent CLI: flag binding, config assembly,
// and exit-code mapping. GlobalParams carries the parsed flags, and the
// run subcommand acts on them.
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// GlobalParams holds the parsed CLI flags, bound once on the root command
// via PersistentFlags and read by every subcommand.
type GlobalParams struct {
	Paths         []string
	SkipPreFlight bool
	GRPCTarget    string
	BPFDir        string
	DeliveryQueue int
	HostPathCache int
}

// Root process exit codes not already owned by internal/config or
// internal/preflight.
const (
	ExitOK    = 0
	ExitError = 1
)

// NewRootCommand builds the fact-agent root command with its persistent
// flags and the run subcommand attached.
func NewRootCommand() *cobra.Command {
	params := &GlobalParams{}

	root := &cobra.Command{
		Use:           "fact-agent",
		Short:         "Kernel file-activity collection agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bindGlobalFlags(root.PersistentFlags(), params)
	root.AddCommand(newRunCommand(params))

	return root
}

func bindGlobalFlags(flags *pflag.FlagSet, params *GlobalParams) {
	flags.StringArrayVarP(&params.Paths, "paths", "p", nil,
		"monitored path prefix (repeatable); unioned with FACT_PATHS")
	flags.BoolVar(&params.SkipPreFlight, "skip-pre-flight", false,
		"continue even if a startup feature check fails")
	flags.StringVar(&params.GRPCTarget, "grpc-target", "",
		"dial address of the external consumer's gRPC endpoint")
	flags.StringVar(&params.BPFDir, "bpf-dir", "",
		"directory containing the compiled BPF object (default /opt/fact-agent)")
	flags.IntVar(&params.DeliveryQueue, "delivery-queue-size", 0,
		"bounded delivery queue size (default 4096)")
	flags.IntVar(&params.HostPathCache, "host-path-cache-size", 0,
		"bounded host-path resolution cache size (default 4096)")
}

// Execute runs the CLI and returns the process exit code, so main can stay
// a one-line os.Exit(command.Execute()) call.
func Execute() int {
	root := NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		code := ExitError
		var ec interface{ ExitCode() int }
		if errors.As(err, &ec) {
			code = ec.ExitCode()
		}
		fmt.Fprintln(root.ErrOrStderr(), err)
		return code
	}
	return ExitOK
}
