// Package cli implements the swagger2client command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Execute runs the swagger2client CLI.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// runners are the command implementations; tests replace them to inspect
// the resolved configuration.
type runners struct {
	generate func(ctx context.Context, cfg *GenerateConfig, env *Env) error
	init     func(ctx context.Context, cfg *InitConfig, env *Env) error
}

// Env carries the output streams and logger of one command invocation.
type Env struct {
	Out    io.Writer
	Logger *slog.Logger
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	return newRootCmd(runners{generate: runGenerate, init: runInit})
}

func newRootCmd(r runners) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swagger2client",
		Short: "Generate typed Go API clients from Swagger/OpenAPI documents",
		Long: "swagger2client turns a Swagger 2 or OpenAPI 3 document into Go packages, " +
			"one per tag, whose functions call the API through a shared runtime gateway.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetFlagErrorFunc(flagError)

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML or JSON)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")

	for _, sub := range []*cobra.Command{newGenerateCmd(r.generate), newInitCmd(r.init)} {
		sub.SetFlagErrorFunc(flagError)
		cmd.AddCommand(sub)
	}
	return cmd
}

// flagError turns cobra flag errors into usage errors that carry the help
// text of the failing command.
func flagError(c *cobra.Command, err error) error {
	return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
}

func newEnv(cmd *cobra.Command, verbose bool) *Env {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &Env{
		Out:    cmd.OutOrStdout(),
		Logger: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})),
	}
}
