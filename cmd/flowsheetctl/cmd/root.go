package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/app"
	"github.com/drfirst/go-flowsheet/internal/config"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/domain/workflow"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/ledgerstore"
	"github.com/drfirst/go-flowsheet/internal/logging"
)

type loggerKey struct{}

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	var closer io.Closer
	cmd := &cobra.Command{
		Use:           "flowsheetctl",
		Short:         "a CLI for the infusion flowsheet and REMS workflow",
		Long:          "Computes doses and due dates, shows REMS progress and exports the flowsheet ledger.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			cfg := logging.DefaultConfig()
			cfg.Level = strings.ToLower(logLevel)
			cfg.Development = true
			logger, c, err := logging.NewTo(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			closer = c
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closer != nil {
				_ = closer.Close()
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd.OutOrStdout(), cmd, 0)
		},
	}
	cmd.SetContext(ctx)
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewDoseCmd(ctx),
		NewNextDueCmd(ctx),
		NewStepsCmd(ctx),
		NewExportCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")
	return cmd
}

func printCommandTree(w io.Writer, cmd *cobra.Command, indent int) {
	fmt.Fprintln(w, strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(w, subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), gitsha)
		},
	}
	return cmd
}

func loggerFrom(cmd *cobra.Command) *zap.Logger {
	if l, ok := cmd.Context().Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// openSession loads the configuration, opens the configured store and
// restores the workflow from it. The caller closes the returned handle.
func openSession(cmd *cobra.Command) (*app.Session, *ledgerstore.Handle, error) {
	ctx := cmd.Context()
	logger := loggerFrom(cmd)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := ledgerstore.Open(ctx, cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	def, err := workflow.LoadDefinition(cfg.WorkflowStepsFile)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	session, err := app.NewSession(ctx, ledger.New(store.Store, logger), def, cfg.Session(), nil, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return session, store, nil
}
