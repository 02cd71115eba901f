package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/fhir/mapper"
)

// NewExportCmd writes the ledger export document.
func NewExportCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "export the flowsheet ledger",
		Long:  "Reads every ledger table from the configured store and writes it as JSON or as a FHIR R5 Bundle.",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			outPath, _ := cmd.Flags().GetString("out")
			if format != "json" && format != "fhir" {
				return fmt.Errorf("unknown format %q (json|fhir)", format)
			}

			session, store, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := session.Export(cmd.Context())
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create file: %w", err)
				}
				defer f.Close()
				out = f
			}

			switch format {
			case "fhir":
				bundle, mapErr := mapper.NewLedgerToFHIRMapper().MapDocument(doc, time.Now())
				if mapErr != nil {
					return mapErr
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				err = enc.Encode(bundle)
			default:
				err = doc.WriteJSON(out)
			}
			if err != nil {
				return err
			}

			loggerFrom(cmd).Info("ledger exported", zap.Int("entries", doc.Len()), zap.String("format", format))
			if outPath != "" && outPath != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", doc.Len(), outPath)
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("format", "f", "json", "output format (json|fhir)")
	pf.StringP("out", "o", "", "output file (default stdout)")
	return cmd
}
