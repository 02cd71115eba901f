package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drfirst/go-flowsheet/internal/config"
	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/dosing"
	"github.com/drfirst/go-flowsheet/internal/domain/schedule"
)

// NewDoseCmd previews the dose for a weight under the configured regimen.
func NewDoseCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dose",
		Short: "compute the infusion dose for a patient weight",
		Long:  "Computes the drug mass and infusion volume for a weight using the configured regimen. Nothing is recorded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			weight, _ := cmd.Flags().GetFloat64("weight")
			unitFlag, _ := cmd.Flags().GetString("unit")

			unit, err := dosing.ParseUnit(unitFlag)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dose, err := cfg.Regimen().Compute(weight, unit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dose: %.1f mg (%.1f mL)\n", dose.Mg, dose.ML)
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.Float64P("weight", "w", 0, "patient weight")
	pf.StringP("unit", "u", string(dosing.UnitKg), "weight unit (kg|lb)")
	_ = cmd.MarkPersistentFlagRequired("weight")
	return cmd
}

// NewNextDueCmd computes the next infusion date and the MRI it requires.
func NewNextDueCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next-due",
		Short: "compute the next infusion due date",
		Long:  "Adds the configured infusion interval to the last infusion date. With --infusion-number, also reports the MRI required before that infusion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lastFlag, _ := cmd.Flags().GetString("last")
			interval, _ := cmd.Flags().GetInt("interval")
			number, _ := cmd.Flags().GetInt("infusion-number")

			last, err := domain.ParseDate(lastFlag)
			if err != nil {
				return err
			}
			if interval == 0 {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				interval = cfg.InfusionIntervalDays
			}
			due, err := schedule.NextDueDate(last, interval)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Next due: %s\n", due)
			if number > 0 {
				if st, ok := schedule.RequiredStudyBefore(number); ok {
					fmt.Fprintf(out, "MRI required before infusion #%d: %s\n", number, st)
				} else {
					fmt.Fprintf(out, "No MRI checkpoint before infusion #%d\n", number)
				}
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("last", "l", "", "last infusion date (YYYY-MM-DD)")
	pf.IntP("interval", "i", 0, "interval in days (default from INFUSION_INTERVAL_DAYS)")
	pf.IntP("infusion-number", "n", 0, "number of the upcoming infusion")
	_ = cmd.MarkPersistentFlagRequired("last")
	return cmd
}
