package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"masjid/pkg/model"
)

func GenerateCmd(load Loader) *cobra.Command {
	var req model.GenerateRequest

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create the bookable dates for a season",
		Long: `Creates one date per evening between --start and --end inclusive. Dates that
already exist are kept. --regenerate deletes every date of the year first,
sponsored ones included; payments for deleted dates end up in reconciliation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, load, func(ctx context.Context, s *Services) error {
				result, err := s.Ledger.GenerateDates(ctx, &req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d new dates for %d (%d total)\n",
					color.New(color.FgGreen).Sprint("Created"), result.Created, result.Year, len(result.Dates))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&req.Year, "year", time.Now().Year(), "campaign year")
	cmd.Flags().StringVar(&req.StartDate, "start", "", "first evening, YYYY-MM-DD")
	cmd.Flags().StringVar(&req.EndDate, "end", "", "last evening, YYYY-MM-DD")
	cmd.Flags().BoolVar(&req.Regenerate, "regenerate", false, "delete the year's dates first")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func DatesCmd(load Loader) *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List a season's dates with their claim state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, load, func(ctx context.Context, s *Services) error {
				dates, err := s.Ledger.ListDates(ctx, year)
				if err != nil {
					return err
				}
				renderDates(cmd.OutOrStdout(), dates)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "campaign year")
	return cmd
}

func SweepCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release pending claims older than the claim timeout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, load, func(ctx context.Context, s *Services) error {
				released, err := s.Ledger.ReleaseExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d stale claims\n", released)
				return nil
			})
		},
	}
}

func renderDates(w io.Writer, dates []*model.BookableDate) {
	if len(dates) == 0 {
		fmt.Fprintln(w, "No dates")
		return
	}

	counts := map[model.ClaimState]int{}
	for _, d := range dates {
		state := d.State()
		counts[state]++

		line := fmt.Sprintf("%s  %-10s", d.Date, stateLabel(state))
		if d.SponsorName != nil {
			line += "  " + *d.SponsorName
		}
		if intent, ok := d.PendingIntent(); ok {
			line += "  (" + intent + ")"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\n%d available, %d pending, %d sponsored\n",
		counts[model.StateAvailable], counts[model.StatePending], counts[model.StateSponsored])
}

func stateLabel(state model.ClaimState) string {
	switch state {
	case model.StateSponsored:
		return color.New(color.FgGreen).Sprint(string(state))
	case model.StatePending:
		return color.New(color.FgYellow).Sprint(string(state))
	}
	return string(state)
}
