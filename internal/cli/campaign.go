package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func CampaignCmd(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Inspect and switch campaigns",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, load, func(ctx context.Context, s *Services) error {
				campaigns, err := s.Campaigns.List(ctx)
				if err != nil {
					return err
				}
				for _, c := range campaigns {
					active := ""
					if c.IsActive {
						active = color.New(color.FgGreen).Sprint(" ACTIVE")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d  %s..%s  %d %s%s\n",
						c.Year, c.StartDate, c.EndDate, c.CostPerSlot, c.Currency, active)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activate <year>",
		Short: "Make a campaign the one open for sponsorship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[0])
			}
			return withServices(cmd, load, func(ctx context.Context, s *Services) error {
				if _, err := s.Campaigns.Activate(ctx, year); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Campaign %d is now active\n", year)
				return nil
			})
		},
	})

	return cmd
}
