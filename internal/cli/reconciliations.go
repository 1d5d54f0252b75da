package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"masjid/pkg/model"
)

func ReconciliationsCmd(load Loader) *cobra.Command {
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:     "reconciliations",
		Aliases: []string{"recon"},
		Short:   "List payments that could not be recorded against their date",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, load, func(ctx context.Context, s *Services) error {
				records, err := s.Ledger.ListReconciliations(ctx, !all, limit, 0)
				if err != nil {
					return err
				}
				renderReconciliations(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include resolved records")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")
	return cmd
}

func ResolveCmd(load Loader) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a reconciliation record handled, e.g. after a refund",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, load, func(ctx context.Context, s *Services) error {
				if err := s.Ledger.ResolveReconciliation(ctx, args[0], note); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "what was done about the payment")
	return cmd
}

func renderReconciliations(w io.Writer, records []*model.Reconciliation) {
	if len(records) == 0 {
		fmt.Fprintln(w, "Nothing to reconcile")
		return
	}

	for _, r := range records {
		status := color.New(color.FgRed).Sprint("OPEN")
		if r.Resolved {
			status = color.New(color.FgGreen).Sprint("RESOLVED")
		}
		fmt.Fprintf(w, "%s  %s  date=%s intent=%s reason=%s sponsor=%q\n",
			status, r.ID, r.DateID, r.PaymentIntentID, r.Reason, r.SponsorName)
		if r.ResolutionNote != "" {
			fmt.Fprintf(w, "    note: %s\n", r.ResolutionNote)
		}
	}
}
