package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/garyjia/koe-workflow/internal/application/service"
	"github.com/garyjia/koe-workflow/internal/container"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

func caseCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Create and inspect cases",
	}
	cmd.AddCommand(caseCreateCmd(open), caseListCmd(open), caseShowCmd(open))
	return cmd
}

func caseCreateCmd(open opener) *cobra.Command {
	var in service.CreateCaseInput
	var startMode string

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Register a new case",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				in.ID = args[0]
			}
			in.StartMode = entity.CaseMode(startMode)
			return run(cmd, open, func(ctx context.Context, c *container.Container, out io.Writer) error {
				created, err := c.Services().Case.CreateCase(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Created %s in %s\n", okColor.Sprint(created.ID), created.Mode)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "case title")
	cmd.Flags().Float64Var(&in.Dagmulktsats, "dagmulktsats", 0, "daily penalty rate (default from config)")
	cmd.Flags().StringVar(&startMode, "start", "varsel", "start mode: varsel or koe")
	return cmd
}

func caseListCmd(open opener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, c *container.Container, out io.Writer) error {
				cases, err := c.Services().Case.ListCases(ctx, limit, 0)
				if err != nil {
					return err
				}
				if len(cases) == 0 {
					fmt.Fprintln(out, "No cases")
					return nil
				}
				for _, k := range cases {
					fmt.Fprintf(out, "%-16s %-12s %-10s %s\n",
						k.ID, statusColor(k.Status).Sprint(k.Status), k.Mode, k.Title)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of cases")
	return cmd
}

func caseShowCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a case's tracks as projected from its revision history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, c *container.Container, out io.Writer) error {
				k, proj, err := c.Services().Case.Project(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "%s  %s\n", okColor.Sprint(k.ID), k.Title)
				fmt.Fprintf(out, "  status: %s   mode: %s   dagmulktsats: %.0f\n",
					statusColor(k.Status).Sprint(k.Status), k.Mode, k.Dagmulktsats)
				fmt.Fprintln(out)

				for _, track := range entity.AllTracks {
					t := proj.State.Track(track)
					if !t.Initiated {
						fmt.Fprintf(out, "  %-9s %s\n", track, dimColor.Sprint("not claimed"))
						continue
					}
					fmt.Fprintf(out, "  %-9s %-20s rev %d", track, t.Status, t.RevisionCount)
					if t.OwnerResult != entity.ResultNone {
						fmt.Fprintf(out, "  BH: %s", t.OwnerResult)
					}
					fmt.Fprintln(out)
				}

				for _, a := range proj.Anomalies {
					fmt.Fprintf(out, "  %s %s\n", warnColor.Sprint("!"), a.String())
				}
				return nil
			})
		},
	}
}
