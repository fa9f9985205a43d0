package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyjia/koe-workflow/internal/container"
	"github.com/garyjia/koe-workflow/internal/domain/approval"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

func pakkeCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pakke",
		Short: "Inspect and decide response packages",
	}
	cmd.AddCommand(
		pakkeListCmd(open),
		pakkeDecideCmd(open, "approve", "Approve the active step of a package"),
		pakkeDecideCmd(open, "reject", "Reject the active step of a package"),
	)
	return cmd
}

func pakkeListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list <case-id>",
		Short: "List a case's packages with their approval chains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, c *container.Container, out io.Writer) error {
				pakker, err := c.Services().Approval.ListByCase(ctx, args[0])
				if err != nil {
					return err
				}
				if len(pakker) == 0 {
					fmt.Fprintln(out, "No packages")
					return nil
				}
				for _, p := range pakker {
					printPakke(out, p)
				}
				return nil
			})
		},
	}
}

func pakkeDecideCmd(open opener, verb, short string) *cobra.Command {
	var actor entity.Actor
	var role, comment string

	cmd := &cobra.Command{
		Use:   verb + " <pakke-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor.Role = entity.ApprovalRole(strings.ToUpper(role))
			actor.Party = entity.PartyBH
			if !actor.Role.IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}
			return run(cmd, open, func(ctx context.Context, c *container.Container, out io.Writer) error {
				if err := approval.Directory(c.Config().Approval.ApproverDirectory()).Check(actor); err != nil {
					return err
				}
				svc := c.Services().Approval
				var (
					p   *entity.BhResponsPakke
					err error
				)
				if verb == "reject" {
					p, err = svc.RejectStep(ctx, args[0], actor, comment)
				} else {
					p, err = svc.ApproveStep(ctx, args[0], actor, comment)
				}
				if err != nil {
					return err
				}
				printPakke(out, p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor.ID, "actor-id", "", "approver identity")
	cmd.Flags().StringVar(&actor.Name, "actor-name", "", "approver display name")
	cmd.Flags().StringVar(&role, "role", "", "approver role (PL, SL, AL, DU, AD)")
	cmd.Flags().StringVar(&comment, "comment", "", "decision comment")
	_ = cmd.MarkFlagRequired("actor-id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func printPakke(out io.Writer, p *entity.BhResponsPakke) {
	fmt.Fprintf(out, "%s  %s  samlet %.0f kr\n", p.ID, pakkeColor(p.Status).Sprint(p.Status), p.SamletBelop)
	for _, s := range p.Steps {
		line := fmt.Sprintf("  %s %-3s", stepMark(s.Status), s.Role)
		if s.ApprovedBy != "" {
			line += " " + s.ApprovedBy
		}
		if s.Comment != "" {
			line += dimColor.Sprintf("  %q", s.Comment)
		}
		fmt.Fprintln(out, line)
	}
	if p.DocumentPath != "" {
		fmt.Fprintf(out, "  %s\n", dimColor.Sprint(p.DocumentPath))
	}
}
