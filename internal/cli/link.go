package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyjia/koe-workflow/internal/container"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

func linkCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage magic links",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue <case-id> <email>",
		Short: "Issue a single-use magic link for a case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, c *container.Container, out io.Writer) error {
				if _, err := c.Services().Case.GetCase(ctx, args[0], entity.ModeUnset); err != nil {
					return err
				}
				raw, tok, err := c.Services().MagicLinks.Issue(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				base := strings.TrimRight(c.Config().Server.BaseURL, "/")
				fmt.Fprintf(out, "%s/?magicToken=%s\n", base, raw)
				fmt.Fprintf(out, "%s\n", dimColor.Sprintf("expires %s", tok.ExpiresAt.Format(time.RFC3339)))
				return nil
			})
		},
	})
	return cmd
}
