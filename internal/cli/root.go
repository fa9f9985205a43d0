// Package cli implements the koectl admin commands.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/config"
	"github.com/garyjia/koe-workflow/internal/container"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

// RootCmd returns the koectl root command
func RootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "koectl",
		Short: "Administer change order cases and approval packages",
		Long: `koectl works directly against the KOE workflow database.
It issues magic links, inspects cases and acts on approval packages.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to config file")

	open := func(ctx context.Context) (*container.Container, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		c, err := container.NewContainer(cfg, zap.NewNop())
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}

	root.AddCommand(caseCmd(open))
	root.AddCommand(linkCmd(open))
	root.AddCommand(pakkeCmd(open))
	return root
}

type opener func(ctx context.Context) (*container.Container, error)

// run opens the container for one command and closes it afterwards
func run(cmd *cobra.Command, open opener, fn func(ctx context.Context, c *container.Container, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer c.Close()
	return fn(ctx, c, cmd.OutOrStdout())
}

func statusColor(s entity.CaseStatus) *color.Color {
	switch s {
	case entity.CaseStatusOmforent:
		return okColor
	case entity.CaseStatusUtkast:
		return dimColor
	}
	return warnColor
}

func pakkeColor(s entity.PakkeStatus) *color.Color {
	switch s {
	case entity.PakkeApproved:
		return okColor
	case entity.PakkeRejected:
		return badColor
	}
	return warnColor
}

func stepMark(s entity.StepStatus) string {
	switch s {
	case entity.StepApproved:
		return okColor.Sprint("✓")
	case entity.StepRejected:
		return badColor.Sprint("✗")
	case entity.StepInProgress:
		return warnColor.Sprint("…")
	}
	return dimColor.Sprint("·")
}
