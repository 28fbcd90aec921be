package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"orgchart/api/internal/app"
	"orgchart/api/internal/directory"
	"orgchart/api/internal/export"
	"orgchart/api/internal/orgchart"
)

func newTreeCmd() *cobra.Command {
	var (
		user   string
		depth  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the org chart below a person",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Bootstrap(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			tree, err := buildChart(cmd.Context(), rt.Directory, cfg.BatchPolicy(), user, depth, log)
			if err != nil {
				return err
			}
			res, err := rt.Exports.Export(cmd.Context(), tree, f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(res.Data)
			return err
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Person to root the chart at (defaults to the configured default user)")
	cmd.Flags().IntVar(&depth, "depth", 1, "Levels of direct reports to expand")
	cmd.Flags().StringVar(&format, "format", string(export.FormatOutline), "Output format: json, csv, xlsx, html, pdf or outline")
	return cmd
}

// buildChart roots a fresh chart at user and expands depth levels of direct
// reports.
func buildChart(ctx context.Context, dir orgchart.Directory, policy orgchart.BatchPolicy, user string, depth int, log logrus.FieldLogger) (*orgchart.VisibleNode, error) {
	if user != "" {
		ctx = directory.WithCaller(ctx, user)
	}
	ctrl := orgchart.NewController(dir, policy, log)
	if err := ctrl.Initialize(ctx); err != nil {
		return nil, err
	}

	root := ctrl.View().RootID
	expanded := map[string]struct{}{root: {}}
	frontier := []string{root}
	for level := 1; level < depth && len(frontier) > 0; level++ {
		var next []string
		for _, id := range frontier {
			node, _ := ctrl.Node(id)
			for _, childID := range node.ChildIDs {
				if _, done := expanded[childID]; done {
					continue
				}
				expanded[childID] = struct{}{}
				if err := ctrl.NodeClick(ctx, childID); err != nil {
					return nil, err
				}
				next = append(next, childID)
			}
		}
		frontier = next
	}
	return ctrl.View().Tree, nil
}
