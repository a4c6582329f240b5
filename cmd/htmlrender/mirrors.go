package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/entrhq/htmlrender/pkg/mirror"
)

var mirrorsCmd = &cobra.Command{
	Use:   "mirrors",
	Short: "Probe download mirrors and show their latency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			dialer, err := mirror.ProxyDialer(a.cfg.DownloadProxy)
			if err != nil {
				return err
			}
			resolver := mirror.NewResolver(
				mirror.Candidates(a.cfg.DownloadHost),
				mirror.WithDialer(dialer),
				mirror.WithLogger(a.logger.Named("mirror")),
				mirror.WithMetrics(a.metrics),
			)

			probes := resolver.ProbeAll(ctx, a.cfg.MirrorProbeTimeout)
			fmt.Fprintln(cmd.OutOrStdout(), renderProbes(probes))
			return nil
		})
	},
}

func renderProbes(probes []mirror.Probe) string {
	best := mirror.SelectBest(probes)

	rows := make([][]string, 0, len(probes))
	for _, p := range probes {
		latency := "unreachable"
		if p.Reachable() {
			latency = p.Latency.String()
		}
		mark := ""
		if best != nil && best.Mirror.Name == p.Mirror.Name {
			mark = "*"
		}
		rows = append(rows, []string{mark, p.Mirror.Name, p.Mirror.URL, fmt.Sprint(p.Mirror.Priority), latency})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("", "NAME", "URL", "PRIORITY", "LATENCY").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			if rows[row][4] == "unreachable" {
				return cellStyle.Foreground(salmonPink)
			}
			if rows[row][0] == "*" {
				return cellStyle.Foreground(mintGreen)
			}
			return cellStyle
		}).
		Render()
}
