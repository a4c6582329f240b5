package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/htmlrender/pkg/install"
)

var (
	installDriverOnly bool
	installCleanCache bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the configured browser",
	Long: `Install downloads the Playwright driver and the configured browser engine.

The fastest reachable mirror is used first. If that attempt fails the
official download host is tried once more.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			inst := a.installer()

			fmt.Fprintln(out, headerStyle.Render("Installing playwright driver"))
			if err := inst.InstallDriver(); err != nil {
				return err
			}
			if installDriverOnly {
				return nil
			}

			if installCleanCache && a.cfg.StoragePath != "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("failed to get user home directory: %w", err)
				}
				removed, err := install.CleanLegacyCache(home, a.cfg.StoragePath, a.logger.Named("cache"))
				if err != nil {
					return err
				}
				for _, p := range removed {
					fmt.Fprintln(out, mutedStyle.Render("removed "+p))
				}
			}

			fmt.Fprintln(out, headerStyle.Render("Installing "+a.cfg.Browser.String()))
			report := inst.Run(ctx, a.cfg.InstallTimeout)
			for _, at := range report.Attempts {
				style := errorStyle
				if at.Outcome == install.OutcomeSuccess {
					style = successStyle
				}
				fmt.Fprintf(out, "%s %s\n", style.Render(fmt.Sprintf("[%s]", at.Source())), at.Message)
			}
			if !report.Success {
				return errors.New("browser installation failed")
			}
			return nil
		})
	},
}

func init() {
	installCmd.Flags().BoolVar(&installDriverOnly, "driver-only", false, "Install only the Playwright driver")
	installCmd.Flags().BoolVar(&installCleanCache, "clean-cache", false, "Remove browsers from the shared Playwright cache when storage_path is set")
}
