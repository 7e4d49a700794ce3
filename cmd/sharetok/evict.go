package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"sharetok/pkg/ui"
)

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Evict the oldest items until storage is within budget",
	Long: `Run one eviction sweep. Items are tombstoned oldest first and their files
removed until the storage root is below storage.max_bytes. Evicted items are
downloaded again the next time they are requested.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.service.Sweep(context.Background())
		if err != nil {
			return err
		}

		for _, id := range report.Evicted {
			ui.PrintDim("evicted " + id)
		}
		ui.PrintInfo("Evicted", fmt.Sprintf("%d items", len(report.Evicted)))
		ui.PrintInfo("Freed", ui.HumanBytes(report.FreedBytes))
		ui.PrintInfo("Storage", fmt.Sprintf("%s of %s", ui.HumanBytes(report.FinalBytes), ui.HumanBytes(cfg.Storage.MaxBytes)))
		if len(report.Unremoved) > 0 {
			ui.PrintWarning("Files of some evicted items could not be deleted", strings.Join(report.Unremoved, ", "))
		}
		if report.Exhausted {
			ui.PrintWarning("Still over budget: no active items left to evict")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evictCmd)
}
