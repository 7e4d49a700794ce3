package main

import (
	"fmt"
	"strconv"

	"sharetok/pkg/checkpoint"
	"sharetok/pkg/logger"
	"sharetok/pkg/pipeline"
	"sharetok/pkg/ui"
)

// runProgress ties a warm run to its checkpoint. A nil *runProgress records nothing.
type runProgress struct {
	mgr     *checkpoint.Manager
	cp      *checkpoint.Checkpoint
	pending []string
}

func openProgress(urls []string, source string, restart bool) (*runProgress, error) {
	name := checkpoint.NameFor(urls)
	mgr, err := checkpoint.NewManager(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	return resumeProgress(mgr, name, urls, source, restart)
}

// resumeProgress picks up the checkpoint of an earlier run of the same list.
// With restart, that checkpoint is discarded first.
func resumeProgress(mgr *checkpoint.Manager, name string, urls []string, source string, restart bool) (*runProgress, error) {
	if restart && mgr.Exists() {
		if err := mgr.Delete(); err != nil {
			return nil, err
		}
		ui.PrintDim("Discarded progress of an earlier run")
	}
	cp, resumed, err := mgr.LoadOrCreate(name, source, len(urls))
	if err != nil {
		return nil, err
	}
	pending := cp.Pending(urls)
	if resumed {
		ui.PrintInfo("Resuming", fmt.Sprintf("%d of %d URLs already completed", len(urls)-len(pending), len(urls)))
	}
	return &runProgress{mgr: mgr, cp: cp, pending: pending}, nil
}

func (p *runProgress) record(url string, res *pipeline.Result, err error) {
	if p == nil {
		return
	}
	if err != nil {
		err = p.mgr.RecordFailure(p.cp)
	} else {
		err = p.mgr.RecordDone(p.cp, url, res.Item.ContentID)
	}
	if err != nil {
		logger.GetLogger().WithError(err).Warn("Failed to update checkpoint")
	}
}

// finish drops the checkpoint once nothing is left to do
func (p *runProgress) finish(failed int) error {
	if p == nil {
		return nil
	}
	if failed > 0 {
		ui.PrintDim(fmt.Sprintf("Progress saved to %s, rerun with --resume to continue", p.mgr.Path()))
		return nil
	}
	return p.mgr.Delete()
}

// printCheckpoints shows the unfinished warm runs found in dir
func printCheckpoints(dir string) error {
	infos, err := checkpoint.List(dir)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(infos) == 0 {
		ui.PrintDim("No unfinished warm runs")
		return nil
	}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		source := info.Source
		if source == "" {
			source = "(arguments)"
		}
		rows = append(rows, []string{
			info.Name,
			source,
			fmt.Sprintf("%d/%d", info.Completed, info.Total),
			strconv.Itoa(info.Failed),
			info.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	ui.PrintTable([]string{"Checkpoint", "Source", "Done", "Failed", "Updated"}, rows)
	return nil
}
