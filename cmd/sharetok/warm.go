package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"sharetok/pkg/checkpoint"
	"sharetok/pkg/pipeline"
	"sharetok/pkg/retry"
	"sharetok/pkg/tiktok"
	"sharetok/pkg/ui"
	"sharetok/pkg/ui/tui"
)

var (
	warmFile        string
	warmConcurrency int
	warmPlain       bool
	warmResume      bool
	warmRestart     bool
	warmList        bool
)

var warmCmd = &cobra.Command{
	Use:   "warm [url...]",
	Short: "Pre-fetch a batch of posts into the cache",
	Long: `Look up every URL given as an argument or listed in --file (one per line,
blank lines and lines starting with # are ignored). Items already cached are
reported as hits; everything else is fetched and stored. Progress is shown in
an interactive view when stdout is a terminal.

With --resume, completed URLs are recorded in a checkpoint keyed by the URL
list; running the same list again skips them. The checkpoint is removed once
every URL has completed. --restart discards it and starts the list over, and
--list shows the checkpoints of runs that have not finished.`,
	Example: `  sharetok warm --file links.txt --concurrency 4
  sharetok warm --file links.txt --resume
  sharetok warm --file links.txt --resume --restart
  sharetok warm --list
  sharetok warm https://vm.tiktok.com/ZMa/ https://vm.tiktok.com/ZMb/`,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)
	warmCmd.Flags().StringVarP(&warmFile, "file", "f", "", "file with one URL per line")
	warmCmd.Flags().IntVar(&warmConcurrency, "concurrency", 2, "lookups run at once")
	warmCmd.Flags().BoolVar(&warmPlain, "plain", false, "print one line per URL instead of the progress view")
	warmCmd.Flags().BoolVar(&warmResume, "resume", false, "skip URLs completed by an earlier run of the same list")
	warmCmd.Flags().BoolVar(&warmRestart, "restart", false, "with --resume, discard earlier progress of the list first")
	warmCmd.Flags().BoolVar(&warmList, "list", false, "list unfinished warm runs and exit")
}

func runWarm(cmd *cobra.Command, args []string) error {
	if warmList {
		dir, err := checkpoint.Dir()
		if err != nil {
			return err
		}
		return printCheckpoints(dir)
	}

	urls := append([]string(nil), args...)
	if warmFile != "" {
		fromFile, err := readURLList(warmFile)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given")
	}
	if warmConcurrency < 1 {
		warmConcurrency = 1
	}

	var progress *runProgress
	if warmResume {
		var err error
		progress, err = openProgress(urls, warmFile, warmRestart)
		if err != nil {
			return err
		}
		urls = progress.pending
		if len(urls) == 0 {
			ui.PrintSuccess("Every URL of this list has already completed")
			return progress.finish(0)
		}
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	policy := retry.FromSettings(cfg.Retry, a.logger)
	lookup := func(ctx context.Context, u string) (*pipeline.Result, error) {
		res, err := retry.DoWithResult(ctx, func(ctx context.Context) (*pipeline.Result, error) {
			return a.service.Lookup(ctx, pipeline.Request{URL: u, Mode: tiktok.ModeDetail})
		}, policy)
		progress.record(u, res, err)
		return res, err
	}

	if warmPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		failed, err := warmPlainly(ctx, urls, lookup)
		if ferr := progress.finish(failed); ferr != nil {
			a.logger.WithError(ferr).Warn("Failed to finalize checkpoint")
		}
		return err
	}

	view := tui.New(urls, cancel)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, u := range urls {
			i, u := i, u
			g.Go(func() error {
				if gctx.Err() != nil {
					view.Finished(i, "", "", 0, gctx.Err())
					return nil
				}
				view.Started(i)
				start := time.Now()
				res, err := lookup(gctx, u)
				if err != nil {
					view.Finished(i, "", "", time.Since(start), err)
					return nil
				}
				view.Finished(i, string(res.Outcome), res.Item.ContentID, time.Since(start), nil)
				return nil
			})
		}
	}()

	entries, err := view.Run()
	cancel()
	<-launched
	_ = g.Wait()
	if err != nil {
		return err
	}

	failed := 0
	for _, e := range entries {
		if e.State != tui.StateDone {
			failed++
		}
	}
	if ferr := progress.finish(failed); ferr != nil {
		a.logger.WithError(ferr).Warn("Failed to finalize checkpoint")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lookups did not complete", failed, len(urls))
	}
	return nil
}

// warmPlainly runs the lookups without the progress view and returns how many failed
func warmPlainly(ctx context.Context, urls []string, lookup func(context.Context, string) (*pipeline.Result, error)) (int, error) {
	type line struct {
		url string
		res *pipeline.Result
		err error
	}
	results := make([]line, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			res, err := lookup(gctx, u)
			results[i] = line{url: u, res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, l := range results {
		if l.err != nil {
			failed++
			ui.PrintError(l.url, l.err)
			continue
		}
		ui.PrintInfo(string(l.res.Outcome), fmt.Sprintf("%s %s", l.res.Item.ContentID, l.url))
	}
	if failed > 0 {
		return failed, fmt.Errorf("%d of %d lookups failed", failed, len(urls))
	}
	return 0, nil
}

func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
