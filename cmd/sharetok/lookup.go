package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"sharetok/pkg/pipeline"
	"sharetok/pkg/retry"
	"sharetok/pkg/tiktok"
	"sharetok/pkg/ui"
)

var (
	jsonOutput   bool
	sessionToken string
	noRetry      bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Look up one post by share or canonical URL",
	Long: `Look up one post. A cached item is returned without any network traffic, an
evicted one is downloaded again, and anything else is resolved, fetched and
stored. Transient failures are retried per the retry section of the config.`,
	Example: `  sharetok fetch https://vm.tiktok.com/ZMabcdef/
  sharetok fetch --json https://www.tiktok.com/@someone/video/7301234567890123456`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLookup(pipeline.Request{URL: strings.TrimSpace(args[0]), Mode: tiktok.ModeDetail})
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <url>",
	Short: "Fetch a related post not yet watched in this session",
	Long: `Fetch the first post related to <url> that the session has not seen. Without
--session a new session is started and its token printed; pass it back on the
next call to keep skipping watched posts.`,
	Example: `  sharetok related https://vm.tiktok.com/ZMabcdef/
  sharetok related --session 0b6f... https://vm.tiktok.com/ZMabcdef/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLookup(pipeline.Request{
			URL:          strings.TrimSpace(args[0]),
			Mode:         tiktok.ModeRelated,
			SessionToken: sessionToken,
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a stored item by its numeric ID, restoring it if evicted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid item id %q", args[0])
		}
		return runLookup(pipeline.Request{ItemID: uint(id), Mode: tiktok.ModeDetail})
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd, relatedCmd, getCmd)

	for _, c := range []*cobra.Command{fetchCmd, relatedCmd, getCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print the item as JSON")
		c.Flags().BoolVar(&noRetry, "no-retry", false, "fail on the first error")
	}
	relatedCmd.Flags().StringVarP(&sessionToken, "session", "s", "", "session token from a previous call")
}

func runLookup(req pipeline.Request) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := retry.FromSettings(cfg.Retry, a.logger)
	if noRetry {
		policy.MaxAttempts = 1
	}
	req = withSessionToken(req)
	res, err := retry.DoWithResult(ctx, func(ctx context.Context) (*pipeline.Result, error) {
		return a.service.Lookup(ctx, req)
	}, policy)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			pipeline.ItemView
			Outcome      pipeline.Outcome `json:"outcome"`
			SessionToken string           `json:"sessionToken,omitempty"`
		}{res.View(), res.Outcome, res.SessionToken})
	}
	printResult(res)
	return nil
}

// withSessionToken pins the token of a new related session before any
// attempt runs, so retries all report the same session
func withSessionToken(req pipeline.Request) pipeline.Request {
	if req.Mode == tiktok.ModeRelated && req.ItemID == 0 && req.SessionToken == "" {
		req.SessionToken = uuid.NewString()
	}
	return req
}

func printResult(res *pipeline.Result) {
	v := res.View()
	ui.PrintSuccess(fmt.Sprintf("%s %s (%s)", strings.ToUpper(string(res.Outcome)), v.ContentID, v.Kind))
	ui.PrintInfo("ID", strconv.FormatUint(uint64(v.ID), 10))
	ui.PrintInfo("Author", fmt.Sprintf("%s (@%s)", v.Author.Name, v.Author.Handle))
	if v.Description != "" {
		ui.PrintInfo("Description", v.Description)
	}
	ui.PrintInfo("URL", v.OriginalURL)
	if v.Video != nil {
		ui.PrintInfo("Video", v.Video.MP4)
		if v.Video.Thumbnail != "" {
			ui.PrintInfo("Thumbnail", v.Video.Thumbnail)
		}
	}
	if v.Carousel != nil {
		for i, img := range v.Carousel.Images {
			ui.PrintInfo(fmt.Sprintf("Image %d", i+1), img)
		}
		if v.Carousel.Audio != "" {
			ui.PrintInfo("Audio", v.Carousel.Audio)
		}
	}
	if res.SessionToken != "" {
		ui.PrintInfo("Session", res.SessionToken)
	}
}
