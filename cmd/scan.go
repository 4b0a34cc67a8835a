package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecloak/internal/cloak"
	"github.com/kozaktomas/facecloak/internal/config"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
)

var scanCmd = &cobra.Command{
	Use:   "scan <page-url-or-file>",
	Short: "Cloak the images of one page",
	Long: `Fetch a page (or read a local HTML file), run every image through face
matching and print the rewritten HTML. Matched images get the obfuscation
filter and data-face-match="true".`,
	Example: `  facecloak scan https://example.com/news
  facecloak scan saved.html --base-url https://example.com/news/ --output cloaked.html`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("output", "o", "", "Write the rewritten HTML to a file instead of stdout")
	scanCmd.Flags().String("base-url", "", "Base URL for relative image sources of a local file")
	scanCmd.Flags().Float64("threshold", 0, "Match distance threshold; overrides FACECLOAK_MATCH_THRESHOLD")
	scanCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
	scanCmd.Flags().Bool("json", false, "Print the run summary as JSON on stdout (requires --output)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cmd.Flags().Changed("threshold") {
		cfg.Recognizer.MatchThreshold = mustGetFloat64(cmd, "threshold")
	}
	outputPath := mustGetString(cmd, "output")
	jsonOutput := mustGetBool(cmd, "json")
	if jsonOutput && outputPath == "" {
		return errors.New("--json needs --output, stdout carries the summary")
	}

	proxy := fetchproxy.New()
	provider, err := newProvider(cfg, proxy)
	if err != nil {
		return err
	}
	defer provider.Close()
	fetcher := newImageFetcher(cfg, proxy)

	var progress cloak.Progress
	var bar *barProgress
	if !mustGetBool(cmd, "no-progress") && !jsonOutput {
		bar = newBarProgress()
		progress = bar
	}

	ctx := context.Background()
	var report *cloak.Report
	if info, statErr := os.Stat(args[0]); statErr == nil && !info.IsDir() {
		// Saved pages reference their images next to the file.
		svc := newCloakService(cfg, fetcher, provider, cloak.WithLocalImages())
		report, err = scanFile(ctx, svc, args[0], mustGetString(cmd, "base-url"), progress)
	} else {
		report, err = newCloakService(cfg, fetcher, provider).CloakPage(ctx, args[0], progress)
	}
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(report.HTML), 0o644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	} else {
		fmt.Print(report.HTML)
	}

	if jsonOutput {
		return outputJSON(report)
	}
	fmt.Fprintf(os.Stderr, "Run %s: %d images scanned, %d matched, %d clean, %d failed, %d skipped in %s\n",
		report.RunID, report.Stats.Accepted, report.Stats.Matched, report.Stats.Clean,
		report.Stats.Failed, report.Stats.Skipped, formatDuration(report.Duration))
	for _, src := range report.Matched {
		fmt.Fprintf(os.Stderr, "  cloaked %s\n", src)
	}
	return nil
}

func scanFile(ctx context.Context, svc *cloak.Service, path, baseURL string, progress cloak.Progress) (*cloak.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer f.Close()

	if baseURL == "" {
		dirURL, err := toURL(filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		baseURL = strings.TrimSuffix(dirURL, "/") + "/"
	}
	return svc.CloakHTML(ctx, f, baseURL, progress)
}
