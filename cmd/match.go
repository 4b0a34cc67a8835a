package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecloak/internal/config"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
)

var matchCmd = &cobra.Command{
	Use:   "match <image-path-or-url>",
	Short: "Match the faces of one image against the exemplars",
	Long: `Detect every face in an image and print the best exemplar match for
each one as JSON: {"matches": bool, "details": [{"label", "distance", "match"}]}.`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("threshold", 0, "Match distance threshold; overrides FACECLOAK_MATCH_THRESHOLD")
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cmd.Flags().Changed("threshold") {
		cfg.Recognizer.MatchThreshold = mustGetFloat64(cmd, "threshold")
	}

	imageURL, err := toURL(args[0])
	if err != nil {
		return err
	}

	proxy := fetchproxy.New()
	provider, err := newProvider(cfg, proxy)
	if err != nil {
		return err
	}
	defer provider.Close()

	ctx := context.Background()
	data, _, err := proxy.Fetch(ctx, imageURL)
	if err != nil {
		return fmt.Errorf("loading image: %w", err)
	}

	orch, err := provider.Get(ctx)
	if err != nil {
		return err
	}
	outcome, err := orch.MatchImage(ctx, data)
	if err != nil {
		return fmt.Errorf("matching faces: %w", err)
	}
	return outputJSON(outcome)
}
