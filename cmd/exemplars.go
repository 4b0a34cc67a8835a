package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecloak/internal/config"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
	"github.com/kozaktomas/facecloak/internal/recognizer"
)

var exemplarsCmd = &cobra.Command{
	Use:   "exemplars",
	Short: "List the reference exemplars",
	Long: `List the labeled reference images. With --verify, load the models and
every exemplar the same way the recognizer does on first use, and report which
ones fail (unreadable image, no face found).`,
	RunE: runExemplars,
}

func init() {
	rootCmd.AddCommand(exemplarsCmd)

	exemplarsCmd.Flags().Bool("verify", false, "Load models and check that every exemplar has a face")
}

func runExemplars(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	refs, err := cfg.LoadReferences()
	if err != nil {
		return err
	}

	if !mustGetBool(cmd, "verify") {
		for _, r := range refs {
			fmt.Printf("%-12s %s\n", r.Label, r.URL)
		}
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	orch := recognizer.New(newLibrary(cfg), fetchproxy.New(), orchestratorOptions(cfg))
	defer orch.Close()

	fmt.Printf("Loading models from %s (%s backend)...\n", cfg.ModelsDir(), cfg.Recognizer.Backend)
	if err := orch.LoadModels(ctx); err != nil {
		return err
	}

	failed := 0
	for _, r := range refs {
		if err := orch.AddExemplar(ctx, r.URL, r.Label); err != nil {
			failed++
			fmt.Printf("FAIL %-12s %s: %v\n", r.Label, r.URL, err)
			continue
		}
		fmt.Printf("OK   %-12s %s\n", r.Label, r.URL)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d exemplars failed", failed, len(refs))
	}
	fmt.Printf("All %d exemplars loaded\n", len(refs))
	return nil
}
