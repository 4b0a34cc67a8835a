package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecloak/internal/config"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
	"github.com/kozaktomas/facecloak/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the facecloak web server.
The server exposes the image fetch proxy (POST /api/v1/messages) and, unless
--proxy-only is given, face matching (POST /api/v1/match) and page cloaking
(GET /api/v1/cloak?url=). Models load on the first request that needs them.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on; overrides WEB_PORT")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to; overrides WEB_HOST")
	serveCmd.Flags().Bool("proxy-only", false, "Serve only the fetch proxy, without loading models")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}

	proxy := fetchproxy.New()
	deps := web.Deps{Proxy: proxy}

	if !mustGetBool(cmd, "proxy-only") {
		provider, err := newProvider(cfg, proxy)
		if err != nil {
			return err
		}
		defer provider.Close()
		deps.Recognizers = provider
		deps.Cloak = newCloakService(cfg, newImageFetcher(cfg, proxy), provider)
	}

	server := web.NewServer(cfg, deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
