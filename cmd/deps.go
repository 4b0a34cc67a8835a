package cmd

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/facecloak/internal/cloak"
	"github.com/kozaktomas/facecloak/internal/config"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
	"github.com/kozaktomas/facecloak/internal/observer"
	"github.com/kozaktomas/facecloak/internal/recognizer"
	"github.com/kozaktomas/facecloak/internal/recognizer/dlib"
	"github.com/kozaktomas/facecloak/internal/recognizer/remote"
)

// newLibrary returns the face library selected by FACECLOAK_BACKEND.
func newLibrary(cfg *config.Config) recognizer.Library {
	if cfg.Recognizer.Backend == config.BackendRemote {
		return remote.New(cfg.Embedding.URL)
	}
	return dlib.New()
}

func orchestratorOptions(cfg *config.Config) recognizer.Options {
	return recognizer.Options{
		ModelsPath:     cfg.ModelsDir(),
		MatchThreshold: cfg.Recognizer.MatchThreshold,
		MaxImageSize:   cfg.Recognizer.MaxImageSize,
	}
}

func exemplars(refs []config.Reference) []recognizer.Exemplar {
	out := make([]recognizer.Exemplar, len(refs))
	for i, r := range refs {
		out[i] = recognizer.Exemplar{URL: r.URL, Label: r.Label}
	}
	return out
}

// newProvider wires the lazily initialised recognizer. Exemplars always load
// through the in-process proxy because they live in the bundled assets.
func newProvider(cfg *config.Config, proxy *fetchproxy.Proxy) (*recognizer.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	refs, err := cfg.LoadReferences()
	if err != nil {
		return nil, err
	}
	opts := orchestratorOptions(cfg)
	return recognizer.NewProvider(func(ctx context.Context) (*recognizer.Orchestrator, error) {
		log.Info().Str("backend", cfg.Recognizer.Backend).Int("exemplars", len(refs)).Msg("initialising recognizer")
		return recognizer.Create(ctx, newLibrary(cfg), proxy, opts, exemplars(refs))
	}), nil
}

// newImageFetcher returns the remote proxy client when FACECLOAK_PROXY_URL
// is set, the in-process proxy otherwise.
func newImageFetcher(cfg *config.Config, proxy *fetchproxy.Proxy) fetchproxy.ImageFetcher {
	if cfg.Proxy.URL != "" {
		return fetchproxy.NewClient(cfg.Proxy.URL)
	}
	return proxy
}

func newCloakService(cfg *config.Config, fetcher fetchproxy.ImageFetcher, provider *recognizer.Provider, svcOpts ...cloak.ServiceOption) *cloak.Service {
	return cloak.NewService(fetcher, observer.FromProvider(provider), observer.Options{
		Filter:       cfg.Observer.Filter,
		MaxImageSize: cfg.Recognizer.MaxImageSize,
	}, svcOpts...)
}

// toURL turns a CLI argument into something the proxy can fetch: URLs pass
// through, anything else is a local path.
func toURL(arg string) (string, error) {
	if u, err := url.Parse(arg); err == nil && len(u.Scheme) > 1 {
		return arg, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolving path %s: %w", arg, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
