// Package cloak runs the image observer over a whole page once and returns
// the rewritten HTML.
package cloak

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/facecloak/internal/dom"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
	"github.com/kozaktomas/facecloak/internal/logging"
	"github.com/kozaktomas/facecloak/internal/observer"
)

// Progress receives per-run progress. Done may be called before Started.
type Progress interface {
	Started(total int)
	Done(res observer.Result)
}

// Report is the result of one run.
type Report struct {
	RunID    string         `json:"run_id"`
	HTML     string         `json:"-"`
	Stats    observer.Stats `json:"stats"`
	Matched  []string       `json:"matched"`
	Duration time.Duration  `json:"duration"`
}

// Service cloaks pages.
type Service struct {
	fetcher  fetchproxy.ImageFetcher
	images   fetchproxy.ImageFetcher
	matchers observer.MatcherSource
	opts     observer.Options
	log      zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLocalImages lets page images load from file URLs. Use it only for
// pages supplied by the local user.
func WithLocalImages() ServiceOption {
	return func(s *Service) {
		s.images = s.fetcher
	}
}

// NewService creates a service. Pages are fetched through fetcher; images
// go through it too but are limited to http(s) URLs.
func NewService(fetcher fetchproxy.ImageFetcher, matchers observer.MatcherSource, opts observer.Options, svcOpts ...ServiceOption) *Service {
	s := &Service{
		fetcher:  fetcher,
		images:   fetchproxy.RemoteOnly(fetcher),
		matchers: matchers,
		opts:     opts,
		log:      logging.Component("cloak"),
	}
	for _, opt := range svcOpts {
		opt(s)
	}
	return s
}

// CloakPage fetches pageURL and cloaks it.
func (s *Service) CloakPage(ctx context.Context, pageURL string, progress Progress) (*Report, error) {
	dataURL, err := s.fetcher.FetchImage(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	mimeType, body, err := fetchproxy.DecodeDataURL(dataURL)
	if err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	if !strings.HasPrefix(mimeType, "text/") && mimeType != "application/xhtml+xml" {
		return nil, fmt.Errorf("page %s is %s, not html", pageURL, mimeType)
	}
	return s.CloakHTML(ctx, bytes.NewReader(body), pageURL, progress)
}

// CloakHTML parses a document, processes every image it holds and renders it.
// progress may be nil.
func (s *Service) CloakHTML(ctx context.Context, r io.Reader, baseURL string, progress Progress) (*Report, error) {
	doc, err := dom.Parse(r, baseURL)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.New().String()}
	log := s.log.With().Str("run_id", report.RunID).Str("base_url", baseURL).Logger()
	start := time.Now()

	ctrl := observer.New(doc, s.images, s.matchers, s.opts)
	results := make(chan observer.Result, 16)
	collected := make(chan []string)
	go func() {
		var matched []string
		for res := range results {
			if res.Outcome.Matches {
				matched = append(matched, res.Src)
			}
		}
		collected <- matched
	}()
	ctrl.OnResult(func(res observer.Result) {
		if progress != nil {
			progress.Done(res)
		}
		results <- res
	})

	total := ctrl.Start(ctx)
	if progress != nil {
		progress.Started(total)
	}
	log.Info().Int("images", total).Msg("cloaking page")

	ctrl.Wait()
	ctrl.Stop()
	close(results)
	report.Matched = <-collected

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	report.HTML = buf.String()
	report.Stats = ctrl.Stats()
	report.Duration = time.Since(start)

	log.Info().
		Int64("matched", report.Stats.Matched).
		Int64("failed", report.Stats.Failed).
		Dur("took", report.Duration).
		Msg("page cloaked")
	return report, nil
}
