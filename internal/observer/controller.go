// Package observer watches a document for images, runs each one through the
// fetch and face-match pipeline at most once, and obfuscates the images that
// show a known face.
package observer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/facecloak/internal/config"
	"github.com/kozaktomas/facecloak/internal/constants"
	"github.com/kozaktomas/facecloak/internal/dom"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
	"github.com/kozaktomas/facecloak/internal/imageutil"
	"github.com/kozaktomas/facecloak/internal/logging"
	"github.com/kozaktomas/facecloak/internal/recognizer"
)

// Attributes written on image elements.
const (
	ProcessedAttr = "data-face-processed"
	MatchAttr     = "data-face-match"
	LabelsAttr    = "data-face-labels"
)

// Document is the page the controller works on.
type Document interface {
	QuerySelectorAll(tag string) []*dom.Element
	Observe(opts dom.ObserveOptions, cb dom.MutationCallback) (stop func())
}

// FaceMatcher matches a normalised JPEG against the reference faces.
type FaceMatcher interface {
	MatchFaces(ctx context.Context, img []byte) (recognizer.MatchOutcome, error)
}

// MatcherSource returns the shared matcher, initialising it on first use.
type MatcherSource func(ctx context.Context) (FaceMatcher, error)

// FromProvider adapts a recognizer.Provider.
func FromProvider(p *recognizer.Provider) MatcherSource {
	return func(ctx context.Context) (FaceMatcher, error) {
		o, err := p.Get(ctx)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
}

// Static always returns m.
func Static(m FaceMatcher) MatcherSource {
	return func(context.Context) (FaceMatcher, error) { return m, nil }
}

// Options tune the controller.
type Options struct {
	// Filter is the CSS filter applied to matched images.
	Filter string
	// MaxImageSize bounds the longest side of probe images.
	MaxImageSize int
}

// Result describes one finished image.
type Result struct {
	Element  *dom.Element
	Src      string
	Outcome  recognizer.MatchOutcome
	Labels   []string
	Err      error
	Duration time.Duration
}

// Stats counts what the controller did.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Skipped  int64 `json:"skipped"`
	Matched  int64 `json:"matched"`
	Clean    int64 `json:"clean"`
	Failed   int64 `json:"failed"`
}

// Controller runs the per-image pipeline for one document.
type Controller struct {
	doc      Document
	fetcher  fetchproxy.ImageFetcher
	matchers MatcherSource
	opts     Options
	log      zerolog.Logger

	wg sync.WaitGroup

	mu       sync.Mutex
	ctx      context.Context
	stop     func()
	onResult func(Result)

	accepted, skipped, matched, clean, failed atomic.Int64
}

// New returns a controller. Zero options fall back to the defaults.
func New(doc Document, fetcher fetchproxy.ImageFetcher, matchers MatcherSource, opts Options) *Controller {
	if opts.Filter == "" {
		opts.Filter = config.DefaultObfuscationFilter
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = constants.DefaultMaxImageSize
	}
	return &Controller{
		doc:      doc,
		fetcher:  fetcher,
		matchers: matchers,
		opts:     opts,
		log:      logging.Component("observer"),
		ctx:      context.Background(),
	}
}

// OnResult registers a callback invoked after each accepted image finishes.
// It runs on the handler's goroutine.
func (c *Controller) OnResult(fn func(Result)) {
	c.mu.Lock()
	c.onResult = fn
	c.mu.Unlock()
}

// Start submits every image already in the document and then subscribes to
// inserted elements and src changes. It returns the number of images the
// initial scan accepted. ctx bounds all pipelines started by the controller.
func (c *Controller) Start(ctx context.Context) int {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	accepted := 0
	for _, img := range c.doc.QuerySelectorAll("img") {
		if c.HandleImage(ctx, img) {
			accepted++
		}
	}

	stop := c.doc.Observe(dom.ObserveOptions{
		ChildList:       true,
		Subtree:         true,
		Attributes:      true,
		AttributeFilter: []string{"src"},
	}, c.onMutations)

	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()

	c.log.Debug().Int("images", accepted).Msg("initial scan done")
	return accepted
}

func (c *Controller) onMutations(mutations []dom.Mutation) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	for _, m := range mutations {
		switch m.Type {
		case dom.Attributes:
			if m.AttributeName == "src" && m.Target.TagName() == "img" {
				c.HandleImage(ctx, m.Target)
			}
		case dom.ChildList:
			for _, n := range m.AddedNodes {
				if n.TagName() == "img" {
					c.HandleImage(ctx, n)
				}
				for _, img := range n.QuerySelectorAll("img") {
					c.HandleImage(ctx, img)
				}
			}
		}
	}
}

// HandleImage is the idempotent gate. It skips images that are already
// marked, have no source or carry an inline data/blob source. Otherwise it
// marks the element before returning and runs the pipeline in the
// background. It reports whether the image was accepted.
func (c *Controller) HandleImage(ctx context.Context, el *dom.Element) bool {
	src := el.Src()
	if src == "" || el.HasAttr(ProcessedAttr) || fetchproxy.IsInlineURL(src) {
		c.skipped.Add(1)
		return false
	}
	if !el.SetAttrIfAbsent(ProcessedAttr, "true") {
		c.skipped.Add(1)
		return false
	}

	c.accepted.Add(1)
	c.wg.Add(1)
	go c.process(ctx, el, src)
	return true
}

func (c *Controller) process(ctx context.Context, el *dom.Element, src string) {
	defer c.wg.Done()

	start := time.Now()
	res := Result{Element: el, Src: src}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic while processing image: %v", r)
		}
		res.Duration = time.Since(start)
		c.finish(res)
	}()

	res.Outcome, res.Err = c.match(ctx, src)
	if res.Err != nil || !res.Outcome.Matches {
		return
	}
	res.Labels = res.Outcome.MatchedLabels()
	c.obfuscate(el, res.Labels)
}

func (c *Controller) match(ctx context.Context, src string) (recognizer.MatchOutcome, error) {
	dataURL, err := c.fetcher.FetchImage(ctx, src)
	if err != nil {
		return recognizer.MatchOutcome{}, fmt.Errorf("fetching image: %w", err)
	}
	_, data, err := fetchproxy.DecodeDataURL(dataURL)
	if err != nil {
		return recognizer.MatchOutcome{}, err
	}
	img, err := imageutil.Normalize(data, c.opts.MaxImageSize)
	if err != nil {
		return recognizer.MatchOutcome{}, err
	}
	m, err := c.matchers(ctx)
	if err != nil {
		return recognizer.MatchOutcome{}, fmt.Errorf("initialising recognizer: %w", err)
	}
	return m.MatchFaces(ctx, img)
}

func (c *Controller) obfuscate(el *dom.Element, labels []string) {
	el.SetStyle("filter", c.opts.Filter)
	el.SetAttr(MatchAttr, "true")
	if attr := labelsAttr(labels); attr != "" {
		el.SetAttr(LabelsAttr, attr)
	}
}

func (c *Controller) finish(res Result) {
	switch {
	case res.Err != nil:
		c.failed.Add(1)
		c.log.Error().Err(res.Err).Str("src", res.Src).Msg("error processing image")
	case res.Outcome.Matches:
		c.matched.Add(1)
		c.log.Debug().Str("src", res.Src).Strs("labels", res.Labels).Dur("took", res.Duration).Msg("match found")
	default:
		c.clean.Add(1)
		c.log.Debug().Str("src", res.Src).Dur("took", res.Duration).Msg("no match")
	}

	c.mu.Lock()
	fn := c.onResult
	c.mu.Unlock()
	if fn != nil {
		fn(res)
	}
}

// Wait blocks until every accepted image has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Stop unsubscribes from the document. In-flight images keep running.
func (c *Controller) Stop() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Accepted: c.accepted.Load(),
		Skipped:  c.skipped.Load(),
		Matched:  c.matched.Load(),
		Clean:    c.clean.Load(),
		Failed:   c.failed.Load(),
	}
}
