package recognizer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/facecloak/internal/constants"
	"github.com/kozaktomas/facecloak/internal/imageutil"
	"github.com/kozaktomas/facecloak/internal/logging"
)

// Loader fetches raw image bytes for exemplar URLs.
type Loader interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Options configures an Orchestrator.
type Options struct {
	ModelsPath     string
	MatchThreshold float64 // <= 0 selects the library metric's default
	MaxImageSize   int     // longest side of normalised exemplar/probe images
}

// Orchestrator loads models once, holds the labeled reference descriptors
// and matches probe images against them.
type Orchestrator struct {
	lib    Library
	loader Loader
	opts   Options
	metric Metric
	log    zerolog.Logger

	mu      sync.RWMutex
	state   State
	labeled []LabeledDescriptor
	matcher *Matcher
}

// New creates an Orchestrator in the uninitialized state.
func New(lib Library, loader Loader, opts Options) *Orchestrator {
	metric := LibraryMetric(lib)
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = metric.DefaultThreshold()
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = constants.DefaultMaxImageSize
	}
	return &Orchestrator{
		lib:     lib,
		loader:  loader,
		opts:    opts,
		metric:  metric,
		log:     logging.Component("recognizer"),
		matcher: NewMetricMatcher(nil, metric, opts.MatchThreshold),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Metric returns the distance descriptors are compared with.
func (o *Orchestrator) Metric() Metric {
	return o.metric
}

// Threshold returns the effective match threshold.
func (o *Orchestrator) Threshold() float64 {
	return o.opts.MatchThreshold
}

// Labeled returns a copy of the labeled descriptors in insertion order.
func (o *Orchestrator) Labeled() []LabeledDescriptor {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]LabeledDescriptor(nil), o.labeled...)
}

// LoadModels loads the three model artifacts through the library. It is a
// no-op once the orchestrator is ready.
func (o *Orchestrator) LoadModels(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case StateReady:
		o.mu.Unlock()
		return nil
	case StateModelsLoading:
		o.mu.Unlock()
		return errors.New("models are already loading")
	}
	o.state = StateModelsLoading
	o.mu.Unlock()

	err := o.lib.LoadModels(ctx, o.opts.ModelsPath)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.state = StateUninitialized
		return fmt.Errorf("loading models from %s: %w", o.opts.ModelsPath, err)
	}
	o.state = StateReady
	o.log.Debug().Str("path", o.opts.ModelsPath).Msg("models loaded")
	return nil
}

// AddExemplar fetches a reference image, extracts the descriptor of its
// primary face and appends it under label.
func (o *Orchestrator) AddExemplar(ctx context.Context, rawURL, label string) error {
	if o.State() != StateReady {
		return ErrModelsNotLoaded
	}

	data, _, err := o.loader.Fetch(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("fetching exemplar %s: %w", rawURL, err)
	}
	img, err := imageutil.Normalize(data, o.opts.MaxImageSize)
	if err != nil {
		return fmt.Errorf("exemplar %s: %w", rawURL, err)
	}

	det, err := o.lib.DetectSingle(ctx, img)
	if err != nil {
		return fmt.Errorf("detecting face in exemplar %s: %w", rawURL, err)
	}
	if det == nil || len(det.Descriptor) == 0 {
		return fmt.Errorf("%w: %s", ErrNoFaceInExemplar, rawURL)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.labeled = append(o.labeled, LabeledDescriptor{Label: label, Descriptor: det.Descriptor})
	o.matcher = NewMetricMatcher(o.labeled, o.metric, o.opts.MatchThreshold)
	o.log.Debug().Str("label", label).Str("url", rawURL).Int("dim", len(det.Descriptor)).Msg("exemplar added")
	return nil
}

// MatchFaces detects every face in img (normalised JPEG bytes) and matches
// each one against the labeled set. An image without faces is a definitive
// no-match, not an error.
func (o *Orchestrator) MatchFaces(ctx context.Context, img []byte) (MatchOutcome, error) {
	o.mu.RLock()
	state, matcher := o.state, o.matcher
	o.mu.RUnlock()

	if state != StateReady {
		return MatchOutcome{}, ErrModelsNotLoaded
	}
	if matcher.Len() == 0 {
		return MatchOutcome{}, ErrNoExemplars
	}

	detections, err := o.lib.DetectAll(ctx, img)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("detecting faces: %w", err)
	}

	outcome := MatchOutcome{Details: make([]MatchResult, 0, len(detections))}
	if len(detections) == 0 {
		o.log.Debug().Msg("no faces in image")
		return outcome, nil
	}

	for _, det := range detections {
		res := matcher.FindBestMatch(det.Descriptor)
		outcome.Details = append(outcome.Details, res)
		outcome.Matches = outcome.Matches || res.Match
	}
	return outcome, nil
}

// MatchImage normalises arbitrary image bytes and runs MatchFaces.
func (o *Orchestrator) MatchImage(ctx context.Context, data []byte) (MatchOutcome, error) {
	img, err := imageutil.Normalize(data, o.opts.MaxImageSize)
	if err != nil {
		return MatchOutcome{}, err
	}
	return o.MatchFaces(ctx, img)
}

// Close releases the library.
func (o *Orchestrator) Close() error {
	return o.lib.Close()
}

// Create builds a ready orchestrator: models first, then every reference in
// order. Any failure closes the library and aborts.
func Create(ctx context.Context, lib Library, loader Loader, opts Options, refs []Exemplar) (*Orchestrator, error) {
	o := New(lib, loader, opts)
	if err := o.LoadModels(ctx); err != nil {
		lib.Close()
		return nil, err
	}
	for _, ref := range refs {
		if err := o.AddExemplar(ctx, ref.URL, ref.Label); err != nil {
			lib.Close()
			return nil, err
		}
	}
	o.log.Info().
		Int("exemplars", len(refs)).
		Stringer("metric", o.metric).
		Float64("threshold", o.opts.MatchThreshold).
		Msg("recognizer ready")
	return o, nil
}

// Exemplar is a reference image URL and its identity label.
type Exemplar struct {
	URL   string
	Label string
}
