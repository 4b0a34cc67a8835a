// Package recognizertest provides an in-memory recognizer.Library for tests.
// Faces are keyed by image dimensions, which survive normalisation.
package recognizertest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/facecloak/internal/recognizer"
)

// Library is a fake face library.
type Library struct {
	// LoadErr is returned from LoadModels when set.
	LoadErr error
	// LoadGate, when non-nil, blocks LoadModels until it is closed.
	LoadGate chan struct{}
	// DetectErr is returned from detection calls when set.
	DetectErr error
	// DistanceMetric is reported through Metric.
	DistanceMetric recognizer.Metric

	loadCalls   atomic.Int32
	detectCalls atomic.Int32
	closed      atomic.Bool

	mu    sync.Mutex
	faces map[image.Point][]recognizer.Detection
}

// New returns an empty fake library.
func New() *Library {
	return &Library{faces: make(map[image.Point][]recognizer.Detection)}
}

// SetFaces registers the faces found in any image of size w x h.
func (l *Library) SetFaces(w, h int, descriptors ...recognizer.Descriptor) {
	dets := make([]recognizer.Detection, len(descriptors))
	for i, d := range descriptors {
		dets[i] = recognizer.Detection{
			Box:        image.Rect(0, 0, w/2, h/2),
			Descriptor: d,
			Score:      0.99,
		}
	}
	l.mu.Lock()
	l.faces[image.Pt(w, h)] = dets
	l.mu.Unlock()
}

// Metric returns DistanceMetric.
func (l *Library) Metric() recognizer.Metric { return l.DistanceMetric }

// LoadCalls returns how many times LoadModels ran.
func (l *Library) LoadCalls() int { return int(l.loadCalls.Load()) }

// DetectCalls returns how many detection calls were made.
func (l *Library) DetectCalls() int { return int(l.detectCalls.Load()) }

// Closed reports whether Close was called.
func (l *Library) Closed() bool { return l.closed.Load() }

func (l *Library) LoadModels(ctx context.Context, path string) error {
	l.loadCalls.Add(1)
	if l.LoadGate != nil {
		select {
		case <-l.LoadGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.LoadErr
}

func (l *Library) DetectSingle(ctx context.Context, img []byte) (*recognizer.Detection, error) {
	dets, err := l.DetectAll(ctx, img)
	if err != nil || len(dets) == 0 {
		return nil, err
	}
	return &dets[0], nil
}

func (l *Library) DetectAll(ctx context.Context, img []byte) ([]recognizer.Detection, error) {
	l.detectCalls.Add(1)
	if l.DetectErr != nil {
		return nil, l.DetectErr
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recognizer.Detection(nil), l.faces[image.Pt(cfg.Width, cfg.Height)]...), nil
}

func (l *Library) Close() error {
	l.closed.Store(true)
	return nil
}

// Descriptor returns a 128-d descriptor filled with v.
func Descriptor(v float32) recognizer.Descriptor {
	d := make(recognizer.Descriptor, 128)
	for i := range d {
		d[i] = v
	}
	return d
}

// JPEG encodes a solid grey image of size w x h.
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, solid(w, h), nil)
	return buf.Bytes()
}

// PNG encodes a solid grey image of size w x h.
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, solid(w, h))
	return buf.Bytes()
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	return img
}

// Loader serves fixed bytes per URL, like a fetch proxy over bundled files.
type Loader map[string][]byte

func (l Loader) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	data, ok := l[rawURL]
	if !ok {
		return nil, "", &notFoundError{url: rawURL}
	}
	return data, "image/png", nil
}

type notFoundError struct{ url string }

func (e *notFoundError) Error() string { return "not found: " + e.url }
