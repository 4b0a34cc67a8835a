// Package recognizer owns the face-recognition lifecycle: model loading,
// labeled reference descriptors and matching probe images against them.
// Detection and descriptor extraction are delegated to a Library.
package recognizer

import (
	"context"
	"errors"
	"image"
	"math"
)

// UnknownLabel is reported for faces with no reference within the threshold.
const UnknownLabel = "unknown"

const (
	// DefaultMatchThreshold is the Euclidean distance at or beyond which a
	// face is classified as unknown.
	DefaultMatchThreshold = 0.6

	// DefaultCosineThreshold is the cosine distance at or beyond which a
	// face is classified as unknown.
	DefaultCosineThreshold = 0.5
)

var (
	// ErrModelsNotLoaded is returned when detection is attempted before LoadModels.
	ErrModelsNotLoaded = errors.New("models are not loaded yet")
	// ErrNoExemplars is returned when matching against an empty labeled set.
	ErrNoExemplars = errors.New("no exemplars added")
	// ErrNoFaceInExemplar is returned when a reference image contains no face.
	ErrNoFaceInExemplar = errors.New("no face detected in exemplar image")
)

// Descriptor is a face embedding produced by the library.
type Descriptor []float32

// Detection is one face found by the library.
type Detection struct {
	Box        image.Rectangle
	Landmarks  []image.Point
	Descriptor Descriptor
	Score      float64
}

// Library is the external face-recognition engine. Images are JPEG bytes.
type Library interface {
	// LoadModels loads the detector, landmark and descriptor models from path.
	LoadModels(ctx context.Context, path string) error
	// DetectSingle returns the primary face, or nil when there is none.
	DetectSingle(ctx context.Context, img []byte) (*Detection, error)
	// DetectAll returns every face in the image.
	DetectAll(ctx context.Context, img []byte) ([]Detection, error)
	Close() error
}

// Metric is the distance descriptors of a library are compared with.
type Metric int

const (
	MetricEuclidean Metric = iota
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricEuclidean:
		return "euclidean"
	case MetricCosine:
		return "cosine"
	default:
		return "invalid"
	}
}

// DefaultThreshold returns the distance at or beyond which a face is unknown.
func (m Metric) DefaultThreshold() float64 {
	if m == MetricCosine {
		return DefaultCosineThreshold
	}
	return DefaultMatchThreshold
}

// Distance returns the distance between a and b, or +Inf when their
// dimensions differ.
func (m Metric) Distance(a, b Descriptor) float64 {
	if m == MetricCosine {
		return CosineDistance(a, b)
	}
	return EuclideanDistance(a, b)
}

// MetricReporter is implemented by libraries whose descriptors are not
// compared by Euclidean distance.
type MetricReporter interface {
	Metric() Metric
}

// LibraryMetric returns the metric lib reports, MetricEuclidean otherwise.
func LibraryMetric(lib Library) Metric {
	if r, ok := lib.(MetricReporter); ok {
		return r.Metric()
	}
	return MetricEuclidean
}

// EuclideanDistance returns the L2 distance between a and b, or +Inf when
// their dimensions differ.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 - cosine similarity, in [0, 2]. Mismatched
// dimensions give +Inf and zero vectors the maximum distance 2.
func CosineDistance(a, b Descriptor) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp floating point drift.
	similarity = max(-1, min(1, similarity))
	return 1 - similarity
}

// LabeledDescriptor ties a reference descriptor to its identity label.
type LabeledDescriptor struct {
	Label      string     `json:"label"`
	Descriptor Descriptor `json:"descriptor"`
}

// MatchResult is the best match for one detected face.
type MatchResult struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
	Match    bool    `json:"match"`
}

// MatchOutcome summarises all faces of a probe image.
type MatchOutcome struct {
	Matches bool          `json:"matches"`
	Details []MatchResult `json:"details"`
}

// MatchedLabels returns the labels of matched faces in detection order,
// without duplicates.
func (o MatchOutcome) MatchedLabels() []string {
	var labels []string
	seen := make(map[string]struct{})
	for _, d := range o.Details {
		if !d.Match {
			continue
		}
		if _, ok := seen[d.Label]; ok {
			continue
		}
		seen[d.Label] = struct{}{}
		labels = append(labels, d.Label)
	}
	return labels
}

// State is the model lifecycle of an Orchestrator.
type State int

const (
	StateUninitialized State = iota
	StateModelsLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateModelsLoading:
		return "models_loading"
	case StateReady:
		return "ready"
	default:
		return "invalid"
	}
}
