package recognizer

import (
	"math"

	"github.com/coder/hnsw"
)

const (
	// Sets up to this size are scanned exhaustively.
	linearScanLimit  = 32
	hnswMaxNeighbors = 16
	hnswSearchK      = 8

	// A graph hit closer than threshold*rescanMargin triggers an exact scan,
	// so reported matches are always the true minimum.
	rescanMargin = 1.5
)

// Matcher finds the nearest labeled descriptor for a probe descriptor.
// It is immutable once built and safe for concurrent use.
type Matcher struct {
	labeled   []LabeledDescriptor
	metric    Metric
	threshold float64
	graph     *hnsw.Graph[int]
}

// NewMatcher builds a Euclidean matcher over labeled.
func NewMatcher(labeled []LabeledDescriptor, threshold float64) *Matcher {
	return NewMetricMatcher(labeled, MetricEuclidean, threshold)
}

// NewMetricMatcher builds a matcher comparing descriptors by metric. A
// threshold <= 0 selects the metric's default. Large sets with a uniform
// descriptor dimension are indexed with an HNSW graph.
func NewMetricMatcher(labeled []LabeledDescriptor, metric Metric, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = metric.DefaultThreshold()
	}
	m := &Matcher{
		labeled:   append([]LabeledDescriptor(nil), labeled...),
		metric:    metric,
		threshold: threshold,
	}
	if len(m.labeled) > linearScanLimit && uniformDim(m.labeled) {
		g := hnsw.NewGraph[int]()
		g.M = hnswMaxNeighbors
		g.Ml = 1.0 / float64(hnswMaxNeighbors)
		g.EfSearch = max(64, 2*hnswSearchK)
		g.Distance = hnsw.EuclideanDistance
		if metric == MetricCosine {
			g.Distance = hnsw.CosineDistance
		}
		for i, ld := range m.labeled {
			g.Add(hnsw.MakeNode(i, []float32(ld.Descriptor)))
		}
		m.graph = g
	}
	return m
}

// Len returns the number of labeled descriptors.
func (m *Matcher) Len() int {
	return len(m.labeled)
}

// Threshold returns the distance at or beyond which a face is unknown.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// FindBestMatch returns the label with the minimum distance to d, or
// UnknownLabel if that distance is not below the threshold.
//
// Large sets are searched through the graph first. Whenever its best hit
// lies within threshold*rescanMargin every reference is compared exactly;
// a probe whose graph hits are all further away is reported unknown.
func (m *Matcher) FindBestMatch(d Descriptor) MatchResult {
	bestIdx := -1
	bestDist := math.Inf(1)
	consider := func(i int) {
		if dist := m.metric.Distance(d, m.labeled[i].Descriptor); dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}
	scanAll := func() {
		for i := range m.labeled {
			consider(i)
		}
	}

	if m.graph != nil && len(d) == len(m.labeled[0].Descriptor) {
		for _, n := range m.graph.Search([]float32(d), hnswSearchK) {
			consider(n.Key)
		}
		if bestIdx < 0 || bestDist < m.threshold*rescanMargin {
			scanAll()
		}
	} else {
		scanAll()
	}

	if bestIdx < 0 {
		// Nothing comparable, e.g. a descriptor of a different dimension.
		return MatchResult{Label: UnknownLabel}
	}
	if bestDist >= m.threshold {
		return MatchResult{Label: UnknownLabel, Distance: bestDist, Match: false}
	}
	return MatchResult{Label: m.labeled[bestIdx].Label, Distance: bestDist, Match: true}
}

func uniformDim(labeled []LabeledDescriptor) bool {
	if len(labeled) == 0 || len(labeled[0].Descriptor) == 0 {
		return false
	}
	dim := len(labeled[0].Descriptor)
	for _, ld := range labeled[1:] {
		if len(ld.Descriptor) != dim {
			return false
		}
	}
	return true
}
